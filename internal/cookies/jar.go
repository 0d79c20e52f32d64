// Package cookies keeps the archive session cookies in the Netscape
// cookies.txt format, so a login performed once can be reused by later
// query and download runs.
package cookies

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	fileHeader     = "# Netscape HTTP Cookie File"
	httpOnlyPrefix = "#HttpOnly_"
)

type entry struct {
	domain     string
	subdomains bool
	path       string
	secure     bool
	httpOnly   bool
	expires    time.Time // zero for session cookies
	name       string
	value      string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !e.expires.After(now)
}

// Jar is an http.CookieJar that can be loaded from and saved to a
// cookies.txt file. It is safe for concurrent use.
type Jar struct {
	mu      sync.RWMutex
	entries []*entry
	now     func() time.Time
}

var _ http.CookieJar = (*Jar)(nil)

// New returns an empty jar.
func New() *Jar {
	return &Jar{now: time.Now}
}

// Load reads a cookies.txt file. Expired cookies are kept so the file
// round-trips, but they are never sent.
func Load(path string) (*Jar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer file.Close()

	jar, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	return jar, nil
}

// Read parses cookies.txt content.
func Read(r io.Reader) (*Jar, error) {
	jar := New()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: want 7 tab-separated fields, got %d", lineNo, len(fields))
		}
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad expiry %q", lineNo, fields[4])
		}
		e := &entry{
			domain:     strings.TrimPrefix(strings.ToLower(fields[0]), "."),
			subdomains: strings.EqualFold(fields[1], "TRUE"),
			path:       fields[2],
			secure:     strings.EqualFold(fields[3], "TRUE"),
			httpOnly:   httpOnly,
			name:       fields[5],
			value:      fields[6],
		}
		if expiry > 0 {
			e.expires = time.Unix(expiry, 0)
		}
		jar.upsert(e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return jar, nil
}

// Save writes the jar to path, creating parent directories as needed.
// Session cookies are written with expiry 0.
func (j *Jar) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("cookie path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	var b strings.Builder
	if err := j.Write(&b); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return nil
}

// Write serializes the jar in cookies.txt format.
func (j *Jar) Write(w io.Writer) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, fileHeader)
	for _, e := range j.entries {
		domain := e.domain
		if e.subdomains {
			domain = "." + domain
		}
		if e.httpOnly {
			domain = httpOnlyPrefix + domain
		}
		var expiry int64
		if !e.expires.IsZero() {
			expiry = e.expires.Unix()
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, boolField(e.subdomains), e.path, boolField(e.secure), expiry, e.name, e.value)
	}
	return bw.Flush()
}

// Len reports how many cookies the jar holds, expired ones included.
func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// SetCookies implements http.CookieJar. A cookie is dropped when its Domain
// attribute does not cover the host that set it or names a public suffix.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	now := j.now()
	host := strings.ToLower(u.Hostname())
	for _, c := range cookies {
		domain, subdomains, ok := cookieDomain(host, c.Domain)
		if !ok {
			continue
		}
		e := &entry{
			domain:     domain,
			subdomains: subdomains,
			path:       c.Path,
			secure:     c.Secure,
			httpOnly:   c.HttpOnly,
			name:       c.Name,
			value:      c.Value,
		}
		if e.path == "" || !strings.HasPrefix(e.path, "/") {
			e.path = defaultPath(u.EscapedPath())
		}
		switch {
		case c.MaxAge < 0:
			j.remove(e)
			continue
		case c.MaxAge > 0:
			e.expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			e.expires = c.Expires
		}
		j.upsert(e)
	}
}

// cookieDomain resolves the Domain attribute against the request host
// following RFC 6265 section 5.3.
func cookieDomain(host, attr string) (domain string, subdomains, ok bool) {
	attr = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(attr)), ".")
	if attr == "" {
		return host, false, host != ""
	}
	if net.ParseIP(host) != nil {
		return host, false, attr == host
	}
	if suffix, _ := publicsuffix.PublicSuffix(attr); suffix == attr {
		// A public suffix is only acceptable as a host-only cookie on
		// that exact host.
		return host, false, attr == host
	}
	if !domainMatch(host, attr, true) {
		return "", false, false
	}
	return attr, true, true
}

// defaultPath is the directory of the request path.
func defaultPath(reqPath string) string {
	if reqPath == "" || reqPath[0] != '/' {
		return "/"
	}
	return path.Dir(reqPath)
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()

	host := strings.ToLower(u.Hostname())
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}
	now := j.now()
	var out []*http.Cookie
	for _, e := range j.entries {
		if e.expired(now) || (e.secure && u.Scheme != "https") {
			continue
		}
		if !domainMatch(host, e.domain, e.subdomains) || !pathMatch(reqPath, e.path) {
			continue
		}
		out = append(out, &http.Cookie{Name: e.name, Value: e.value})
	}
	return out
}

func (j *Jar) upsert(e *entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, existing := range j.entries {
		if existing.domain == e.domain && existing.path == e.path && existing.name == e.name {
			j.entries[i] = e
			return
		}
	}
	j.entries = append(j.entries, e)
}

func (j *Jar) remove(e *entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.entries[:0]
	for _, existing := range j.entries {
		if existing.domain == e.domain && existing.path == e.path && existing.name == e.name {
			continue
		}
		kept = append(kept, existing)
	}
	j.entries = kept
}

func domainMatch(host, domain string, subdomains bool) bool {
	if host == domain {
		return true
	}
	return subdomains && strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" || reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func boolField(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
