// Package archive wraps the KOA services around the TAP client: login,
// canned queries built by the archive's makeQuery service, and object name
// lookup.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/koaarchive/koa/internal/config"
	"github.com/koaarchive/koa/internal/cookies"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
)

const (
	// DefaultRadius is the cone radius, in degrees, for object searches.
	DefaultRadius = 0.5

	maxReplyBody = 1 << 20
)

// Submitter runs a TAP query; *tap.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, q tap.Query, outPath string) (*tap.Result, error)
}

var _ Submitter = (*tap.Client)(nil)

// Options configure an Archive.
type Options struct {
	TAP       Submitter
	Transport tap.Transport
	Endpoints config.Endpoints
	LookupURL string
	// Jar is persisted after a successful login. The transport must use
	// the same jar for the session cookie to be captured.
	Jar    *cookies.Jar
	Logger *slog.Logger

	DefaultFormat     table.Format
	DefaultMaxRecords int
}

// Archive is the high-level KOA client.
type Archive struct {
	tap           Submitter
	transport     tap.Transport
	endpoints     config.Endpoints
	lookupURL     string
	jar           *cookies.Jar
	logger        *slog.Logger
	defaultFormat table.Format
	defaultMaxRec int
}

// New builds an Archive.
func New(opts Options) (*Archive, error) {
	if opts.TAP == nil {
		return nil, errors.New("archive: tap client is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("archive: transport is required")
	}
	a := &Archive{
		tap:           opts.TAP,
		transport:     opts.Transport,
		endpoints:     opts.Endpoints,
		lookupURL:     strings.TrimSpace(opts.LookupURL),
		jar:           opts.Jar,
		logger:        opts.Logger,
		defaultFormat: opts.DefaultFormat,
		defaultMaxRec: opts.DefaultMaxRecords,
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.defaultFormat == "" {
		a.defaultFormat = table.FormatIPAC
	}
	if a.defaultMaxRec == 0 {
		a.defaultMaxRec = tap.Unbounded
	}
	return a, nil
}

// Login authenticates against KOA. On success the session cookie is saved
// to cookiePath so later runs can read proprietary data.
func (a *Archive) Login(ctx context.Context, userID, password, cookiePath string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return errors.New("login: userid and password are required")
	}
	if strings.TrimSpace(cookiePath) == "" {
		return errors.New("login: a cookie path is required")
	}
	if a.jar == nil {
		return errors.New("login: no cookie jar configured")
	}

	// The service expects the password percent-encoded before the query
	// string itself is encoded.
	params := url.Values{}
	params.Set("userid", userID)
	params.Set("password", quote(password))

	body, contentType, err := a.get(ctx, "login", a.endpoints.Login, params)
	if err != nil {
		return err
	}
	reply, err := tap.DecodeStatusReply(body)
	if err != nil {
		return tap.NewError(tap.KindProtocol, "login", fmt.Sprintf("unexpected %s reply", contentType), err)
	}
	if msg, failed := reply.Failure(); failed {
		a.logger.Warn("login failed", "userid", userID, "reason", msg)
		return tap.NewError(tap.KindServer, "login", msg, nil)
	}

	if err := a.jar.Save(cookiePath); err != nil {
		return tap.NewError(tap.KindLocalIO, "login", "", err)
	}
	a.logger.Info("logged in", "userid", userID, "cookie_path", cookiePath, "cookies", a.jar.Len())
	return nil
}

// quote percent-encodes s the way a URL path segment would be, keeping '/'
// and encoding spaces as %20.
func quote(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	return strings.ReplaceAll(escaped, "%2F", "/")
}

// get issues a GET with params and returns the body of a 2xx reply.
func (a *Archive) get(ctx context.Context, op, endpoint string, params url.Values) ([]byte, string, error) {
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	resp, err := a.transport.Get(ctx, target)
	if err != nil {
		return nil, "", tap.NewError(tap.KindTransport, op, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return nil, "", tap.NewError(tap.KindTransport, op, "", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, contentType, httpFailure(op, resp.StatusCode, body)
	}
	return body, contentType, nil
}

func httpFailure(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if reply, err := tap.DecodeStatusReply(body); err == nil {
		if m, failed := reply.Failure(); failed {
			msg = m
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d with empty body", status)
	}
	return tap.NewError(tap.KindServer, op, msg, nil)
}

func isJSONReply(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "json") {
		return true
	}
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}
