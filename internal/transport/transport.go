// Package transport provides the HTTP client used to talk to the archive.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultUserAgent identifies the client to the archive.
	DefaultUserAgent = "koa-go/0.1"

	maxRedirects = 10
)

// Options configure an HTTP transport.
type Options struct {
	// Jar, when set, is attached to every request.
	Jar http.CookieJar
	// Timeout bounds the wait for response headers. Zero means no limit;
	// bodies are always governed by the request context.
	Timeout   time.Duration
	UserAgent string
}

// HTTP issues GET and form POST requests. Redirects are followed for GET
// but never for POST, so a TAP 303 reaches the caller untouched.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// New builds an HTTP transport.
func New(opts Options) *HTTP {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Timeout > 0 {
		base.ResponseHeaderTimeout = opts.Timeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &HTTP{
		client: &http.Client{
			Transport:     base,
			Jar:           opts.Jar,
			CheckRedirect: checkRedirect,
		},
		userAgent: ua,
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > 0 && via[0].Method == http.MethodPost {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// Get fetches rawURL. The caller closes the response body.
func (h *HTTP) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return h.do(req)
}

// PostForm submits form as application/x-www-form-urlencoded. The caller
// closes the response body.
func (h *HTTP) PostForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *HTTP) do(req *http.Request) (*http.Response, error) {
	if h == nil {
		return nil, errors.New("transport is nil")
	}
	req.Header.Set("User-Agent", h.userAgent)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}
