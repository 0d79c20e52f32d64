package tap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/transport"
)

const (
	// DefaultBaseURL is the KOA TAP service.
	DefaultBaseURL = "https://koa.ipac.caltech.edu/TAP"
	// DefaultPollInterval is the pause between job status requests.
	DefaultPollInterval = 2 * time.Second

	maxStatusBody = 4 << 20
	maxErrorBody  = 1 << 20
	sniffSize     = 64 << 10
)

// Observer receives every job status applied while the client follows a
// job through Submit or Resume, in order.
type Observer interface {
	Observe(JobStatus)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(JobStatus)

func (f ObserverFunc) Observe(st JobStatus) { f(st) }

// Options configure a Client. The zero value talks to the public KOA TAP
// service with a 2 s poll interval and no poll timeout.
type Options struct {
	BaseURL      string
	Transport    Transport
	Logger       *slog.Logger
	PollInterval time.Duration
	// PollTimeout bounds the wait for a job to finish. Zero waits until
	// the context is cancelled.
	PollTimeout time.Duration
	Observer    Observer
	// TempDir holds result files that are parsed into memory. Empty uses
	// os.TempDir.
	TempDir string
}

// Client submits ADQL queries to a TAP service and retrieves their results.
type Client struct {
	base         *url.URL
	transport    Transport
	logger       *slog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
	observer     Observer
	tempDir      string
}

// NewClient builds a Client from opts.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:         base,
		transport:    opts.Transport,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		observer:     opts.Observer,
		tempDir:      opts.TempDir,
	}
	if c.transport == nil {
		c.transport = transport.New(transport.Options{})
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	return c, nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string { return c.base.String() }

// Submit runs q in the mode it names.
func (c *Client) Submit(ctx context.Context, q Query, outPath string) (*Result, error) {
	if q.Mode == ModeSync {
		return c.SubmitSync(ctx, q, outPath)
	}
	return c.SubmitAsync(ctx, q, outPath)
}

// SubmitAsync creates a job, waits for it to finish and retrieves its
// result. An empty outPath returns the result as an in-memory table.
func (c *Client) SubmitAsync(ctx context.Context, q Query, outPath string) (*Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	log := c.logger.With("submission_id", uuid.NewString(), "mode", ModeAsync.String())

	job, err := c.createJob(ctx, q, log)
	if err != nil {
		return nil, err
	}
	return c.follow(ctx, job, q.format(), outPath, log)
}

// SubmitSync runs q on the synchronous endpoint. No job is created.
func (c *Client) SubmitSync(ctx context.Context, q Query, outPath string) (*Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	log := c.logger.With("submission_id", uuid.NewString(), "mode", ModeSync.String())
	log.Info("submitting query", "endpoint", c.endpoint("sync"), "format", q.format(), "maxrec", q.MaxRecords)

	resp, err := c.transport.PostForm(ctx, c.endpoint("sync"), q.form())
	if err != nil {
		return nil, transportError("submit", err)
	}
	defer func() { _ = resp.Body.Close() }()

	res, err := c.receive("submit", resp, q.format(), outPath)
	if err != nil {
		log.Warn("sync query failed", "error", err)
		return nil, err
	}
	log.Info("sync query finished", "bytes", res.Bytes, "path", res.Path)
	return res, nil
}

// Resume attaches to an existing job by its status URL, waits for it and
// retrieves its result.
func (c *Client) Resume(ctx context.Context, statusURL string, format table.Format, outPath string) (*Result, error) {
	if _, err := url.ParseRequestURI(strings.TrimSpace(statusURL)); err != nil {
		return nil, invalidInput("resume", fmt.Errorf("parse job url %q: %w", statusURL, err))
	}
	if format == "" {
		format = table.FormatVOTable
	}
	log := c.logger.With("submission_id", uuid.NewString(), "mode", "resume")
	job := newJob(strings.TrimSpace(statusURL), c.transport)
	return c.follow(ctx, job, format, outPath, log)
}

// Status refreshes an existing job once and returns its state. The
// Observer is not notified; callers that poll with Status record the
// result themselves.
func (c *Client) Status(ctx context.Context, statusURL string) (JobStatus, error) {
	if _, err := url.ParseRequestURI(strings.TrimSpace(statusURL)); err != nil {
		return JobStatus{}, invalidInput("status", fmt.Errorf("parse job url %q: %w", statusURL, err))
	}
	job := newJob(strings.TrimSpace(statusURL), c.transport)
	if err := job.Refresh(ctx); err != nil {
		return JobStatus{}, err
	}
	return job.Status(), nil
}

func (c *Client) createJob(ctx context.Context, q Query, log *slog.Logger) (*Job, error) {
	endpoint := c.endpoint("async")
	log.Info("submitting query", "endpoint", endpoint, "format", q.format(), "maxrec", q.MaxRecords)

	resp, err := c.transport.PostForm(ctx, endpoint, q.form())
	if err != nil {
		return nil, transportError("submit", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusSeeOther {
		body, err := readLimited(resp.Body, maxErrorBody)
		if err != nil {
			return nil, transportError("submit", err)
		}
		rej := rejection("submit", resp.Header.Get("Content-Type"), resp.StatusCode, body)
		log.Warn("query rejected", "status", resp.StatusCode, "error", rej)
		return nil, rej
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return nil, protocolError("submit", "303 response without Location header")
	}
	statusURL, err := resolveLocation(resp, location)
	if err != nil {
		return nil, NewError(KindProtocol, "submit", "bad Location header", err)
	}
	log.Info("job created", "job_url", statusURL)
	return newJob(statusURL, c.transport), nil
}

func resolveLocation(resp *http.Response, location string) (string, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if resp.Request != nil && resp.Request.URL != nil {
		loc = resp.Request.URL.ResolveReference(loc)
	}
	if !loc.IsAbs() {
		return "", fmt.Errorf("location %q is not absolute", location)
	}
	return loc.String(), nil
}

// follow waits for job to reach a terminal phase and retrieves its result.
func (c *Client) follow(ctx context.Context, job *Job, format table.Format, outPath string, log *slog.Logger) (*Result, error) {
	started := time.Now()
	if err := c.wait(ctx, job, log); err != nil {
		return nil, err
	}
	st := job.Status()
	log = log.With("job_id", st.JobID, "phase", st.Phase, "elapsed", time.Since(started).Round(time.Millisecond))

	switch st.Phase {
	case PhaseError:
		log.Warn("job failed", "error_summary", st.ErrorSummary)
		return nil, jobFailed("job "+st.JobID, st.ErrorSummary)
	case PhaseAborted:
		log.Warn("job aborted")
		return nil, jobFailed("job "+st.JobID, "job aborted")
	}

	res, err := c.retrieve(ctx, st.ResultURL, format, outPath)
	if err != nil {
		log.Warn("result retrieval failed", "error", err)
		return nil, err
	}
	res.Job = &st
	log.Info("job finished", "bytes", res.Bytes, "path", res.Path)
	return res, nil
}

func (c *Client) retrieve(ctx context.Context, resultURL string, format table.Format, outPath string) (*Result, error) {
	resp, err := c.transport.Get(ctx, resultURL)
	if err != nil {
		return nil, transportError("fetch result", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.receive("fetch result", resp, format, outPath)
}

// receive turns a result response into a Result, rejecting error bodies
// before anything is written.
func (c *Client) receive(op string, resp *http.Response, format table.Format, outPath string) (*Result, error) {
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := readLimited(resp.Body, maxErrorBody)
		if err != nil {
			return nil, transportError(op, err)
		}
		return nil, rejection(op, contentType, resp.StatusCode, body)
	}

	br := bufio.NewReaderSize(resp.Body, sniffSize)
	head, _ := br.Peek(sniffSize)
	lead := bytes.TrimLeft(head, " \t\r\n")
	switch {
	case isJSON(contentType, lead):
		body, err := readLimited(br, maxErrorBody)
		if err != nil {
			return nil, transportError(op, err)
		}
		return nil, rejection(op, contentType, resp.StatusCode, body)
	case isXML(contentType, lead):
		if msg, ok := VOTableError(bytes.NewReader(head)); ok {
			if msg == "" {
				msg = noErrorMessage
			}
			return nil, serverError(op, msg)
		}
	}
	return c.save(op, br, format, outPath)
}

func (c *Client) notify(st JobStatus) {
	if c.observer != nil {
		c.observer.Observe(st)
	}
}

func (c *Client) endpoint(name string) string {
	return c.base.JoinPath(name).String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
