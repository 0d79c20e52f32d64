package tap

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// Transport is the HTTP collaborator used by the client. POST requests must
// not follow redirects.
type Transport interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
	PostForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error)
}

// JobStatus is a point-in-time copy of a job's state.
type JobStatus struct {
	JobID             string      `json:"job_id" yaml:"job_id"`
	RunID             string      `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	StatusURL         string      `json:"status_url" yaml:"status_url"`
	Phase             Phase       `json:"phase" yaml:"phase"`
	ResultURL         string      `json:"result_url,omitempty" yaml:"result_url,omitempty"`
	ErrorSummary      string      `json:"error_summary,omitempty" yaml:"error_summary,omitempty"`
	ProcessID         string      `json:"process_id,omitempty" yaml:"process_id,omitempty"`
	OwnerID           string      `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	StartTime         string      `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime           string      `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	ExecutionDuration string      `json:"execution_duration,omitempty" yaml:"execution_duration,omitempty"`
	Destruction       string      `json:"destruction,omitempty" yaml:"destruction,omitempty"`
	Quote             string      `json:"quote,omitempty" yaml:"quote,omitempty"`
	Parameters        []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// RawParameters is the parameters element as the server sent it.
	RawParameters string `json:"raw_parameters,omitempty" yaml:"raw_parameters,omitempty"`
	Polls             int         `json:"polls" yaml:"polls"`
	UpdatedAt         time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Job is a server-side asynchronous query addressed by its status URL.
// Refresh may be called from several goroutines; only one status request
// is in flight at a time and responses are applied in order.
type Job struct {
	statusURL string
	transport Transport

	inflight sync.Mutex

	mu      sync.RWMutex
	doc     StatusDocument
	polls   int
	updated time.Time
}

func newJob(statusURL string, transport Transport) *Job {
	j := &Job{statusURL: statusURL, transport: transport}
	j.doc.Phase = PhasePending
	if u, err := url.Parse(statusURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			j.doc.JobID = base
		}
	}
	return j
}

// StatusURL returns the URL the job was created with.
func (j *Job) StatusURL() string { return j.statusURL }

// Phase returns the last observed phase.
func (j *Job) Phase() Phase {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.doc.Phase
}

// ResultURL is set once the job is COMPLETED.
func (j *Job) ResultURL() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.doc.Phase != PhaseCompleted {
		return ""
	}
	return j.doc.ResultURL
}

// ErrorSummary is set once the job is in ERROR.
func (j *Job) ErrorSummary() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.doc.Phase != PhaseError {
		return ""
	}
	return j.doc.ErrorMessage
}

// Status returns a snapshot of the job.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	st := JobStatus{
		JobID:             j.doc.JobID,
		RunID:             j.doc.RunID,
		StatusURL:         j.statusURL,
		Phase:             j.doc.Phase,
		ProcessID:         j.doc.ProcessID,
		OwnerID:           j.doc.OwnerID,
		StartTime:         j.doc.StartTime,
		EndTime:           j.doc.EndTime,
		ExecutionDuration: j.doc.ExecutionDuration,
		Destruction:       j.doc.Destruction,
		Quote:             j.doc.Quote,
		RawParameters:     j.doc.RawParameters,
		Polls:             j.polls,
		UpdatedAt:         j.updated,
	}
	switch j.doc.Phase {
	case PhaseCompleted:
		st.ResultURL = j.doc.ResultURL
	case PhaseError:
		st.ErrorSummary = j.doc.ErrorMessage
	}
	if len(j.doc.Parameters) > 0 {
		st.Parameters = append([]Parameter(nil), j.doc.Parameters...)
	}
	return st
}

// Refresh fetches the status document once and applies it. It is a no-op
// once the job is terminal.
func (j *Job) Refresh(ctx context.Context) error {
	j.inflight.Lock()
	defer j.inflight.Unlock()

	if j.Phase().Terminal() {
		return nil
	}

	resp, err := j.transport.Get(ctx, j.statusURL)
	if err != nil {
		return transportError("poll", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readLimited(resp.Body, maxStatusBody)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return NewError(KindProtocol, "poll", "status document too large", err)
		}
		return transportError("poll", err)
	}

	doc, err := ParseStatusDocument(body)
	if err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return rejection("poll", resp.Header.Get("Content-Type"), resp.StatusCode, body)
		}
		return NewError(KindProtocol, "poll", "", err)
	}
	j.apply(doc)
	return nil
}

func (j *Job) apply(doc StatusDocument) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if doc.JobID == "" {
		doc.JobID = j.doc.JobID
	}
	if resolved := resolveRef(j.statusURL, doc.ResultURL); resolved != "" {
		doc.ResultURL = resolved
	}
	j.doc = doc
	j.polls++
	j.updated = time.Now()
}

// resolveRef resolves a possibly relative result reference against the
// status URL.
func resolveRef(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return r.String()
}
