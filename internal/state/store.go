package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/koaarchive/koa/internal/tap"
)

// PhaseChange records when a job was first seen in a phase.
type PhaseChange struct {
	Phase tap.Phase
	At    time.Time
}

// Snapshot represents the latest job state available to the UI.
type Snapshot struct {
	Job         tap.JobStatus
	HasJob      bool
	History     []PhaseChange
	LastUpdated time.Time
	LastError   error
	Done        bool
	Summary     string // one-line outcome once Done
}

// Elapsed returns the time since the first observed phase.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if len(s.History) == 0 {
		return 0
	}
	return now.Sub(s.History[0].At)
}

// Store coordinates concurrent updates to the snapshot. It implements
// tap.Observer so it can be handed straight to the client.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

var _ tap.Observer = (*Store)(nil)

// Observe records a job status reported by the poll loop.
func (s *Store) Observe(st tap.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if n := len(s.snapshot.History); n == 0 || s.snapshot.History[n-1].Phase != st.Phase {
		s.snapshot.History = append(s.snapshot.History, PhaseChange{Phase: st.Phase, At: now})
	}
	st.Parameters = cloneParams(st.Parameters)
	s.snapshot.Job = st
	s.snapshot.HasJob = true
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = now
}

// Report records a failed status poll without ending the run.
func (s *Store) Report(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastError = err
	s.snapshot.LastUpdated = time.Now()
}

// Finish marks the run as over. A nil err records success with summary.
func (s *Store) Finish(summary string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Done = true
	s.snapshot.Summary = summary
	s.snapshot.LastError = err
	s.snapshot.LastUpdated = time.Now()
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Job.Parameters = cloneParams(s.snapshot.Job.Parameters)
	if len(s.snapshot.History) > 0 {
		snap.History = append([]PhaseChange(nil), s.snapshot.History...)
	}
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneParams(params []tap.Parameter) []tap.Parameter {
	if len(params) == 0 {
		return nil
	}
	dup := make([]tap.Parameter, len(params))
	copy(dup, params)
	return dup
}
