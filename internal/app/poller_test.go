package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koaarchive/koa/internal/state"
	"github.com/koaarchive/koa/internal/tap"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	// Verify that backoff never exceeds maxBackoff regardless of input
	baseInterval := 2 * time.Second
	for failures := 0; failures <= 20; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

// scriptedSource returns its steps in order; the last one repeats.
type scriptedSource struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
}

type scriptStep struct {
	phase tap.Phase
	err   error
}

func (s *scriptedSource) Status(_ context.Context, statusURL string) (tap.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	if step.err != nil {
		return tap.JobStatus{}, step.err
	}
	return tap.JobStatus{JobID: "job1", StatusURL: statusURL, Phase: step.phase, ErrorSummary: "bad query"}, nil
}

func waitDone(t *testing.T, store *state.Store) state.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := store.Snapshot(); snap.Done {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("poller did not finish")
	return state.Snapshot{}
}

func TestStartPoller_FollowsJobToCompletion(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{
		{phase: tap.PhaseQueued},
		{err: errors.New("connection reset")},
		{phase: tap.PhaseExecuting},
		{phase: tap.PhaseCompleted},
	}}
	store := &state.Store{}

	StartPoller(context.Background(), store, source, "https://koa.example/TAP/async/job1", time.Millisecond, nil)
	snap := waitDone(t, store)

	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}
	if snap.Job.Phase != tap.PhaseCompleted {
		t.Fatalf("Phase = %q, want COMPLETED", snap.Job.Phase)
	}
	if len(snap.History) != 3 {
		t.Fatalf("History = %v, want 3 phases", snap.History)
	}
}

func TestStartPoller_ErrorPhaseFails(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{{phase: tap.PhaseError}}}
	store := &state.Store{}

	StartPoller(context.Background(), store, source, "https://koa.example/TAP/async/job1", time.Millisecond, nil)
	snap := waitDone(t, store)

	if !errors.Is(snap.LastError, tap.ErrJobFailed) {
		t.Fatalf("LastError = %v, want ErrJobFailed", snap.LastError)
	}
}

func TestStartPoller_StopsOnCancel(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{{phase: tap.PhaseExecuting}}}
	store := &state.Store{}
	ctx, cancel := context.WithCancel(context.Background())

	StartPoller(ctx, store, source, "https://koa.example/TAP/async/job1", time.Millisecond, nil)
	cancel()
	snap := waitDone(t, store)

	if !errors.Is(snap.LastError, context.Canceled) {
		t.Fatalf("LastError = %v, want context.Canceled", snap.LastError)
	}
}
