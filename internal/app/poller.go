package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/koaarchive/koa/internal/state"
	"github.com/koaarchive/koa/internal/tap"
)

const (
	defaultPollInterval = 2 * time.Second
	maxBackoff          = 30 * time.Second
)

// StatusSource reads the state of an existing job; *tap.Client implements it.
type StatusSource interface {
	Status(ctx context.Context, statusURL string) (tap.JobStatus, error)
}

var _ StatusSource = (*tap.Client)(nil)

// StartPoller launches a background goroutine that follows the job at
// statusURL and records every status in store. It returns immediately. The
// goroutine stops once the job reaches a terminal phase, which it marks
// with store.Finish, or when ctx is cancelled. Failed polls are reported
// and retried with exponential backoff.
func StartPoller(ctx context.Context, store *state.Store, source StatusSource, statusURL string, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	go func() {
		failures := 0
		for {
			if done := refresh(ctx, store, source, statusURL, logger, &failures); done {
				return
			}
			timer := time.NewTimer(calculateBackoff(failures, interval))
			select {
			case <-ctx.Done():
				timer.Stop()
				store.Finish("", ctx.Err())
				return
			case <-timer.C:
			}
		}
	}()
}

func refresh(ctx context.Context, store *state.Store, source StatusSource, statusURL string, logger *slog.Logger, failures *int) bool {
	st, err := source.Status(ctx, statusURL)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		*failures++
		store.Report(err)
		logger.Warn("status poll failed", "status_url", statusURL, "failures", *failures, "error", err)
		return false
	}
	*failures = 0
	store.Observe(st)
	if st.Phase.Terminal() {
		store.Finish(terminalOutcome(st))
		return true
	}
	return false
}

func terminalOutcome(st tap.JobStatus) (string, error) {
	op := "job " + st.JobID
	switch st.Phase {
	case tap.PhaseCompleted:
		return op + " completed: " + st.ResultURL, nil
	case tap.PhaseError:
		return "", tap.NewError(tap.KindJobFailed, op, st.ErrorSummary, nil)
	default:
		return "", tap.NewError(tap.KindJobFailed, op, "job "+strings.ToLower(string(st.Phase)), nil)
	}
}

// calculateBackoff doubles interval for every consecutive failure, capped
// at maxBackoff.
func calculateBackoff(failures int, interval time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	backoff := interval
	for range failures {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
