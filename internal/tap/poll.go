package tap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrPollTimeout reports that a job did not finish within Options.PollTimeout.
var ErrPollTimeout = errors.New("poll timeout exceeded")

// wait refreshes job immediately and then every poll interval until it
// reaches a terminal phase, the context ends or the poll timeout expires.
func (c *Client) wait(ctx context.Context, job *Job, log *slog.Logger) error {
	pollCtx := ctx
	if c.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeoutCause(ctx, c.pollTimeout, ErrPollTimeout)
		defer cancel()
	}

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	var last Phase
	for {
		if err := job.Refresh(pollCtx); err != nil {
			if pollCtx.Err() != nil {
				return c.pollAborted(pollCtx, job)
			}
			return err
		}
		st := job.Status()
		c.notify(st)
		if st.Phase != last {
			log.Info("job phase", "job_id", st.JobID, "phase", st.Phase)
			last = st.Phase
		} else {
			log.Debug("job still running", "job_id", st.JobID, "phase", st.Phase, "polls", st.Polls)
		}
		if st.Phase.Terminal() {
			return nil
		}

		timer.Reset(c.pollInterval)
		select {
		case <-pollCtx.Done():
			return c.pollAborted(pollCtx, job)
		case <-timer.C:
		}
	}
}

func (c *Client) pollAborted(ctx context.Context, job *Job) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrPollTimeout) {
		return NewError(KindCanceled, "poll", fmt.Sprintf("%s after %s", job.StatusURL(), c.pollTimeout), ErrPollTimeout)
	}
	return NewError(KindCanceled, "poll", job.StatusURL(), cause)
}
