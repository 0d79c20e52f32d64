package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/koaarchive/koa/internal/app"
	"github.com/koaarchive/koa/internal/archive"
	"github.com/koaarchive/koa/internal/tap"
	"github.com/koaarchive/koa/internal/ui"
)

type queryFunc func(ctx context.Context, a *archive.Archive) (*tap.Result, error)

// runQuery runs fn, optionally under the job monitor, remembers the job it
// created and prints the result.
func (s *session) runQuery(ctx context.Context, watch bool, title string, fn queryFunc) error {
	a, err := s.App()
	if err != nil {
		return err
	}

	var res *tap.Result
	if watch && s.interactive() {
		var detached bool
		res, detached, err = s.watchQuery(ctx, a, title, fn)
		if detached {
			snap := a.Store.Snapshot()
			s.rememberJob(a)
			if snap.HasJob {
				fmt.Fprintf(s.streams.Err, "Stopped watching; job %s keeps running. Fetch it with: koa job fetch %s\n", snap.Job.JobID, snap.Job.StatusURL)
			}
			return nil
		}
	} else {
		res, err = fn(ctx, a.Archive)
	}
	s.rememberJob(a)
	if err != nil {
		return err
	}
	return s.printResult(res)
}

func (s *session) watchQuery(ctx context.Context, a *app.App, title string, fn queryFunc) (*tap.Result, bool, error) {
	type outcome struct {
		res *tap.Result
		err error
	}
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := fn(qctx, a.Archive)
		a.Store.Finish(resultSummary(res), err)
		done <- outcome{res, err}
	}()

	detached, uiErr := ui.Run(ctx, ui.Options{
		Store:     a.Store,
		Title:     title,
		LogPath:   s.cfg.LogFile,
		LogLevel:  s.cfg.LogLevel,
		ThemeName: a.Prefs().Theme,
		PrefsPath: a.PrefsPath,
	})
	if detached || uiErr != nil {
		cancel()
	}
	o := <-done
	if uiErr != nil && o.err == nil {
		return o.res, false, uiErr
	}
	return o.res, detached, o.err
}

func resultSummary(res *tap.Result) string {
	switch {
	case res == nil:
		return ""
	case res.Path != "":
		return fmt.Sprintf("wrote %d bytes to %s", res.Bytes, res.Path)
	case res.Table != nil:
		return fmt.Sprintf("%d rows", res.Table.Len())
	}
	return "done"
}

func (s *session) rememberJob(a *app.App) {
	if snap := a.Store.Snapshot(); snap.HasJob {
		a.RememberJob(snap.Job.StatusURL)
	}
}

// interactive reports whether stdout is a terminal the monitor can draw on.
func (s *session) interactive() bool {
	f, ok := s.streams.Out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
