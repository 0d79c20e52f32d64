package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koaarchive/koa/internal/app"
	"github.com/koaarchive/koa/internal/state"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
	"github.com/koaarchive/koa/internal/ui"
)

func newJobCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and fetch asynchronous TAP jobs",
		Long: "Work with a job created earlier. Without a URL the last job submitted\n" +
			"from this machine is used.",
	}
	cmd.AddCommand(newJobStatusCmd(s))
	cmd.AddCommand(newJobFetchCmd(s))
	return cmd
}

func (s *session) jobURL(a *app.App, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if last := a.Prefs().LastJob; last != "" {
		return last, nil
	}
	return "", errors.New("no job url given and no previous job recorded")
}

func newJobStatusCmd(s *session) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status [STATUS_URL]",
		Short: "Show the phase of a job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.App()
			if err != nil {
				return err
			}
			statusURL, err := s.jobURL(a, args)
			if err != nil {
				return err
			}

			if watch && s.interactive() {
				app.StartPoller(cmd.Context(), a.Store, a.TAP, statusURL, s.cfg.PollInterval, a.Logger)
				detached, err := ui.Run(cmd.Context(), ui.Options{
					Store:     a.Store,
					Title:     statusURL,
					LogPath:   s.cfg.LogFile,
					LogLevel:  s.cfg.LogLevel,
					ThemeName: a.Prefs().Theme,
					PrefsPath: a.PrefsPath,
				})
				if err != nil {
					return err
				}
				return watchOutcome(a.Store.Snapshot(), detached)
			}

			st, err := a.TAP.Status(cmd.Context(), statusURL)
			if err != nil {
				return err
			}
			return s.emit(st, func(w io.Writer) error {
				return printJobStatus(w, st)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job until it ends")
	return cmd
}

// watchOutcome is the result of a finished watch: the job's failure once it
// has ended, nothing when the user stopped watching early.
func watchOutcome(snap state.Snapshot, detached bool) error {
	if detached || !snap.Done {
		return nil
	}
	return snap.LastError
}

func printJobStatus(w io.Writer, st tap.JobStatus) error {
	rows := [][2]string{
		{"Job", st.JobID},
		{"Run", st.RunID},
		{"Phase", string(st.Phase)},
		{"Status URL", st.StatusURL},
		{"Result URL", st.ResultURL},
		{"Error", st.ErrorSummary},
		{"Owner", st.OwnerID},
		{"Started", st.StartTime},
		{"Ended", st.EndTime},
		{"Destruction", st.Destruction},
		{"Quote", st.Quote},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "%-12s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	for _, p := range st.Parameters {
		if _, err := fmt.Fprintf(w, "%-12s %s=%s\n", "Parameter:", p.ID, oneLine(p.Value)); err != nil {
			return err
		}
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newJobFetchCmd(s *session) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "fetch [STATUS_URL]",
		Short: "Wait for a job and retrieve its result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.App()
			if err != nil {
				return err
			}
			statusURL, err := s.jobURL(a, args)
			if err != nil {
				return err
			}
			f := s.cfg.Format
			if format != "" {
				if f, err = table.ParseFormat(format); err != nil {
					return err
				}
			}
			res, err := a.TAP.Resume(cmd.Context(), statusURL, f, strings.TrimSpace(out))
			if err != nil {
				return err
			}
			return s.printResult(res)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Format the job was submitted with (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "Write the result to this file instead of printing it")
	return cmd
}
