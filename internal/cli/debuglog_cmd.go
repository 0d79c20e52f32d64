package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/koaarchive/koa/internal/logtail"
)

func newDebugLogCmd(s *session) *cobra.Command {
	var (
		lines int
		level string
		grep  string
	)
	cmd := &cobra.Command{
		Use:   "debuglog",
		Short: "Print the end of the koa log file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := s.cfg.LogFile
			out, err := logtail.Read(path, lines, logtail.All(logtail.MinLevel(level), logtail.Contains(grep)))
			if err != nil {
				return err
			}
			payload := map[string]any{"path": path, "lines": out}
			return s.emit(payload, func(w io.Writer) error {
				if len(out) == 0 {
					_, err := fmt.Fprintf(w, "no log lines in %s\n", path)
					return err
				}
				for _, line := range out {
					if _, err := fmt.Fprintln(w, line); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Lines to print; 0 prints all")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&grep, "grep", "", "Only lines containing this text")
	return cmd
}
