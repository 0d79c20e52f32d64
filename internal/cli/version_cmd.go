package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newVersionCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the koa version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			info := map[string]string{"version": version, "commit": commit}
			return s.emit(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "koa version %s (commit: %s)\n", version, commit)
				return err
			})
		},
	}
}
