package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLookupCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup NAME",
		Short: "Resolve an object name to J2000 coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.App()
			if err != nil {
				return err
			}
			target, err := a.Archive.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(target, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: ra=%s dec=%s (%s %s)\n", target.Name, target.RA, target.Dec, target.CRA, target.CDec)
				return err
			})
		},
	}
}
