package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koaarchive/koa/internal/prefs"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/ui"
)

func newShowCmd(s *session) *cobra.Command {
	var (
		format string
		rows   int
	)
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print a result table saved by koa query",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := formatFor(args[0], format)
			if err != nil {
				return err
			}
			tbl, err := table.ReadFile(args[0], f)
			if err != nil {
				return err
			}
			out := queryOutput{Path: args[0], Columns: tbl.Columns, Rows: tbl.Rows}
			return s.emit(out, func(w io.Writer) error {
				p, _ := prefs.Load(s.prefsPath)
				_, err := fmt.Fprintln(w, ui.RenderTable(tbl, ui.GetTheme(p.Theme), rows))
				if err == nil {
					_, err = fmt.Fprintf(w, "%d rows\n", tbl.Len())
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Table format (default from file extension)")
	cmd.Flags().IntVar(&rows, "rows", 50, "Rows to print; 0 prints all")
	return cmd
}

// formatFor picks the table format from an explicit value or the file
// extension, falling back to IPAC.
func formatFor(path, explicit string) (table.Format, error) {
	if explicit != "" {
		return table.ParseFormat(explicit)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".vot", ".votable":
		return table.FormatVOTable, nil
	case ".csv":
		return table.FormatCSV, nil
	case ".tsv":
		return table.FormatTSV, nil
	}
	return table.FormatIPAC, nil
}
