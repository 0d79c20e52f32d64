package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/koaarchive/koa/internal/download"
	"github.com/koaarchive/koa/internal/table"
)

func newDownloadCmd(s *session) *cobra.Command {
	var (
		format      string
		start, end  int
		calib, lev1 bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "download METADATA_FILE OUTDIR",
		Short: "Download the files listed in a query result",
		Long: "Download every file listed in a metadata table written by koa query.\n" +
			"The table needs koaid, filehand and instrume columns. Files already in\n" +
			"OUTDIR are skipped, so an interrupted download can be rerun.",
		Example: `  koa query datetime hires "2019-10-24 00:00:00/2019-10-25 00:00:00" --out hires.tbl
  koa download hires.tbl ./hires --calib`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := table.FormatIPAC
			if format != "" {
				var err error
				if f, err = table.ParseFormat(format); err != nil {
					return err
				}
			}
			a, err := s.App()
			if err != nil {
				return err
			}
			d := a.Downloader
			if cmd.Flags().Changed("concurrency") {
				cfg := s.cfg.Download
				d, err = download.New(download.Options{
					Transport:   a.Transport,
					Endpoints:   a.Endpoints,
					Logger:      a.Logger,
					Concurrency: concurrency,
					RateLimit:   cfg.RateLimit,
					Burst:       cfg.Burst,
				})
				if err != nil {
					return err
				}
			}

			req := download.NewRequest(args[0], f, args[1])
			req.StartRow, req.EndRow = start, end
			req.Calib, req.Lev1 = calib, lev1
			sum, err := d.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emit(sum, func(w io.Writer) error {
				return printSummary(w, sum, args[1])
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Metadata table format (default ipac)")
	cmd.Flags().IntVar(&start, "start", 0, "First row to download, zero-based")
	cmd.Flags().IntVar(&end, "end", -1, "Last row to download; -1 is the last row")
	cmd.Flags().BoolVar(&calib, "calib", false, "Also download associated calibration files")
	cmd.Flags().BoolVar(&lev1, "lev1", false, "Also download associated level-1 products")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Files downloaded at once (default from config)")
	return cmd
}

func printSummary(w io.Writer, sum download.Summary, outDir string) error {
	if _, err := fmt.Fprintf(w, "%d files requested: %d downloaded, %d already present, %d failed\n",
		sum.Requested, sum.Downloaded, sum.Skipped, sum.Failed); err != nil {
		return err
	}
	if sum.CalibLists > 0 || sum.CalibFiles > 0 {
		if _, err := fmt.Fprintf(w, "%d calibration lists, %d calibration files downloaded\n", sum.CalibLists, sum.CalibFiles); err != nil {
			return err
		}
	}
	if sum.Lev1Lists > 0 || sum.Lev1Files > 0 {
		if _, err := fmt.Fprintf(w, "%d level-1 lists, %d level-1 files downloaded\n", sum.Lev1Lists, sum.Lev1Files); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Files are in %s\n", outDir)
	return err
}
