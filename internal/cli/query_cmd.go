package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koaarchive/koa/internal/archive"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
	"github.com/koaarchive/koa/internal/ui"
)

type queryFlags struct {
	format string
	maxrec int
	out    string
	sync   bool
	watch  bool
}

func (qf *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&qf.format, "format", "f", "", "Result format: votable, ipac, csv, tsv (default from config)")
	cmd.Flags().IntVar(&qf.maxrec, "maxrec", 0, "Maximum records; -1 is unbounded (default from config)")
	cmd.Flags().StringVar(&qf.out, "out", "", "Write the result to this file instead of printing it")
	cmd.Flags().BoolVar(&qf.sync, "sync", false, "Use the synchronous endpoint")
	cmd.Flags().BoolVarP(&qf.watch, "watch", "w", false, "Show a live job monitor while the query runs")
}

func (qf *queryFlags) options(cmd *cobra.Command, s *session) (archive.QueryOptions, error) {
	opts := archive.QueryOptions{OutPath: strings.TrimSpace(qf.out), Sync: qf.sync}
	if qf.format != "" {
		format, err := table.ParseFormat(qf.format)
		if err != nil {
			return opts, err
		}
		opts.Format = format
	}
	if cmd.Flags().Changed("maxrec") {
		opts.MaxRecords = qf.maxrec
	} else {
		opts.MaxRecords = s.cfg.MaxRecords
	}
	return opts, nil
}

type criteriaFlags struct {
	instrument string
	datetime   string
	date       string
	pos        string
	target     string
	params     map[string]string
}

func (cf *criteriaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cf.instrument, "instrument", "", "Instrument name, for example HIRES")
	cmd.Flags().StringVar(&cf.datetime, "datetime", "", `Time range "YYYY-MM-DD hh:mm:ss/YYYY-MM-DD hh:mm:ss"`)
	cmd.Flags().StringVar(&cf.date, "date", "", `Date range "YYYY-MM-DD/YYYY-MM-DD"`)
	cmd.Flags().StringVar(&cf.pos, "pos", "", `Region, for example "circle 230.0 45.0 0.5"`)
	cmd.Flags().StringVar(&cf.target, "target", "", "Target name as recorded in the headers")
	cmd.Flags().StringToStringVar(&cf.params, "param", nil, "Extra makeQuery parameter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("instrument")
}

func (cf *criteriaFlags) criteria() archive.Criteria {
	return archive.Criteria{
		Instrument: cf.instrument,
		Datetime:   cf.datetime,
		Date:       cf.date,
		Pos:        cf.pos,
		Target:     cf.target,
		Extra:      cf.params,
	}
}

func newQueryCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run archive queries",
	}
	cmd.AddCommand(newQueryADQLCmd(s))
	cmd.AddCommand(newQueryCriteriaCmd(s))
	cmd.AddCommand(newQueryBuildCmd(s))
	cmd.AddCommand(newQueryRangeCmd(s, "datetime", `Search an instrument over a time range "YYYY-MM-DD hh:mm:ss/YYYY-MM-DD hh:mm:ss"`,
		func(a *archive.Archive) rangeQuery { return a.QueryDatetime }))
	cmd.AddCommand(newQueryRangeCmd(s, "date", `Search an instrument over a date range "YYYY-MM-DD/YYYY-MM-DD"`,
		func(a *archive.Archive) rangeQuery { return a.QueryDate }))
	cmd.AddCommand(newQueryRangeCmd(s, "position", `Search an instrument inside a region, for example "circle 230.0 45.0 0.5"`,
		func(a *archive.Archive) rangeQuery { return a.QueryPosition }))
	cmd.AddCommand(newQueryObjectCmd(s))
	return cmd
}

func newQueryADQLCmd(s *session) *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "adql [STATEMENT | -]",
		Short: "Run an ADQL statement",
		Example: `  koa query adql "select koaid, filehand from koa_hires where koaid like 'HI.2019%'" --out hires.tbl
  koa query adql - --format csv < query.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adql := args[0]
			if adql == "-" {
				data, err := io.ReadAll(s.streams.In)
				if err != nil {
					return fmt.Errorf("read query: %w", err)
				}
				adql = string(data)
			}
			opts, err := qf.options(cmd, s)
			if err != nil {
				return err
			}
			return s.runQuery(cmd.Context(), qf.watch, adql, func(ctx context.Context, a *archive.Archive) (*tap.Result, error) {
				return a.QueryADQL(ctx, adql, opts)
			})
		},
	}
	qf.register(cmd)
	return cmd
}

func newQueryCriteriaCmd(s *session) *cobra.Command {
	var (
		qf queryFlags
		cf criteriaFlags
	)
	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Build a query from search criteria and run it",
		Example: `  koa query criteria --instrument hires --date 2019-10-24/2019-10-25 --param proptint=PI`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := qf.options(cmd, s)
			if err != nil {
				return err
			}
			c := cf.criteria()
			return s.runQuery(cmd.Context(), qf.watch, "criteria "+cf.instrument, func(ctx context.Context, a *archive.Archive) (*tap.Result, error) {
				return a.QueryCriteria(ctx, c, opts)
			})
		},
	}
	qf.register(cmd)
	cf.register(cmd)
	return cmd
}

func newQueryBuildCmd(s *session) *cobra.Command {
	var cf criteriaFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Print the ADQL the archive builds for search criteria",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.App()
			if err != nil {
				return err
			}
			adql, err := a.Archive.MakeQuery(cmd.Context(), cf.criteria())
			if err != nil {
				return err
			}
			return s.emit(map[string]string{"adql": adql}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, adql)
				return err
			})
		},
	}
	cf.register(cmd)
	return cmd
}

type rangeQuery func(ctx context.Context, instrument, value string, opts archive.QueryOptions) (*tap.Result, error)

func newQueryRangeCmd(s *session, name, short string, pick func(*archive.Archive) rangeQuery) *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   name + " INSTRUMENT " + strings.ToUpper(name),
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := qf.options(cmd, s)
			if err != nil {
				return err
			}
			instrument, value := args[0], args[1]
			title := fmt.Sprintf("%s %s %s", instrument, name, value)
			return s.runQuery(cmd.Context(), qf.watch, title, func(ctx context.Context, a *archive.Archive) (*tap.Result, error) {
				return pick(a)(ctx, instrument, value, opts)
			})
		},
	}
	qf.register(cmd)
	return cmd
}

func newQueryObjectCmd(s *session) *cobra.Command {
	var (
		qf     queryFlags
		radius float64
	)
	cmd := &cobra.Command{
		Use:     "object INSTRUMENT NAME",
		Short:   "Resolve an object name and search a cone around it",
		Example: `  koa query object hires m31 --radius 0.2 --out m31.tbl`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := qf.options(cmd, s)
			if err != nil {
				return err
			}
			instrument, object := args[0], args[1]
			title := fmt.Sprintf("%s around %s", instrument, object)
			return s.runQuery(cmd.Context(), qf.watch, title, func(ctx context.Context, a *archive.Archive) (*tap.Result, error) {
				return a.QueryObject(ctx, instrument, object, radius, opts)
			})
		},
	}
	qf.register(cmd)
	cmd.Flags().Float64Var(&radius, "radius", archive.DefaultRadius, "Cone radius in degrees")
	return cmd
}

// queryOutput is the json/yaml form of a query result.
type queryOutput struct {
	Path    string         `json:"path,omitempty" yaml:"path,omitempty"`
	Bytes   int64          `json:"bytes" yaml:"bytes"`
	Job     *tap.JobStatus `json:"job,omitempty" yaml:"job,omitempty"`
	Columns []string       `json:"columns,omitempty" yaml:"columns,omitempty"`
	Rows    [][]string     `json:"rows,omitempty" yaml:"rows,omitempty"`
}

func (s *session) printResult(res *tap.Result) error {
	out := queryOutput{Path: res.Path, Bytes: res.Bytes, Job: res.Job}
	if res.Table != nil {
		out.Columns = res.Table.Columns
		out.Rows = res.Table.Rows
	}
	return s.emit(out, func(w io.Writer) error {
		if res.Path != "" {
			_, err := fmt.Fprintf(w, "Wrote %d bytes to %s\n", res.Bytes, res.Path)
			return err
		}
		if res.Table == nil || res.Table.Len() == 0 {
			_, err := fmt.Fprintln(w, "No rows returned")
			return err
		}
		theme := ui.GetTheme(s.theme())
		_, err := fmt.Fprintln(w, ui.RenderTable(res.Table, theme, 0))
		return err
	})
}

func (s *session) theme() string {
	if s.app == nil {
		return ui.DefaultTheme
	}
	return s.app.Prefs().Theme
}
