// Package download retrieves the FITS files listed in a query result
// table, optionally with their calibration and level-1 products.
package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/koaarchive/koa/internal/config"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
)

const maxListBody = 8 << 20

// Options configure a Downloader.
type Options struct {
	Transport tap.Transport
	Endpoints config.Endpoints
	Logger    *slog.Logger
	// Concurrency is the number of rows processed at once; values below
	// one mean one.
	Concurrency int
	// RateLimit caps requests per second; zero is unlimited.
	RateLimit float64
	Burst     int
}

// Request describes one bulk download.
type Request struct {
	MetaPath string
	Format   table.Format
	OutDir   string
	// StartRow and EndRow select rows, inclusive and zero-based. Values
	// outside the table are clamped; EndRow < 0 means the last row.
	StartRow int
	EndRow   int
	Calib    bool
	Lev1     bool
}

// NewRequest returns a request covering every row of metaPath.
func NewRequest(metaPath string, format table.Format, outDir string) Request {
	return Request{MetaPath: metaPath, Format: format, OutDir: outDir, EndRow: -1}
}

// Summary counts what a run did.
type Summary struct {
	Requested  int `json:"requested" yaml:"requested"`
	Downloaded int `json:"downloaded" yaml:"downloaded"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Failed     int `json:"failed" yaml:"failed"`
	CalibLists int `json:"calib_lists" yaml:"calib_lists"`
	CalibFiles int `json:"calib_files" yaml:"calib_files"`
	Lev1Lists  int `json:"lev1_lists" yaml:"lev1_lists"`
	Lev1Files  int `json:"lev1_files" yaml:"lev1_files"`
}

type counters struct {
	downloaded, skipped, failed atomic.Int64
	calibLists, calibFiles      atomic.Int64
	lev1Lists, lev1Files        atomic.Int64
}

func (c *counters) summary(requested int) Summary {
	return Summary{
		Requested:  requested,
		Downloaded: int(c.downloaded.Load()),
		Skipped:    int(c.skipped.Load()),
		Failed:     int(c.failed.Load()),
		CalibLists: int(c.calibLists.Load()),
		CalibFiles: int(c.calibFiles.Load()),
		Lev1Lists:  int(c.lev1Lists.Load()),
		Lev1Files:  int(c.lev1Files.Load()),
	}
}

// Downloader fetches archive files into a directory.
type Downloader struct {
	transport   tap.Transport
	endpoints   config.Endpoints
	logger      *slog.Logger
	concurrency int
	limiter     *rate.Limiter
	flight      singleflight.Group
}

// New builds a Downloader.
func New(opts Options) (*Downloader, error) {
	if opts.Transport == nil {
		return nil, errors.New("download: transport is required")
	}
	if opts.Endpoints.GetKOA == "" {
		return nil, errors.New("download: file endpoint is required")
	}
	d := &Downloader{
		transport:   opts.Transport,
		endpoints:   opts.Endpoints,
		logger:      opts.Logger,
		concurrency: max(opts.Concurrency, 1),
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	d.limiter = rate.NewLimiter(limit, max(opts.Burst, d.concurrency))
	return d, nil
}

type row struct {
	index      int
	koaid      string
	instrument string
	filehand   string
}

// Run downloads the selected rows of req.MetaPath into req.OutDir. Files
// already present are not requested again. Failures of individual files
// are logged and counted; only a cancelled context or an unusable table
// stops the run.
func (d *Downloader) Run(ctx context.Context, req Request) (Summary, error) {
	rows, err := selectRows(req)
	if err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(req.OutDir, 0o775); err != nil {
		return Summary{}, tap.NewError(tap.KindLocalIO, "download", "", fmt.Errorf("create %s: %w", req.OutDir, err))
	}

	d.logger.Info("download started", "files", len(rows), "outdir", req.OutDir, "calib", req.Calib, "lev1", req.Lev1)

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, r := range rows {
		g.Go(func() error {
			return d.processRow(gctx, req, r, &c)
		})
	}
	err = g.Wait()
	sum := c.summary(len(rows))
	if err != nil {
		return sum, fmt.Errorf("download: %w", err)
	}
	d.logger.Info("download finished",
		"downloaded", sum.Downloaded, "skipped", sum.Skipped, "failed", sum.Failed,
		"calib_files", sum.CalibFiles, "lev1_files", sum.Lev1Files)
	return sum, nil
}

func selectRows(req Request) ([]row, error) {
	if strings.TrimSpace(req.OutDir) == "" {
		return nil, errors.New("download: output directory is required")
	}
	format := req.Format
	if format == "" {
		format = table.FormatIPAC
	}
	tbl, err := table.ReadFile(req.MetaPath, format)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	koaidCol := tbl.ColumnIndex("koaid")
	filehandCol := tbl.ColumnIndex("filehand")
	instrumentCol := tbl.ColumnIndex("instrume", "instrument")
	for name, idx := range map[string]int{"koaid": koaidCol, "filehand": filehandCol, "instrume": instrumentCol} {
		if idx < 0 {
			return nil, fmt.Errorf("download: column [%s] is required in the metadata table", name)
		}
	}
	if tbl.Len() == 0 {
		return nil, errors.New("download: metadata table has no rows")
	}

	start, end := req.StartRow, req.EndRow
	if start < 0 {
		start = 0
	}
	if end < 0 || end > tbl.Len()-1 {
		end = tbl.Len() - 1
	}
	if start > end {
		return nil, fmt.Errorf("download: start row %d is past end row %d", start, end)
	}

	rows := make([]row, 0, end-start+1)
	for i := start; i <= end; i++ {
		rows = append(rows, row{
			index:      i,
			koaid:      strings.TrimSpace(tbl.Value(i, koaidCol)),
			instrument: normalizeInstrument(tbl.Value(i, instrumentCol)),
			filehand:   strings.TrimSpace(tbl.Value(i, filehandCol)),
		})
	}
	return rows, nil
}

// normalizeInstrument collapses instrument variants (HIRESb, LRISBLUE...)
// to the names the archive services expect.
func normalizeInstrument(name string) string {
	name = strings.TrimSpace(name)
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "HIRES"):
		return "HIRES"
	case strings.Contains(upper, "LRIS"):
		return "LRIS"
	}
	return name
}

// koaidBase strips the last extension from a KOA id.
func koaidBase(koaid string) string {
	if i := strings.LastIndex(koaid, "."); i > 0 {
		return koaid[:i]
	}
	return koaid
}

func (d *Downloader) processRow(ctx context.Context, req Request, r row, c *counters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := d.logger.With("row", r.index, "koaid", r.koaid)

	if r.koaid == "" || r.filehand == "" {
		log.Warn("row skipped: missing koaid or filehand")
		c.failed.Add(1)
		return nil
	}
	if err := d.fetchFile(ctx, req.OutDir, r.koaid, r.filehand, &c.downloaded, c); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("file download failed", "filehand", r.filehand, "error", err)
	}

	cascades := []struct {
		enabled  bool
		kind     string
		endpoint string
		lists    *atomic.Int64
		files    *atomic.Int64
	}{
		{req.Calib, "caliblist", d.endpoints.CalibList, &c.calibLists, &c.calibFiles},
		{req.Lev1, "lev1list", d.endpoints.Lev1List, &c.lev1Lists, &c.lev1Files},
	}
	for _, cas := range cascades {
		if !cas.enabled {
			continue
		}
		if err := d.cascade(ctx, req.OutDir, r, cas.kind, cas.endpoint, cas.lists, cas.files, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("associated files unavailable", "list", cas.kind, "error", err)
		}
	}
	return nil
}

// ListEntry is one row of a calibration or level-1 list.
type ListEntry struct {
	KOAID      string `json:"koaid"`
	Instrument string `json:"instrument"`
	Filehand   string `json:"filehand"`
}

type listFile struct {
	Table []ListEntry `json:"table"`
}

// cascade makes sure the row's list file exists in outDir and then fetches
// every file it names.
func (d *Downloader) cascade(ctx context.Context, outDir string, r row, kind, endpoint string, lists, files *atomic.Int64, c *counters) error {
	if endpoint == "" {
		return fmt.Errorf("no %s endpoint configured", kind)
	}
	listPath := filepath.Join(outDir, filepath.Base(koaidBase(r.koaid))+"."+kind+".json")
	params := url.Values{}
	params.Set("instrument", r.instrument)
	params.Set("koaid", r.koaid)

	if _, err := d.fetch(ctx, endpoint+"?"+params.Encode(), listPath, true, lists, c); err != nil {
		return fmt.Errorf("no associated %s for %s: %w", kind, r.koaid, err)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", listPath, err)
	}
	var list listFile
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse %s: %w", listPath, err)
	}
	if len(list.Table) == 0 {
		return fmt.Errorf("no data found in %s", listPath)
	}
	for _, entry := range list.Table {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.fetchFile(ctx, outDir, strings.TrimSpace(entry.KOAID), strings.TrimSpace(entry.Filehand), files, c); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("associated file download failed", "list", kind, "koaid", entry.KOAID, "error", err)
		}
	}
	return nil
}

func (d *Downloader) fetchFile(ctx context.Context, outDir, koaid, filehand string, counter *atomic.Int64, c *counters) error {
	name := filepath.Base(koaid)
	if name == "." || name == string(filepath.Separator) || koaid == "" || filehand == "" {
		c.failed.Add(1)
		return fmt.Errorf("invalid koaid %q or filehand %q", koaid, filehand)
	}
	params := url.Values{}
	params.Set("return_mode", "json")
	params.Set("filehand", filehand)
	_, err := d.fetch(ctx, d.endpoints.GetKOA+"?"+params.Encode(), filepath.Join(outDir, name), false, counter, c)
	return err
}

// fetch downloads rawURL to target unless target already exists.
// Concurrent fetches of the same target share one request.
func (d *Downloader) fetch(ctx context.Context, rawURL, target string, isList bool, counter *atomic.Int64, c *counters) (bool, error) {
	ran := false
	v, err, _ := d.flight.Do(target, func() (any, error) {
		ran = true
		if _, err := os.Stat(target); err == nil {
			c.skipped.Add(1)
			return false, nil
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return false, err
		}
		if err := d.get(ctx, rawURL, target, isList); err != nil {
			if ctx.Err() == nil {
				c.failed.Add(1)
			}
			return false, err
		}
		counter.Add(1)
		d.logger.Debug("file written", "path", target)
		return true, nil
	})
	if !ran {
		// Joined another caller's request for the same file.
		switch {
		case err == nil:
			c.skipped.Add(1)
		case ctx.Err() == nil:
			c.failed.Add(1)
		}
		return false, err
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (d *Downloader) get(ctx context.Context, rawURL, target string, isList bool) error {
	resp, err := d.transport.Get(ctx, rawURL)
	if err != nil {
		return tap.NewError(tap.KindTransport, "download", "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxListBody))
		return replyError(resp.StatusCode, body)
	}

	if isList {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBody))
		if err != nil {
			return tap.NewError(tap.KindTransport, "download", "", err)
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return tap.NewError(tap.KindProtocol, "download", "list reply is not JSON", err)
		}
		if _, ok := probe["table"]; !ok {
			return replyError(resp.StatusCode, body)
		}
		if _, err := tap.WriteFile(target, bytes.NewReader(body)); err != nil {
			return tap.NewError(tap.KindLocalIO, "download", "", err)
		}
		return nil
	}

	// File requests use return_mode=json, so a JSON body is an error report.
	if strings.Contains(contentType, "json") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxListBody))
		return replyError(resp.StatusCode, body)
	}
	_, err = tap.WriteStream("download", target, resp.Body)
	return err
}

func replyError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if reply, err := tap.DecodeStatusReply(body); err == nil {
		if m, failed := reply.Failure(); failed {
			msg = m
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d with empty body", status)
	}
	return tap.NewError(tap.KindServer, "download", msg, nil)
}
