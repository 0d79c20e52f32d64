package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
)

// Criteria are the search parameters understood by the makeQuery service.
// Empty fields are not sent.
type Criteria struct {
	Instrument string
	Datetime   string // "2018-03-16 00:00:00/2018-03-18 00:00:00"
	Date       string // "2018-03-16/2018-03-18"
	Pos        string // "circle 230.0 45.0 0.5", "box ...", "polygon ..."
	Target     string
	// Extra carries any further makeQuery parameters verbatim.
	Extra map[string]string
}

func (c Criteria) values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			v.Set(key, value)
		}
	}
	set("instrument", c.Instrument)
	set("datetime", c.Datetime)
	set("date", c.Date)
	set("pos", c.Pos)
	set("target", c.Target)
	for key, value := range c.Extra {
		set(key, value)
	}
	return v
}

// QueryOptions control how a query runs and where its result goes.
type QueryOptions struct {
	Format     table.Format // empty uses the archive default
	MaxRecords int          // zero uses the archive default; -1 is unbounded
	OutPath    string       // empty returns the table in memory
	Sync       bool
}

// MakeQuery asks the archive to translate criteria into an ADQL statement.
func (a *Archive) MakeQuery(ctx context.Context, c Criteria) (string, error) {
	params := c.values()
	if params.Get("instrument") == "" {
		return "", errors.New("make query: instrument is required")
	}
	body, contentType, err := a.get(ctx, "make query", a.endpoints.MakeQuery, params)
	if err != nil {
		return "", err
	}
	// A JSON reply always means the criteria were rejected.
	if isJSONReply(contentType, body) {
		msg := "returned JSON object parse error"
		if reply, derr := tap.DecodeStatusReply(body); derr == nil {
			if m, _ := reply.Failure(); m != "" {
				msg = m
			} else if m := strings.TrimSpace(reply.Msg); m != "" {
				msg = m
			}
		}
		return "", tap.NewError(tap.KindServer, "make query", msg, nil)
	}
	adql := strings.TrimSpace(string(body))
	if adql == "" {
		return "", tap.NewError(tap.KindProtocol, "make query", "empty query returned", nil)
	}
	a.logger.Debug("query built", "criteria", params.Encode(), "adql", adql)
	return adql, nil
}

// QueryCriteria builds a query from criteria and runs it.
func (a *Archive) QueryCriteria(ctx context.Context, c Criteria, opts QueryOptions) (*tap.Result, error) {
	adql, err := a.MakeQuery(ctx, c)
	if err != nil {
		return nil, err
	}
	return a.QueryADQL(ctx, adql, opts)
}

// QueryDatetime searches an instrument over a time range,
// "YYYY-MM-DD hh:mm:ss/YYYY-MM-DD hh:mm:ss".
func (a *Archive) QueryDatetime(ctx context.Context, instrument, datetime string, opts QueryOptions) (*tap.Result, error) {
	return a.QueryCriteria(ctx, Criteria{Instrument: instrument, Datetime: datetime}, opts)
}

// QueryDate searches an instrument over a date range, "YYYY-MM-DD/YYYY-MM-DD".
func (a *Archive) QueryDate(ctx context.Context, instrument, date string, opts QueryOptions) (*tap.Result, error) {
	return a.QueryCriteria(ctx, Criteria{Instrument: instrument, Date: date}, opts)
}

// QueryPosition searches an instrument around a sky region.
func (a *Archive) QueryPosition(ctx context.Context, instrument, pos string, opts QueryOptions) (*tap.Result, error) {
	return a.QueryCriteria(ctx, Criteria{Instrument: instrument, Pos: pos}, opts)
}

// QueryObject resolves object to coordinates and runs a cone search of
// radius degrees around it. radius <= 0 uses DefaultRadius.
func (a *Archive) QueryObject(ctx context.Context, instrument, object string, radius float64, opts QueryOptions) (*tap.Result, error) {
	if radius <= 0 {
		radius = DefaultRadius
	}
	target, err := a.Lookup(ctx, object)
	if err != nil {
		return nil, err
	}
	pos := fmt.Sprintf("circle %s %s %s", target.RA, target.Dec, strconv.FormatFloat(radius, 'f', -1, 64))
	a.logger.Info("object resolved", "object", object, "ra", target.RA, "dec", target.Dec, "radius", radius)
	return a.QueryCriteria(ctx, Criteria{Instrument: instrument, Pos: pos}, opts)
}

// QueryADQL runs an ADQL statement.
func (a *Archive) QueryADQL(ctx context.Context, adql string, opts QueryOptions) (*tap.Result, error) {
	q := tap.Query{
		Text:       adql,
		Format:     opts.Format,
		MaxRecords: opts.MaxRecords,
		Mode:       tap.ModeAsync,
	}
	if q.Format == "" {
		q.Format = a.defaultFormat
	}
	if q.MaxRecords == 0 {
		q.MaxRecords = a.defaultMaxRec
	}
	if opts.Sync {
		q.Mode = tap.ModeSync
	}
	return a.tap.Submit(ctx, q, opts.OutPath)
}
