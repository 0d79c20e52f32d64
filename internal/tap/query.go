package tap

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/koaarchive/koa/internal/table"
)

// Mode selects the TAP execution endpoint.
type Mode int

const (
	ModeAsync Mode = iota
	ModeSync
)

func (m Mode) String() string {
	if m == ModeSync {
		return "sync"
	}
	return "async"
}

// Unbounded asks the server for every matching row.
const Unbounded = -1

// Query is one ADQL submission. It is never mutated by the client.
type Query struct {
	Text   string
	Format table.Format // empty means votable
	// MaxRecords is sent as maxrec unchanged: Unbounded asks for every row
	// and 0 asks for column metadata only. A zero Query therefore returns no
	// rows; NewQuery starts from Unbounded.
	MaxRecords int
	Mode       Mode
}

// NewQuery returns an async, unbounded VOTable query.
func NewQuery(text string) Query {
	return Query{Text: text, Format: table.FormatVOTable, MaxRecords: Unbounded}
}

func (q Query) format() table.Format {
	if q.Format == "" {
		return table.FormatVOTable
	}
	return q.Format
}

func (q Query) form() url.Values {
	form := url.Values{}
	form.Set("request", "doQuery")
	form.Set("lang", "ADQL")
	form.Set("phase", "RUN")
	form.Set("format", string(q.format()))
	form.Set("maxrec", strconv.Itoa(q.MaxRecords))
	form.Set("query", q.Text)
	return form
}

func (q Query) validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return invalidInput("submit", ErrEmptyQuery)
	}
	return nil
}
