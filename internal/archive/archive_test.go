package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koaarchive/koa/internal/config"
	"github.com/koaarchive/koa/internal/cookies"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
	"github.com/koaarchive/koa/internal/taptest"
	"github.com/koaarchive/koa/internal/transport"
)

const ipacResult = `\fixlen = T
|koaid          |instrume|filehand              |
|char           |char    |char                  |
 HI.20240501.1   HIRES    /koadata/HI.1.fits
`

type fixture struct {
	srv     *taptest.Server
	archive *Archive
	jar     *cookies.Jar
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := taptest.New(t)
	srv.Configure(func(s *taptest.Server) {
		s.Result = ipacResult
		s.Users["alice"] = "p@ss word/1"
		s.Queries["HIRES"] = "select koaid, instrume, filehand from koa_hires where contains(...)"
	})

	endpoints, err := config.Config{Server: srv.URL}.Endpoints()
	require.NoError(t, err)
	jar := cookies.New()
	tr := transport.New(transport.Options{Jar: jar})
	client, err := tap.NewClient(tap.Options{
		BaseURL:      endpoints.TAP,
		Transport:    tr,
		PollInterval: 5 * time.Millisecond,
		TempDir:      t.TempDir(),
	})
	require.NoError(t, err)

	a, err := New(Options{
		TAP:       client,
		Transport: tr,
		Endpoints: endpoints,
		LookupURL: srv.LookupURL(),
		Jar:       jar,
	})
	require.NoError(t, err)
	return fixture{srv: srv, archive: a, jar: jar}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestLogin_SavesSessionCookie(t *testing.T) {
	f := newFixture(t)
	cookiePath := filepath.Join(t.TempDir(), "koa", "cookies.txt")

	require.NoError(t, f.archive.Login(context.Background(), "alice", "p@ss word/1", cookiePath))

	data, err := os.ReadFile(cookiePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), taptest.SessionCookie)
	assert.Contains(t, string(data), "session-alice")

	info, err := os.Stat(cookiePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := cookies.Load(cookiePath)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

func TestLogin_BadPassword(t *testing.T) {
	f := newFixture(t)
	cookiePath := filepath.Join(t.TempDir(), "cookies.txt")

	err := f.archive.Login(context.Background(), "alice", "wrong", cookiePath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tap.ErrServer))
	assert.Contains(t, err.Error(), "Incorrect userid or password")
	assert.NoFileExists(t, cookiePath)
}

func TestLogin_RequiresCredentials(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.archive.Login(context.Background(), "", "x", "/tmp/c"))
	assert.Error(t, f.archive.Login(context.Background(), "alice", "", "/tmp/c"))
	assert.Error(t, f.archive.Login(context.Background(), "alice", "x", " "))
	assert.Zero(t, f.srv.Hits("/cgi-bin/KoaAPI/nph-koaLogin"))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "p%40ss%20word/1", quote("p@ss word/1"))
	assert.Equal(t, "a%2Bb", quote("a+b"))
}

func TestMakeQuery(t *testing.T) {
	f := newFixture(t)

	adql, err := f.archive.MakeQuery(context.Background(), Criteria{
		Instrument: "hires",
		Datetime:   "2018-03-16 00:00:00/2018-03-18 00:00:00",
		Extra:      map[string]string{"proptint": "", "koaid": "HI.1"},
	})
	require.NoError(t, err)
	assert.Contains(t, adql, "koa_hires")

	args := f.srv.LastArgs("/cgi-bin/KoaAPI/nph-makeQuery")
	assert.Equal(t, "2018-03-16 00:00:00/2018-03-18 00:00:00", args.Get("datetime"))
	assert.Equal(t, "HI.1", args.Get("koaid"))
	assert.False(t, args.Has("proptint"))
	assert.False(t, args.Has("date"))
}

func TestMakeQuery_ServerError(t *testing.T) {
	f := newFixture(t)

	_, err := f.archive.MakeQuery(context.Background(), Criteria{Instrument: "nothere"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tap.ErrServer))
	assert.Contains(t, err.Error(), "instrument nothere not supported")
}

func TestMakeQuery_RequiresInstrument(t *testing.T) {
	f := newFixture(t)
	_, err := f.archive.MakeQuery(context.Background(), Criteria{Date: "2018-03-16/2018-03-18"})
	assert.Error(t, err)
}

func TestQueryDatetime_RunsBuiltQuery(t *testing.T) {
	f := newFixture(t)

	res, err := f.archive.QueryDatetime(context.Background(), "HIRES", "2018-03-16 00:00:00/2018-03-18 00:00:00", QueryOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Table)
	assert.Equal(t, 1, res.Table.Len())

	form := f.srv.LastForm()
	assert.Contains(t, form.Get("query"), "koa_hires")
	assert.Equal(t, "ipac", form.Get("format"))
	assert.Equal(t, "-1", form.Get("maxrec"))
}

func TestQueryADQL_WritesFile(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(t.TempDir(), "result.tbl")

	res, err := f.archive.QueryADQL(context.Background(), "select * from koa_hires", QueryOptions{
		Format:     table.FormatIPAC,
		MaxRecords: 10,
		OutPath:    out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, res.Path)
	assert.Equal(t, "10", f.srv.LastForm().Get("maxrec"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, ipacResult, string(data))
}

func TestQueryADQL_Sync(t *testing.T) {
	f := newFixture(t)

	_, err := f.archive.QueryADQL(context.Background(), "select * from koa_hires", QueryOptions{Sync: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.Hits("/TAP/sync"))
	assert.Zero(t, f.srv.Hits("/TAP/async"))
}

func TestQueryObject_BuildsCone(t *testing.T) {
	f := newFixture(t)
	f.srv.Configure(func(s *taptest.Server) { s.Objects["m31"] = [2]string{"10.684708", "41.26875"} })

	_, err := f.archive.QueryObject(context.Background(), "HIRES", "m31", 0, QueryOptions{})
	require.NoError(t, err)

	args := f.srv.LastArgs("/cgi-bin/KoaAPI/nph-makeQuery")
	assert.Equal(t, "circle 10.684708 41.26875 0.5", args.Get("pos"))
	assert.Equal(t, "HIRES", args.Get("instrument"))
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	f.srv.Configure(func(s *taptest.Server) { s.Objects["m31"] = [2]string{"10.684708", "41.26875"} })

	target, err := f.archive.Lookup(context.Background(), "m31")
	require.NoError(t, err)
	assert.Equal(t, "10.684708", target.RA)
	assert.Equal(t, "41.26875", target.Dec)
	assert.Equal(t, "star", target.ObjType)
}

func TestLookup_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.archive.Lookup(context.Background(), "nowhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tap.ErrServer))
	assert.Contains(t, err.Error(), "cannot resolve nowhere")
}
