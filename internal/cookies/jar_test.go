package cookies

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `# Netscape HTTP Cookie File
# comment line

.koa.ipac.caltech.edu	TRUE	/	TRUE	4102444800	KOA_SESSION	abc123
#HttpOnly_koa.ipac.caltech.edu	FALSE	/cgi-bin	FALSE	0	koa_user	alice
old.example.org	FALSE	/	FALSE	1	stale	gone
`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func cookieNames(cs []*http.Cookie) []string {
	var names []string
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

func TestRead_ParsesEntries(t *testing.T) {
	jar, err := Read(strings.NewReader(sampleFile))
	require.NoError(t, err)
	assert.Equal(t, 3, jar.Len())

	got := jar.Cookies(mustURL(t, "https://koa.ipac.caltech.edu/cgi-bin/KoaAPI/nph-koaLogin"))
	assert.ElementsMatch(t, []string{"KOA_SESSION", "koa_user"}, cookieNames(got))

	// Secure cookie is not sent over http; path-scoped cookie needs /cgi-bin.
	got = jar.Cookies(mustURL(t, "http://koa.ipac.caltech.edu/TAP/async"))
	assert.Empty(t, got)

	got = jar.Cookies(mustURL(t, "http://old.example.org/"))
	assert.Empty(t, got, "expired cookies are never sent")
}

func TestRead_RejectsMalformedLine(t *testing.T) {
	_, err := Read(strings.NewReader("koa.ipac.caltech.edu\tTRUE\t/\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	jar := New()
	u := mustURL(t, "https://koa.ipac.caltech.edu/cgi-bin/KoaAPI/nph-koaLogin")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "KOA_SESSION", Value: "xyz", Path: "/", HttpOnly: true},
		{Name: "persist", Value: "1", Domain: ".ipac.caltech.edu", Expires: time.Unix(4102444800, 0)},
	})

	path := filepath.Join(t.TempDir(), "nested", "cookies.txt")
	require.NoError(t, jar.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	got := loaded.Cookies(mustURL(t, "https://koa.ipac.caltech.edu/TAP/async"))
	assert.ElementsMatch(t, []string{"KOA_SESSION", "persist"}, cookieNames(got))

	got = loaded.Cookies(mustURL(t, "https://other.ipac.caltech.edu/"))
	assert.Equal(t, []string{"persist"}, cookieNames(got))
}

func TestSetCookies_ReplacesAndDeletes(t *testing.T) {
	jar := New()
	u := mustURL(t, "https://koa.ipac.caltech.edu/")
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "1"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "a", Value: "2"}})

	got := jar.Cookies(u)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Value)

	jar.SetCookies(u, []*http.Cookie{{Name: "a", MaxAge: -1}})
	assert.Equal(t, 0, jar.Len())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestSave_EmptyPath(t *testing.T) {
	require.Error(t, New().Save("  "))
}

func TestSetCookies_RejectsForeignDomain(t *testing.T) {
	jar := New()
	jar.SetCookies(mustURL(t, "https://evil.example/"), []*http.Cookie{
		{Name: "session", Value: "attacker", Domain: "koa.ipac.caltech.edu"},
	})
	assert.Equal(t, 0, jar.Len())
	assert.Empty(t, jar.Cookies(mustURL(t, "https://koa.ipac.caltech.edu/TAP/async")))
}

func TestSetCookies_RejectsPublicSuffix(t *testing.T) {
	jar := New()
	jar.SetCookies(mustURL(t, "https://koa.ipac.caltech.edu/"), []*http.Cookie{
		{Name: "tld", Value: "x", Domain: "edu"},
		{Name: "cotld", Value: "y", Domain: ".co.uk"},
	})
	assert.Equal(t, 0, jar.Len())
	assert.Empty(t, jar.Cookies(mustURL(t, "https://www.mit.edu/")))
}

func TestSetCookies_AcceptsParentDomain(t *testing.T) {
	jar := New()
	jar.SetCookies(mustURL(t, "https://koa.ipac.caltech.edu/"), []*http.Cookie{
		{Name: "parent", Value: "1", Domain: ".caltech.edu"},
	})
	got := jar.Cookies(mustURL(t, "https://www.caltech.edu/"))
	assert.Equal(t, []string{"parent"}, cookieNames(got))
}

func TestSetCookies_IPHostIgnoresOtherDomain(t *testing.T) {
	jar := New()
	u := mustURL(t, "http://127.0.0.1:8080/")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "same", Value: "1", Domain: "127.0.0.1"},
		{Name: "other", Value: "2", Domain: "example.org"},
	})
	assert.Equal(t, []string{"same"}, cookieNames(jar.Cookies(u)))
}

func TestSetCookies_DefaultPathIsRequestDirectory(t *testing.T) {
	jar := New()
	jar.SetCookies(mustURL(t, "https://koa.ipac.caltech.edu/cgi-bin/KoaAPI/nph-koaLogin"), []*http.Cookie{
		{Name: "scoped", Value: "1"},
	})
	assert.Equal(t, []string{"scoped"}, cookieNames(jar.Cookies(mustURL(t, "https://koa.ipac.caltech.edu/cgi-bin/KoaAPI/nph-makeQuery"))))
	assert.Empty(t, jar.Cookies(mustURL(t, "https://koa.ipac.caltech.edu/TAP/async")))

	var b strings.Builder
	require.NoError(t, jar.Write(&b))
	assert.Contains(t, b.String(), "\t/cgi-bin/KoaAPI\t")
}
