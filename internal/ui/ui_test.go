package ui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koaarchive/koa/internal/prefs"
	"github.com/koaarchive/koa/internal/state"
	"github.com/koaarchive/koa/internal/table"
	"github.com/koaarchive/koa/internal/tap"
)

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames = %v, want 3 names", names)
	}
	for _, name := range names {
		if GetTheme(name).Name != name {
			t.Fatalf("GetTheme(%q).Name = %q", name, GetTheme(name).Name)
		}
	}
	if got := GetTheme("nope").Name; got != DefaultTheme {
		t.Fatalf("GetTheme unknown = %q, want %q", got, DefaultTheme)
	}
}

func TestNextTheme_Cycles(t *testing.T) {
	name := DefaultTheme
	seen := map[string]bool{}
	for range ThemeNames() {
		seen[name] = true
		name = NextTheme(name)
	}
	if name != DefaultTheme {
		t.Fatalf("cycle ended at %q, want %q", name, DefaultTheme)
	}
	if len(seen) != 3 {
		t.Fatalf("visited %d themes, want 3", len(seen))
	}
	if got := NextTheme("unknown"); got != themeOrder[0] {
		t.Fatalf("NextTheme unknown = %q, want %q", got, themeOrder[0])
	}
}

func TestThemesColorEveryPhase(t *testing.T) {
	phases := []tap.Phase{tap.PhasePending, tap.PhaseQueued, tap.PhaseExecuting, tap.PhaseCompleted, tap.PhaseError, tap.PhaseAborted}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, p := range phases {
			if th.PhaseColors[p] == "" {
				t.Fatalf("theme %s has no color for %s", name, p)
			}
		}
	}
}

func TestRenderTable(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"koaid", "instrume"},
		Rows: [][]string{
			{"HI.1.fits", "HIRES"},
			{"HI.2.fits", "HIRES"},
			{"HI.3.fits", "HIRES"},
		},
	}

	out := RenderTable(tbl, GetTheme(DefaultTheme), 2)
	for _, want := range []string{"koaid", "instrume", "HI.1.fits", "HI.2.fits", "1 more rows"} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderTable missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "HI.3.fits") {
		t.Fatalf("RenderTable shows truncated row:\n%s", out)
	}
	if got := RenderTable(nil, GetTheme(DefaultTheme), 0); got != "" {
		t.Fatalf("RenderTable(nil) = %q, want empty", got)
	}
}

func TestModel_QuitsWhenStoreIsDone(t *testing.T) {
	store := &state.Store{}
	m := New(Options{Store: store, Title: "select * from koa_hires"})

	store.Observe(tap.JobStatus{JobID: "job1", Phase: tap.PhaseExecuting, Polls: 2})
	next, cmd := m.Update(snapshotMsg(store.Snapshot()))
	if cmd != nil {
		t.Fatalf("running job returned a command")
	}
	view := next.View()
	if !strings.Contains(view, "EXECUTING") || !strings.Contains(view, "job1") {
		t.Fatalf("View missing job state:\n%s", view)
	}

	store.Observe(tap.JobStatus{JobID: "job1", Phase: tap.PhaseCompleted, Polls: 3})
	store.Finish("3 rows", nil)
	next, cmd = next.Update(snapshotMsg(store.Snapshot()))
	if cmd == nil {
		t.Fatalf("finished job did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("command is not tea.Quit")
	}
	view = next.View()
	if !strings.Contains(view, "3 rows") || !strings.Contains(view, "EXECUTING > COMPLETED") {
		t.Fatalf("final view:\n%s", view)
	}
	if next.(Model).Detached() {
		t.Fatalf("finished monitor reports detached")
	}
}

func TestModel_ShowsFailure(t *testing.T) {
	store := &state.Store{}
	store.Observe(tap.JobStatus{JobID: "job9", Phase: tap.PhaseError, ErrorSummary: "syntax error"})
	store.Finish("", errors.New("job job9: syntax error"))

	m := New(Options{Store: store})
	next, _ := m.Update(snapshotMsg(store.Snapshot()))
	view := next.View()
	if !strings.Contains(view, "failed: job job9: syntax error") {
		t.Fatalf("View missing failure:\n%s", view)
	}
}

func TestModel_QuitKeyDetaches(t *testing.T) {
	m := New(Options{Store: &state.Store{}})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !next.(Model).Detached() {
		t.Fatalf("q did not detach")
	}
}

func TestModel_CycleThemeSavesPreference(t *testing.T) {
	prefsPath := filepath.Join(t.TempDir(), "prefs.toml")
	m := New(Options{Store: &state.Store{}, PrefsPath: prefsPath})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("T")})
	want := NextTheme(DefaultTheme)
	if got := next.(Model).theme.Name; got != want {
		t.Fatalf("theme = %q, want %q", got, want)
	}
	p, err := prefs.Load(prefsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Theme != want {
		t.Fatalf("saved theme = %q, want %q", p.Theme, want)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate short = %q", got)
	}
}
