package prefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const jobURL = "https://koa.ipac.caltech.edu/TAP/async/cd2f1a"

func TestLoad_FileContents(t *testing.T) {
	tests := []struct {
		name    string
		content string // empty means no file
		want    Prefs
	}{
		{"no file", "", Prefs{Theme: defaultTheme}},
		{"theme and job", "theme = \"Slate\"\nlast_job = \"" + jobURL + "\"\n", Prefs{Theme: "Slate", LastJob: jobURL}},
		{"job only", "last_job = \"" + jobURL + "\"\n", Prefs{Theme: defaultTheme, LastJob: jobURL}},
		{"blank theme", "theme = \"  \"\n", Prefs{Theme: defaultTheme}},
		{"damaged file", "last_job = [unterminated\n", Prefs{Theme: defaultTheme}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prefs.toml")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatalf("WriteFile: %v", err)
				}
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Load = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLastJob_RoundTripsThroughDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := Update("", func(p *Prefs) { p.LastJob = jobURL }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, ".config", "koa", "prefs.toml"))
	if err != nil {
		t.Fatalf("prefs file not written under HOME: %v", err)
	}
	if !strings.Contains(string(data), jobURL) {
		t.Fatalf("prefs file = %q, want it to record %s", data, jobURL)
	}

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.LastJob != jobURL || p.Theme != defaultTheme {
		t.Fatalf("Load = %+v", p)
	}
}

func TestUpdate_MissingFileStartsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "koa", "prefs.toml")

	var seen Prefs
	err := Update(path, func(p *Prefs) {
		seen = *p
		p.Theme = "Kanagawa"
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if seen.Theme != defaultTheme || seen.LastJob != "" {
		t.Fatalf("Update started from %+v, want defaults", seen)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Theme != "Kanagawa" {
		t.Fatalf("Theme = %q, want Kanagawa", p.Theme)
	}
}

func TestUpdate_ThemeChangeKeepsLastJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := Save(path, Prefs{Theme: "Slate", LastJob: jobURL}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := Update(path, func(p *Prefs) { p.Theme = "Nightfox" }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	p, _ := Load(path)
	if p.LastJob != jobURL {
		t.Fatalf("LastJob = %q, want %q", p.LastJob, jobURL)
	}
}

func TestSave_OmitsEmptyLastJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	if err := Save(path, Prefs{Theme: "Slate"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "last_job") {
		t.Fatalf("prefs file = %q, want no last_job key", data)
	}
}
