package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koaarchive/koa/internal/table"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != defaultServer {
		t.Fatalf("Server = %q, want %q", cfg.Server, defaultServer)
	}
	if cfg.Format != table.FormatIPAC || cfg.MaxRecords != -1 {
		t.Fatalf("Format/MaxRecords = %q/%d, want ipac/-1", cfg.Format, cfg.MaxRecords)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval = %v, want 2s", cfg.PollInterval)
	}

	wantCookies, err := expandPath(defaultCookiePath)
	if err != nil {
		t.Fatalf("expandPath(defaultCookiePath) returned error: %v", err)
	}
	if cfg.CookiePath != wantCookies {
		t.Fatalf("CookiePath = %q, want %q", cfg.CookiePath, wantCookies)
	}
	if cfg.Download.Concurrency != 1 {
		t.Fatalf("Download.Concurrency = %d, want 1", cfg.Download.Concurrency)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server = "  https://koa-test.example.org/  "
cookie_path = "  ~/.koa/cookies.txt  "
format = " VOTable "
maxrec = 500
poll_interval = "250ms"
poll_timeout = "0s"
log_level = "DEBUG"
log_file = "~/koa.log"

[download]
concurrency = 4
rate_limit = 2.5
burst = 3
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != "https://koa-test.example.org/" {
		t.Fatalf("Server = %q", cfg.Server)
	}
	if !strings.HasPrefix(cfg.CookiePath, home) {
		t.Fatalf("CookiePath = %q, want it under HOME %q", cfg.CookiePath, home)
	}
	if cfg.Format != table.FormatVOTable || cfg.MaxRecords != 500 {
		t.Fatalf("Format/MaxRecords = %q/%d", cfg.Format, cfg.MaxRecords)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.PollTimeout != 0 {
		t.Fatalf("PollInterval/PollTimeout = %v/%v", cfg.PollInterval, cfg.PollTimeout)
	}
	if cfg.LogLevel != "debug" || cfg.DebugLogPath() != filepath.Join(home, "koa.log") {
		t.Fatalf("LogLevel/LogFile = %q/%q", cfg.LogLevel, cfg.LogFile)
	}
	if cfg.Download.Concurrency != 4 || cfg.Download.RateLimit != 2.5 || cfg.Download.Burst != 3 {
		t.Fatalf("Download = %#v", cfg.Download)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
server = "   "
format = ""
poll_interval = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server != defaultServer || cfg.Format != defaultFormat || cfg.PollInterval != defaultPollInterval {
		t.Fatalf("cfg = %#v, want defaults", cfg)
	}
	if cfg.MaxRecords != defaultMaxRecords {
		t.Fatalf("MaxRecords = %d, want %d", cfg.MaxRecords, defaultMaxRecords)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`server = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_InvalidValuesFail(t *testing.T) {
	cases := map[string]string{
		"format":   `format = "fits"`,
		"duration": `poll_interval = "soon"`,
		"negative": "[download]\nrate_limit = -1.0",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: Load returned nil error", name)
		}
	}
}

func TestEndpoints_DerivedFromServer(t *testing.T) {
	cfg := Config{Server: "koa-test.example.org/archive/"}
	ep, err := cfg.Endpoints()
	if err != nil {
		t.Fatalf("Endpoints returned error: %v", err)
	}
	checks := map[string]string{
		ep.TAP:       "https://koa-test.example.org/archive/TAP",
		ep.Login:     "https://koa-test.example.org/archive/cgi-bin/KoaAPI/nph-koaLogin",
		ep.MakeQuery: "https://koa-test.example.org/archive/cgi-bin/KoaAPI/nph-makeQuery",
		ep.CalibList: "https://koa-test.example.org/archive/cgi-bin/KoaAPI/nph-getCaliblist",
		ep.Lev1List:  "https://koa-test.example.org/archive/cgi-bin/KoaAPI/nph-getLev1list",
		ep.GetKOA:    "https://koa-test.example.org/archive/cgi-bin/getKOA/nph-getKOA",
	}
	for got, want := range checks {
		if got != want {
			t.Fatalf("endpoint = %q, want %q", got, want)
		}
	}

	if _, err := (Config{Server: "http://"}).Endpoints(); err == nil {
		t.Fatalf("expected error for server without host")
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}

func TestDebugLogPath_DefaultsWhenLogFileEmpty(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var cfg Config
	got := cfg.DebugLogPath()
	if !strings.HasPrefix(got, home) {
		t.Fatalf("DebugLogPath = %q, want it under HOME %q", got, home)
	}
	if !strings.HasSuffix(got, filepath.FromSlash("/koa.log")) {
		t.Fatalf("DebugLogPath = %q, want it to end with /koa.log", got)
	}
}
