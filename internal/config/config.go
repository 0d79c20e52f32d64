package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/koaarchive/koa/internal/table"
)

// Config holds the client settings.
type Config struct {
	Server         string
	LookupURL      string
	CookiePath     string
	Format         table.Format
	MaxRecords     int
	PollInterval   time.Duration
	PollTimeout    time.Duration
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	LogFile        string
	Download       Download
}

// Download configures bulk file retrieval.
type Download struct {
	Concurrency int
	RateLimit   float64 // requests per second; zero is unlimited
	Burst       int
}

const (
	DefaultPath = "~/.config/koa/config.toml"

	defaultServer         = "https://koa.ipac.caltech.edu/"
	defaultLookupURL      = "https://exoplanetarchive.ipac.caltech.edu/cgi-bin/Lookup/nph-lookup"
	defaultCookiePath     = "~/.config/koa/cookies.txt"
	defaultLogFile        = "~/.local/state/koa/koa.log"
	defaultFormat         = table.FormatIPAC
	defaultMaxRecords     = -1
	defaultPollInterval   = 2 * time.Second
	defaultPollTimeout    = 2 * time.Hour
	defaultRequestTimeout = 60 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultConcurrency    = 1
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:         defaultServer,
		LookupURL:      defaultLookupURL,
		CookiePath:     mustExpand(defaultCookiePath),
		Format:         defaultFormat,
		MaxRecords:     defaultMaxRecords,
		PollInterval:   defaultPollInterval,
		PollTimeout:    defaultPollTimeout,
		RequestTimeout: defaultRequestTimeout,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
		Download:       Download{Concurrency: defaultConcurrency},
	}
}

type rawConfig struct {
	Server         string   `toml:"server"`
	LookupURL      string   `toml:"lookup_url"`
	CookiePath     string   `toml:"cookie_path"`
	Format         string   `toml:"format"`
	MaxRecords     *int     `toml:"maxrec"`
	PollInterval   string   `toml:"poll_interval"`
	PollTimeout    string   `toml:"poll_timeout"`
	RequestTimeout string   `toml:"request_timeout"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`
	LogFile        string   `toml:"log_file"`
	Download       struct {
		Concurrency int     `toml:"concurrency"`
		RateLimit   float64 `toml:"rate_limit"`
		Burst       int     `toml:"burst"`
	} `toml:"download"`
}

// Load reads the config file at path, falling back to defaults when it is
// missing. An empty path uses ~/.config/koa/config.toml.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.apply(raw); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", resolved, err)
	}
	return cfg, nil
}

func (c *Config) apply(raw rawConfig) error {
	if v := strings.TrimSpace(raw.Server); v != "" {
		c.Server = v
	}
	if v := strings.TrimSpace(raw.LookupURL); v != "" {
		c.LookupURL = v
	}
	if v := strings.TrimSpace(raw.CookiePath); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return fmt.Errorf("cookie_path: %w", err)
		}
		c.CookiePath = expanded
	}
	if v := strings.TrimSpace(raw.Format); v != "" {
		format, err := table.ParseFormat(v)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		c.Format = format
	}
	if raw.MaxRecords != nil {
		c.MaxRecords = *raw.MaxRecords
	}
	for _, d := range []struct {
		key   string
		value string
		dest  *time.Duration
	}{
		{"poll_interval", raw.PollInterval, &c.PollInterval},
		{"poll_timeout", raw.PollTimeout, &c.PollTimeout},
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
	} {
		if strings.TrimSpace(d.value) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil || parsed < 0 {
			return fmt.Errorf("%s: invalid duration %q", d.key, d.value)
		}
		*d.dest = parsed
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.LogFormat); v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			return fmt.Errorf("log_file: %w", err)
		}
		c.LogFile = expanded
	}
	if raw.Download.Concurrency > 0 {
		c.Download.Concurrency = raw.Download.Concurrency
	}
	if raw.Download.RateLimit < 0 || raw.Download.Burst < 0 {
		return fmt.Errorf("download: rate_limit and burst must not be negative")
	}
	c.Download.RateLimit = raw.Download.RateLimit
	c.Download.Burst = raw.Download.Burst
	return nil
}

// Endpoints are the archive URLs derived from Server.
type Endpoints struct {
	TAP       string
	Login     string
	MakeQuery string
	CalibList string
	Lev1List  string
	GetKOA    string
}

// Endpoints resolves the archive service URLs under Server.
func (c Config) Endpoints() (Endpoints, error) {
	server := strings.TrimSpace(c.Server)
	if server == "" {
		server = defaultServer
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	base, err := url.Parse(server)
	if err != nil || base.Host == "" {
		return Endpoints{}, fmt.Errorf("parse server %q: invalid url", c.Server)
	}
	base.RawQuery = ""
	base.Fragment = ""
	join := func(p string) string { return base.JoinPath(p).String() }
	return Endpoints{
		TAP:       join("TAP"),
		Login:     join("cgi-bin/KoaAPI/nph-koaLogin"),
		MakeQuery: join("cgi-bin/KoaAPI/nph-makeQuery"),
		CalibList: join("cgi-bin/KoaAPI/nph-getCaliblist"),
		Lev1List:  join("cgi-bin/KoaAPI/nph-getLev1list"),
		GetKOA:    join("cgi-bin/getKOA/nph-getKOA"),
	}, nil
}

// DebugLogPath returns the log file used by `koa debuglog` when LogFile is
// not set.
func (c Config) DebugLogPath() string {
	if strings.TrimSpace(c.LogFile) == "" {
		return mustExpand(defaultLogFile)
	}
	return c.LogFile
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(DefaultPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
