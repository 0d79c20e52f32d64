package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/koaarchive/koa/internal/archive"
	"github.com/koaarchive/koa/internal/config"
	"github.com/koaarchive/koa/internal/cookies"
	"github.com/koaarchive/koa/internal/download"
	"github.com/koaarchive/koa/internal/logging"
	"github.com/koaarchive/koa/internal/prefs"
	"github.com/koaarchive/koa/internal/state"
	"github.com/koaarchive/koa/internal/tap"
	"github.com/koaarchive/koa/internal/transport"
)

// Options configure the composition of a koa session.
type Options struct {
	// LogOutput receives the log when the config names no log file.
	// Nil discards it.
	LogOutput io.Writer
	// Observer receives job status updates from the TAP client.
	Observer  tap.Observer
	PrefsPath string // empty uses ~/.config/koa/prefs.toml
}

// App holds the wired clients for one koa invocation.
type App struct {
	Config     config.Config
	Endpoints  config.Endpoints
	Logger     *slog.Logger
	Jar        *cookies.Jar
	Transport  *transport.HTTP
	TAP        *tap.Client
	Archive    *archive.Archive
	Downloader *download.Downloader
	Store      *state.Store
	PrefsPath  string

	logCloser io.Closer
}

// New wires logging, the cookie jar, the HTTP transport and the service
// clients from cfg. Close releases the log file.
func New(cfg config.Config, opts Options) (*App, error) {
	endpoints, err := cfg.Endpoints()
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile, Output: opts.LogOutput}
	if logCfg.Output == nil && strings.TrimSpace(logCfg.File) == "" {
		logCfg.Output = io.Discard
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	a := &App{Config: cfg, Endpoints: endpoints, Logger: logger, logCloser: closer}

	jar, err := loadJar(cfg.CookiePath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Jar = jar
	a.Transport = transport.New(transport.Options{Jar: jar, Timeout: cfg.RequestTimeout})

	a.Store = &state.Store{}
	observer := tap.Observer(a.Store)
	if opts.Observer != nil {
		observer = multiObserver{a.Store, opts.Observer}
	}
	a.TAP, err = tap.NewClient(tap.Options{
		BaseURL:      endpoints.TAP,
		Transport:    a.Transport,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		Observer:     observer,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init tap client: %w", err)
	}

	a.Archive, err = archive.New(archive.Options{
		TAP:               a.TAP,
		Transport:         a.Transport,
		Endpoints:         endpoints,
		LookupURL:         cfg.LookupURL,
		Jar:               jar,
		Logger:            logger,
		DefaultFormat:     cfg.Format,
		DefaultMaxRecords: cfg.MaxRecords,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Downloader, err = download.New(download.Options{
		Transport:   a.Transport,
		Endpoints:   endpoints,
		Logger:      logger,
		Concurrency: cfg.Download.Concurrency,
		RateLimit:   cfg.Download.RateLimit,
		Burst:       cfg.Download.Burst,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.PrefsPath = opts.PrefsPath
	if a.PrefsPath == "" {
		a.PrefsPath = prefs.DefaultPath()
	}
	logger.Debug("koa ready", "server", cfg.Server, "tap", endpoints.TAP, "cookies", jar.Len())
	return a, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.logCloser == nil {
		return nil
	}
	return a.logCloser.Close()
}

// Prefs loads the user preferences.
func (a *App) Prefs() prefs.Prefs {
	p, _ := prefs.Load(a.PrefsPath)
	return p
}

// RememberJob records statusURL as the most recent async job.
func (a *App) RememberJob(statusURL string) {
	if statusURL == "" {
		return
	}
	if err := prefs.Update(a.PrefsPath, func(p *prefs.Prefs) { p.LastJob = statusURL }); err != nil {
		a.Logger.Warn("could not save last job", "error", err)
	}
}

// loadJar reads the cookie file when it exists; a missing file yields an
// empty jar so anonymous access keeps working.
func loadJar(path string) (*cookies.Jar, error) {
	if strings.TrimSpace(path) == "" {
		return cookies.New(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cookies.New(), nil
	}
	jar, err := cookies.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	return jar, nil
}

type multiObserver []tap.Observer

func (m multiObserver) Observe(st tap.JobStatus) {
	for _, o := range m {
		o.Observe(st)
	}
}
