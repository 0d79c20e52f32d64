// Package prefs persists small pieces of user state between koa runs: the
// monitor theme and the status URL of the most recent asynchronous job.
// Preferences are stored in ~/.config/koa/prefs.toml.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/koaarchive/koa/internal/config"
)

// Prefs holds user preferences for koa.
type Prefs struct {
	Theme string `toml:"theme"`
	// LastJob is the status URL of the last submitted async job, used by
	// `koa job` when no URL is given.
	LastJob string `toml:"last_job,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/koa/prefs.toml"
	defaultTheme     = "Nightfox"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from the given path. A missing or unreadable file
// yields defaults; the monitor must start even with a damaged prefs file.
func Load(path string) (Prefs, error) {
	p := Prefs{Theme: defaultTheme}

	resolved, err := resolvePath(path)
	if err != nil {
		return p, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return p, nil
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return Prefs{Theme: defaultTheme}, nil
	}
	if strings.TrimSpace(p.Theme) == "" {
		p.Theme = defaultTheme
	}
	return p, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// Update loads the preferences at path, applies fn and saves the result.
func Update(path string, fn func(*Prefs)) error {
	p, err := Load(path)
	if err != nil {
		return err
	}
	fn(&p)
	return Save(path, p)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	return config.ExpandPath(path)
}
