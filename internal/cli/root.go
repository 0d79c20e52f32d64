// Package cli implements the koa command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koaarchive/koa/internal/app"
	"github.com/koaarchive/koa/internal/config"
	"github.com/koaarchive/koa/internal/tap"
)

var (
	version = "dev"
	commit  = "none"
)

// Environment variables consulted when the matching flag is not set.
const (
	envConfig     = "KOA_CONFIG"
	envServer     = "KOA_SERVER"
	envCookiePath = "KOA_COOKIE_PATH"
	envOutput     = "KOA_OUTPUT"
)

// Streams are the standard streams of one invocation.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// session carries the resolved settings of one invocation and builds the
// App on first use.
type session struct {
	streams Streams

	configPath string
	server     string
	cookiePath string
	output     string
	logLevel   string
	prefsPath  string

	cfg config.Config
	app *app.App
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, streams Streams) int {
	s := &session{streams: streams}
	rootCmd := newRootCmd(s)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(streams.In)
	rootCmd.SetOut(streams.Out)
	rootCmd.SetErr(streams.Err)

	err := rootCmd.ExecuteContext(ctx)
	if s.app != nil {
		_ = s.app.Close()
	}
	if err != nil {
		if s.output == outputJSON {
			errObj := map[string]any{"error": err.Error()}
			var tapErr *tap.Error
			if errors.As(err, &tapErr) {
				errObj["kind"] = tapErr.Kind.String()
			}
			_ = printJSON(streams.Out, errObj)
		} else {
			fmt.Fprintf(streams.Err, "koa: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "koa",
		Short: "Query and download data from the Keck Observatory Archive",
		Long: "koa runs ADQL queries against the Keck Observatory Archive TAP service,\n" +
			"builds canned instrument searches and downloads the files they list.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.resolve(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&s.configPath, "config", "", "Config file (default "+config.DefaultPath+")")
	flags.StringVar(&s.server, "server", "", "Archive server URL")
	flags.StringVar(&s.cookiePath, "cookie-path", "", "Cookie file written by login")
	flags.StringVarP(&s.output, "output", "o", outputText, "Output format (text, json, yaml)")
	flags.StringVar(&s.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&s.prefsPath, "prefs", "", "Preferences file")
	_ = flags.MarkHidden("prefs")

	rootCmd.AddCommand(newVersionCmd(s))
	rootCmd.AddCommand(newLoginCmd(s))
	rootCmd.AddCommand(newQueryCmd(s))
	rootCmd.AddCommand(newLookupCmd(s))
	rootCmd.AddCommand(newJobCmd(s))
	rootCmd.AddCommand(newDownloadCmd(s))
	rootCmd.AddCommand(newShowCmd(s))
	rootCmd.AddCommand(newDebugLogCmd(s))
	return rootCmd
}

// resolve applies precedence: flag > environment > config file > default.
func (s *session) resolve(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if !flags.Changed("config") {
		s.configPath = os.Getenv(envConfig)
	}
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}

	if !flags.Changed("server") {
		s.server = os.Getenv(envServer)
	}
	if v := strings.TrimSpace(s.server); v != "" {
		cfg.Server = v
	}
	if !flags.Changed("cookie-path") {
		s.cookiePath = os.Getenv(envCookiePath)
	}
	if v := strings.TrimSpace(s.cookiePath); v != "" {
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return fmt.Errorf("cookie path: %w", err)
		}
		cfg.CookiePath = expanded
	}
	if !flags.Changed("output") {
		if v := os.Getenv(envOutput); v != "" {
			s.output = v
		}
	}
	s.output = strings.ToLower(strings.TrimSpace(s.output))
	if err := validateOutputFormat(s.output); err != nil {
		return err
	}
	if v := strings.TrimSpace(s.logLevel); v != "" {
		cfg.LogLevel = v
	}
	if strings.TrimSpace(cfg.LogFile) == "" {
		cfg.LogFile = cfg.DebugLogPath()
	}
	s.cfg = cfg
	return nil
}

// App returns the wired clients, building them on first use.
func (s *session) App() (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	a, err := app.New(s.cfg, app.Options{PrefsPath: s.prefsPath})
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}
