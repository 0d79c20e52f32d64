package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(s *session) *cobra.Command {
	var (
		userID        string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to KOA and save the session cookie",
		Long: "Log in with a KOA user id and password. The session cookie is saved to the\n" +
			"cookie file so later queries and downloads can read proprietary data.",
		Example: `  # Prompt for user id and password
  koa login

  # Read the password from stdin
  echo "$KOA_PASSWORD" | koa login --userid alice --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(s.streams.In)
			if strings.TrimSpace(userID) == "" {
				fmt.Fprint(s.streams.Err, "KOA user id: ")
				line, err := readLine(in)
				if err != nil {
					return fmt.Errorf("read user id: %w", err)
				}
				userID = line
			}
			password, err := readPassword(s, in, passwordStdin)
			if err != nil {
				return err
			}

			a, err := s.App()
			if err != nil {
				return err
			}
			if err := a.Archive.Login(cmd.Context(), userID, password, s.cfg.CookiePath); err != nil {
				return err
			}

			result := map[string]string{"userid": userID, "cookie_path": s.cfg.CookiePath}
			return s.emit(result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged in as %s; cookie saved to %s\n", userID, s.cfg.CookiePath)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&userID, "userid", "", "KOA user id")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

// readPassword prompts without echo when stdin is a terminal and reads a
// plain line otherwise.
func readPassword(s *session, in *bufio.Reader, fromStdin bool) (string, error) {
	if f, ok := s.streams.In.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(s.streams.Err, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(s.streams.Err)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}
	if !fromStdin {
		fmt.Fprint(s.streams.Err, "Password: ")
	}
	pw, err := readLine(in)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
