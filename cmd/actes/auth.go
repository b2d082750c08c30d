package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/csheth/actes/internal/actes"
)

const (
	passwordEnvVar = "ACTES_PASSWORD"
	adminRole      = "admin"
)

var loginUser string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as a portal administrator",
	Long: `Sign in to the portal's admin API. The session cookie is stored locally
and reused by every command until logout; the admin indicator expires after
one day.

The password is read from ` + passwordEnvVar + ` when set, otherwise prompted
for without echo (or read from stdin when it is not a terminal).`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the administrator session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in administrator",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "administrator email")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	user := strings.TrimSpace(loginUser)
	if user == "" {
		if user, err = prompt(out, reader, "Email: "); err != nil {
			return err
		}
	}
	password := os.Getenv(passwordEnvVar)
	if password == "" {
		if password, err = readPassword(cmd.InOrStdin(), out, reader); err != nil {
			return err
		}
	}
	if user == "" || password == "" {
		return errors.New("email and password are required")
	}

	ctx := cmd.Context()
	if _, err := a.client.Login(ctx, user, password); err != nil {
		return err
	}
	me, err := a.client.Me(ctx)
	if err != nil {
		return fmt.Errorf("verifying session: %w", err)
	}
	if err := a.session.Set(me.Role == adminRole); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	a.logger.Info("signed in", zap.String("email", me.Email), zap.String("role", me.Role))
	fmt.Fprintf(out, "Signed in as %s (%s)\n", me.Email, me.Role)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	// The local session is cleared even when the API is unreachable or the
	// token already expired.
	if err := a.client.Logout(cmd.Context()); err != nil && !errors.Is(err, actes.ErrUnauthorized) {
		a.logger.Warn("logout request failed", zap.Error(err))
	}
	if err := a.session.Clear(); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.session.HasToken() {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
		return nil
	}
	me, err := a.client.Me(cmd.Context())
	if errors.Is(err, actes.ErrUnauthorized) {
		fmt.Fprintln(cmd.OutOrStdout(), "Session expired. Run actes login.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", me.Email, me.Role)
	return nil
}

func prompt(w io.Writer, r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	input, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(in io.Reader, w io.Writer, question string) (bool, error) {
	answer, err := prompt(w, bufio.NewReader(in), question)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "o", "oui":
		return true, nil
	}
	return false, nil
}

// readPassword disables echo when in is a terminal and falls back to a plain
// line read for pipes.
func readPassword(in io.Reader, w io.Writer, r *bufio.Reader) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return prompt(w, r, "Password: ")
	}
	fmt.Fprint(w, "Password: ")
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}
