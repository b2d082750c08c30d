package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/actes/internal/actes"
)

const detailColumnAt = 50

var (
	newUserRole  string
	userRole     string
	userEmail    string
	userPassword bool

	auditUser   string
	auditAction string
	auditActe   int
	auditPage   int
	auditSize   int
	auditExport string
)

var emailCmd = &cobra.Command{
	Use:   "email <id> <address>",
	Short: "Have the portal mail an act, PDF attached",
	Args:  cobra.ExactArgs(2),
	RunE:  runEmail,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage back-office accounts",
	Long: `Manage the accounts allowed into the back office. Admins manage acts
and accounts; agents manage acts only.`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create an account",
	Long: `Create an account. The password is read from ` + passwordEnvVar + ` when set,
otherwise prompted for.`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersAdd,
}

var usersEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change an account's email, role or password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersEdit,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersDelete,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the back-office audit log",
	Long: `Show who created, updated or deleted which act, most recent first.
With --export the whole filtered log is saved as CSV instead; pass a
directory to get the portal's journal-audit-YYYY-MM-DD.csv name.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	usersAddCmd.Flags().StringVar(&newUserRole, "role", actes.RoleAgent, "role: admin or agent")
	usersEditCmd.Flags().StringVar(&userEmail, "email", "", "new email")
	usersEditCmd.Flags().StringVar(&userRole, "role", "", "new role: admin or agent")
	usersEditCmd.Flags().BoolVar(&userPassword, "password", false, "set a new password")
	usersDeleteCmd.Flags().BoolVarP(&confirmDelete, "yes", "y", false, "do not ask for confirmation")
	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersEditCmd, usersDeleteCmd)

	auditCmd.Flags().StringVar(&auditUser, "user", "", "only changes made by this email")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "create, update or delete")
	auditCmd.Flags().IntVar(&auditActe, "acte", 0, "only changes to this act id")
	auditCmd.Flags().IntVar(&auditPage, "page", 1, "result page")
	auditCmd.Flags().IntVar(&auditSize, "size", 20, "entries per page")
	auditCmd.Flags().StringVar(&auditExport, "export", "", "save the log as CSV to this file or directory")

	rootCmd.AddCommand(emailCmd, usersCmd, auditCmd)
}

func runEmail(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	address := strings.TrimSpace(args[1])
	if err := a.client.SendByEmail(cmd.Context(), id, address); err != nil {
		return err
	}
	a.logger.Info("act sent by email", zap.Int("id", id))
	fmt.Fprintf(cmd.OutOrStdout(), "Act %d sent to %s.\n", id, address)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.client.Users(cmd.Context())
	if err != nil {
		return sessionHint(err)
	}
	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "No account.")
		return nil
	}
	t := newTable("ID", "Email", "Role", "Created")
	for _, u := range users {
		t.Row(strconv.Itoa(u.ID), u.Email, u.Role, u.CreatedAt.String())
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	email := strings.TrimSpace(args[0])
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email %q", email)
	}
	if !actes.ValidRole(newUserRole) {
		return fmt.Errorf("--role must be %s or %s", actes.RoleAdmin, actes.RoleAgent)
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	password := os.Getenv(passwordEnvVar)
	if password == "" {
		if password, err = readPassword(cmd.InOrStdin(), out, bufio.NewReader(cmd.InOrStdin())); err != nil {
			return err
		}
	}
	if password == "" {
		return errors.New("a password is required")
	}
	account, err := a.client.CreateUser(cmd.Context(), email, password, newUserRole)
	if err != nil {
		return sessionHint(err)
	}
	a.logger.Info("account created", zap.String("email", email), zap.String("role", newUserRole))
	fmt.Fprintf(out, "Created %s (%s), id %d\n", account.Email, account.Role, account.ID)
	return nil
}

func runUsersEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	update := actes.AccountUpdate{Email: strings.TrimSpace(userEmail), Role: strings.TrimSpace(userRole)}
	if update.Role != "" && !actes.ValidRole(update.Role) {
		return fmt.Errorf("--role must be %s or %s", actes.RoleAdmin, actes.RoleAgent)
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if userPassword {
		password := os.Getenv(passwordEnvVar)
		if password == "" {
			if password, err = readPassword(cmd.InOrStdin(), out, bufio.NewReader(cmd.InOrStdin())); err != nil {
				return err
			}
		}
		update.Password = password
	}
	if update == (actes.AccountUpdate{}) {
		return errors.New("nothing to change: pass --email, --role or --password")
	}
	account, err := a.client.UpdateUser(cmd.Context(), id, update)
	if err != nil {
		return sessionHint(err)
	}
	a.logger.Info("account updated", zap.Int("id", id))
	fmt.Fprintf(out, "Updated %s (%s)\n", account.Email, account.Role)
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if !confirmDelete {
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete account %d? [y/N] ", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}
	if err := a.client.DeleteUser(cmd.Context(), id); err != nil {
		return sessionHint(err)
	}
	a.logger.Info("account deleted", zap.Int("id", id))
	fmt.Fprintf(out, "Deleted account %d.\n", id)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	q := actes.AuditQuery{
		UserEmail: strings.TrimSpace(auditUser),
		Action:    strings.ToLower(strings.TrimSpace(auditAction)),
		ActeID:    auditActe,
		Page:      auditPage,
		Size:      auditSize,
	}
	if err := q.Validate(); err != nil {
		return err
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if auditExport != "" {
		path, err := exportAudit(cmd, a, q, auditExport, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %s\n", path)
		return nil
	}

	entries, err := a.client.AuditLogs(cmd.Context(), q)
	if err != nil {
		return sessionHint(err)
	}
	writeAudit(out, entries)
	return nil
}

// exportAudit writes the CSV next to its final name and renames it once
// complete.
func exportAudit(cmd *cobra.Command, a *app, q actes.AuditQuery, target string, now time.Time) (string, error) {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, auditExportName(now))
	}
	f, err := os.CreateTemp(filepath.Dir(target), ".audit-*.csv")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	n, err := a.client.ExportAuditLogs(cmd.Context(), q, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", sessionHint(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", err
	}
	a.logger.Info("audit log exported", zap.String("path", target), zap.Int64("bytes", n))
	return target, nil
}

func auditExportName(now time.Time) string {
	return "journal-audit-" + now.Format(dateLayout) + ".csv"
}

func writeAudit(w io.Writer, entries []actes.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entry matches these criteria.")
		return
	}
	t := newTable("Date", "User", "Action", "Act", "Detail")
	for _, e := range entries {
		act := "-"
		if e.ActeID > 0 {
			act = strconv.Itoa(e.ActeID)
			if e.ActeTitre != "" {
				act += " " + truncate.StringWithTail(e.ActeTitre, 30, "…")
			}
		}
		when := "-"
		if !e.CreatedAt.IsZero() {
			when = e.CreatedAt.Format("02/01/2006 15:04")
		}
		t.Row(
			when,
			orDash(e.UserEmail),
			e.Action,
			act,
			truncate.StringWithTail(e.Detail, detailColumnAt, "…"),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}
