package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/csheth/actes/internal/actes"
)

const maxAdminPageSize = 100

var (
	adminType    string
	adminService string
	adminFrom    string
	adminTo      string
	adminPage    int
	adminSize    int
)

var (
	formTitle     string
	formType      string
	formService   string
	formSigned    string
	formPublished string
	formStatus    string
	formSummary   string
	formPDF       string
	skipAnalysis  bool
	confirmDelete bool
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage acts in the back office",
	Long: `Back-office commands. They need an administrator or agent session:
run actes login first.`,
}

var adminListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List every act, published or not",
	Long: `List acts as the back office sees them. The query also matches the text
extracted from the PDFs.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAdminList,
}

var adminUploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>...",
	Short: "Publish one or more PDFs",
	Long: `Upload PDFs as new acts. Each file is first analysed by the API to guess
its type, service and signature date; flags override the guesses. The title
defaults to the file name without its extension.

Several files are sent in one bulk request and share the flags.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdminUpload,
}

var adminAnalyseCmd = &cobra.Command{
	Use:   "analyse <file.pdf>",
	Short: "Show what the API extracts from a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminAnalyse,
}

var adminEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change an act's fields or replace its PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminEdit,
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an act and its PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminDelete,
}

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "List the known act types and services",
	Args:  cobra.NoArgs,
	RunE:  runRefs,
}

func init() {
	adminListCmd.Flags().StringVar(&adminType, "type", "", "act type")
	adminListCmd.Flags().StringVar(&adminService, "service", "", "issuing service")
	adminListCmd.Flags().StringVar(&adminFrom, "from", "", "earliest publication date")
	adminListCmd.Flags().StringVar(&adminTo, "to", "", "latest publication date")
	adminListCmd.Flags().IntVar(&adminPage, "page", 1, "result page")
	adminListCmd.Flags().IntVar(&adminSize, "size", 20, "results per page (at most 100)")

	for _, c := range []*cobra.Command{adminUploadCmd, adminEditCmd} {
		c.Flags().StringVar(&formTitle, "title", "", "title")
		c.Flags().StringVar(&formType, "type", "", "act type")
		c.Flags().StringVar(&formService, "service", "", "issuing service")
		c.Flags().StringVar(&formSigned, "signed", "", "signature date (YYYY-MM-DD)")
		c.Flags().StringVar(&formPublished, "published", "", "publication date (YYYY-MM-DD)")
		c.Flags().StringVar(&formStatus, "status", "", "status")
		c.Flags().StringVar(&formSummary, "summary", "", "summary")
	}
	adminUploadCmd.Flags().BoolVar(&skipAnalysis, "no-analyse", false, "do not ask the API to pre-fill fields")
	adminEditCmd.Flags().StringVar(&formPDF, "pdf", "", "replacement PDF")
	adminDeleteCmd.Flags().BoolVarP(&confirmDelete, "yes", "y", false, "do not ask for confirmation")

	adminCmd.AddCommand(adminListCmd, adminUploadCmd, adminAnalyseCmd, adminEditCmd, adminDeleteCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(refsCmd)
}

// adminApp wires the app and refuses to go on without a stored session.
func adminApp() (*app, error) {
	a, err := setup()
	if err != nil {
		return nil, err
	}
	if !a.session.HasToken() {
		a.Close()
		return nil, errors.New("not signed in: run actes login")
	}
	return a, nil
}

func runAdminList(cmd *cobra.Command, args []string) error {
	if adminSize > maxAdminPageSize {
		return fmt.Errorf("--size %d is above the maximum of %d", adminSize, maxAdminPageSize)
	}
	query, err := buildQuery(strings.Join(args, " "), adminType, adminService, adminFrom, adminTo, adminPage, adminSize)
	if err != nil {
		return err
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.client.AdminList(cmd.Context(), query)
	if err != nil {
		return sessionHint(err)
	}
	writeResults(cmd.OutOrStdout(), results)
	return nil
}

func runAdminUpload(cmd *cobra.Command, args []string) error {
	base, err := formFromFlags()
	if err != nil {
		return err
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	forms := make([]actes.ActeForm, 0, len(args))
	for _, path := range args {
		form, err := a.prepareUpload(ctx, path, base)
		if err != nil {
			return err
		}
		forms = append(forms, form)
	}

	out := cmd.OutOrStdout()
	if len(forms) == 1 {
		id, err := a.client.CreateActe(ctx, forms[0])
		if err != nil {
			return sessionHint(err)
		}
		a.logger.Info("act created", zap.Int("id", id), zap.String("title", forms[0].Titre))
		fmt.Fprintf(out, "Created act %d: %s\n", id, forms[0].Titre)
		return nil
	}
	count, err := a.client.BulkCreate(ctx, forms)
	if err != nil {
		return sessionHint(err)
	}
	a.logger.Info("acts created", zap.Int("count", count))
	fmt.Fprintf(out, "Created %d act(s).\n", count)
	return nil
}

// prepareUpload reads a PDF and fills the fields the flags left empty from
// the API's analysis. A failed analysis only costs the guesses.
func (a *app) prepareUpload(ctx context.Context, path string, base actes.ActeForm) (actes.ActeForm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return actes.ActeForm{}, fmt.Errorf("reading %s: %w", path, err)
	}
	form := base
	form.PDF = &actes.Upload{Name: filepath.Base(path), Data: data}
	if form.Titre == "" {
		form.Titre = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if skipAnalysis {
		return form, nil
	}
	guess, err := a.client.AnalysePDF(ctx, *form.PDF)
	if err != nil {
		if errors.Is(err, actes.ErrUnauthorized) {
			return actes.ActeForm{}, sessionHint(err)
		}
		a.logger.Warn("pdf analysis failed", zap.String("file", path), zap.Error(err))
		return form, nil
	}
	if form.Type == "" {
		form.Type = guess.TypeAuto
	}
	if form.Service == "" {
		form.Service = guess.ServiceAuto
	}
	if form.DateSignature.IsZero() {
		form.DateSignature = guess.DateAuto.Time
	}
	return form, nil
}

func runAdminAnalyse(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	guess, err := a.client.AnalysePDF(cmd.Context(), actes.Upload{Name: filepath.Base(args[0]), Data: data})
	if err != nil {
		return sessionHint(err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Type:    %s\n", orDash(guess.TypeAuto))
	fmt.Fprintf(out, "Service: %s\n", orDash(guess.ServiceAuto))
	fmt.Fprintf(out, "Signed:  %s\n", guess.DateAuto)
	if guess.FulltextExcerpt != "" {
		fmt.Fprintf(out, "\n%s\n", truncate.StringWithTail(guess.FulltextExcerpt, 600, "…"))
	}
	return nil
}

func runAdminEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	form, err := formFromFlags()
	if err != nil {
		return err
	}
	if formPDF != "" {
		data, err := os.ReadFile(formPDF)
		if err != nil {
			return fmt.Errorf("reading %s: %w", formPDF, err)
		}
		form.PDF = &actes.Upload{Name: filepath.Base(formPDF), Data: data}
	}
	if form.PDF == nil && form.Titre == "" && form.Type == "" && form.Service == "" &&
		form.DateSignature.IsZero() && form.DatePublication.IsZero() && form.Statut == "" && form.Resume == "" {
		return errors.New("nothing to change: pass at least one field flag or --pdf")
	}
	a, err := adminApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acte, err := a.client.UpdateActe(cmd.Context(), id, form)
	if err != nil {
		return sessionHint(err)
	}
	if form.PDF != nil {
		// The cached copy of the old PDF would otherwise be served for a day.
		if err := a.cache.Invalidate(a.client.PDFURL(id)); err != nil {
			a.logger.Warn("cache invalidation failed", zap.Int("id", id), zap.Error(err))
		}
	}
	a.logger.Info("act updated", zap.Int("id", id))
	fmt.Fprintf(cmd.OutOrStdout(), "Updated act %d: %s\n", acte.ID, acte.Titre)
	return nil
}

func runAdminDelete(cmd *cobra.Command, args []string) error {
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
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete act %d and its PDF? [y/N] ", id))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}
	if err := a.client.DeleteActe(cmd.Context(), id); err != nil {
		return sessionHint(err)
	}
	if err := a.cache.Invalidate(a.client.PDFURL(id)); err != nil {
		a.logger.Warn("cache invalidation failed", zap.Int("id", id), zap.Error(err))
	}
	a.logger.Info("act deleted", zap.Int("id", id))
	fmt.Fprintf(out, "Deleted act %d.\n", id)
	return nil
}

func runRefs(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	types, err := a.client.Types(ctx)
	if err != nil {
		return sessionHint(err)
	}
	services, err := a.client.Services(ctx)
	if err != nil {
		return sessionHint(err)
	}
	out := cmd.OutOrStdout()
	writeRefs(out, "Types", types)
	fmt.Fprintln(out)
	writeRefs(out, "Services", services)
	return nil
}

var refsTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))

func writeRefs(w io.Writer, title string, refs []actes.Ref) {
	fmt.Fprintln(w, refsTitleStyle.Render(title))
	if len(refs) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	t := newTable("ID", "Name")
	for _, r := range refs {
		t.Row(strconv.Itoa(r.ID), r.Name)
	}
	fmt.Fprintln(w, t.Render())
}

func formFromFlags() (actes.ActeForm, error) {
	form := actes.ActeForm{
		Titre:   strings.TrimSpace(formTitle),
		Type:    strings.TrimSpace(formType),
		Service: strings.TrimSpace(formService),
		Statut:  strings.TrimSpace(formStatus),
		Resume:  strings.TrimSpace(formSummary),
	}
	var err error
	if form.DateSignature, err = parseDate("signed", formSigned); err != nil {
		return actes.ActeForm{}, err
	}
	if form.DatePublication, err = parseDate("published", formPublished); err != nil {
		return actes.ActeForm{}, err
	}
	return form, nil
}

func sessionHint(err error) error {
	if errors.Is(err, actes.ErrUnauthorized) {
		return fmt.Errorf("%w (run actes login)", err)
	}
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
