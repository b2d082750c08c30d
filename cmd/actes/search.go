package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/csheth/actes/internal/actes"
)

const (
	dateLayout    = "2006-01-02"
	titleColumnAt = 60
)

var (
	searchType    string
	searchService string
	searchFrom    string
	searchTo      string
	searchPage    int
	searchSize    int
	searchText    bool
)

// fullTextLookups bounds the detail requests made to complete bare hits.
const fullTextLookups = 4

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search published acts",
	Long: `List published acts matching a full-text query and filters, most recent
publication first. Dates use the YYYY-MM-DD format.

With --fulltext the query is matched against the text extracted from the
PDFs instead; the filters then narrow those hits.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "", "act type (arrêté, délibération, ...)")
	searchCmd.Flags().StringVar(&searchService, "service", "", "issuing service")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "earliest publication date")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "latest publication date")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "result page")
	searchCmd.Flags().IntVar(&searchSize, "size", 10, "results per page")
	searchCmd.Flags().BoolVar(&searchText, "fulltext", false, "search inside the PDFs")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, err := buildQuery(strings.Join(args, " "), searchType, searchService, searchFrom, searchTo, searchPage, searchSize)
	if err != nil {
		return err
	}
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	var results []actes.Acte
	if searchText {
		results, err = a.searchFullText(cmd.Context(), query)
	} else {
		results, err = a.client.List(cmd.Context(), query)
	}
	if err != nil {
		return err
	}
	writeResults(cmd.OutOrStdout(), results)
	return nil
}

// searchFullText completes hits that carry only an id and keeps those that
// pass the other filters.
func (a *app) searchFullText(ctx context.Context, q actes.Query) ([]actes.Acte, error) {
	if q.Text == "" {
		return nil, errors.New("--fulltext needs a query")
	}
	hits, err := a.client.SearchFullText(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fullTextLookups)
	for i := range hits {
		if hits[i].Titre != "" {
			continue
		}
		i := i
		g.Go(func() error {
			full, err := a.client.Get(gctx, hits[i].ID)
			if err != nil {
				return fmt.Errorf("act %d: %w", hits[i].ID, err)
			}
			hits[i] = full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := hits[:0]
	for _, h := range hits {
		if matchesFilters(h, q) {
			out = append(out, h)
		}
	}
	return out, nil
}

func matchesFilters(a actes.Acte, q actes.Query) bool {
	if q.Type != "" && !strings.EqualFold(a.Type, q.Type) {
		return false
	}
	if q.Service != "" && !strings.EqualFold(a.Service, q.Service) {
		return false
	}
	published := a.DatePublication.Time
	if !q.DateMin.IsZero() && (published.IsZero() || published.Before(q.DateMin)) {
		return false
	}
	if !q.DateMax.IsZero() && (published.IsZero() || published.After(q.DateMax)) {
		return false
	}
	return true
}

func buildQuery(text, kind, service, from, to string, page, size int) (actes.Query, error) {
	q := actes.Query{
		Text:    strings.TrimSpace(text),
		Type:    strings.TrimSpace(kind),
		Service: strings.TrimSpace(service),
		Page:    page,
		Size:    size,
	}
	var err error
	if q.DateMin, err = parseDate("from", from); err != nil {
		return actes.Query{}, err
	}
	if q.DateMax, err = parseDate("to", to); err != nil {
		return actes.Query{}, err
	}
	if !q.DateMin.IsZero() && !q.DateMax.IsZero() && q.DateMax.Before(q.DateMin) {
		return actes.Query{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return q, nil
}

func parseDate(flag, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", flag, value)
	}
	return t, nil
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#56526e"))
)

func writeResults(w io.Writer, results []actes.Acte) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No act matches these criteria.")
		return
	}
	t := newTable("ID", "Published", "Type", "Service", "Title")
	for _, a := range results {
		t.Row(
			strconv.Itoa(a.ID),
			a.DatePublication.String(),
			a.Type,
			a.Service,
			truncate.StringWithTail(a.Titre, titleColumnAt, "…"),
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%d result(s). Read one with: actes open <id>\n", len(results))
}
