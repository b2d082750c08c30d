package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/actes/internal/actes"
)

// toolbarHeight is the viewer toolbar row plus its bottom border.
const toolbarHeight = 2

const minViewportHeight = 6

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	headerHeight   int
	footerHeight   int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 20,
		footerHeight:   3,
	}
}

// Update sizes the document surface to whatever the header, toolbar and
// footer leave free in a width x height window.
func (l *pageLayout) Update(width, height, header, footer int) {
	l.windowWidth = width
	l.windowHeight = height
	l.headerHeight = header
	l.footerHeight = footer
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	usable := height - header - footer - toolbarHeight
	if usable < minViewportHeight {
		usable = minViewportHeight
	}
	l.viewportHeight = usable
}

// renderActeHeader renders the act metadata the way the portal's act page
// lists it: title, classification line, then a shortened summary.
func renderActeHeader(a *actes.Acte, width int) string {
	if a == nil {
		return ""
	}
	wrap := wrapWidth(width, 2)
	lines := []string{titleStyle.Render(wordwrap.String(a.Titre, wrap))}

	var meta []string
	if a.Type != "" {
		meta = append(meta, a.Type)
	}
	if a.Service != "" {
		meta = append(meta, a.Service)
	}
	if !a.DatePublication.IsZero() {
		meta = append(meta, "published "+a.DatePublication.String())
	}
	if a.Statut != "" {
		meta = append(meta, a.Statut)
	}
	if len(meta) > 0 {
		lines = append(lines, subtitleStyle.Render(wordwrap.String(strings.Join(meta, " · "), wrap)))
	}
	if resume := previewText(a.Resume, resumePreviewLimit); resume != "" {
		lines = append(lines, helperStyle.Render(wordwrap.String(resume, wrap)))
	}
	return headerStyle.Render(strings.Join(lines, "\n"))
}

func heightOf(block string) int {
	if block == "" {
		return 0
	}
	return lipgloss.Height(block)
}

func wrapWidth(width, padding int) int {
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func previewText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
