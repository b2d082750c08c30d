package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/csheth/actes/internal/viewer"
)

func (m *model) View() string {
	parts := make([]string, 0, 5)
	if header := renderActeHeader(m.acte, m.layout.windowWidth); header != "" {
		parts = append(parts, header)
	}
	parts = append(parts, m.bodyView(), m.noticeLine(), m.statusLine(), m.help.View(m.helpKeys()))
	return strings.Join(parts, "\n")
}

func (m *model) bodyView() string {
	if body := m.viewer.View(); body != "" {
		return body
	}
	return helperStyle.Render("No document to display. Run actes view <file|url> or actes open <id>.")
}

// noticeLine shows the page entry while it is open, otherwise the newest
// notice.
func (m *model) noticeLine() string {
	if m.stage == stagePageEntry {
		return m.pageInput.View()
	}
	if len(m.toasts) == 0 {
		return ""
	}
	latest := m.toasts[len(m.toasts)-1]
	text := latest.text
	if more := len(m.toasts) - 1; more > 0 {
		text = fmt.Sprintf("%s (+%d)", text, more)
	}
	if latest.sticky {
		text += "  esc to dismiss"
	}
	width := m.layout.windowWidth
	if width <= 0 {
		width = 80
	}
	return toastStyle(latest.kind).Render(truncate.StringWithTail(text, uint(width-2), "…"))
}

func (m *model) statusLine() string {
	vs := m.viewer.ViewState()
	parts := []string{m.stateLabel()}
	if name := sourceLabel(m.viewer.Source()); name != "" {
		parts = append(parts, name)
	}
	if vs.PageCount > 0 {
		parts = append(parts, fmt.Sprintf("page %d/%d", vs.CurrentPage, vs.PageCount))
	}
	return statusBarStyle.Render(strings.Join(parts, " · "))
}

func (m *model) stateLabel() string {
	state := m.viewer.State()
	switch state {
	case viewer.StateLoading:
		return m.spinner.View() + " loading"
	case viewer.StateRendering:
		return m.spinner.View() + " rendering"
	}
	if len(m.running) > 0 {
		return m.spinner.View() + " working"
	}
	return state.String()
}

// toolbarExtra is appended to the viewer toolbar.
func (m *model) toolbarExtra() string {
	if !m.config.Admin {
		return ""
	}
	return adminBadgeStyle.Render("admin")
}

func sourceLabel(src viewer.Source) string {
	switch {
	case src.Name != "":
		return src.Name
	case src.URL != "":
		return src.URL
	default:
		return ""
	}
}

func toastStyle(kind toastKind) lipgloss.Style {
	switch kind {
	case toastSuccess:
		return successStyle
	case toastError:
		return errorStyle
	default:
		return infoStyle
	}
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	helperStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headerStyle     = lipgloss.NewStyle().PaddingLeft(1)
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	successStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusBarStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	adminBadgeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ff8c00")).Padding(0, 1)
)
