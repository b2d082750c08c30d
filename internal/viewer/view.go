package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

var (
	buttonStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	disabledButtonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Background(lipgloss.Color("236")).Padding(0, 1)
	primaryButtonStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	pageLabelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4")).Padding(0, 1)
	zoomLabelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	toolbarStyle        = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, true, false).BorderForeground(lipgloss.Color("#56526e"))
	blankSurfaceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

// View renders the toolbar above the surface. An empty controller renders
// nothing.
func (c *Controller) View() string {
	if c.source.IsZero() {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, c.ToolbarView(), c.SurfaceView())
}

// SurfaceView renders the visible part of the drawing surface.
func (c *Controller) SurfaceView() string {
	if c.raster.Height == 0 {
		return blankSurfaceStyle.Render(strings.Repeat("\n", maxInt(0, c.height-1)))
	}
	return c.surface.View()
}

// ToolbarView renders navigation, page, zoom and download controls followed
// by the caller-supplied toolbar content.
func (c *Controller) ToolbarView() string {
	pageCount := c.state.PageCount
	if pageCount < 1 {
		pageCount = 1
	}
	current := c.state.CurrentPage
	if current < 1 {
		current = 1
	}
	parts := []string{
		button("‹", c.CanPrevious(), buttonStyle),
		button("›", c.CanNext(), buttonStyle),
		pageLabelStyle.Render(fmt.Sprintf("Page %d / %d", current, pageCount)),
		button("-", c.doc != nil, buttonStyle),
		button("+", c.doc != nil, buttonStyle),
		zoomLabelStyle.Render(c.zoomLabel()),
		button("⭳ Download", !c.source.IsZero(), primaryButtonStyle),
	}
	if c.config.Toolbar != nil {
		if extra := c.config.Toolbar(); extra != "" {
			parts = append(parts, extra)
		}
	}
	row := lipgloss.JoinHorizontal(lipgloss.Center, spaced(parts)...)
	return toolbarStyle.Render(row)
}

func (c *Controller) zoomLabel() string {
	percent := int(c.state.Zoom.Scale()*100 + 0.5)
	if c.state.Zoom.IsFit() {
		return fmt.Sprintf("%d%% (fit)", percent)
	}
	return fmt.Sprintf("%d%%", percent)
}

func button(label string, enabled bool, style lipgloss.Style) string {
	if !enabled {
		return disabledButtonStyle.Render(label)
	}
	return style.Render(label)
}

func spaced(parts []string) []string {
	out := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			out = append(out, " ")
		}
		out = append(out, part)
	}
	return out
}

func (c *Controller) refreshSurface() {
	if c.raster.Height == 0 {
		c.surface.SetContent("")
		return
	}
	var b strings.Builder
	for i, line := range c.raster.Lines {
		if i > 0 {
			b.WriteRune('\n')
		}
		b.WriteString(clipColumns(line, c.xOffset, c.width))
	}
	c.surface.SetContent(b.String())
}

func (c *Controller) clearSurface() {
	c.raster = Raster{}
	c.xOffset = 0
	c.surface.SetContent("")
	c.surface.GotoTop()
}

// clipColumns drops the first offset runes of line and truncates the rest to
// width cells.
func clipColumns(line string, offset, width int) string {
	if width <= 0 {
		return ""
	}
	if offset > 0 {
		runes := []rune(line)
		if offset >= len(runes) {
			return ""
		}
		line = string(runes[offset:])
	}
	return truncate.String(line, uint(width))
}
