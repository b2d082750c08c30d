package viewer

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap binds keys to controller operations. It satisfies help.KeyMap.
type KeyMap struct {
	Next     key.Binding
	Previous key.Binding
	ZoomIn   key.Binding
	ZoomOut  key.Binding
	Fit      key.Binding
	Download key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Left     key.Binding
	Right    key.Binding
	First    key.Binding
	Last     key.Binding
}

// DefaultKeyMap returns the bindings used by the actes viewer.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next:     key.NewBinding(key.WithKeys("right", "n"), key.WithHelp("→/n", "next page")),
		Previous: key.NewBinding(key.WithKeys("left", "p"), key.WithHelp("←/p", "previous page")),
		ZoomIn:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		ZoomOut:  key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "zoom out")),
		Fit:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "fit page")),
		Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "half page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", " "), key.WithHelp("pgdn", "half page down")),
		Left:     key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "pan left")),
		Right:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "pan right")),
		First:    key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "first page")),
		Last:     key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "last page")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Previous, k.Next, k.ZoomOut, k.ZoomIn, k.Fit, k.Download}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Previous, k.Next, k.First, k.Last},
		{k.ZoomOut, k.ZoomIn, k.Fit},
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Left, k.Right, k.Download},
	}
}

const panColumns = 8

func (c *Controller) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, c.keys.Next):
		return c.Next()
	case key.Matches(msg, c.keys.Previous):
		return c.Previous()
	case key.Matches(msg, c.keys.First):
		return c.GoToPage(1)
	case key.Matches(msg, c.keys.Last):
		return c.GoToPage(c.state.PageCount)
	case key.Matches(msg, c.keys.ZoomIn):
		return c.ZoomStep(ZoomButtonStep)
	case key.Matches(msg, c.keys.ZoomOut):
		return c.ZoomStep(-ZoomButtonStep)
	case key.Matches(msg, c.keys.Fit):
		return c.Fit()
	case key.Matches(msg, c.keys.Download):
		return c.Download()
	case key.Matches(msg, c.keys.Up):
		c.surface.LineUp(1)
	case key.Matches(msg, c.keys.Down):
		c.surface.LineDown(1)
	case key.Matches(msg, c.keys.PageUp):
		c.surface.HalfViewUp()
	case key.Matches(msg, c.keys.PageDown):
		c.surface.HalfViewDown()
	case key.Matches(msg, c.keys.Left):
		c.PanBy(-panColumns)
	case key.Matches(msg, c.keys.Right):
		c.PanBy(panColumns)
	}
	return nil
}

// handleMouse translates terminal wheel events. Terminals do not report
// Cmd, so Alt stands in for it next to Ctrl.
func (c *Controller) handleMouse(msg tea.MouseMsg) tea.Cmd {
	switch msg.Type {
	case tea.MouseWheelDown:
		return c.Wheel(WheelEvent{DeltaY: 1, Modifier: msg.Ctrl || msg.Alt})
	case tea.MouseWheelUp:
		return c.Wheel(WheelEvent{DeltaY: -1, Modifier: msg.Ctrl || msg.Alt})
	}
	return nil
}
