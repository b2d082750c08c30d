package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/csheth/actes/internal/viewer"
)

type keyMap struct {
	GoTo       key.Binding
	Reload     key.Binding
	Dismiss    key.Binding
	DismissAll key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		GoTo:       key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "go to page")),
		Reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Dismiss:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss notice")),
		DismissAll: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss all")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
	}
}

// helpKeys merges the viewer bindings with the program's own.
type helpKeys struct {
	app    keyMap
	viewer viewer.KeyMap
}

func (m *model) helpKeys() helpKeys {
	return helpKeys{app: m.keys, viewer: m.viewKey}
}

func (h helpKeys) ShortHelp() []key.Binding {
	return append(h.viewer.ShortHelp(), h.app.GoTo, h.app.Help, h.app.Quit)
}

func (h helpKeys) FullHelp() [][]key.Binding {
	return append(h.viewer.FullHelp(), []key.Binding{
		h.app.GoTo, h.app.Reload, h.app.Dismiss, h.app.DismissAll, h.app.Help, h.app.Quit,
	})
}
