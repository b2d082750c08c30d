package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/actes/internal/actes"
	"github.com/csheth/actes/internal/watch"
)

// ActeLookup resolves the metadata of a published act.
type ActeLookup interface {
	Get(ctx context.Context, id int) (actes.Acte, error)
}

// Invalidator forgets the cached copy of a remote document.
type Invalidator interface {
	Invalidate(url string) error
}

func fetchMetadataJob(lookup ActeLookup, id int) jobRunner {
	return func(parent context.Context) (tea.Msg, error) {
		ctx, cancel := context.WithTimeout(parent, 30*time.Second)
		defer cancel()
		acte, err := lookup.Get(ctx, id)
		if err != nil {
			err = fmt.Errorf("acte %d: %w", id, err)
		}
		return metadataResultMsg{acte: acte, err: err}, err
	}
}

func reloadFileJob(path string) jobRunner {
	return func(context.Context) (tea.Msg, error) {
		data, err := os.ReadFile(path)
		return reloadResultMsg{path: path, data: data, err: err}, err
	}
}

// waitForChange blocks until the watcher reports a settled change. The model
// re-arms it after every event.
func waitForChange(w *watch.Watcher) tea.Cmd {
	if w == nil {
		return nil
	}
	events := w.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return watchEventMsg{event: ev}
	}
}

func expireToastCmd(id int, after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func displayName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
