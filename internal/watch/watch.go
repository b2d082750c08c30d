// Package watch reports changes to a local document so the viewer can reload
// it.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 300 * time.Millisecond
	tickInterval    = 50 * time.Millisecond
)

// Event is a settled change to the watched file.
type Event struct {
	Path    string
	Removed bool
}

// Watcher watches one file. Editors often save by renaming over the target,
// so the parent directory is watched and events are filtered by name.
type Watcher struct {
	mu       sync.Mutex
	fs       *fsnotify.Watcher
	path     string
	debounce time.Duration
	logger   *zap.Logger

	pending  time.Time
	removed  bool
	events   chan Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stopOnce sync.Once
}

// New creates a watcher for path. It does nothing until Start.
func New(path string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		fs:       fs,
		path:     abs,
		debounce: debounce,
		logger:   logger.Named("watch"),
		events:   make(chan Event, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Events delivers settled changes. At most one event is buffered; a newer
// change replaces an unread one.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Debug("watching", zap.String("path", w.path))
	go w.run(ctx)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		running := w.running
		w.running = false
		w.mu.Unlock()

		close(w.stopCh)
		if running {
			<-w.doneCh
		}
		if err := w.fs.Close(); err != nil {
			w.logger.Warn("closing watcher", zap.Error(err))
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch error", zap.Error(err))
			}
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.mark(false)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.mark(true)
	}
}

func (w *Watcher) mark(removed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = time.Now()
	w.removed = removed
}

// flush emits the pending change once it has been quiet for the debounce
// window.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	ev := Event{Path: w.path, Removed: w.removed}
	w.pending = time.Time{}
	w.mu.Unlock()
	w.publish(ev)
}

// publish hands ev to the reader, dropping a buffered event it supersedes.
// Only the event loop sends, so the retry terminates.
func (w *Watcher) publish(ev Event) {
	for {
		select {
		case w.events <- ev:
			w.logger.Debug("change settled", zap.String("path", ev.Path), zap.Bool("removed", ev.Removed))
			return
		default:
		}
		select {
		case old := <-w.events:
			w.logger.Debug("superseded unread change", zap.Bool("removed", old.Removed))
		default:
		}
	}
}
