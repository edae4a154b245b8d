// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.FileWatcher = (*FSNotifyWatcher)(nil)

// DefaultDebounce is how long a path must stay quiet before its event is emitted.
const DefaultDebounce = 500 * time.Millisecond

// Option configures a FSNotifyWatcher.
type Option func(*FSNotifyWatcher)

// WithDebounce sets the quiet period. Zero emits every event immediately.
func WithDebounce(d time.Duration) Option {
	return func(w *FSNotifyWatcher) { w.debounce = d }
}

// WithLogger sets the logger for watcher errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *FSNotifyWatcher) { w.logger = logger }
}

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string // File extensions to watch (e.g., ".pdf", ".txt")
	debounce   time.Duration
	logger     *slog.Logger
}

// NewFSNotifyWatcher creates a new file watcher.
func NewFSNotifyWatcher(extensions []string, opts ...Option) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".pdf", ".txt", ".md"}
	}

	fw := &FSNotifyWatcher{
		watcher:    w,
		extensions: extensions,
		debounce:   DefaultDebounce,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(fw)
	}
	fw.logger = fw.logger.With("component", "watcher")
	return fw, nil
}

// Watch starts monitoring the directory and emits events.
// Bursts of events for one path collapse into a single event.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)

	go func() {
		defer close(events)

		var pending []ports.FileEvent
		timer := time.NewTimer(w.debounce)
		timer.Stop()
		defer timer.Stop()

		flush := func() bool {
			for _, ev := range pending {
				select {
				case events <- ev:
				case <-ctx.Done():
					return false
				}
			}
			pending = pending[:0]
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if !flush() {
					return
				}
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				// Filter by extension
				if !w.isWatchedExtension(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					op = ports.FileCreated
				case event.Op&fsnotify.Write == fsnotify.Write:
					op = ports.FileModified
				case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
					op = ports.FileDeleted
				default:
					continue
				}

				pending = coalesce(pending, ports.FileEvent{Path: event.Name, Operation: op})
				if w.debounce <= 0 {
					if !flush() {
						return
					}
					continue
				}
				timer.Reset(w.debounce)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", "dir", dir, "error", err)
			}
		}
	}()

	return events, nil
}

// coalesce merges ev into pending. A create followed by writes stays a create.
func coalesce(pending []ports.FileEvent, ev ports.FileEvent) []ports.FileEvent {
	i := slices.IndexFunc(pending, func(p ports.FileEvent) bool { return p.Path == ev.Path })
	if i < 0 {
		return append(pending, ev)
	}
	prev := pending[i]
	pending = slices.Delete(pending, i, i+1)
	if prev.Operation == ports.FileCreated && ev.Operation == ports.FileModified {
		ev.Operation = ports.FileCreated
	}
	return append(pending, ev)
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

// isWatchedExtension checks if the file has a watched extension.
func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}
