// Package watch bridges on-disk board mutations into the event bus.
//
// Agents and other processes write tasks.json directly; without a watcher
// this process's SSE subscribers would never hear about those writes. The
// watcher observes the board file's directory and publishes board_changed
// after a short debounce. In-process mutations publish directly as well;
// the duplication is harmless because board events are coalescible refresh
// triggers.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tayfa-dev/tayfa/pkg/events"
)

// debounceDelay coalesces the event bursts an atomic replace produces.
const debounceDelay = 100 * time.Millisecond

// Watcher publishes board_changed when the board file changes on disk.
type Watcher struct {
	path string
	bus  *events.Bus

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// New builds a watcher for the board file at path.
func New(path string, bus *events.Bus) *Watcher {
	return &Watcher{path: path, bus: bus}
}

// Start begins watching. The parent directory is watched rather than the
// file itself, so the atomic tmp-and-rename replace pattern and a board
// file that does not exist yet are both handled. Watching stops when ctx
// ends or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher is closed")
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating watch directory %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.watcher = fw

	go w.loop(ctx, fw, filepath.Base(w.path))

	slog.Info("Watching board file", "path", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, name string) {
	defer fw.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				slog.Debug("Board file changed on disk", "path", w.path, "op", event.Op.String())
				w.bus.PublishBoardChanged()
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Error("Board watcher error", "path", w.path, "error", err)
		}
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
