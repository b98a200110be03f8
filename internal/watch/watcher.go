// Package watch observes the storage root for changes made outside
// the API (a shell on the box, a sync tool) and publishes them as
// change events so browsing clients can refresh.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/burrowfs/burrow/internal/events"
	"github.com/burrowfs/burrow/internal/logging"
	"github.com/burrowfs/burrow/internal/metrics"
	"github.com/burrowfs/burrow/internal/storage"
)

const debounceInterval = 300 * time.Millisecond

// Watcher monitors the storage root and feeds debounced change events
// into the broadcaster.
type Watcher struct {
	root        string
	broadcaster *events.Broadcaster
	watcher     *fsnotify.Watcher
}

// New creates a watcher over the gateway's canonical root.
func New(resolver *storage.Resolver, broadcaster *events.Broadcaster) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:        resolver.Root(),
		broadcaster: broadcaster,
		watcher:     w,
	}, nil
}

// Start begins watching and debouncing events. Blocks until ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	logging.Info("watching storage root", zap.String("root", w.root))

	pending := make(map[string]events.Event)
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			metrics.RecordWatcherEvent()

			// In-flight upload temp files churn constantly; ignore
			// them along with other dotfiles.
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			tenant, vpath, ok := w.split(event.Name)
			if !ok {
				continue
			}
			pending[event.Name] = events.Event{
				Type:   events.EventChanged,
				Tenant: string(tenant),
				Path:   vpath,
			}
			timer.Reset(debounceInterval)

			// A new directory needs its own watch; adding a file is a
			// harmless no-op.
			if event.Has(fsnotify.Create) {
				w.watcher.Add(event.Name) //nolint:errcheck
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			for _, ev := range pending {
				w.broadcaster.Publish(ev)
			}
			if len(pending) > 0 {
				logging.Debug("published external changes", zap.Int("count", len(pending)))
				pending = make(map[string]events.Event)
			}
		}
	}
}

// split maps an absolute host path to tenant and virtual path. Paths
// outside the root, or the root itself, are not reportable.
func (w *Watcher) split(absPath string) (storage.Tenant, string, bool) {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	rel = filepath.ToSlash(rel)
	rawTenant, rest, _ := strings.Cut(rel, "/")
	if rawTenant == string(storage.Public) {
		return storage.Public, rest, true
	}
	tenant, err := storage.ParseTenant(rawTenant)
	if err != nil {
		return "", "", false
	}
	return tenant, rest, true
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
