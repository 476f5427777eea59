// Package watcher watches the publication database and keeps an in-memory
// registry in step with it.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/szhem/osgi-utils/internal/log"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 100 * time.Millisecond

// Config holds watcher options.
type Config struct {
	// DBPath is the sqlite database file. Its directory is watched.
	DBPath string
	// Debounce is the quiet period after the last write before a change is
	// reported.
	Debounce time.Duration
}

// Watcher reports writes to the publication database. Bursts of writes
// within the debounce period are coalesced into a single signal.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	files    map[string]struct{}
	debounce time.Duration

	closeOnce sync.Once
	closeErr  error
}

// New creates a watcher for cfg.DBPath. Nothing is watched until Watch.
func New(cfg Config) (*Watcher, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path cannot be empty")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	base := filepath.Base(cfg.DBPath)
	return &Watcher{
		fsw:      fsw,
		dir:      filepath.Dir(cfg.DBPath),
		files:    map[string]struct{}{base: {}, base + "-wal": {}},
		debounce: cfg.Debounce,
	}, nil
}

// Watch starts watching and returns the change signal. The channel is closed
// once ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	// The WAL file comes and goes, so the directory is watched instead.
	if err := w.fsw.Add(w.dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.dir, err)
	}

	changes := make(chan struct{}, 1)
	log.SafeGo("watcher.loop", func() { w.run(ctx, changes) })
	log.Debug(log.CatWatcher, "watching", "dir", w.dir, "debounce", w.debounce)
	return changes, nil
}

// Close releases the underlying fsnotify watcher. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { w.closeErr = w.fsw.Close() })
	return w.closeErr
}

func (w *Watcher) run(ctx context.Context, changes chan<- struct{}) {
	defer close(changes)

	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.touchesDB(ev) {
				quiet.Reset(w.debounce)
			}

		case <-quiet.C:
			select {
			case changes <- struct{}{}:
			default:
				// a signal is already pending
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "error", err)
		}
	}
}

// touchesDB reports whether ev may have changed the database contents. A
// removed or renamed database counts, so a replaced file is reloaded.
func (w *Watcher) touchesDB(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	_, ok := w.files[filepath.Base(ev.Name)]
	return ok
}
