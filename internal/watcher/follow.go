package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/registry"
)

// Source loads the persisted publications.
type Source interface {
	Publications(ctx context.Context) ([]registry.Publication, error)
}

// Syncer reconciles a registry with a set of publications.
type Syncer interface {
	Sync(ctx context.Context, pubs []registry.Publication) (added, removed int, err error)
}

// Follow syncs dst from src once, then again on every signal from changes,
// until ctx is done or changes is closed. The first sync error is returned;
// later ones are logged and retried on the next change.
func Follow(ctx context.Context, changes <-chan struct{}, src Source, dst Syncer) error {
	if err := syncOnce(ctx, src, dst); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := syncOnce(ctx, src, dst); err != nil {
				log.ErrorErr(log.CatWatcher, "reload failed", err)
			}
		}
	}
}

// FollowInBackground runs Follow on its own goroutine. The returned stop
// cancels it and waits until no sync is in flight, so dst can be closed
// right after. stop may be called more than once.
func FollowInBackground(ctx context.Context, changes <-chan struct{}, src Source, dst Syncer) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	log.SafeGo("watcher.follow", func() {
		defer close(done)
		if err := Follow(ctx, changes, src, dst); err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorErr(log.CatWatcher, "follow stopped", err)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func syncOnce(ctx context.Context, src Source, dst Syncer) error {
	pubs, err := src.Publications(ctx)
	if err != nil {
		return err
	}
	added, removed, err := dst.Sync(ctx, pubs)
	if err != nil {
		return err
	}
	log.Debug(log.CatWatcher, "reloaded", "publications", len(pubs), "added", added, "removed", removed)
	return nil
}
