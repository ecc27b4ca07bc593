// Package watcher turns save-file changes into evaluation requests.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rewired-gh/archerstats/internal/logger"
)

// Watcher requests a pass whenever the save file changes, and on every poll tick.
// Requests arriving while a pass runs collapse into one follow-up pass.
type Watcher struct {
	path         string
	debounce     time.Duration
	pollInterval time.Duration
	trigger      chan struct{}
}

// New creates a watcher for the save file at path. A zero pollInterval disables polling.
func New(path string, debounce, pollInterval time.Duration) *Watcher {
	return &Watcher{
		path:         filepath.Clean(path),
		debounce:     debounce,
		pollInterval: pollInterval,
		trigger:      make(chan struct{}, 1),
	}
}

// Trigger requests a pass without blocking.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run watches the save file's directory and calls evaluate for each coalesced request
// until ctx is cancelled. An initial pass runs immediately.
func (w *Watcher) Run(ctx context.Context, evaluate func(context.Context)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	// The game replaces the file on save, so the directory is watched instead.
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info("Watching %s", w.path)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.trigger:
				evaluate(ctx)
			}
		}
	}()

	var poll <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	var debounce *time.Timer
	var fired <-chan time.Time
	w.Trigger()

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if filepath.Clean(ev.Name) != w.path || !relevant(ev.Op) {
				continue
			}
			logger.Debug("Save file event: %s", ev.Op)
			if w.debounce <= 0 {
				w.Trigger()
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.debounce)
			} else {
				debounce.Reset(w.debounce)
			}
			fired = debounce.C

		case <-fired:
			fired = nil
			w.Trigger()

		case <-poll:
			w.Trigger()

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			logger.Warn("File watcher error: %v", err)
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename)
}
