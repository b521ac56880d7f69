// Package watch reruns a callback when a file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a burst of writes is coalesced for.
const DefaultDebounce = 200 * time.Millisecond

// File calls fn once, then again after every change to path until ctx is
// done. Editors that replace the file instead of writing it are handled by
// watching the containing directory. Errors from fn are passed to onErr
// and do not stop the watch.
func File(ctx context.Context, path string, debounce time.Duration, fn func() error, onErr func(error)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	if err := fn(); err != nil {
		onErr(err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if eventPath, err := filepath.Abs(event.Name); err != nil || eventPath != absPath {
				continue
			}
			timer.Reset(debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			if err := fn(); err != nil {
				onErr(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onErr(fmt.Errorf("watch: %w", err))

		case <-ctx.Done():
			return nil
		}
	}
}
