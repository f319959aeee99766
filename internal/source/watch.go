package source

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/olivier-w/csvtv/internal/log"
)

const watchDebounce = 500 * time.Millisecond

// Watch calls onChange after a file:// locator is written, renamed into
// place or recreated. It returns once the watcher is installed and stops
// when ctx is cancelled. onChange runs on a timer goroutine.
func Watch(ctx context.Context, locator string, onChange func()) error {
	if KindOf(locator) != KindFile {
		return fmt.Errorf("watching %s: only file:// locators can be watched", locator)
	}
	path := filepath.Clean(FilePath(locator))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	logger := log.WithComponent("source")
	logger.Debug().Str(log.FieldLocator, locator).Msg("watching channel list")

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(watchDebounce, func() {
					if ctx.Err() == nil {
						onChange()
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("channel list watcher error")
			}
		}
	}()
	return nil
}
