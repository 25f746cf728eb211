package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchDebounce coalesces the burst of events an editor save produces.
const WatchDebounce = 500 * time.Millisecond

// Watch reports changes to the file at path. The directory is watched
// rather than the file so that atomic renames by editors are seen. The
// returned channel receives one value per debounced burst and is closed
// when ctx is done.
func Watch(ctx context.Context, path string, log zerolog.Logger) (<-chan struct{}, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: bad path %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config watcher: watch %q: %w", filepath.Dir(absPath), err)
	}

	changed := make(chan struct{}, 1)

	go func() {
		defer close(changed)
		defer watcher.Close()

		debounce := time.NewTimer(WatchDebounce)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if name, _ := filepath.Abs(event.Name); name != absPath {
					continue
				}
				debounce.Reset(WatchDebounce)
			case <-debounce.C:
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher: error")
			}
		}
	}()

	log.Info().Str("path", absPath).Msg("config watcher: watching")
	return changed, nil
}
