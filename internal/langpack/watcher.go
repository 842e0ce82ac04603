package langpack

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const maxOverrideFileSize = 1024 * 1024 // 1MB

func readOverrideFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening language pack override: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat language pack override: %w", err)
	}
	if info.Size() > maxOverrideFileSize {
		return nil, fmt.Errorf("language pack override too large: %d bytes (max %d)", info.Size(), maxOverrideFileSize)
	}

	return io.ReadAll(f)
}

// Watch reloads the override file whenever it changes, until ctx is
// cancelled. Reload failures keep the previous tables and are logged.
func (p *Pack) Watch(ctx context.Context, path string, logger *zap.Logger) error {
	if path == "" {
		return fmt.Errorf("watch requires an override path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating language pack watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if err := p.LoadOverride(path); err != nil {
					logger.Warn("language pack reload failed",
						zap.String("path", path),
						zap.Error(err),
					)
					continue
				}
				logger.Info("language pack reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("language pack watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
