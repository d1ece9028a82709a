package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses editor save bursts into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a settings file after it changes and publishes the result.
type Watcher struct {
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	updates  chan Settings
	done     chan struct{}
}

// Watch starts watching path. The containing directory is watched so that
// editors replacing the file are seen too.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	w := &Watcher{
		logger:   logger,
		watcher:  fw,
		path:     abs,
		debounce: debounce,
		updates:  make(chan Settings, 1),
		done:     make(chan struct{}),
	}
	go w.loop(ctx)
	logger.Info("watching settings", zap.String("path", abs))
	return w, nil
}

// Updates delivers each successfully parsed revision. Only the newest
// pending revision is kept.
func (w *Watcher) Updates() <-chan Settings { return w.updates }

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.logger.Debug("settings change detected",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()))
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("settings watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		case <-ctx.Done():
			w.logger.Info("stopping settings watcher")
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		w.logger.Warn("settings reload rejected", zap.Error(err))
		return
	}
	select {
	case <-w.updates:
	default:
	}
	w.updates <- s
	w.logger.Info("settings reloaded", zap.String("path", w.path))
}
