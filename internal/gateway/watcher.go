package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 300 * time.Millisecond

// ManifestWatcher reloads providers when a watched manifest file changes.
// Bursts of events inside the debounce window collapse into one reload.
type ManifestWatcher struct {
	files    map[string]struct{}
	dirs     []string
	reload   func(context.Context) error
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManifestWatcher watches the directories holding paths. Only events on
// the named files trigger reload.
func NewManifestWatcher(paths []string, reload func(context.Context) error, logger *zap.Logger) *ManifestWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ManifestWatcher{
		files:    map[string]struct{}{},
		reload:   reload,
		logger:   logger,
		debounce: defaultDebounce,
	}
	seen := map[string]struct{}{}
	for _, p := range paths {
		clean := filepath.Clean(p)
		w.files[clean] = struct{}{}
		dir := filepath.Dir(clean)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		w.dirs = append(w.dirs, dir)
	}
	return w
}

// SetDebounce overrides the quiet period before a reload.
func (w *ManifestWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

func (w *ManifestWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create manifest watcher: %w", err)
	}
	for _, d := range w.dirs {
		if err := watcher.Add(d); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	w.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(watchCtx)
	w.logger.Info("watching manifests", zap.Strings("dirs", w.dirs))
	return nil
}

func (w *ManifestWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *ManifestWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("manifest watcher error", zap.Error(err))
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending = true
			debounce.Reset(w.debounce)
		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			w.logger.Info("manifest changed, reloading")
			if err := w.reload(ctx); err != nil {
				w.logger.Error("reload after manifest change failed", zap.Error(err))
			}
		}
	}
}

func (w *ManifestWatcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	_, ok := w.files[filepath.Clean(ev.Name)]
	return ok
}
