// FILE: secureconfig/watch.go
package secureconfig

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// fileWatcher reacts to external edits of overlay files and pushes the
// resulting reload through the service's standard mutation path, so
// file-driven changes carry the same invariants as programmatic writes.
type fileWatcher struct {
	svc      *Service
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu            sync.Mutex
	debounceTimer *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// newFileWatcher watches the overlay directory. Watching the directory
// rather than individual files survives the rename-over-replace pattern
// editors and atomic writers use.
func newFileWatcher(svc *Service, dir string, debounce time.Duration) (*fileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &fileWatcher{
		svc:      svc,
		fsw:      fsw,
		debounce: debounce,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *fileWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.svc.logger.Warn("overlay watcher error", zap.Error(err))
		}
	}
}

// relevant filters events down to mutations of recognized overlay files.
func (w *fileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}

	base := filepath.Base(event.Name)
	ext := strings.ToLower(filepath.Ext(base))
	name := strings.TrimSuffix(base, filepath.Ext(base))

	validExt := false
	for _, e := range overlayExtensions {
		if ext == e {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	switch name {
	case "default", "local":
		return true
	default:
		return name == w.svc.opts.Environment
	}
}

// scheduleReload debounces rapid successive edits into a single reload.
func (w *fileWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), DefaultReloadTimeout)
		defer cancel()
		w.svc.reloadOverlays(ctx)
	})
}

func (w *fileWatcher) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
			w.debounceTimer = nil
		}
		w.mu.Unlock()
	})
}
