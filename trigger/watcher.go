package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/hotswap"
)

const manifestSuffix = ".hot-update.json"

// Watcher checks for updates whenever a manifest is created or rewritten
// in dir. Publisher renames finished files into place, which surfaces as
// a create event.
type Watcher struct {
	dir    string
	check  CheckFunc
	logger hotswap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, check CheckFunc, logger hotswap.Logger) (*Watcher, error) {
	if check == nil {
		return nil, ErrNilCheck
	}
	if logger == nil {
		logger = hotswap.NopLogger()
	}
	return &Watcher{dir: dir, check: check, logger: logger}, nil
}

// Start begins watching. Events arriving after Start returns are seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return ErrAlreadyStarted
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.loop(ctx, fw)
	w.logger.Info("Watching for hot updates", "dir", w.dir)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !isManifestEvent(event) {
				continue
			}
			w.logger.Debug("Manifest changed", "file", event.Name, "op", event.Op.String())
			if err := w.check(ctx); err != nil {
				w.logger.Error("Update check failed", "file", event.Name, "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

// Stop closes the watcher and waits for the event loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	err := fw.Close()
	w.wg.Wait()
	return err
}

func isManifestEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	return !strings.HasPrefix(name, ".") && strings.HasSuffix(name, manifestSuffix)
}
