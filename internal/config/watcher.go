package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/telship/pkg/log"
)

// DefaultDebounceDelay is the quiet period after the last write before the
// change callback runs.
const DefaultDebounceDelay = 200 * time.Millisecond

// Watcher monitors the config file and calls onChange after edits settle.
// The directory is watched rather than the file so editors that replace the
// file on save are still seen.
type Watcher struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration
	onChange      func()
	logger        log.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// NewWatcher creates a watcher for path. A zero delay means
// DefaultDebounceDelay.
func NewWatcher(path string, delay time.Duration, onChange func(), logger log.Logger) *Watcher {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Watcher{
		path:          path,
		debounceDelay: delay,
		onChange:      onChange,
		logger:        logger.With(log.String("component", "config_watcher")),
	}
}

// Start begins watching. It returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer fw.Close()
		w.loop(ctx, fw)
	}()

	w.logger.Info("watching config file", log.String("path", w.path))
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceChange()

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debounceDelay, w.onChange)
}

// Shutdown stops watching and cancels a pending callback.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
}
