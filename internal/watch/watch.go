// Package watch runs a callback after a file settles following changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period before a change is acted on.
const DefaultDebounce = 500 * time.Millisecond

// tick is how often pending changes are checked against the debounce window.
const tick = 50 * time.Millisecond

// Stats counts watcher activity.
type Stats struct {
	Events    int
	Triggered int
	Errors    int
	LastEvent time.Time
}

// FileWatcher watches one file. The parent directory is watched so editors
// and atomic writers that replace the file by rename are still seen.
type FileWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func(ctx context.Context) error
	logger   *zap.Logger

	pending time.Time
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a FileWatcher for path. onChange runs on the watcher goroutine
// once no event has arrived for debounce.
func New(path string, debounce time.Duration, onChange func(ctx context.Context) error, logger *zap.Logger) (*FileWatcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: nil change handler")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		watcher:  w,
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (fw *FileWatcher) Path() string { return fw.path }

// Start begins watching. It is non-blocking; Stop or ctx cancellation ends
// the loop.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		fw.mu.Lock()
		fw.running = false
		fw.mu.Unlock()
		return fmt.Errorf("watch %q: %w", dir, err)
	}
	fw.logger.Info("watching file", zap.String("path", fw.path), zap.Duration("debounce", fw.debounce))

	go fw.run(ctx)
	return nil
}

// Stop ends the loop, waits for it and releases the OS watcher. It is safe
// to call more than once and before Start.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	wasRunning := fw.running
	fw.running = false
	fw.mu.Unlock()

	if wasRunning {
		select {
		case <-fw.stopCh:
		default:
			close(fw.stopCh)
		}
		<-fw.doneCh
	}
	return fw.watcher.Close()
}

// Stats returns a snapshot of watcher activity.
func (fw *FileWatcher) Stats() Stats {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.stats
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watcher error", zap.Error(err))
			fw.mu.Lock()
			fw.stats.Errors++
			fw.mu.Unlock()
		case <-ticker.C:
			fw.fireIfSettled(ctx)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != fw.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	fw.logger.Debug("file event", zap.String("path", event.Name), zap.Stringer("op", event.Op))

	now := time.Now()
	fw.mu.Lock()
	fw.pending = now
	fw.stats.Events++
	fw.stats.LastEvent = now
	fw.mu.Unlock()
}

// fireIfSettled runs the handler once the last event is older than the
// debounce window.
func (fw *FileWatcher) fireIfSettled(ctx context.Context) {
	fw.mu.Lock()
	if fw.pending.IsZero() || time.Since(fw.pending) < fw.debounce {
		fw.mu.Unlock()
		return
	}
	fw.pending = time.Time{}
	fw.stats.Triggered++
	fw.mu.Unlock()

	if err := fw.onChange(ctx); err != nil {
		fw.logger.Error("change handler failed", zap.String("path", fw.path), zap.Error(err))
		fw.mu.Lock()
		fw.stats.Errors++
		fw.mu.Unlock()
	}
}
