package tls

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the quiet period after the last file event before
// a refresh is triggered.
const DefaultWatchDebounce = 500 * time.Millisecond

// CredentialWatcher refreshes the TLS context shortly after one of the
// credential files changes. It complements, and does not replace, the
// fixed-delay refresh.
//
// Parent directories are watched rather than the files themselves so that
// replacements by rename (as done by most certificate tooling) are seen.
type CredentialWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce *Debouncer
	files    map[string]struct{}
	dirs     map[string]struct{}
	refresh  func(context.Context) error
	doneCh   chan struct{}
}

// NewCredentialWatcher watches files and calls refresh after changes settle.
// A zero debounce uses DefaultWatchDebounce.
func NewCredentialWatcher(files []string, debounce time.Duration, refresh func(context.Context) error, logger *slog.Logger) (*CredentialWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no credential files to watch")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	cw := &CredentialWatcher{
		watcher:  watcher,
		logger:   logger.With("component", "tls.watcher"),
		debounce: NewDebouncer(debounce),
		files:    make(map[string]struct{}, len(files)),
		dirs:     make(map[string]struct{}),
		refresh:  refresh,
		doneCh:   make(chan struct{}),
	}

	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to resolve %q: %w", f, err)
		}
		cw.files[abs] = struct{}{}
		cw.dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range cw.dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
	}

	return cw, nil
}

// WatchManager builds a CredentialWatcher for the files referenced by the
// manager's current context.
func WatchManager(m *Manager, debounce time.Duration, logger *slog.Logger) (*CredentialWatcher, error) {
	cur := m.Current()
	if cur == nil {
		return nil, ErrTLSNotInitialized
	}
	return NewCredentialWatcher(cur.Snapshot().files(), debounce, m.Refresh, logger)
}

// Run processes file events until ctx is cancelled or Close is called.
func (cw *CredentialWatcher) Run(ctx context.Context) error {
	defer close(cw.doneCh)

	cw.logger.Info("credential watcher started", "files", len(cw.files))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if !cw.shouldProcessEvent(event) {
				continue
			}

			cw.logger.Debug("credential file event", "path", event.Name, "op", event.Op.String())

			cw.debounce.Trigger(func() {
				cw.logger.Info("credential files changed, refreshing tls context")
				// Manager.Refresh logs its own failures.
				_ = cw.refresh(ctx)
			})

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Error("credential watcher error", "error", err)
		}
	}
}

// Close stops the watcher and cancels any pending refresh.
func (cw *CredentialWatcher) Close() error {
	cw.debounce.Stop()
	return cw.watcher.Close()
}

// Done is closed when Run returns.
func (cw *CredentialWatcher) Done() <-chan struct{} {
	return cw.doneCh
}

func (cw *CredentialWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if _, ok := cw.files[abs]; ok {
		return true
	}
	// Mounted secrets and config maps swap a "..data" symlink to a new
	// timestamped directory; the credential paths themselves never change.
	if strings.HasPrefix(filepath.Base(abs), "..") {
		_, ok := cw.dirs[filepath.Dir(abs)]
		return ok
	}
	return false
}

// Debouncer collects rapid events and runs the latest callback only after a
// quiet period.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback to run after the interval, replacing any
// pending callback.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.callback = nil
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
