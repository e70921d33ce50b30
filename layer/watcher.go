package layer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
)

// DefaultDebounce coalesces the burst of events one save produces.
const DefaultDebounce = 500 * time.Millisecond

var backupFile = regexp.MustCompile(`\.back[0-9]+$`)

// ReloadFunc is called after watched files change. changed lists the
// files seen since the previous reload, sorted.
type ReloadFunc func(changed []string) error

// Watcher watches configuration files and plugin directories and triggers
// reload callbacks after changes settle.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool // watched files, by cleaned path
	dirs     map[string]bool // watched directories whose every file counts
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	callbacks []ReloadFunc
	pending   map[string]bool
	timer     *time.Timer
	ownWrites map[string]time.Time
	stopped   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(l *zap.SugaredLogger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher. Files are watched through their parent
// directory so editors that replace files on save are seen.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	w := &Watcher{
		watcher:   fw,
		files:     make(map[string]bool),
		dirs:      make(map[string]bool),
		debounce:  DefaultDebounce,
		logger:    logger.ComponentLogger("watcher"),
		pending:   make(map[string]bool),
		ownWrites: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// AddFile watches a single file, which need not exist yet.
func (w *Watcher) AddFile(path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	if err := w.watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", path)
	}
	w.mu.Lock()
	w.files[path] = true
	w.mu.Unlock()
	return nil
}

// AddDir watches every file below dir.
func (w *Watcher) AddDir(dir string) error {
	dir = filepath.Clean(dir)
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		w.mu.Lock()
		w.dirs[path] = true
		w.mu.Unlock()
		return nil
	})
}

// OnReload registers a callback.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// MarkOwnWrite suppresses events for path during the next debounce period,
// so a Store write does not trigger a reload of its own output.
func (w *Watcher) MarkOwnWrite(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ownWrites[filepath.Clean(path)] = time.Now().Add(w.debounce)
}

func (w *Watcher) isOwnWrite(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	until, ok := w.ownWrites[path]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(w.ownWrites, path)
		return false
	}
	return true
}

func (w *Watcher) relevant(path string) bool {
	if backupFile.MatchString(path) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path] || w.dirs[filepath.Dir(path)]
}

// Run processes events until ctx is done or the watcher is stopped.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Watcher error", logger.FieldError, err)
		}
	}
}

// Start runs the event loop in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	go w.Run(ctx)
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(event.Name)
	if !w.relevant(path) {
		return
	}
	if w.isOwnWrite(path) {
		w.logger.Debugw("Watcher ignoring own write", logger.FieldFile, path)
		return
	}
	w.logger.Infow("Watcher detected change",
		logger.FieldFile, path,
		logger.FieldOperation, event.Op.String())
	w.schedule(path)
}

// schedule debounces rapid changes into one reload.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]bool)
	callbacks := append([]ReloadFunc(nil), w.callbacks...)
	stopped := w.stopped
	w.mu.Unlock()

	if stopped || len(changed) == 0 {
		return
	}
	sort.Strings(changed)
	for _, fn := range callbacks {
		if err := fn(changed); err != nil {
			w.logger.Warnw("Reload callback failed", logger.FieldError, err)
		}
	}
}

// Stop ends watching. Pending reloads are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
