package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 250 * time.Millisecond

// ChangeEvent is a debounced change to a watched file.
type ChangeEvent struct {
	Path string
	Op   string // "create", "write", "remove" or "rename"
}

// Watcher reports changes to a configuration file and its include
// fragments. Directories are watched rather than files so that atomic
// saves (write temp, rename) are seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange func(ChangeEvent)
	onError  func(error)

	mu       sync.Mutex
	files    map[string]struct{}
	patterns []string
	dirs     map[string]struct{}
}

// NewWatcher creates a watcher. A zero debounce selects DefaultDebounce.
func NewWatcher(debounce time.Duration, onChange func(ChangeEvent)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       w,
		debounce: debounce,
		onChange: onChange,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}, nil
}

// OnError sets the handler for errors reported by the file system
// watcher. Errors never stop Run.
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

// WatchFile reports changes to path.
func (w *Watcher) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.files[abs] = struct{}{}
	w.mu.Unlock()
	return w.addDir(filepath.Dir(abs))
}

// WatchConfig watches path and the include patterns of cfg.
func (w *Watcher) WatchConfig(path string, cfg *Config) error {
	if err := w.WatchFile(path); err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}
	base := filepath.Dir(path)
	for _, pattern := range cfg.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(base, pattern)
		}
		if err := w.WatchGlob(pattern); err != nil {
			return err
		}
	}
	return nil
}

// WatchGlob reports changes to files matching pattern in the directories
// that currently exist under the pattern's static prefix.
func (w *Watcher) WatchGlob(pattern string) error {
	abs, err := filepath.Abs(pattern)
	if err != nil {
		return err
	}
	if !doublestar.ValidatePathPattern(abs) {
		return fmt.Errorf("invalid include pattern %q", pattern)
	}
	w.mu.Lock()
	w.patterns = append(w.patterns, abs)
	w.mu.Unlock()

	base, _ := doublestar.SplitPattern(filepath.ToSlash(abs))
	base = filepath.FromSlash(base)
	if !isDir(base) {
		return nil
	}
	if err := w.addDir(base); err != nil {
		return err
	}

	dirs, err := doublestar.FilepathGlob(filepath.Join(base, "**"), doublestar.WithNoFollow())
	if err != nil {
		return fmt.Errorf("expanding include pattern %q: %w", pattern, err)
	}
	for _, d := range dirs {
		if isDir(d) {
			if err := w.addDir(d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = struct{}{}
	return nil
}

func (w *Watcher) relevant(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		return true
	}
	for _, p := range w.patterns {
		if ok, _ := doublestar.PathMatch(p, path); ok {
			return true
		}
	}
	return false
}

// Run delivers debounced events until ctx is done. Watcher errors go to
// the OnError handler and the loop continues. It closes the underlying
// watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var (
		mu   sync.Mutex
		last ChangeEvent
	)
	debouncer := NewDebouncer(w.debounce, func() {
		mu.Lock()
		ev := last
		mu.Unlock()
		if w.onChange != nil {
			w.onChange(ev)
		}
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			op := opName(event.Op)
			if op == "" {
				continue
			}
			if event.Op.Has(fsnotify.Create) && isDir(event.Name) && w.underPattern(event.Name) {
				_ = w.addDir(event.Name)
			}
			if !w.relevant(event.Name) {
				continue
			}
			mu.Lock()
			last = ChangeEvent{Path: event.Name, Op: op}
			mu.Unlock()
			debouncer.Trigger()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			fn := w.onError
			w.mu.Unlock()
			if fn != nil {
				fn(fmt.Errorf("watcher error: %w", err))
			}
		}
	}
}

// underPattern reports whether dir lies below a watched glob's base.
func (w *Watcher) underPattern(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
		rel, err := filepath.Rel(filepath.FromSlash(base), dir)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}

// Debouncer coalesces bursts of triggers into one callback.
type Debouncer struct {
	window   time.Duration
	callback func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer firing callback window after the last
// trigger.
func NewDebouncer(window time.Duration, callback func()) *Debouncer {
	return &Debouncer{window: window, callback: callback}
}

// Trigger restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.callback)
}

// Stop cancels a pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
