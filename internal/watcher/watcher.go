// Package watcher reports changes to a set of files, coalescing bursts of
// writes into one notification.
package watcher

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/svcreg/internal/log"
)

// DefaultDebounce is how long writes must be quiet before a Change is sent.
const DefaultDebounce = 250 * time.Millisecond

// Config holds watcher configuration options.
type Config struct {
	// Paths are the files to watch. Their directories must exist.
	Paths    []string
	Debounce time.Duration
}

// DefaultConfig watches paths with DefaultDebounce.
func DefaultConfig(paths ...string) Config {
	return Config{Paths: paths, Debounce: DefaultDebounce}
}

// Change describes one settled burst of filesystem events.
type Change struct {
	// Paths lists the watched files that changed, sorted.
	Paths []string
	// Events counts the raw events folded into this change.
	Events int
}

// Has reports whether path is among the changed files.
func (c Change) Has(path string) bool {
	return slices.Contains(c.Paths, filepath.Clean(path))
}

// Watcher monitors files and signals after they settle.
type Watcher struct {
	fsw      *fsnotify.Watcher
	paths    map[string]struct{}
	debounce time.Duration
	changes  chan Change

	mu      sync.Mutex
	pending *Change
	timer   *time.Timer

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	paths := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		paths[filepath.Clean(p)] = struct{}{}
	}

	return &Watcher{
		fsw:      fsw,
		paths:    paths,
		debounce: debounce,
		changes:  make(chan Change, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Directories are watched rather than files so
// editors that save by renaming a temporary file are still seen.
// A Change is sent once events have been quiet for the debounce duration;
// if the previous Change is still unread the new one is dropped.
func (w *Watcher) Start() (<-chan Change, error) {
	dirs := make(map[string]struct{})
	for p := range w.paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}

	go w.loop()

	log.Debug(log.CatWatcher, "watching files", "paths", len(w.paths), "debounce", w.debounce)
	return w.changes, nil
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if path, relevant := w.relevant(event); relevant {
				w.note(path)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

// note folds an event into the pending change and restarts the debounce.
func (w *Watcher) note(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		w.pending = &Change{}
	}
	if !slices.Contains(w.pending.Paths, path) {
		w.pending.Paths = append(w.pending.Paths, path)
		slices.Sort(w.pending.Paths)
	}
	w.pending.Events++

	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	change := w.pending
	w.pending = nil
	w.mu.Unlock()

	if change == nil {
		return
	}
	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.changes <- *change:
		log.Debug(log.CatWatcher, "files changed", "paths", change.Paths, "events", change.Events)
	default:
	}
}

func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	path := filepath.Clean(event.Name)
	_, ok := w.paths[path]
	return path, ok
}
