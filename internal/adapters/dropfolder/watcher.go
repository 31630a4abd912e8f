// Package dropfolder watches a directory for new redline markup files.
package dropfolder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettle = time.Second

// Handler receives the path of a file that has stopped changing.
type Handler func(ctx context.Context, path string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithSettle sets how long a file must be quiet before it is handled.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithExtensions limits the watcher to files with the given extensions.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.exts[ext] = true
		}
	}
}

// Watcher hands each new file in a directory to a Handler, one file at a time.
// A file is handled at most once per Watch.
type Watcher struct {
	dir    string
	settle time.Duration
	exts   map[string]bool
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates a watcher for dir.
func New(dir string, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("drop folder path cannot be empty")
	}
	w := &Watcher{
		dir:    dir,
		settle: defaultSettle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts watching and returns once the directory is registered.
// Events are processed until ctx is done or Close is called.
func (w *Watcher) Watch(ctx context.Context, handle Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	w.logger.Info("watching drop folder", slog.String("dir", w.dir))

	go func() {
		defer close(done)
		defer watcher.Close()
		w.loop(ctx, watcher, handle)
	}()
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher, handle Handler) {
	ready := make(chan string)
	timers := make(map[string]*time.Timer)
	handled := make(map[string]bool)
	stop := make(chan struct{})
	defer func() {
		close(stop)
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("drop folder watch stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := event.Name
			if handled[name] || !w.accepts(name) {
				continue
			}
			// Restart the quiet period while the file is still being written
			if t, ok := timers[name]; ok {
				t.Reset(w.settle)
				continue
			}
			timers[name] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- name:
				case <-stop:
				}
			})

		case name := <-ready:
			delete(timers, name)
			if handled[name] {
				continue
			}
			handled[name] = true
			w.logger.Info("drop folder file ready", slog.String("path", name))
			if err := handle(ctx, name); err != nil {
				w.logger.Error("failed to handle drop folder file",
					slog.String("path", name),
					slog.String("error", err.Error()))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("drop folder watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(w.exts) > 0 && !w.exts[strings.ToLower(filepath.Ext(base))] {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Done is closed when the watch loop exits.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Close stops watching the directory.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return w.watcher.Close()
	}

	return nil
}
