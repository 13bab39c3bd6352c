// Package watch re-runs a callback whenever the dependency descriptor changes
// and on a fixed interval, until the callback reports it is done.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reason says why the callback was invoked.
type Reason int

const (
	// ReasonStart is the initial invocation.
	ReasonStart Reason = iota
	// ReasonChange follows a debounced burst of descriptor events.
	ReasonChange
	// ReasonInterval is a periodic tick.
	ReasonInterval
)

// String returns a human-readable representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonStart:
		return "start"
	case ReasonChange:
		return "change"
	case ReasonInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// Config holds configuration for the watcher.
type Config struct {
	// Debounce is how long the descriptor must be quiet before the callback runs.
	Debounce time.Duration

	// Interval triggers the callback periodically. Zero disables it.
	Interval time.Duration

	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 250 * time.Millisecond,
		Interval: 30 * time.Second,
		Logger:   log.New(io.Discard, "", 0),
	}
}

// Func is invoked on every trigger. Returning done stops the watcher.
// Errors are logged and do not stop it.
type Func func(ctx context.Context, reason Reason) (done bool, err error)

// Watcher watches a single file.
type Watcher struct {
	path   string
	config *Config
}

// New creates a watcher for the file at path. The file itself need not exist,
// but its directory must.
func New(path string, config *Config) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	return &Watcher{path: abs, config: config}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run invokes fn once, then again after each debounced change and interval
// tick. It blocks until fn reports done (nil) or ctx is cancelled (ctx.Err()).
func (w *Watcher) Run(ctx context.Context, fn Func) error {
	if w.invoke(ctx, fn, ReasonStart) {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	// The descriptor is replaced by rename, so watch its directory.
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	w.config.Logger.Printf("Watching %s", w.path)

	var tick <-chan time.Time
	if w.config.Interval > 0 {
		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			pending = time.After(w.config.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.config.Logger.Printf("Watcher error: %v", err)

		case <-pending:
			pending = nil
			if w.invoke(ctx, fn, ReasonChange) {
				return nil
			}

		case <-tick:
			if w.invoke(ctx, fn, ReasonInterval) {
				return nil
			}
		}
	}
}

func (w *Watcher) invoke(ctx context.Context, fn Func, reason Reason) bool {
	done, err := fn(ctx, reason)
	if err != nil {
		w.config.Logger.Printf("Error on %s trigger: %v", reason, err)
	}
	return done
}

// relevant reports whether event touches the watched file. Chmod is ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return abs == w.path
}
