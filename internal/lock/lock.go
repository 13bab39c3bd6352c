// Package lock serializes read-modify-write cycles on a descriptor file.
//
// A Lock combines an in-process mutex keyed by the file's absolute path with
// an advisory OS lock on a sidecar file, so two goroutines, or two processes
// serving concurrent requests, cannot interleave a rewrite. The sidecar is
// used because the descriptor itself is replaced by rename. It lives in
// Options.Dir, named after a hash of the descriptor's absolute path, so
// nothing is left next to the descriptor.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrTimeout is returned when the lock could not be taken before the
// deadline. Callers treat it as a transient failure.
var ErrTimeout = errors.New("timed out waiting for descriptor lock")

// errWouldBlock is returned by tryLock when another holder has the OS lock.
var errWouldBlock = errors.New("lock held by another process")

// Suffix ends every sidecar lock file name.
const Suffix = ".lock"

// Options configures lock acquisition.
type Options struct {
	// Timeout bounds how long Acquire waits. Zero waits until ctx is done.
	Timeout time.Duration

	// RetryDelay is the pause between non-blocking OS lock attempts.
	RetryDelay time.Duration

	// Dir holds the sidecar lock files. Empty means os.TempDir(). Every
	// process sharing a descriptor must use the same Dir.
	Dir string
}

// SidecarPath returns the lock file guarding path within dir.
func SidecarPath(dir, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve lock path: %w", err)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	name := "mei-" + hex.EncodeToString(sum[:8]) + Suffix
	return filepath.Join(dir, name), nil
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:    5 * time.Second,
		RetryDelay: 25 * time.Millisecond,
	}
}

// Locker hands out path-scoped locks. The zero value is not usable; use NewLocker.
type Locker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

// NewLocker creates a Locker.
func NewLocker() *Locker {
	return &Locker{sems: make(map[string]chan struct{})}
}

func (l *Locker) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[key] = sem
	}
	return sem
}

// Lock is a held lock. Release must be called exactly once; extra calls are no-ops.
type Lock struct {
	path    string
	sidecar string
	file    *os.File
	sem     chan struct{}
	release sync.Once
}

// Path returns the path the lock guards.
func (lk *Lock) Path() string {
	return lk.path
}

// Sidecar returns the OS lock file backing the lock.
func (lk *Lock) Sidecar() string {
	return lk.sidecar
}

// Acquire takes the exclusive lock for path, creating Options.Dir if needed.
//
// Example:
//
//	lk, err := locker.Acquire(ctx, "includes/dependencies/wp-dependencies.json", lock.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer lk.Release()
func (l *Locker) Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lock path: %w", err)
	}
	abs = filepath.Clean(abs)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultOptions().RetryDelay
	}

	sidecar, err := SidecarPath(opts.Dir, abs)
	if err != nil {
		return nil, err
	}

	sem := l.semaphore(abs)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, waitError(ctx, abs)
	}

	// Ensure the lock directory exists
	if err := os.MkdirAll(filepath.Dir(sidecar), 0755); err != nil {
		<-sem
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	// #nosec G304 - derived from a configured path
	f, err := os.OpenFile(sidecar, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		<-sem
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	err = retry.Do(
		func() error { return tryLock(f) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errWouldBlock) }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		_ = f.Close()
		<-sem
		if ctx.Err() != nil {
			return nil, waitError(ctx, abs)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", abs, err)
	}

	return &Lock{path: abs, sidecar: sidecar, file: f, sem: sem}, nil
}

// waitError maps a finished context to ErrTimeout, keeping cancellation distinct.
func waitError(ctx context.Context, path string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", ErrTimeout, path)
}

// Release drops the OS lock and the in-process mutex.
func (lk *Lock) Release() error {
	var err error
	lk.release.Do(func() {
		if uerr := unlock(lk.file); uerr != nil {
			err = fmt.Errorf("failed to unlock %s: %w", lk.path, uerr)
		}
		if cerr := lk.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close lock file: %w", cerr)
		}
		<-lk.sem
	})
	return err
}
