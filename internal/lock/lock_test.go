package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp-dependencies.json")
	l := NewLocker()

	lk, err := l.Acquire(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if lk.Path() != path {
		t.Errorf("Path() = %s, want %s", lk.Path(), path)
	}
	if err := lk.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	// Second release is a no-op.
	if err := lk.Release(); err != nil {
		t.Errorf("second Release() returned %v", err)
	}

	lk2, err := l.Acquire(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("re-Acquire() failed: %v", err)
	}
	_ = lk2.Release()
}

func TestAcquire_TimesOutWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp-dependencies.json")
	l := NewLocker()

	held, err := l.Acquire(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer held.Release()

	_, err = l.Acquire(context.Background(), path, Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire() error = %v, want ErrTimeout", err)
	}
}

func TestAcquire_SeparateLockersExcludeViaOSLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp-dependencies.json")

	held, err := NewLocker().Acquire(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	_, err = NewLocker().Acquire(context.Background(), path, Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire() from second locker error = %v, want ErrTimeout", err)
	}

	if err := held.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	lk, err := NewLocker().Acquire(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("Acquire() after release failed: %v", err)
	}
	_ = lk.Release()
}

func TestAcquire_Cancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp-dependencies.json")
	l := NewLocker()

	held, err := l.Acquire(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Acquire(ctx, path, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestAcquire_MutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp-dependencies.json")
	l := NewLocker()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk, err := l.Acquire(context.Background(), path, DefaultOptions())
			if err != nil {
				t.Errorf("Acquire() failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lk.Release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestAcquire_SidecarKeptOutOfDescriptorDir(t *testing.T) {
	siteDir := t.TempDir()
	path := filepath.Join(siteDir, "wp-dependencies.json")
	lockDir := filepath.Join(t.TempDir(), ".mei", "locks")

	opts := DefaultOptions()
	opts.Dir = lockDir

	lk, err := NewLocker().Acquire(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if filepath.Dir(lk.Sidecar()) != lockDir {
		t.Errorf("Sidecar() = %s, want a file in %s", lk.Sidecar(), lockDir)
	}
	if err := lk.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	entries, err := os.ReadDir(siteDir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("descriptor directory holds %d entries, want none", len(entries))
	}
}

func TestSidecarPath(t *testing.T) {
	dir := t.TempDir()

	a, err := SidecarPath(dir, filepath.Join(dir, "site", "wp-dependencies.json"))
	if err != nil {
		t.Fatalf("SidecarPath() failed: %v", err)
	}
	again, _ := SidecarPath(dir, filepath.Join(dir, "site", ".", "wp-dependencies.json"))
	if a != again {
		t.Errorf("equivalent paths map to %s and %s", a, again)
	}
	other, _ := SidecarPath(dir, filepath.Join(dir, "other", "wp-dependencies.json"))
	if a == other {
		t.Error("different descriptors share a sidecar")
	}
	if filepath.Ext(a) != Suffix {
		t.Errorf("sidecar %s lacks %s suffix", a, Suffix)
	}

	def, _ := SidecarPath("", filepath.Join(dir, "wp-dependencies.json"))
	if filepath.Dir(def) != filepath.Clean(os.TempDir()) {
		t.Errorf("default sidecar %s not in %s", def, os.TempDir())
	}
}
