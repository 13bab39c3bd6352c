package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wp-dependencies.json")
	w, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: path, Op: fsnotify.Write}, true},
		{"create by rename", fsnotify.Event{Name: path, Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: path, Op: fsnotify.Remove}, true},
		{"chmod", fsnotify.Event{Name: path, Op: fsnotify.Chmod}, false},
		{"sibling", fsnotify.Event{Name: filepath.Join(dir, "other.json"), Op: fsnotify.Write}, false},
		{"temp file", fsnotify.Event{Name: filepath.Join(dir, ".wp-dependencies.json.tmp123"), Op: fsnotify.Create}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.relevant(tt.event); got != tt.want {
				t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestRun_StopsWhenDoneAtStart(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "wp-dependencies.json"), nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	calls := 0
	err = w.Run(context.Background(), func(ctx context.Context, r Reason) (bool, error) {
		calls++
		if r != ReasonStart {
			t.Errorf("reason = %v, want start", r)
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestRun_ChangeTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wp-dependencies.json")
	w, err := New(path, &Config{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	started := make(chan struct{})
	var (
		mu      sync.Mutex
		reasons []Reason
	)

	go func() {
		<-started
		// Give the watcher a moment to register the directory.
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(path, []byte(`[]`), 0644)
	}()

	err = w.Run(ctx, func(ctx context.Context, r Reason) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, r)
		if r == ReasonStart {
			close(started)
			return false, errors.New("not migrated yet")
		}
		return r == ReasonChange, nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) < 2 || reasons[len(reasons)-1] != ReasonChange {
		t.Errorf("reasons = %v, want start then change", reasons)
	}
}

func TestRun_IntervalTriggersCallback(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "wp-dependencies.json"), &Config{Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ticks := 0
	err = w.Run(ctx, func(ctx context.Context, r Reason) (bool, error) {
		if r == ReasonInterval {
			ticks++
		}
		return ticks >= 3, nil
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
}

func TestRun_Cancelled(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "wp-dependencies.json"), &Config{Interval: 0})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = w.Run(ctx, func(ctx context.Context, r Reason) (bool, error) { return false, nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", "wp-dependencies.json"), nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	err = w.Run(context.Background(), func(ctx context.Context, r Reason) (bool, error) { return false, nil })
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestNew_EmptyPath(t *testing.T) {
	if _, err := New("", nil); err == nil {
		t.Error("expected error for empty path")
	}
}
