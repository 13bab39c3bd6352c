package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesFileAndStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mei", "mei.log")
	var stderr bytes.Buffer

	l, err := New(Config{File: path, MaxSizeMB: 1, Verbose: true, Stderr: &stderr, Prefix: "[mei] "})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	l.Printf("Rewrote %s", "wp-dependencies.json")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "[mei] ") || !strings.Contains(string(data), "Rewrote wp-dependencies.json") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(stderr.String(), "Rewrote wp-dependencies.json") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestNew_Quiet(t *testing.T) {
	var stderr bytes.Buffer
	l, err := New(Config{Stderr: &stderr})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Close()

	l.Printf("hidden")
	if stderr.Len() != 0 {
		t.Errorf("quiet logger wrote %q", stderr.String())
	}
}
