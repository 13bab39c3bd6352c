package descriptor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultRelPath is where a Mai child theme keeps its descriptor, relative to
// the stylesheet directory.
const DefaultRelPath = "includes/dependencies/wp-dependencies.json"

// Read loads and parses the descriptor at path. The raw bytes are returned
// alongside the document so callers can detect no-op rewrites.
// A missing file is reported with an error satisfying errors.Is(err, fs.ErrNotExist).
func Read(path string) ([]byte, *Document, error) {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return data, nil, err
	}
	return data, doc, nil
}

// WriteAtomic replaces path with data so readers see either the old or the
// new content, never a partial write.
//
// Example:
//
//	if err := descriptor.WriteAtomic(path, out, 0644); err != nil {
//	    return err
//	}
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	// Write to temp file in the same directory
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	// Sync before rename
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// Apply the requested mode
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions on temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Backup copies data next to path as <path>.backup.<timestamp> and returns
// the backup location.
func Backup(path string, data []byte, now time.Time) (string, error) {
	backupPath := path + ".backup." + now.Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// Hash returns the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
