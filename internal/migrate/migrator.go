package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
)

// Outcome summarizes what a migration run did to the file.
type Outcome int

const (
	// OutcomeSkipped means the descriptor does not exist.
	OutcomeSkipped Outcome = iota
	// OutcomeUnchanged means there was nothing to rewrite.
	OutcomeUnchanged
	// OutcomeDryRun means a rewrite was computed but not written.
	OutcomeDryRun
	// OutcomeWritten means the descriptor was rewritten.
	OutcomeWritten
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeDryRun:
		return "dry-run"
	case OutcomeWritten:
		return "written"
	default:
		return "unknown"
	}
}

// Result contains statistics about a migration run.
type Result struct {
	Path    string
	Outcome Outcome

	// Replaced is the number of legacy records overwritten.
	Replaced int

	// Initialized is set when an empty descriptor received the replacement.
	Initialized bool

	BackupPath string

	// BeforeHash and AfterHash are sha256 of the file content. They are
	// equal whenever nothing was written.
	BeforeHash string
	AfterHash  string
}

// Changed reports whether the run produced different content, written or not.
func (r *Result) Changed() bool {
	return r.Replaced > 0 || r.Initialized
}

// Migrator replaces legacy engine records in the descriptor file.
// It is safe for concurrent use; each run holds the descriptor lock.
type Migrator struct {
	opts   Options
	legacy map[string]struct{}
}

// NewMigrator validates opts and creates a Migrator.
func NewMigrator(opts Options) (*Migrator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	legacy := make(map[string]struct{}, len(opts.LegacyURIs))
	for _, uri := range opts.LegacyURIs {
		legacy[uri] = struct{}{}
	}

	return &Migrator{opts: opts, legacy: legacy}, nil
}

// Path returns the descriptor the migrator rewrites.
func (m *Migrator) Path() string {
	return m.opts.Path
}

// LegacyURIs returns the set of uris treated as legacy.
func (m *Migrator) LegacyURIs() map[string]struct{} {
	return m.legacy
}

func (m *Migrator) isLegacy(uri string) bool {
	_, ok := m.legacy[uri]
	return ok
}

// Migrate runs one read-modify-write cycle on the descriptor.
//
// The file is read and parsed in full before anything is written, so a parse
// failure or a failed write never leaves a truncated descriptor behind.
func (m *Migrator) Migrate(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := m.opts.Path
	result := &Result{Path: path}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m.missing(result)
		}
		return nil, fmt.Errorf("failed to stat descriptor: %w", err)
	}

	lk, err := m.opts.Locker.Acquire(ctx, path, m.opts.Lock)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			m.opts.Logger.Printf("Warning: %v", err)
		}
	}()

	// Stat again under the lock; another writer may have replaced the file.
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m.missing(result)
		}
		return nil, fmt.Errorf("failed to stat descriptor: %w", err)
	}

	data, doc, err := descriptor.Read(path)
	if err != nil {
		if errors.Is(err, descriptor.ErrMalformed) {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
		}
		if errors.Is(err, fs.ErrNotExist) {
			return m.missing(result)
		}
		return nil, err
	}

	result.BeforeHash = descriptor.Hash(data)
	result.AfterHash = result.BeforeHash

	if doc.Empty() {
		if m.opts.EmptyFile == EmptyInitialize {
			if err := doc.Append(m.opts.Replacement); err != nil {
				return nil, err
			}
			result.Initialized = true
		}
	} else {
		n, err := doc.Replace(m.isLegacy, m.opts.Replacement)
		if err != nil {
			return nil, err
		}
		result.Replaced = n
	}

	if !result.Changed() {
		result.Outcome = OutcomeUnchanged
		return result, nil
	}

	out, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	result.AfterHash = descriptor.Hash(out)

	if bytes.Equal(out, data) {
		result.Outcome = OutcomeUnchanged
		return result, nil
	}

	if m.opts.DryRun {
		result.Outcome = OutcomeDryRun
		return result, nil
	}

	m.journal(ctx, result)

	if m.opts.Backup {
		backupPath, err := descriptor.Backup(path, data, m.opts.Now())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWrite, err)
		}
		result.BackupPath = backupPath
	}

	if err := descriptor.WriteAtomic(path, out, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}

	result.Outcome = OutcomeWritten
	m.opts.Logger.Printf("Rewrote %s: %d legacy record(s) replaced, initialized=%v",
		path, result.Replaced, result.Initialized)
	return result, nil
}

func (m *Migrator) missing(result *Result) (*Result, error) {
	if m.opts.MissingFile == MissingError {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, result.Path)
	}
	m.opts.Logger.Printf("Descriptor %s not found, nothing to migrate", result.Path)
	result.Outcome = OutcomeSkipped
	return result, nil
}

func (m *Migrator) journal(ctx context.Context, result *Result) {
	if m.opts.Journal == nil {
		return
	}
	detail := fmt.Sprintf("replaced=%d initialized=%v", result.Replaced, result.Initialized)
	if err := m.opts.Journal.RecordTransition(ctx, Unmigrated.String(), Migrating.String(), detail); err != nil {
		m.opts.Logger.Printf("Warning: failed to journal migration: %v", err)
	}
}
