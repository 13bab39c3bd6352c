package migrate

import (
	"context"
	"errors"

	"github.com/maithemewp/mai-engine-installer/internal/lock"
)

// Errors returned by the migrator, verifier and the installer pipeline.
//
// They can be checked with errors.Is():
//
//	if errors.Is(err, migrate.ErrParse) {
//	    // descriptor left untouched, try again on the next trigger
//	}
var (
	// ErrParse is returned when the descriptor content is not valid JSON
	// or not a list of records. The file is never modified in that case.
	ErrParse = errors.New("descriptor could not be parsed")

	// ErrMissingFile is returned when the descriptor does not exist and the
	// missing-file policy is "error".
	ErrMissingFile = errors.New("descriptor file not found")

	// ErrWrite is returned when the updated descriptor could not be persisted.
	// The original file is left in place.
	ErrWrite = errors.New("failed to persist descriptor")

	// ErrPermissionDenied is returned when the caller is not allowed to
	// change component state.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidOptions is returned by constructors given unusable options.
	ErrInvalidOptions = errors.New("invalid migration options")
)

// IsRecoverable returns true if the next lifecycle trigger may succeed
// without intervention. Each run is idempotent, so retrying is always safe.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrParse) || errors.Is(err, ErrMissingFile) {
		return true
	}

	if errors.Is(err, ErrWrite) || errors.Is(err, lock.ErrTimeout) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// IsFatal returns true if retrying cannot help until configuration or
// permissions change.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrInvalidOptions)
}
