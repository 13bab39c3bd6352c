package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
)

// Verifier checks whether the descriptor already points at the new engine.
type Verifier struct {
	path   string
	target string
}

// NewVerifier creates a Verifier looking for targetURI in the descriptor at path.
func NewVerifier(path, targetURI string) *Verifier {
	return &Verifier{path: path, target: targetURI}
}

// Target returns the uri the verifier looks for.
func (v *Verifier) Target() string {
	return v.target
}

// Verify reports whether any record's uri equals the target. A missing or
// unreadable descriptor counts as not migrated.
func (v *Verifier) Verify(ctx context.Context) bool {
	ok, _ := v.Check(ctx)
	return ok
}

// Check is Verify with the reason for a false result.
func (v *Verifier) Check(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, doc, err := descriptor.Read(v.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrMissingFile, v.path)
		}
		if errors.Is(err, descriptor.ErrMalformed) {
			return false, fmt.Errorf("%w: %s: %w", ErrParse, v.path, err)
		}
		return false, err
	}

	return doc.Contains(v.target), nil
}
