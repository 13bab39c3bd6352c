// Package migrate rewrites legacy engine records in a dependency descriptor
// and verifies that the rewrite landed.
package migrate

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
	"github.com/maithemewp/mai-engine-installer/internal/lock"
)

// MissingFilePolicy decides what happens when the descriptor is absent.
type MissingFilePolicy string

const (
	// MissingSkip treats an absent descriptor as nothing to migrate.
	MissingSkip MissingFilePolicy = "skip"
	// MissingError reports ErrMissingFile.
	MissingError MissingFilePolicy = "error"
)

// EmptyFilePolicy decides what happens when the descriptor holds no records.
type EmptyFilePolicy string

const (
	// EmptyInitialize writes the replacement record as the only entry.
	EmptyInitialize EmptyFilePolicy = "initialize"
	// EmptyLeave leaves an empty descriptor alone.
	EmptyLeave EmptyFilePolicy = "leave"
)

// Known engine identities.
const (
	LegacyURIMaiProWP   = "maiprowp/mai-pro-engine"
	LegacyURIBizBudding = "bizbudding/mai-pro-engine"
	TargetURI           = "maithemewp/mai-theme-engine"
)

// DefaultLegacyURIs returns the uris the old engine was published under.
func DefaultLegacyURIs() []string {
	return []string{LegacyURIMaiProWP, LegacyURIBizBudding}
}

// DefaultReplacement returns the Mai Theme Engine record.
func DefaultReplacement() descriptor.Record {
	return descriptor.Record{
		Name:     "Mai Theme Engine",
		Host:     descriptor.HostGitHub,
		Slug:     "mai-theme-engine/mai-theme-engine.php",
		URI:      TargetURI,
		Branch:   "master",
		Optional: false,
		Token:    nil,
	}
}

// ParseMissingFilePolicy validates a configured policy name.
func ParseMissingFilePolicy(s string) (MissingFilePolicy, error) {
	switch p := MissingFilePolicy(s); p {
	case MissingSkip, MissingError:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown missing-file policy %q", ErrInvalidOptions, s)
	}
}

// ParseEmptyFilePolicy validates a configured policy name.
func ParseEmptyFilePolicy(s string) (EmptyFilePolicy, error) {
	switch p := EmptyFilePolicy(s); p {
	case EmptyInitialize, EmptyLeave:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown empty-file policy %q", ErrInvalidOptions, s)
	}
}

// Journal records state machine transitions. It is optional.
type Journal interface {
	RecordTransition(ctx context.Context, from, to, detail string) error
}

// Options configures a Migrator.
type Options struct {
	// Path is the descriptor file.
	Path string

	// Replacement is written in place of every legacy record.
	Replacement descriptor.Record

	// LegacyURIs are matched exactly against each record's uri.
	LegacyURIs []string

	MissingFile MissingFilePolicy
	EmptyFile   EmptyFilePolicy

	// DryRun computes the result without writing.
	DryRun bool

	// Backup copies the original next to the descriptor before rewriting it.
	Backup bool

	// Lock configures how long to wait for concurrent migrations.
	Lock lock.Options

	// Locker is shared between migrators in one process. Nil creates one.
	Locker *lock.Locker

	// Journal receives Unmigrated -> Migrating before each write.
	Journal Journal

	Logger *log.Logger

	// Now is used for backup names. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the options of the stock installer for path.
func DefaultOptions(path string) Options {
	return Options{
		Path:        path,
		Replacement: DefaultReplacement(),
		LegacyURIs:  DefaultLegacyURIs(),
		MissingFile: MissingSkip,
		EmptyFile:   EmptyInitialize,
		Lock:        lock.DefaultOptions(),
	}
}

func (o *Options) validate() error {
	if o.Path == "" {
		return fmt.Errorf("%w: descriptor path is required", ErrInvalidOptions)
	}
	if err := o.Replacement.Validate(); err != nil {
		return fmt.Errorf("%w: replacement record: %v", ErrInvalidOptions, err)
	}
	if len(o.LegacyURIs) == 0 {
		return fmt.Errorf("%w: at least one legacy uri is required", ErrInvalidOptions)
	}
	for _, uri := range o.LegacyURIs {
		if uri == o.Replacement.URI {
			return fmt.Errorf("%w: replacement uri %s is also listed as legacy", ErrInvalidOptions, uri)
		}
	}

	switch o.MissingFile {
	case "":
		o.MissingFile = MissingSkip
	case MissingSkip, MissingError:
	default:
		return fmt.Errorf("%w: unknown missing-file policy %q", ErrInvalidOptions, o.MissingFile)
	}

	switch o.EmptyFile {
	case "":
		o.EmptyFile = EmptyInitialize
	case EmptyInitialize, EmptyLeave:
	default:
		return fmt.Errorf("%w: unknown empty-file policy %q", ErrInvalidOptions, o.EmptyFile)
	}

	if o.Lock == (lock.Options{}) {
		o.Lock = lock.DefaultOptions()
	}
	if o.Locker == nil {
		o.Locker = lock.NewLocker()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}
