// Package registry is the local component registry the installer consults
// before turning components off.
//
// It keeps one row per component (keyed by its plugin slug, for example
// "mai-pro-engine/mai-pro-engine.php") with its enabled state, a journal of
// migration state transitions, and a small key/value table for pipeline
// bookkeeping.
//
// Storage is an embedded SQLite database (ncruces/go-sqlite3) in WAL mode so
// concurrent CLI invocations can read while one writes.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/mod/semver"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
)

var (
	// ErrComponentNotFound is returned when an id has never been registered.
	ErrComponentNotFound = errors.New("component not found")

	// ErrInvalidVersion is returned for versions that are not semantic versions.
	ErrInvalidVersion = errors.New("invalid component version")
)

// Component is a registered plugin.
type Component struct {
	// ID is the plugin slug, "<dir>/<file>.php".
	ID       string
	Name     string
	URI      string
	Host     string
	Branch   string
	Optional bool

	// Version is stored without the leading "v".
	Version string
	Active  bool

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// ComponentFromRecord builds the component a descriptor record declares.
func ComponentFromRecord(rec descriptor.Record) Component {
	return Component{
		ID:       rec.Slug,
		Name:     rec.Name,
		URI:      rec.URI,
		Host:     rec.Host,
		Branch:   rec.Branch,
		Optional: rec.Optional,
	}
}

// Transition is one journal entry.
type Transition struct {
	ID     int64
	From   string
	To     string
	Detail string
	At     time.Time
}

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the registry at path and initializes its schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := registry.Open(ctx, ".mei/registry.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(ctx context.Context, path string) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	// Open database connection
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping registry: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// Apply pragmas
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.conn.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	// Initialize schema
	if err := db.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}

	db.conn = nil
	return nil
}

// initSchema is idempotent - safe to call multiple times.
func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS components (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		uri TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		optional INTEGER NOT NULL DEFAULT 0,
		version TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 0,
		registered_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_components_active ON components(active);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// normalizeVersion validates v and returns it without the "v" prefix.
func normalizeVersion(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return strings.TrimPrefix(canonical, "v"), nil
}

// newerVersion returns whichever of a and b is the higher version.
// Empty versions lose to anything.
func newerVersion(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case semver.Compare("v"+a, "v"+b) >= 0:
		return a
	default:
		return b
	}
}

// Register declares a component. Registering an existing id refreshes its
// metadata but never changes whether it is active, and never lowers its
// recorded version. New components start with c.Active.
func (db *DB) Register(ctx context.Context, c Component) error {
	if c.ID == "" {
		return fmt.Errorf("component id is required")
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	version, err := normalizeVersion(c.Version)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT version FROM components WHERE id = ?`, c.ID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read component %s: %w", c.ID, err)
	default:
		version = newerVersion(existing, version)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `
	INSERT INTO components (
		id, name, uri, host, branch, optional, version, active, registered_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		uri = excluded.uri,
		host = excluded.host,
		branch = excluded.branch,
		optional = excluded.optional,
		version = excluded.version,
		updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		c.ID, c.Name, c.URI, c.Host, c.Branch, boolToInt(c.Optional),
		version, boolToInt(c.Active), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to register component %s: %w", c.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

// IsActive reports whether id is registered and active. Unknown ids are inactive.
func (db *DB) IsActive(ctx context.Context, id string) (bool, error) {
	var active int
	err := db.conn.QueryRowContext(ctx, `SELECT active FROM components WHERE id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query component %s: %w", id, err)
	}
	return active != 0, nil
}

// Activate enables a registered component.
func (db *DB) Activate(ctx context.Context, id string) error {
	return db.setActive(ctx, id, true)
}

// Deactivate disables a registered component. Deactivating an inactive
// component is a no-op.
func (db *DB) Deactivate(ctx context.Context, id string) error {
	return db.setActive(ctx, id, false)
}

func (db *DB) setActive(ctx context.Context, id string, active bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE components SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update component %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update component %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, id)
	}
	return nil
}

// Get returns a single component.
func (db *DB) Get(ctx context.Context, id string) (*Component, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, name, uri, host, branch, optional, version, active, registered_at, updated_at
	FROM components WHERE id = ?`, id)

	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get component %s: %w", id, err)
	}
	return c, nil
}

// List returns all components ordered by id.
func (db *DB) List(ctx context.Context) ([]*Component, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, name, uri, host, branch, optional, version, active, registered_at, updated_at
	FROM components ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	defer rows.Close()

	var components []*Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating components: %w", err)
	}
	return components, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComponent(s scanner) (*Component, error) {
	var (
		c                     Component
		optional, active      int
		registered, updatedAt string
	)
	err := s.Scan(&c.ID, &c.Name, &c.URI, &c.Host, &c.Branch, &optional,
		&c.Version, &active, &registered, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.Optional = optional != 0
	c.Active = active != 0
	c.RegisteredAt = parseTime(registered)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
