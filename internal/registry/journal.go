package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordTransition appends a state machine transition to the journal.
func (db *DB) RecordTransition(ctx context.Context, from, to, detail string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO transitions (from_state, to_state, detail, created_at) VALUES (?, ?, ?, ?)`,
		from, to, detail, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record transition %s->%s: %w", from, to, err)
	}
	return nil
}

// LastTransition returns the most recent journal entry, or nil if there is none.
func (db *DB) LastTransition(ctx context.Context) (*Transition, error) {
	history, err := db.History(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	return &history[0], nil
}

// History returns up to limit journal entries, newest first. limit <= 0 returns all.
func (db *DB) History(ctx context.Context, limit int) ([]Transition, error) {
	query := `SELECT id, from_state, to_state, detail, created_at FROM transitions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	var history []Transition
	for rows.Next() {
		var (
			tr Transition
			at string
		)
		if err := rows.Scan(&tr.ID, &tr.From, &tr.To, &tr.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.At = parseTime(at)
		history = append(history, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return history, nil
}

// SetMeta stores a bookkeeping value.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GetMeta returns a bookkeeping value and whether it was set.
func (db *DB) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}
