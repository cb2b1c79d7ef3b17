package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeFormat is fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// Registration is a local path handed over for deletion.
type Registration struct {
	ID           int64
	Path         string
	ObservedAt   time.Time
	RegisteredAt time.Time
	CleanedAt    *time.Time
	Error        string
}

// CleanupStore persists cleanup registrations.
type CleanupStore struct {
	db *DB
}

// NewCleanupStore creates a new CleanupStore with the given database connection.
func NewCleanupStore(db *DB) *CleanupStore {
	return &CleanupStore{db: db}
}

// Register records path for deletion. Registering a path again refreshes its
// observation time and makes it pending again.
func (s *CleanupStore) Register(ctx context.Context, path string, observedAt time.Time) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO cleanup_registrations (path, observed_at, registered_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			observed_at = excluded.observed_at,
			registered_at = excluded.registered_at,
			cleaned_at = NULL,
			error = ''
	`, path, formatTime(observedAt), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", path, err)
	}
	return nil
}

// Due returns pending registrations observed at or before cutoff, oldest first.
func (s *CleanupStore) Due(ctx context.Context, cutoff time.Time, limit int) ([]Registration, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, path, observed_at, registered_at, cleaned_at, error
		FROM cleanup_registrations
		WHERE cleaned_at IS NULL AND observed_at <= ?
		ORDER BY observed_at ASC
		LIMIT ?
	`, formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due registrations: %w", err)
	}
	defer rows.Close()

	return scanRegistrations(rows)
}

// All returns every registration, newest first.
func (s *CleanupStore) All(ctx context.Context) ([]Registration, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, path, observed_at, registered_at, cleaned_at, error
		FROM cleanup_registrations
		ORDER BY observed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	return scanRegistrations(rows)
}

// MarkCleaned records that the registration was deleted at the given time.
func (s *CleanupStore) MarkCleaned(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE cleanup_registrations SET cleaned_at = ?, error = '' WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark registration %d cleaned: %w", id, err)
	}
	return nil
}

// MarkFailed records a deletion error. The registration stays pending.
func (s *CleanupStore) MarkFailed(ctx context.Context, id int64, cause string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE cleanup_registrations SET error = ? WHERE id = ?`, cause, id)
	if err != nil {
		return fmt.Errorf("failed to record error for registration %d: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of registrations not yet cleaned.
func (s *CleanupStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cleanup_registrations WHERE cleaned_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending registrations: %w", err)
	}
	return n, nil
}

func scanRegistrations(rows *sql.Rows) ([]Registration, error) {
	var out []Registration
	for rows.Next() {
		var (
			r                    Registration
			observed, registered string
			cleaned              sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Path, &observed, &registered, &cleaned, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}

		var err error
		if r.ObservedAt, err = parseTime(observed); err != nil {
			return nil, fmt.Errorf("failed to parse observed_at: %w", err)
		}
		if r.RegisteredAt, err = parseTime(registered); err != nil {
			return nil, fmt.Errorf("failed to parse registered_at: %w", err)
		}
		if cleaned.Valid {
			t, err := parseTime(cleaned.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse cleaned_at: %w", err)
			}
			r.CleanedAt = &t
		}

		out = append(out, r)
	}
	return out, rows.Err()
}
