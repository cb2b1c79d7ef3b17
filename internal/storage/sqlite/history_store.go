package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// maxHistory is the number of query runs kept.
const maxHistory = 1000

// QueryRun summarizes one executed query.
type QueryRun struct {
	ID            string
	RemotePath    string
	Keywords      []string
	Logic         string
	MethodUsed    string
	FilesSearched int
	TotalMatches  int
	Truncated     bool
	Duration      time.Duration
	QueriedAt     time.Time
}

// HistoryStore provides access to query history.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new history store.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Add records a query run and trims history to the most recent entries.
func (s *HistoryStore) Add(ctx context.Context, run QueryRun) error {
	keywords, err := json.Marshal(run.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO query_history
			(id, remote_path, keywords, logic, method_used, files_searched, total_matches, truncated, duration_ms, queried_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.RemotePath, string(keywords), run.Logic, run.MethodUsed,
		run.FilesSearched, run.TotalMatches, run.Truncated, run.Duration.Milliseconds(), formatTime(run.QueriedAt))
	if err != nil {
		return fmt.Errorf("failed to save query run: %w", err)
	}

	_, _ = s.db.conn.ExecContext(ctx, `
		DELETE FROM query_history
		WHERE id NOT IN (
			SELECT id FROM query_history
			ORDER BY queried_at DESC
			LIMIT ?
		)
	`, maxHistory)

	return nil
}

// Recent returns the most recent query runs, newest first.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]QueryRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, remote_path, keywords, logic, method_used, files_searched, total_matches, truncated, duration_ms, queried_at
		FROM query_history
		ORDER BY queried_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var runs []QueryRun
	for rows.Next() {
		var (
			run        QueryRun
			keywords   string
			durationMs int64
			queriedAt  string
		)
		if err := rows.Scan(&run.ID, &run.RemotePath, &keywords, &run.Logic, &run.MethodUsed,
			&run.FilesSearched, &run.TotalMatches, &run.Truncated, &durationMs, &queriedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query run: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &run.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		if run.QueriedAt, err = parseTime(queriedAt); err != nil {
			return nil, fmt.Errorf("failed to parse queried_at: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
