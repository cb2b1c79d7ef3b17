package sqlite

import "fmt"

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

// migrations[i] upgrades a database from version i to i+1.
var migrations = []string{
	`
	-- Downloaded log directories awaiting deletion
	CREATE TABLE IF NOT EXISTS cleanup_registrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		observed_at TEXT NOT NULL,
		registered_at TEXT NOT NULL,
		cleaned_at TEXT,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_cleanup_pending ON cleanup_registrations(cleaned_at, observed_at);

	-- One row per executed query
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		remote_path TEXT NOT NULL,
		keywords TEXT NOT NULL,
		logic TEXT NOT NULL,
		method_used TEXT NOT NULL,
		files_searched INTEGER NOT NULL DEFAULT 0,
		total_matches INTEGER NOT NULL DEFAULT 0,
		truncated INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		queried_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_query_history_queried_at ON query_history(queried_at DESC);
	`,
}

// migrate brings the schema up to schemaVersion, one transaction per step.
func (db *DB) migrate() error {
	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("%w: version %d, expected at most %d", ErrSchemaTooNew, version, schemaVersion)
	}

	for v := version; v < schemaVersion; v++ {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
