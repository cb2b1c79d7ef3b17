// Package sqlite provides SQLite storage for cleanup registrations and
// query history.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSchemaTooNew is returned when the database was written by a newer
// faultscope.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// DB is the local state database shared by the cleanup and history stores.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the state database at path and migrates its schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL lets the cleanup sweep run while a query registers paths.
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; a second connection only buys SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema in %s: %w", path, err)
	}

	return db, nil
}

func dsn(path string) string {
	return "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
