// Package history keeps a SQLite ledger of export runs under the export root.
// It is informational only: exports never read it to skip or resume work.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the ledger file created inside the export root.
const FileName = ".ytexport-history.db"

// PathFor returns the ledger path for an export root.
func PathFor(exportRoot string) string {
	return filepath.Join(exportRoot, FileName)
}

// Open opens or creates the ledger at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		//nolint:gosec // G301: export output is meant to be readable
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := initialize(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Store reads and writes runs.
type Store struct {
	db *sql.DB
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
