// Package store implements the coordinator's single embedded relational
// store: one schema, one *sql.DB handle, shared by every component that
// needs durable state (sessions, agents, outcomes, baselines, locks, trust,
// evolution weights, the 4Ds audit trail, notifications).
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store wraps the coordinator's shared SQLite database connection.
type Store struct {
	db       *sql.DB
	dataDir  string
	dbPath   string
	logsPath string
}

// Open creates (if needed) the data directory layout under dataDir and
// returns a Store with the schema applied. dataDir/data/coordinator.db
// holds the database; dataDir/logs is created as a sibling directory.
func Open(dataDir string) (*Store, error) {
	dataPath := filepath.Join(dataDir, "data")
	logsPath := filepath.Join(dataDir, "logs")

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(logsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "coordinator.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, dataDir: dataDir, dbPath: dbPath, logsPath: logsPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	return s, nil
}

// OpenMemory opens an in-memory store, primarily for tests. The schema is
// applied the same way as a file-backed store.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate in-memory store: %w", err)
	}

	return s, nil
}

// DB returns the underlying connection, for components (like events.SQLiteStore)
// that need to share the same handle rather than open their own.
func (s *Store) DB() *sql.DB {
	return s.db
}

// LogsDir returns the logs directory created alongside the database.
func (s *Store) LogsDir() string {
	return s.logsPath
}

// migrate applies the schema and records the current schema version.
// ensure_tables semantics: every CREATE is IF NOT EXISTS, so this is
// idempotent across repeated opens.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version < currentSchemaVersion {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error and committing
// otherwise. Components that write through DB() directly do not use it.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// nullString converts an empty string to sql.NullString.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullFloat64 converts a pointer to sql.NullFloat64.
func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
