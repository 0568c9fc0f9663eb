package store

import (
	"database/sql"
	"errors"
	"testing"
)

func TestOpenMemory_AppliesSchema(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"schema_version", "sessions", "agents", "outcomes", "baselines",
		"patterns", "dq_scores", "file_locks", "agent_registry",
		"trust_entries", "evolution_outcomes", "evolution_weights",
		"delegation_events", "notifications",
	}

	for _, table := range tables {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestOpenMemory_SchemaVersionRecorded(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer s.Close()

	var version int
	err = s.DB().QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		t.Fatalf("failed to read schema_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestOpenMemory_IdempotentMigrate(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer s.Close()

	// Running migrate again should not fail or duplicate the schema_version row.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate call failed: %v", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("failed to count schema_version rows: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 schema_version row after repeated migrate, got %d", count)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer s.Close()

	wantErr := errors.New("boom")
	err = s.WithTx(func(tx *sql.Tx) error {
		if _, execErr := tx.Exec(
			"INSERT INTO sessions (session_id, strategy, task, status, started_at) VALUES (?, ?, ?, ?, ?)",
			"sess-rollback", "full", "task", "running", "2026-01-01T00:00:00Z",
		); execErr != nil {
			return execErr
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected WithTx to propagate the callback error, got %v", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM sessions WHERE session_id = ?", "sess-rollback").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback to discard the insert, found %d rows", count)
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer s.Close()

	err = s.WithTx(func(tx *sql.Tx) error {
		_, execErr := tx.Exec(
			"INSERT INTO sessions (session_id, strategy, task, status, started_at) VALUES (?, ?, ?, ?, ?)",
			"sess-commit", "full", "task", "running", "2026-01-01T00:00:00Z",
		)
		return execErr
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM sessions WHERE session_id = ?", "sess-commit").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected committed insert to be visible, found %d rows", count)
	}
}
