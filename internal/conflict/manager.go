// Package conflict implements the file-lock conflict manager (spec.md
// §4.8): read/write locks over file paths that prevent concurrent
// agents from stepping on each other's writes, plus a pre-flight
// conflict detector that groups a batch of subtasks into parallel-safe
// cohorts before any locks are taken.
package conflict

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/CLIAIMONITOR/internal/types"
)

// LockTimeout is how long an acquired lock is honored before it is
// treated as stale and swept by cleanup.
const LockTimeout = 600 * time.Second

// Conflict describes one lock contention between a requested acquisition
// and an existing holder.
type Conflict struct {
	Path             string
	ConflictingAgent string
	Reason           string
}

// Manager tracks file locks in the coordinator's shared store.
type Manager struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Manager backed by db (the coordinator's shared *sql.DB).
func New(db *sql.DB) *Manager {
	return &Manager{db: db, now: time.Now}
}

func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func (m *Manager) cleanupExpired() error {
	cutoff := m.now().Add(-LockTimeout).UTC().Format(time.RFC3339)
	_, err := m.db.Exec("DELETE FROM file_locks WHERE acquired_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("conflict: cleanup expired locks: %w", err)
	}
	return nil
}

// CheckConflicts reports every conflict that acquiring lockType on paths
// would create, skipping locks already held by agentID (self-upgrade is
// allowed). A write request conflicts with any existing lock; a read
// request conflicts only with an existing write lock.
func (m *Manager) CheckConflicts(paths []string, lockType types.LockType, agentID string) ([]Conflict, error) {
	if err := m.cleanupExpired(); err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, path := range paths {
		norm := normalizePath(path)
		rows, err := m.db.Query("SELECT agent_id, lock_type FROM file_locks WHERE path = ?", norm)
		if err != nil {
			return nil, fmt.Errorf("conflict: query locks for %s: %w", path, err)
		}

		for rows.Next() {
			var holderAgent string
			var holderLockType string
			if err := rows.Scan(&holderAgent, &holderLockType); err != nil {
				rows.Close()
				return nil, fmt.Errorf("conflict: scan lock row: %w", err)
			}
			if agentID != "" && holderAgent == agentID {
				continue
			}

			if lockType == types.LockWrite {
				conflicts = append(conflicts, Conflict{
					Path:             path,
					ConflictingAgent: holderAgent,
					Reason:           fmt.Sprintf("file has existing %s lock", holderLockType),
				})
				break
			}
			if holderLockType == string(types.LockWrite) {
				conflicts = append(conflicts, Conflict{
					Path:             path,
					ConflictingAgent: holderAgent,
					Reason:           "file has existing write lock",
				})
				break
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("conflict: iterate lock rows: %w", err)
		}
		rows.Close()
	}

	return conflicts, nil
}

// SubtaskLockRequest is one subtask's declared file footprint, used by
// CheckAll to pre-screen a batch against currently held locks.
type SubtaskLockRequest struct {
	Files    []string
	LockType types.LockType
	AgentID  string
}

// CheckAll runs CheckConflicts for every request and concatenates the
// results.
func (m *Manager) CheckAll(requests []SubtaskLockRequest) ([]Conflict, error) {
	var all []Conflict
	for _, r := range requests {
		lockType := r.LockType
		if lockType == "" {
			lockType = types.LockRead
		}
		conflicts, err := m.CheckConflicts(r.Files, lockType, r.AgentID)
		if err != nil {
			return nil, err
		}
		all = append(all, conflicts...)
	}
	return all, nil
}

// Acquire takes a lock on path for agentID. Returns false (no error) if
// an existing, non-self lock conflicts; any existing lock held by
// agentID on the same path is replaced (upgrade/downgrade).
func (m *Manager) Acquire(path string, agentID string, lockType types.LockType) (bool, error) {
	conflicts, err := m.CheckConflicts([]string{path}, lockType, agentID)
	if err != nil {
		return false, err
	}
	if len(conflicts) > 0 {
		return false, nil
	}

	norm := normalizePath(path)
	now := m.now().UTC().Format(time.RFC3339)

	_, err = m.db.Exec(
		`INSERT INTO file_locks (path, agent_id, lock_type, acquired_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(path, agent_id) DO UPDATE SET
		   lock_type = excluded.lock_type,
		   acquired_at = excluded.acquired_at`,
		norm, agentID, string(lockType), now,
	)
	if err != nil {
		return false, fmt.Errorf("conflict: acquire lock on %s: %w", path, err)
	}
	return true, nil
}

// AcquireBatch acquires locks on every file atomically from the
// caller's perspective: if any file conflicts up front, nothing is
// acquired; if a file fails to acquire partway through, every lock
// agentID holds (including those granted earlier in this call) is
// released.
func (m *Manager) AcquireBatch(files []string, agentID string, lockType types.LockType) (bool, []string, error) {
	conflicts, err := m.CheckConflicts(files, lockType, agentID)
	if err != nil {
		return false, nil, err
	}
	if len(conflicts) > 0 {
		failed := make([]string, len(conflicts))
		for i, c := range conflicts {
			failed[i] = c.Path
		}
		return false, failed, nil
	}

	for _, path := range files {
		ok, err := m.Acquire(path, agentID, lockType)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			if releaseErr := m.ReleaseAgent(agentID); releaseErr != nil {
				return false, nil, releaseErr
			}
			return false, []string{path}, nil
		}
	}

	return true, nil, nil
}

// Release drops agentID's lock on path, if any.
func (m *Manager) Release(path, agentID string) error {
	norm := normalizePath(path)
	_, err := m.db.Exec("DELETE FROM file_locks WHERE path = ? AND agent_id = ?", norm, agentID)
	if err != nil {
		return fmt.Errorf("conflict: release lock on %s: %w", path, err)
	}
	return nil
}

// ReleaseAgent drops every lock held by agentID.
func (m *Manager) ReleaseAgent(agentID string) error {
	_, err := m.db.Exec("DELETE FROM file_locks WHERE agent_id = ?", agentID)
	if err != nil {
		return fmt.Errorf("conflict: release all locks for %s: %w", agentID, err)
	}
	return nil
}

// GetAgentLocks returns every lock agentID currently holds.
func (m *Manager) GetAgentLocks(agentID string) ([]types.FileLock, error) {
	return m.queryLocks("SELECT path, agent_id, lock_type, acquired_at FROM file_locks WHERE agent_id = ?", agentID)
}

// GetFileLocks returns every lock currently held on path.
func (m *Manager) GetFileLocks(path string) ([]types.FileLock, error) {
	return m.queryLocks("SELECT path, agent_id, lock_type, acquired_at FROM file_locks WHERE path = ?", normalizePath(path))
}

func (m *Manager) queryLocks(query string, arg string) ([]types.FileLock, error) {
	rows, err := m.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("conflict: query locks: %w", err)
	}
	defer rows.Close()

	var locks []types.FileLock
	for rows.Next() {
		var l types.FileLock
		var lockType string
		var acquiredAtRaw string
		if err := rows.Scan(&l.Path, &l.AgentID, &lockType, &acquiredAtRaw); err != nil {
			return nil, fmt.Errorf("conflict: scan lock: %w", err)
		}
		l.LockType = types.LockType(lockType)
		acquiredAt, err := time.Parse(time.RFC3339, acquiredAtRaw)
		if err != nil {
			return nil, fmt.Errorf("conflict: parse acquired_at: %w", err)
		}
		l.AcquiredAt = acquiredAt
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conflict: iterate locks: %w", err)
	}
	return locks, nil
}

// CleanupStale removes every lock older than LockTimeout and reports how
// many were removed.
func (m *Manager) CleanupStale() (int64, error) {
	cutoff := m.now().Add(-LockTimeout).UTC().Format(time.RFC3339)
	result, err := m.db.Exec("DELETE FROM file_locks WHERE acquired_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("conflict: cleanup stale locks: %w", err)
	}
	return result.RowsAffected()
}

// Stats summarizes the current lock table.
type Stats struct {
	TotalLocks      int
	ReadLocks       int
	WriteLocks      int
	FilesLocked     int
	AgentsWithLocks int
}

// GetStats reports aggregate lock counts.
func (m *Manager) GetStats() (Stats, error) {
	rows, err := m.db.Query("SELECT path, agent_id, lock_type FROM file_locks")
	if err != nil {
		return Stats{}, fmt.Errorf("conflict: query stats: %w", err)
	}
	defer rows.Close()

	agents := map[string]bool{}
	paths := map[string]bool{}
	var stats Stats
	for rows.Next() {
		var path, agentID, lockType string
		if err := rows.Scan(&path, &agentID, &lockType); err != nil {
			return Stats{}, fmt.Errorf("conflict: scan stats row: %w", err)
		}
		stats.TotalLocks++
		if lockType == string(types.LockRead) {
			stats.ReadLocks++
		} else {
			stats.WriteLocks++
		}
		agents[agentID] = true
		paths[path] = true
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("conflict: iterate stats rows: %w", err)
	}
	stats.FilesLocked = len(paths)
	stats.AgentsWithLocks = len(agents)
	return stats, nil
}
