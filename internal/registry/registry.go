// Package registry implements the agent registry (spec.md §4.9): the
// state machine tracking every delegated agent's lifecycle, heartbeats,
// and progress, plus stale-agent detection and completed-agent cleanup.
package registry

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CLIAIMONITOR/internal/types"
)

const (
	// HeartbeatTimeout marks a running agent stale after this long
	// without a heartbeat.
	HeartbeatTimeout = 60 * time.Second
	// AgentTimeout is the default maximum runtime for a single agent.
	AgentTimeout = 300 * time.Second
	// StaleCleanup is how long a terminal-state agent record is kept
	// before CleanupCompleted removes it.
	StaleCleanup = 600 * time.Second
)

// Registry tracks agents in the coordinator's shared store.
type Registry struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Registry backed by db (the coordinator's shared *sql.DB).
func New(db *sql.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

func newAgentID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "agent-" + hex.EncodeToString(b)
}

// Register inserts a new agent in CoordAgentPending state and returns
// its generated agent ID.
func (r *Registry) Register(taskID, subtask, agentType, model string, filesToLock []string, dqScore, costEstimate float64) (string, error) {
	agentID := newAgentID()
	filesJSON, err := json.Marshal(filesToLock)
	if err != nil {
		return "", fmt.Errorf("registry: marshal files_locked: %w", err)
	}
	now := r.now().UTC().Format(time.RFC3339)

	_, err = r.db.Exec(
		`INSERT INTO agents (
		   agent_id, task_id, subtask, agent_type, model_tier, state,
		   created_at, files_locked, progress, dq_score, cost_estimate
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		agentID, taskID, subtask, agentType, model, string(types.AgentPending),
		now, string(filesJSON), dqScore, costEstimate,
	)
	if err != nil {
		return "", fmt.Errorf("registry: register agent: %w", err)
	}
	return agentID, nil
}

// Start transitions an agent to the running state and stamps
// started_at/last_heartbeat.
func (r *Registry) Start(agentID string) error {
	now := r.now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(
		`UPDATE agents SET state = ?, started_at = ?, last_heartbeat = ? WHERE agent_id = ?`,
		string(types.AgentRunning), now, now, agentID,
	)
	if err != nil {
		return fmt.Errorf("registry: start agent: %w", err)
	}
	return nil
}

// Heartbeat refreshes an agent's last_heartbeat, and its progress if
// progress is non-nil (clamped to [0,1]).
func (r *Registry) Heartbeat(agentID string, progress *float64) error {
	now := r.now().UTC().Format(time.RFC3339)
	if progress == nil {
		_, err := r.db.Exec(`UPDATE agents SET last_heartbeat = ? WHERE agent_id = ?`, now, agentID)
		if err != nil {
			return fmt.Errorf("registry: heartbeat: %w", err)
		}
		return nil
	}

	p := *progress
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	_, err := r.db.Exec(`UPDATE agents SET last_heartbeat = ?, progress = ? WHERE agent_id = ?`, now, p, agentID)
	if err != nil {
		return fmt.Errorf("registry: heartbeat with progress: %w", err)
	}
	return nil
}

// Complete marks an agent completed with progress 1.0 and an optional
// JSON-encoded result, then logs its terminal outcome.
func (r *Registry) Complete(agentID string, result map[string]any) error {
	now := r.now().UTC().Format(time.RFC3339)
	var resultJSON sql.NullString
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("registry: marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.Exec(
		`UPDATE agents SET state = ?, completed_at = ?, progress = 1.0, result = ? WHERE agent_id = ?`,
		string(types.AgentCompleted), now, resultJSON, agentID,
	)
	if err != nil {
		return fmt.Errorf("registry: complete agent: %w", err)
	}
	return r.logOutcomeIfPresent(agentID)
}

// Fail marks an agent failed with the given error message.
func (r *Registry) Fail(agentID, errMsg string) error {
	return r.terminate(agentID, types.AgentFailed, errMsg)
}

// Timeout marks an agent timed out.
func (r *Registry) Timeout(agentID string) error {
	return r.terminate(agentID, types.AgentTimeout, "agent timed out")
}

// Cancel marks an agent cancelled.
func (r *Registry) Cancel(agentID string) error {
	return r.terminate(agentID, types.AgentCancelled, "")
}

func (r *Registry) terminate(agentID string, state types.CoordAgentState, errMsg string) error {
	now := r.now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(
		`UPDATE agents SET state = ?, completed_at = ?, error = ? WHERE agent_id = ?`,
		string(state), now, nullIfEmpty(errMsg), agentID,
	)
	if err != nil {
		return fmt.Errorf("registry: terminate agent: %w", err)
	}
	return r.logOutcomeIfPresent(agentID)
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Get returns one agent by ID, or nil if not found.
func (r *Registry) Get(agentID string) (*types.AgentRecord, error) {
	row := r.db.QueryRow(agentSelect+" WHERE agent_id = ?", agentID)
	record, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetTaskAgents returns every agent registered under taskID.
func (r *Registry) GetTaskAgents(taskID string) ([]types.AgentRecord, error) {
	return r.queryAgents(agentSelect+" WHERE task_id = ?", taskID)
}

// GetActive returns every agent in CoordAgentPending or CoordAgentRunning.
func (r *Registry) GetActive() ([]types.AgentRecord, error) {
	return r.queryAgents(agentSelect+" WHERE state IN (?, ?)",
		string(types.AgentPending), string(types.AgentRunning))
}

// GetStale returns running agents whose last heartbeat is older than
// HeartbeatTimeout.
func (r *Registry) GetStale() ([]types.AgentRecord, error) {
	running, err := r.queryAgents(agentSelect+" WHERE state = ?", string(types.AgentRunning))
	if err != nil {
		return nil, err
	}

	now := r.now()
	var stale []types.AgentRecord
	for _, a := range running {
		if a.LastHeartbeat != nil && now.Sub(*a.LastHeartbeat) > HeartbeatTimeout {
			stale = append(stale, a)
		}
	}
	return stale, nil
}

// CleanupCompleted removes terminal-state agents whose completed_at is
// older than olderThan (StaleCleanup if zero), returning the count
// removed.
func (r *Registry) CleanupCompleted(olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = StaleCleanup
	}
	cutoff := r.now().Add(-olderThan).UTC().Format(time.RFC3339)

	result, err := r.db.Exec(
		`DELETE FROM agents
		 WHERE state IN (?, ?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(types.AgentCompleted), string(types.AgentFailed),
		string(types.AgentTimeout), string(types.AgentCancelled), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("registry: cleanup completed agents: %w", err)
	}
	return result.RowsAffected()
}

// logOutcomeIfPresent persists a terminal agent's summary to the
// registry's slim agent_registry table; a missing agent is a no-op.
func (r *Registry) logOutcomeIfPresent(agentID string) error {
	agent, err := r.Get(agentID)
	if err != nil {
		return err
	}
	if agent == nil {
		return nil
	}

	now := r.now().UTC().Format(time.RFC3339)
	var lastHeartbeat sql.NullString
	if agent.LastHeartbeat != nil {
		lastHeartbeat = sql.NullString{String: agent.LastHeartbeat.UTC().Format(time.RFC3339), Valid: true}
	}

	_, err = r.db.Exec(
		`INSERT INTO agent_registry (agent_id, state, created_at, last_heartbeat, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
		   state = excluded.state,
		   last_heartbeat = excluded.last_heartbeat,
		   updated_at = excluded.updated_at`,
		agent.AgentID, string(agent.State), agent.CreatedAt.UTC().Format(time.RFC3339), lastHeartbeat, now,
	)
	if err != nil {
		return fmt.Errorf("registry: log outcome: %w", err)
	}
	return nil
}

// Stats summarizes the current registry.
type Stats struct {
	TotalAgents       int
	ByState           map[string]int
	ByModel           map[string]int
	TotalCostEstimate float64
	ActiveCount       int
	StaleCount        int
}

// GetStats reports aggregate registry counts.
func (r *Registry) GetStats() (Stats, error) {
	rows, err := r.db.Query("SELECT state, model_tier, cost_estimate FROM agents")
	if err != nil {
		return Stats{}, fmt.Errorf("registry: query stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByState: map[string]int{}, ByModel: map[string]int{}}
	for rows.Next() {
		var state, model string
		var cost sql.NullFloat64
		if err := rows.Scan(&state, &model, &cost); err != nil {
			return Stats{}, fmt.Errorf("registry: scan stats row: %w", err)
		}
		stats.TotalAgents++
		stats.ByState[state]++
		stats.ByModel[model]++
		stats.TotalCostEstimate += cost.Float64
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("registry: iterate stats rows: %w", err)
	}

	active, err := r.GetActive()
	if err != nil {
		return Stats{}, err
	}
	stats.ActiveCount = len(active)

	stale, err := r.GetStale()
	if err != nil {
		return Stats{}, err
	}
	stats.StaleCount = len(stale)

	return stats, nil
}

const agentSelect = `SELECT agent_id, task_id, subtask, agent_type, model_tier, state,
	created_at, started_at, completed_at, files_locked, progress,
	last_heartbeat, result, error, dq_score, cost_estimate FROM agents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*types.AgentRecord, error) {
	var a types.AgentRecord
	var createdAtRaw string
	var startedAtRaw, completedAtRaw, lastHeartbeatRaw, filesLockedRaw sql.NullString
	var result, errMsg sql.NullString
	var dqScore, costEstimate sql.NullFloat64
	var state string

	err := row.Scan(
		&a.AgentID, &a.TaskID, &a.Subtask, &a.AgentType, &a.ModelTier, &state,
		&createdAtRaw, &startedAtRaw, &completedAtRaw, &filesLockedRaw, &a.Progress,
		&lastHeartbeatRaw, &result, &errMsg, &dqScore, &costEstimate,
	)
	if err != nil {
		return nil, err
	}

	a.State = types.CoordAgentState(state)
	a.Result = result.String
	a.Error = errMsg.String
	a.DQScore = dqScore.Float64
	a.CostEstimate = costEstimate.Float64

	a.CreatedAt, err = time.Parse(time.RFC3339, createdAtRaw)
	if err != nil {
		return nil, fmt.Errorf("registry: parse created_at: %w", err)
	}
	a.StartedAt, err = parseNullableTime(startedAtRaw)
	if err != nil {
		return nil, err
	}
	a.CompletedAt, err = parseNullableTime(completedAtRaw)
	if err != nil {
		return nil, err
	}
	a.LastHeartbeat, err = parseNullableTime(lastHeartbeatRaw)
	if err != nil {
		return nil, err
	}

	if filesLockedRaw.Valid && filesLockedRaw.String != "" {
		if err := json.Unmarshal([]byte(filesLockedRaw.String), &a.FilesLocked); err != nil {
			return nil, fmt.Errorf("registry: unmarshal files_locked: %w", err)
		}
	}

	return &a, nil
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, fmt.Errorf("registry: parse timestamp: %w", err)
	}
	return &t, nil
}

func (r *Registry) queryAgents(query string, args ...any) ([]types.AgentRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: query agents: %w", err)
	}
	defer rows.Close()

	var agents []types.AgentRecord
	for rows.Next() {
		record, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: iterate agents: %w", err)
	}
	return agents, nil
}
