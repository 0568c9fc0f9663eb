// Package trust implements the Bayesian trust ledger (spec.md §4.6): a
// persistent, per-(agent, task type) trust score updated from task
// outcomes using a Beta(success+1, failure+1) posterior mean, with a
// read-time decay applied to stale entries.
package trust

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	// DecayDays is the staleness threshold after which a read applies decay.
	DecayDays = 7
	// DecayFactor is multiplied into a stale trust score on read.
	DecayFactor = 0.95
	// uninformativePrior is returned for an agent/task-type pair with no
	// recorded outcomes yet — Beta(1,1) has mean 0.5.
	uninformativePrior = 0.5
)

// Entry mirrors one row of the trust_entries table.
type Entry struct {
	AgentID      string
	TaskType     string
	SuccessCount int
	FailureCount int
	AvgQuality   float64
	AvgDuration  float64
	TrustScore   float64
	LastUpdated  time.Time
}

// Ledger is a SQLite-backed trust ledger sharing the coordinator's
// unified store connection.
type Ledger struct {
	db *sql.DB
	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New returns a Ledger backed by db (the coordinator's shared *sql.DB).
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// RecordOutcome records a task outcome for agentID on taskType and
// returns the updated trust score. quality must be in [0,1] and
// duration must be non-negative.
func (l *Ledger) RecordOutcome(agentID, taskType string, success bool, quality, duration float64) (float64, error) {
	if quality < 0.0 || quality > 1.0 {
		return 0, fmt.Errorf("trust: quality must be in [0.0, 1.0], got %v", quality)
	}
	if duration < 0.0 {
		return 0, fmt.Errorf("trust: duration must be >= 0.0, got %v", duration)
	}

	row := l.db.QueryRow(
		`SELECT success_count, failure_count, avg_quality, avg_duration
		 FROM trust_entries WHERE agent_id = ? AND task_type = ?`,
		agentID, taskType,
	)

	var successCount, failureCount int
	var avgQuality, avgDuration float64
	err := row.Scan(&successCount, &failureCount, &avgQuality, &avgDuration)

	switch {
	case err == sql.ErrNoRows:
		if success {
			successCount = 1
		} else {
			failureCount = 1
		}
		avgQuality = quality
		avgDuration = duration
	case err != nil:
		return 0, fmt.Errorf("trust: load entry: %w", err)
	default:
		total := successCount + failureCount
		if success {
			successCount++
		} else {
			failureCount++
		}
		newTotal := total + 1
		avgQuality = (avgQuality*float64(total) + quality) / float64(newTotal)
		avgDuration = (avgDuration*float64(total) + duration) / float64(newTotal)
	}

	trustScore := betaMean(successCount, failureCount)
	now := l.now().UTC()

	_, err = l.db.Exec(
		`INSERT INTO trust_entries
		   (agent_id, task_type, success_count, failure_count,
		    avg_quality, avg_duration, trust_score, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id, task_type) DO UPDATE SET
		   success_count = excluded.success_count,
		   failure_count = excluded.failure_count,
		   avg_quality = excluded.avg_quality,
		   avg_duration = excluded.avg_duration,
		   trust_score = excluded.trust_score,
		   last_updated = excluded.last_updated`,
		agentID, taskType, successCount, failureCount,
		avgQuality, avgDuration, trustScore, now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("trust: save entry: %w", err)
	}

	return trustScore, nil
}

// GetTrustScore returns the current trust score for agentID on taskType,
// with decay applied if the entry is stale. Returns the uninformative
// prior (0.5) for an agent/task-type pair with no recorded outcomes.
func (l *Ledger) GetTrustScore(agentID, taskType string) (float64, error) {
	row := l.db.QueryRow(
		`SELECT trust_score, last_updated FROM trust_entries
		 WHERE agent_id = ? AND task_type = ?`,
		agentID, taskType,
	)

	var trustScore float64
	var lastUpdatedRaw string
	err := row.Scan(&trustScore, &lastUpdatedRaw)
	if err == sql.ErrNoRows {
		return uninformativePrior, nil
	}
	if err != nil {
		return 0, fmt.Errorf("trust: load score: %w", err)
	}

	lastUpdated, err := time.Parse(time.RFC3339, lastUpdatedRaw)
	if err != nil {
		return 0, fmt.Errorf("trust: parse last_updated: %w", err)
	}

	return applyDecay(trustScore, lastUpdated, l.now()), nil
}

// GetAgentStats returns the full entry for agentID on taskType, or nil
// if no outcomes have been recorded yet. Unlike GetTrustScore, the
// returned TrustScore is the raw stored value (no decay applied).
func (l *Ledger) GetAgentStats(agentID, taskType string) (*Entry, error) {
	row := l.db.QueryRow(
		`SELECT agent_id, task_type, success_count, failure_count,
		        avg_quality, avg_duration, trust_score, last_updated
		 FROM trust_entries WHERE agent_id = ? AND task_type = ?`,
		agentID, taskType,
	)

	var e Entry
	var lastUpdatedRaw string
	err := row.Scan(&e.AgentID, &e.TaskType, &e.SuccessCount, &e.FailureCount,
		&e.AvgQuality, &e.AvgDuration, &e.TrustScore, &lastUpdatedRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: load stats: %w", err)
	}

	e.LastUpdated, err = time.Parse(time.RFC3339, lastUpdatedRaw)
	if err != nil {
		return nil, fmt.Errorf("trust: parse last_updated: %w", err)
	}

	return &e, nil
}

// GetTopAgents returns the top limit agents by decayed trust score,
// optionally filtered to a single task type.
func (l *Ledger) GetTopAgents(taskType string, limit int) ([]Entry, error) {
	var rows *sql.Rows
	var err error
	if taskType != "" {
		rows, err = l.db.Query(
			`SELECT agent_id, task_type, trust_score, success_count, failure_count,
			        avg_quality, avg_duration, last_updated
			 FROM trust_entries WHERE task_type = ? ORDER BY trust_score DESC`,
			taskType,
		)
	} else {
		rows, err = l.db.Query(
			`SELECT agent_id, task_type, trust_score, success_count, failure_count,
			        avg_quality, avg_duration, last_updated
			 FROM trust_entries ORDER BY trust_score DESC`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("trust: query top agents: %w", err)
	}
	defer rows.Close()

	now := l.now()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var lastUpdatedRaw string
		if err := rows.Scan(&e.AgentID, &e.TaskType, &e.TrustScore, &e.SuccessCount,
			&e.FailureCount, &e.AvgQuality, &e.AvgDuration, &lastUpdatedRaw); err != nil {
			return nil, fmt.Errorf("trust: scan top agent: %w", err)
		}
		lastUpdated, err := time.Parse(time.RFC3339, lastUpdatedRaw)
		if err != nil {
			return nil, fmt.Errorf("trust: parse last_updated: %w", err)
		}
		e.LastUpdated = lastUpdated
		e.TrustScore = applyDecay(e.TrustScore, lastUpdated, now)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trust: iterate top agents: %w", err)
	}

	sortByTrustDesc(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// betaMean returns the Beta(successCount+1, failureCount+1) posterior
// mean — the Bayesian trust score given observed successes/failures.
func betaMean(successCount, failureCount int) float64 {
	alpha := float64(successCount) + 1
	beta := float64(failureCount) + 1
	return alpha / (alpha + beta)
}

// applyDecay multiplies score by DecayFactor if it has gone at least
// DecayDays without an update, clamped back into [0,1].
func applyDecay(score float64, lastUpdated, now time.Time) float64 {
	daysSince := now.Sub(lastUpdated).Hours() / 24
	if daysSince < DecayDays {
		return score
	}
	score *= DecayFactor
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func sortByTrustDesc(entries []Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].TrustScore > entries[j-1].TrustScore; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
