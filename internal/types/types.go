// Package types holds shared data-model structs and enums: the metrics
// entities used by internal/metrics, and the coordinator's own domain
// entities (TaskProfile, SubTask, AgentRecord, trust, outcomes,
// baselines) used for task profiling, routing, and execution.
package types

import (
	"fmt"
	"time"
)

// AgentMetrics tracks per-agent statistics
type AgentMetrics struct {
	AgentID            string    `json:"agent_id"`
	TokensUsed         int64     `json:"tokens_used"`
	EstimatedCost      float64   `json:"estimated_cost"`
	FailedTests        int       `json:"failed_tests"`
	ConsecutiveRejects int       `json:"consecutive_rejects"`
	IdleSince          time.Time `json:"idle_since"`
	LastUpdated        time.Time `json:"last_updated"`
}

// AlertThresholds configurable via dashboard
type AlertThresholds struct {
	FailedTestsMax        int   `json:"failed_tests_max"`
	IdleTimeMaxSeconds    int   `json:"idle_time_max_seconds"`
	TokenUsageMax         int64 `json:"token_usage_max"`
	ConsecutiveRejectsMax int   `json:"consecutive_rejects_max"`
}

// DefaultThresholds returns sensible defaults
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{
		FailedTestsMax:        5,
		IdleTimeMaxSeconds:    600, // 10 minutes
		TokenUsageMax:         100000,
		ConsecutiveRejectsMax: 3,
	}
}

// Validate checks that all threshold values are positive
func (t AlertThresholds) Validate() error {
	if t.FailedTestsMax < 1 {
		return fmt.Errorf("failed_tests_max must be at least 1")
	}
	if t.IdleTimeMaxSeconds < 60 {
		return fmt.Errorf("idle_time_max_seconds must be at least 60")
	}
	if t.TokenUsageMax < 1000 {
		return fmt.Errorf("token_usage_max must be at least 1000")
	}
	if t.ConsecutiveRejectsMax < 1 {
		return fmt.Errorf("consecutive_rejects_max must be at least 1")
	}
	return nil
}

// Alert for dashboard notification
type Alert struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	AgentID      string    `json:"agent_id"`
	Message      string    `json:"message"`
	Severity     string    `json:"severity"` // "warning", "critical"
	CreatedAt    time.Time `json:"created_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// MetricsSnapshot for history
type MetricsSnapshot struct {
	Timestamp time.Time                `json:"timestamp"`
	Agents    map[string]*AgentMetrics `json:"agents"`
}

// --- Coordinator domain entities (spec.md §3) ---

// VerificationMethod is how a SubTask's output is checked.
type VerificationMethod string

const (
	VerificationAutomatedTest      VerificationMethod = "automated_test"
	VerificationSemanticSimilarity VerificationMethod = "semantic_similarity"
	VerificationHumanReview        VerificationMethod = "human_review"
	VerificationGroundTruth        VerificationMethod = "ground_truth"
)

// CoordAgentState is a lifecycle state in the coordinator's agent
// registry state machine.
type CoordAgentState string

const (
	AgentPending   CoordAgentState = "pending"
	AgentRunning   CoordAgentState = "running"
	AgentCompleted CoordAgentState = "completed"
	AgentFailed    CoordAgentState = "failed"
	AgentTimeout   CoordAgentState = "timeout"
	AgentCancelled CoordAgentState = "cancelled"
)

// IsTerminal reports whether state ends the agent's lifecycle.
func (s CoordAgentState) IsTerminal() bool {
	switch s {
	case AgentCompleted, AgentFailed, AgentTimeout, AgentCancelled:
		return true
	default:
		return false
	}
}

// LockType distinguishes read (shared) from write (exclusive) file locks.
type LockType string

const (
	LockRead  LockType = "read"
	LockWrite LockType = "write"
)

// OutcomeKind classifies how a session ended.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomePartial   OutcomeKind = "partial"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeResearch  OutcomeKind = "research"
	OutcomeAbandoned OutcomeKind = "abandoned"
	OutcomeError     OutcomeKind = "error"
	OutcomeUnknown   OutcomeKind = "unknown"
)

// TaskProfile is the eleven-dimensional profile assigned to every task and
// subtask. All dimensions are real-valued in [0, 1] and immutable after
// creation.
type TaskProfile struct {
	Complexity           float64 `json:"complexity"`
	Criticality          float64 `json:"criticality"`
	Uncertainty          float64 `json:"uncertainty"`
	Duration             float64 `json:"duration"`
	Cost                 float64 `json:"cost"`
	ResourceRequirements float64 `json:"resource_requirements"`
	Constraints          float64 `json:"constraints"`
	Verifiability        float64 `json:"verifiability"`
	Reversibility        float64 `json:"reversibility"`
	Contextuality        float64 `json:"contextuality"`
	Subjectivity         float64 `json:"subjectivity"`
}

// Validate rejects a profile if any dimension falls outside [0, 1].
func (p TaskProfile) Validate() error {
	dims := map[string]float64{
		"complexity":            p.Complexity,
		"criticality":           p.Criticality,
		"uncertainty":           p.Uncertainty,
		"duration":              p.Duration,
		"cost":                  p.Cost,
		"resource_requirements": p.ResourceRequirements,
		"constraints":           p.Constraints,
		"verifiability":         p.Verifiability,
		"reversibility":         p.Reversibility,
		"contextuality":         p.Contextuality,
		"subjectivity":          p.Subjectivity,
	}
	for name, v := range dims {
		if v < 0 || v > 1 {
			return fmt.Errorf("task profile dimension %s out of range [0,1]: %v", name, v)
		}
	}
	return nil
}

// SubTask is one unit of decomposed work.
type SubTask struct {
	ID                 string             `json:"id"`
	Description        string             `json:"description"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	EstimatedCost      float64            `json:"estimated_cost"`
	EstimatedDuration  float64            `json:"estimated_duration"`
	ParallelSafe       bool               `json:"parallel_safe"`
	ParentID           string             `json:"parent_id,omitempty"`
	Dependencies       []string           `json:"dependencies"`
	Profile            TaskProfile        `json:"profile"`
	Metadata           map[string]any     `json:"metadata,omitempty"`
}

// AgentCapability describes one thing an agent can claim to be good at.
type AgentCapability struct {
	AgentID       string   `json:"agent_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Keywords      []string `json:"keywords"`
	EstimatedCost float64  `json:"estimated_cost"`
}

// Assignment records a subtask-to-agent routing decision.
type Assignment struct {
	SubtaskID       string         `json:"subtask_id"`
	AgentID         string         `json:"agent_id"`
	TrustScore      float64        `json:"trust_score"`
	CapabilityMatch float64        `json:"capability_match"`
	Timestamp       time.Time      `json:"timestamp"`
	Reasoning       string         `json:"reasoning"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// AgentRecord is the agent registry's lifecycle entity, keyed by AgentID.
type AgentRecord struct {
	AgentID       string          `json:"agent_id"`
	TaskID        string          `json:"task_id"`
	Subtask       string          `json:"subtask"`
	AgentType     string          `json:"agent_type"`
	ModelTier     string          `json:"model_tier"`
	State         CoordAgentState `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	FilesLocked   []string        `json:"files_locked"`
	Progress      float64         `json:"progress"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
	Result        string          `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	DQScore       float64         `json:"dq_score"`
	CostEstimate  float64         `json:"cost_estimate"`
}

// FileLock is one multi-reader/single-writer lock held by an agent on a
// canonicalized file path.
type FileLock struct {
	Path       string    `json:"path"`
	AgentID    string    `json:"agent_id"`
	LockType   LockType  `json:"lock_type"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// TrustEntry is the Bayesian Beta trust state for one (agent, task type)
// pair. TrustScore is computed as (success_count+1)/(success_count+
// failure_count+2) and is not itself decayed in storage — decay is applied
// by readers (see internal/trust).
type TrustEntry struct {
	AgentID      string    `json:"agent_id"`
	TaskType     string    `json:"task_type"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	AvgQuality   float64   `json:"avg_quality"`
	AvgDuration  float64   `json:"avg_duration"`
	TrustScore   float64   `json:"trust_score"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Outcome is the immutable record of how one session ended.
type Outcome struct {
	SessionID       string      `json:"session_id"`
	Outcome         OutcomeKind `json:"outcome"`
	Quality         float64     `json:"quality"`
	Complexity      float64     `json:"complexity"`
	ModelEfficiency float64     `json:"model_efficiency"`
	DQScore         float64     `json:"dq_score"`
	Confidence      float64     `json:"confidence"`
	AnalyzedAt      time.Time   `json:"analyzed_at"`
}

// Baseline is a versioned set of tunable routing/scoring parameters.
type Baseline struct {
	Version       string             `json:"version"`
	Parameters    map[string]float64 `json:"parameters"`
	EvidenceCount int                `json:"evidence_count"`
	Confidence    float64            `json:"confidence"`
	Lineage       []string           `json:"lineage"`
	AppliedAt     time.Time          `json:"applied_at"`
}

// EvolutionOutcome is a single raw feedback sample feeding the optimizer.
type EvolutionOutcome struct {
	DelegationID   string    `json:"delegation_id"`
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	QualityScore   float64   `json:"quality_score"`
	ActualCost     float64   `json:"actual_cost"`
	ActualDuration float64   `json:"actual_duration"`
	Complexity     float64   `json:"complexity"`
	SubtaskCount   int       `json:"subtask_count"`
	AgentIDs       []string  `json:"agent_ids"`
	Feedback       string    `json:"feedback,omitempty"`
}

// CoordSession is one orchestrator coordinate() call, upserted by
// session_id.
type CoordSession struct {
	SessionID   string         `json:"session_id"`
	Strategy    string         `json:"strategy"`
	Task        string         `json:"task"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
