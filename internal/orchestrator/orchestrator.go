// Package orchestrator is the coordinator's top-level entry point
// (spec.md §4.12): it decomposes a task, assigns models and estimates
// cost, detects file conflicts, picks an execution strategy, runs it
// through the executor, and synthesizes the agents' results into one
// outcome.
package orchestrator

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/CLIAIMONITOR/internal/conflict"
	"github.com/CLIAIMONITOR/internal/distribution"
	"github.com/CLIAIMONITOR/internal/executor"
	"github.com/CLIAIMONITOR/internal/registry"
	"github.com/CLIAIMONITOR/internal/types"
)

// CostConfirmThreshold is the dollar amount above which Coordinate
// reports an estimate for the caller to confirm before running, rather
// than running unconditionally.
const CostConfirmThreshold = 1.0

// Strategy names accepted by Coordinate.
const (
	StrategyAuto        = "auto"
	StrategyResearch    = "research"
	StrategyImplement   = "implement"
	StrategyReviewBuild = "review-build"
	StrategyFull        = "full"
	StrategyTeam        = "team"
	StrategyCouncil     = "council"
)

// AgentOutcome is one agent's contribution to a CoordinationResult.
type AgentOutcome struct {
	AgentID string
	Success bool
	Output  string
	Error   string
}

// Synthesis summarizes a batch of agent outcomes.
type Synthesis struct {
	Status         string // success, partial, failed
	Successful     int
	Total          int
	CombinedOutput string
	Errors         []string
}

// CoordinationResult is the outcome of one Coordinate call.
type CoordinationResult struct {
	TaskID          string
	Task            string
	Strategy        string
	Status          string
	DurationSeconds float64
	AgentResults    map[string]AgentOutcome
	Synthesis       Synthesis
	TotalCost       float64
}

// CostEstimate is reported to the caller before a coordination whose
// estimated cost exceeds CostConfirmThreshold, so the caller can decide
// whether to proceed.
type CostEstimate struct {
	Total      float64
	ByModel    map[string]float64
	AgentCount int
}

// Confirmer decides whether a coordination whose cost exceeds
// CostConfirmThreshold should proceed.
type Confirmer func(estimate CostEstimate) bool

// Orchestrator wires together the registry, conflict manager,
// distributor, and executor into one coordination entry point.
type Orchestrator struct {
	db                   *sql.DB
	registry             *registry.Registry
	conflict             *conflict.Manager
	distributor          *distribution.Distributor
	executor             *executor.Executor
	now                  func() time.Time
	confirmCost          Confirmer
	costConfirmThreshold float64
}

// New returns an Orchestrator. confirm may be nil, in which case
// Coordinate never blocks on cost confirmation (equivalent to always
// confirming). The cost-confirmation threshold defaults to
// CostConfirmThreshold.
func New(db *sql.DB, reg *registry.Registry, conf *conflict.Manager, dist *distribution.Distributor, exec *executor.Executor, confirm Confirmer) *Orchestrator {
	return &Orchestrator{
		db: db, registry: reg, conflict: conf, distributor: dist, executor: exec,
		now: time.Now, confirmCost: confirm, costConfirmThreshold: CostConfirmThreshold,
	}
}

func newTaskID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "coord-" + hex.EncodeToString(b)
}

// Coordinate is the main entry point: decompose, assign, check
// conflicts, optionally confirm cost, pick a strategy, execute it, and
// synthesize the result.
func (o *Orchestrator) Coordinate(ctx context.Context, task, strategy string) (CoordinationResult, error) {
	taskID := newTaskID()
	start := o.now()

	specs := o.decomposeForStrategy(task, strategy)
	assignments := o.distributor.Assign(specs)

	planned := make([]conflict.PlannedSubtask, len(assignments))
	for i, a := range assignments {
		lockType := types.LockRead
		if a.LockType == "write" {
			lockType = types.LockWrite
		}
		planned[i] = conflict.PlannedSubtask{Files: a.Files, LockType: lockType}
	}
	conflictAnalysis := conflict.DetectPotentialConflicts(planned)

	costEstimate := summarizeCost(assignments)
	if o.confirmCost != nil && costEstimate.Total > o.costConfirmThreshold {
		if !o.confirmCost(costEstimate) {
			return CoordinationResult{
				TaskID: taskID, Task: task, Strategy: strategy, Status: "cancelled",
				AgentResults: map[string]AgentOutcome{},
				Synthesis:    Synthesis{Status: "cancelled", Errors: []string{"user declined"}},
			}, nil
		}
	}

	if strategy == "" || strategy == StrategyAuto {
		strategy = o.detectStrategy(task, assignments, conflictAnalysis)
	}

	agentResults, err := o.executeStrategy(ctx, strategy, taskID, task, assignments, conflictAnalysis)
	if err != nil {
		return CoordinationResult{}, err
	}

	synthesis := synthesizeResults(agentResults)
	duration := o.now().Sub(start).Seconds()

	var totalCost float64
	for _, a := range assignments {
		totalCost += a.CostEstimate
	}

	result := CoordinationResult{
		TaskID: taskID, Task: task, Strategy: strategy, Status: synthesis.Status,
		DurationSeconds: round2(duration), AgentResults: agentResults,
		Synthesis: synthesis, TotalCost: totalCost,
	}

	if err := o.logCoordination(result); err != nil {
		return result, err
	}
	return result, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func summarizeCost(assignments []distribution.Assignment) CostEstimate {
	summary := distribution.EstimateTotalCost(assignments)
	return CostEstimate{Total: summary.Total, ByModel: summary.ByModel, AgentCount: summary.AgentCount}
}

// decomposeForStrategy mirrors the strategy-specific decomposition
// shortcuts: council gets one undivided subtask, research gets three
// parallel explore angles, implement/review-build get canonical
// single/paired subtasks, and everything else falls back to the
// simple four-phase decomposition.
func (o *Orchestrator) decomposeForStrategy(task, strategy string) []distribution.SubtaskSpec {
	switch strategy {
	case StrategyCouncil:
		return []distribution.SubtaskSpec{
			{Subtask: task, AgentType: "general-purpose", LockType: "read", Priority: 0},
		}
	case StrategyResearch:
		return []distribution.SubtaskSpec{
			{Subtask: "Explore architecture for: " + task, AgentType: "explore", LockType: "read", Priority: 0},
			{Subtask: "Find similar patterns for: " + task, AgentType: "explore", LockType: "read", Priority: 0},
			{Subtask: "Analyze dependencies for: " + task, AgentType: "explore", LockType: "read", Priority: 0},
		}
	case StrategyImplement:
		return []distribution.SubtaskSpec{
			{Subtask: "Implement: " + task, AgentType: "general-purpose", LockType: "write", Priority: 0},
		}
	case StrategyReviewBuild:
		return []distribution.SubtaskSpec{
			{Subtask: "Build: " + task, AgentType: "general-purpose", LockType: "write", Priority: 0},
			{Subtask: "Review implementation for: " + task, AgentType: "explore", LockType: "read", Priority: 1},
		}
	default:
		return distribution.DecomposeTaskSimple(task)
	}
}

var councilKeywords = []string{
	"should we", "should i", "perspectives", "opinions", "council", "review from",
	"what do you think", "pros and cons", "trade-offs", "tradeoffs", "advise",
	"recommend", "evaluate this", "is this the right", "compare approaches",
}

var researchDetectionKeywords = []string{"understand", "explore", "find", "analyze", "investigate", "how does"}
var teamKeywords = []string{"team", "parallel", "coordinate", "multi-part", "comprehensive"}
var implementDetectionKeywords = []string{"implement", "add", "create", "build"}

// detectStrategy picks a strategy for "auto" coordination from the
// task text and the conflict analysis already computed for it.
func (o *Orchestrator) detectStrategy(task string, assignments []distribution.Assignment, conflicts conflict.PreflightResult) string {
	taskLower := strings.ToLower(task)

	if containsAny(taskLower, councilKeywords) {
		return StrategyCouncil
	}
	if containsAny(taskLower, researchDetectionKeywords) {
		return StrategyResearch
	}
	if containsAny(taskLower, teamKeywords) {
		return StrategyTeam
	}
	if containsAny(taskLower, implementDetectionKeywords) {
		if len(assignments) > 1 && !conflicts.HasConflicts {
			return StrategyFull
		}
		return StrategyReviewBuild
	}
	return StrategyFull
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func assignmentToConfig(a distribution.Assignment) executor.Config {
	lockType := types.LockRead
	if a.LockType == "write" {
		lockType = types.LockWrite
	}
	return executor.Config{
		Subtask: a.Subtask, Prompt: a.Subtask, AgentType: a.AgentType, Model: a.Model,
		FilesToLock: a.Files, LockType: lockType, DQScore: a.DQScore, CostEstimate: a.CostEstimate,
	}
}

func (o *Orchestrator) collectResults(agentIDs []string) (map[string]AgentOutcome, error) {
	results := make(map[string]AgentOutcome, len(agentIDs))
	for _, agentID := range agentIDs {
		agent, err := o.registry.Get(agentID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: get agent %s: %w", agentID, err)
		}
		if agent == nil {
			results[agentID] = AgentOutcome{AgentID: agentID, Error: "agent not found"}
			continue
		}
		results[agentID] = AgentOutcome{
			AgentID: agentID, Success: agent.State == types.AgentCompleted,
			Output: agent.Result, Error: agent.Error,
		}
	}
	return results, nil
}

func (o *Orchestrator) executeParallel(ctx context.Context, taskID string, assignments []distribution.Assignment, maxWorkers int) (map[string]AgentOutcome, error) {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	configs := make([]executor.Config, len(assignments))
	for i, a := range assignments {
		configs[i] = assignmentToConfig(a)
	}
	agentIDs := o.executor.SpawnParallel(ctx, configs, taskID, maxWorkers)
	return o.collectResults(agentIDs)
}

func (o *Orchestrator) executeSequential(ctx context.Context, taskID string, assignments []distribution.Assignment) (map[string]AgentOutcome, error) {
	results := make(map[string]AgentOutcome, len(assignments))
	for _, a := range assignments {
		agentID, err := o.executor.SpawnAgent(ctx, assignmentToConfig(a), taskID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: spawn agent: %w", err)
		}
		agent, err := o.registry.Get(agentID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: get agent %s: %w", agentID, err)
		}
		if agent == nil {
			results[agentID] = AgentOutcome{AgentID: agentID, Error: "agent not found"}
			continue
		}
		results[agentID] = AgentOutcome{
			AgentID: agentID, Success: agent.State == types.AgentCompleted,
			Output: agent.Result, Error: agent.Error,
		}
	}
	return results, nil
}

func (o *Orchestrator) executePhased(ctx context.Context, taskID string, assignments []distribution.Assignment, conflicts conflict.PreflightResult) (map[string]AgentOutcome, error) {
	results := make(map[string]AgentOutcome)

	var research, writes []distribution.Assignment
	for _, a := range assignments {
		if a.LockType == "write" {
			writes = append(writes, a)
		} else {
			research = append(research, a)
		}
	}

	if len(research) > 0 {
		r, err := o.executeParallel(ctx, taskID, research, 5)
		if err != nil {
			return nil, err
		}
		for k, v := range r {
			results[k] = v
		}
	}

	if len(writes) > 0 {
		var w map[string]AgentOutcome
		var err error
		if conflicts.CanParallelize {
			w, err = o.executeParallel(ctx, taskID, writes, 5)
		} else {
			w, err = o.executeSequential(ctx, taskID, writes)
		}
		if err != nil {
			return nil, err
		}
		for k, v := range w {
			results[k] = v
		}
	}

	return results, nil
}

func (o *Orchestrator) executeStrategy(ctx context.Context, strategy, taskID, task string, assignments []distribution.Assignment, conflicts conflict.PreflightResult) (map[string]AgentOutcome, error) {
	switch strategy {
	case StrategyResearch, StrategyReviewBuild, StrategyCouncil:
		return o.executeParallel(ctx, taskID, assignments, 5)
	case StrategyImplement:
		if conflicts.CanParallelize {
			return o.executeParallel(ctx, taskID, assignments, 5)
		}
		return o.executeSequential(ctx, taskID, assignments)
	case StrategyFull:
		return o.executePhased(ctx, taskID, assignments, conflicts)
	case StrategyTeam:
		return o.executeParallel(ctx, taskID, assignments, len(assignments))
	default:
		return o.executeSequential(ctx, taskID, assignments)
	}
}

func synthesizeResults(agentResults map[string]AgentOutcome) Synthesis {
	var successful int
	var combined strings.Builder
	var errs []string

	for _, r := range agentResults {
		if r.Success {
			successful++
			if combined.Len() > 0 {
				combined.WriteString("\n\n")
			}
			combined.WriteString(fmt.Sprintf("## Agent %s\n%s", r.AgentID, r.Output))
		}
		if r.Error != "" {
			errs = append(errs, r.Error)
		}
	}

	total := len(agentResults)
	var status string
	switch {
	case total > 0 && successful == total:
		status = "success"
	case successful > 0:
		status = "partial"
	default:
		status = "failed"
	}

	return Synthesis{Status: status, Successful: successful, Total: total, CombinedOutput: combined.String(), Errors: errs}
}

func (o *Orchestrator) logCoordination(result CoordinationResult) error {
	taskTruncated := result.Task
	if len(taskTruncated) > 100 {
		taskTruncated = taskTruncated[:100]
	}
	now := o.now().UTC().Format(time.RFC3339)

	_, err := o.db.Exec(
		`INSERT INTO sessions (session_id, strategy, task, status, started_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   status = excluded.status,
		   metadata = excluded.metadata`,
		result.TaskID, result.Strategy, taskTruncated, result.Status, now,
		fmt.Sprintf(`{"duration_seconds":%v,"total_cost":%v,"agent_count":%d}`,
			result.DurationSeconds, result.TotalCost, len(result.AgentResults)),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: log coordination: %w", err)
	}
	return nil
}

// Status reports the registry/conflict state for one task, or the
// overall registry and lock stats when taskID is empty.
type Status struct {
	TaskID string
	Agents []types.AgentRecord
	Stats  registry.Stats
	Locks  conflict.Stats
}

// Status returns coordination status, scoped to taskID when non-empty.
func (o *Orchestrator) Status(taskID string) (Status, error) {
	stats, err := o.registry.GetStats()
	if err != nil {
		return Status{}, fmt.Errorf("orchestrator: registry stats: %w", err)
	}

	if taskID == "" {
		lockStats, err := o.conflict.GetStats()
		if err != nil {
			return Status{}, fmt.Errorf("orchestrator: lock stats: %w", err)
		}
		return Status{Stats: stats, Locks: lockStats}, nil
	}

	agents, err := o.registry.GetTaskAgents(taskID)
	if err != nil {
		return Status{}, fmt.Errorf("orchestrator: task agents: %w", err)
	}
	return Status{TaskID: taskID, Agents: agents, Stats: stats}, nil
}

// Cancel cancels every pending or running agent under taskID.
func (o *Orchestrator) Cancel(taskID string) error {
	return o.executor.CancelTask(taskID)
}
