// Package executor spawns and manages agent subprocesses (spec.md §4.10):
// it registers each spawn with the agent registry, acquires any needed
// file locks from the conflict manager, runs the model invocation, and
// reconciles the outcome back into both.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CLIAIMONITOR/internal/conflict"
	"github.com/CLIAIMONITOR/internal/registry"
	"github.com/CLIAIMONITOR/internal/types"
)

// MaxPromptLength bounds a single agent prompt to prevent DoS via
// extremely long input.
const MaxPromptLength = 50_000

// DefaultTimeouts are the fallback per-tier timeouts used when a Config
// does not specify one.
var DefaultTimeouts = map[string]time.Duration{
	"haiku":  180 * time.Second,
	"sonnet": 600 * time.Second,
	"opus":   1200 * time.Second,
}

// ThinkingEffortMultipliers scale an Opus agent's timeout by its
// requested extended-thinking effort band.
var ThinkingEffortMultipliers = map[string]float64{
	"low":    0.75,
	"medium": 1.0,
	"high":   1.5,
	"max":    2.0,
}

// Config describes one agent to spawn.
type Config struct {
	Subtask         string
	Prompt          string
	AgentType       string // explore, general-purpose, bash, plan
	Model           string // haiku, sonnet, opus
	ThinkingEffort  string // opus only: low, medium, high, max
	Timeout         time.Duration
	FilesToLock     []string
	LockType        types.LockType
	DQScore         float64
	CostEstimate    float64
}

// Result is what came back from one agent's run.
type Result struct {
	AgentID         string
	Success         bool
	Output          string
	Error           string
	DurationSeconds float64
}

// effectiveTimeout resolves the timeout to use for cfg, applying the
// Opus thinking-effort multiplier when one is set.
func (cfg Config) effectiveTimeout() time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	base := DefaultTimeouts[cfg.Model]
	if base == 0 {
		base = 300 * time.Second
	}
	if cfg.Model == "opus" && cfg.ThinkingEffort != "" {
		if mult, ok := ThinkingEffortMultipliers[cfg.ThinkingEffort]; ok {
			return time.Duration(float64(base) * mult)
		}
	}
	return base
}

func validatePrompt(prompt string) (string, error) {
	if len(prompt) == 0 {
		return "", fmt.Errorf("executor: prompt cannot be empty")
	}
	trimmed := 0
	for _, r := range prompt {
		if r != ' ' && r != '\n' && r != '\t' {
			trimmed++
		}
	}
	if trimmed == 0 {
		return "", fmt.Errorf("executor: prompt cannot be empty")
	}
	if len(prompt) > MaxPromptLength {
		return "", fmt.Errorf("executor: prompt exceeds maximum length (%d chars)", MaxPromptLength)
	}

	cleaned := make([]rune, 0, len(prompt))
	for _, r := range prompt {
		if r == '\n' || r == '\t' || r >= 32 {
			cleaned = append(cleaned, r)
		}
	}
	return string(cleaned), nil
}

// Invocation is a validated, ready-to-run model invocation request.
type Invocation struct {
	Model   string
	Prompt  string
	Timeout time.Duration
}

// InvocationResult is what a ModelInvoker returns for one run.
type InvocationResult struct {
	Output   string
	ExitCode int
	TimedOut bool
}

// ModelInvoker runs one agent turn against a model backend. The
// production implementation shells out to the Claude CLI; tests supply
// a fake.
type ModelInvoker interface {
	Invoke(ctx context.Context, inv Invocation) (InvocationResult, error)
}

// Executor coordinates agent spawns against a registry and conflict
// manager.
type Executor struct {
	registry *registry.Registry
	conflict *conflict.Manager
	invoker  ModelInvoker
	now      func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New returns an Executor backed by reg, conf, and invoker.
func New(reg *registry.Registry, conf *conflict.Manager, invoker ModelInvoker) *Executor {
	return &Executor{
		registry: reg,
		conflict: conf,
		invoker:  invoker,
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// SpawnAgent registers, locks, runs, and reconciles one agent
// synchronously, returning its generated agent ID. A lock conflict or an
// invalid prompt marks the agent failed and returns its ID with a nil
// error; a registration failure returns an empty ID and the error, and a
// lock-store or start failure returns the ID together with the error.
func (e *Executor) SpawnAgent(ctx context.Context, cfg Config, taskID string) (string, error) {
	agentID, err := e.registry.Register(taskID, cfg.Subtask, cfg.AgentType, cfg.Model, cfg.FilesToLock, cfg.DQScore, cfg.CostEstimate)
	if err != nil {
		return "", fmt.Errorf("executor: register agent: %w", err)
	}

	if len(cfg.FilesToLock) > 0 {
		lockType := cfg.LockType
		if lockType == "" {
			lockType = types.LockRead
		}
		ok, failed, err := e.conflict.AcquireBatch(cfg.FilesToLock, agentID, lockType)
		if err != nil {
			return agentID, fmt.Errorf("executor: acquire locks: %w", err)
		}
		if !ok {
			_ = e.registry.Fail(agentID, fmt.Sprintf("could not acquire locks: %v", failed))
			return agentID, nil
		}
	}

	safePrompt, err := validatePrompt(cfg.Prompt)
	if err != nil {
		_ = e.registry.Fail(agentID, err.Error())
		_ = e.conflict.ReleaseAgent(agentID)
		return agentID, nil
	}

	if err := e.registry.Start(agentID); err != nil {
		return agentID, fmt.Errorf("executor: start agent: %w", err)
	}

	timeout := cfg.effectiveTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	e.trackCancel(agentID, cancel)
	defer e.untrackCancel(agentID)
	defer cancel()

	start := e.now()
	result, invokeErr := e.invoker.Invoke(runCtx, Invocation{Model: cfg.Model, Prompt: safePrompt, Timeout: timeout})
	elapsed := e.now().Sub(start).Seconds()

	switch {
	case invokeErr != nil && runCtx.Err() == context.DeadlineExceeded:
		_ = e.registry.Timeout(agentID)
	case invokeErr != nil:
		_ = e.registry.Fail(agentID, invokeErr.Error())
	case result.TimedOut:
		_ = e.registry.Timeout(agentID)
	case result.ExitCode != 0:
		_ = e.registry.Fail(agentID, fmt.Sprintf("non-zero exit code %d: %s", result.ExitCode, result.Output))
	default:
		_ = e.registry.Complete(agentID, map[string]any{"output": result.Output, "duration_seconds": elapsed})
	}

	_ = e.conflict.ReleaseAgent(agentID)
	return agentID, nil
}

func (e *Executor) trackCancel(agentID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels[agentID] = cancel
}

func (e *Executor) untrackCancel(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancels, agentID)
}

// SpawnParallel spawns configs concurrently, bounded by maxWorkers, and
// returns the agent ID of every spawn that returned no error (including
// agents failed by a lock conflict or prompt validation); a spawn that
// returned an error is omitted.
func (e *Executor) SpawnParallel(ctx context.Context, configs []Config, taskID string, maxWorkers int) []string {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var agentIDs []string

	for _, cfg := range configs {
		wg.Add(1)
		sem <- struct{}{}
		go func(cfg Config) {
			defer wg.Done()
			defer func() { <-sem }()

			agentID, err := e.SpawnAgent(ctx, cfg, taskID)
			if err != nil {
				return
			}
			mu.Lock()
			agentIDs = append(agentIDs, agentID)
			mu.Unlock()
		}(cfg)
	}

	wg.Wait()
	return agentIDs
}

// WaitForAgents polls the registry until every agent in agentIDs
// reaches a terminal state or timeout elapses, at which point any
// still-running agents are marked timed out.
func (e *Executor) WaitForAgents(ctx context.Context, agentIDs []string, timeout time.Duration, pollInterval time.Duration) (map[string]Result, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	results := make(map[string]Result, len(agentIDs))
	deadline := e.now().Add(timeout)

	for {
		allDone := true
		for _, agentID := range agentIDs {
			if _, done := results[agentID]; done {
				continue
			}

			agent, err := e.registry.Get(agentID)
			if err != nil {
				return nil, fmt.Errorf("executor: get agent %s: %w", agentID, err)
			}
			if agent == nil {
				results[agentID] = Result{AgentID: agentID, Success: false, Error: "agent not found"}
				continue
			}

			if agent.State.IsTerminal() {
				results[agentID] = Result{
					AgentID: agentID,
					Success: agent.State == types.AgentCompleted,
					Output:  agent.Result,
					Error:   agent.Error,
				}
			} else {
				allDone = false
			}
		}

		if allDone {
			return results, nil
		}

		if e.now().After(deadline) {
			for _, agentID := range agentIDs {
				if _, done := results[agentID]; done {
					continue
				}
				_ = e.registry.Timeout(agentID)
				results[agentID] = Result{AgentID: agentID, Success: false, Error: "wait timeout exceeded"}
			}
			return results, nil
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// CancelAgent cancels a running agent's in-flight invocation (if any),
// marks it cancelled, and releases its locks.
func (e *Executor) CancelAgent(agentID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[agentID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	if err := e.registry.Cancel(agentID); err != nil {
		return fmt.Errorf("executor: cancel agent: %w", err)
	}
	return e.conflict.ReleaseAgent(agentID)
}

// CancelTask cancels every pending or running agent under taskID.
func (e *Executor) CancelTask(taskID string) error {
	agents, err := e.registry.GetTaskAgents(taskID)
	if err != nil {
		return fmt.Errorf("executor: get task agents: %w", err)
	}
	for _, agent := range agents {
		if agent.State == types.AgentPending || agent.State == types.AgentRunning {
			if err := e.CancelAgent(agent.AgentID); err != nil {
				return err
			}
		}
	}
	return nil
}
