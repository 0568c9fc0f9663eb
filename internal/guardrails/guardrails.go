// Package guardrails implements the coordinator's runtime safety checks
// (spec.md §4.14): cost ceilings, duration limits, file-scope allow
// lists, and heartbeat staleness, each evaluated independently and
// returning a pass/warn/kill verdict rather than throwing.
package guardrails

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/CLIAIMONITOR/internal/events"
)

// Action is the remediation a guardrail check recommends.
type Action string

const (
	ActionContinue Action = "continue"
	ActionWarn     Action = "warn"
	ActionKill     Action = "kill"
)

// warnThreshold is the fraction of a limit at which a check warns
// instead of silently passing.
const warnThreshold = 0.8

// Result is the outcome of one guardrail check.
type Result struct {
	Passed    bool
	Violation string
	Action    Action
}

func ok() Result { return Result{Passed: true, Action: ActionContinue} }

// Config holds the limits a Guardrails instance enforces. A zero value
// for MaxCost or AllowedGlobs means "no limit" / "all paths allowed".
type Config struct {
	MaxCost          *float64
	MaxDuration      time.Duration
	AllowedGlobs     []string
	HeartbeatTimeout time.Duration
}

// DefaultConfig mirrors the original's constructor defaults.
func DefaultConfig() Config {
	return Config{
		MaxDuration:      300 * time.Second,
		HeartbeatTimeout: 60 * time.Second,
	}
}

// Guardrails evaluates runtime safety checks against a fixed Config.
type Guardrails struct {
	cfg    Config
	bus    *events.Bus
	source string
}

// New returns a Guardrails enforcing cfg.
func New(cfg Config) *Guardrails {
	return &Guardrails{cfg: cfg}
}

// WithBus attaches an EventSink so every warn/kill verdict CheckAll
// produces also fans out as an EventGuardrail, tagged with source (the
// agent or session the check was run for). Returns g for chaining; bus
// may be nil.
func (g *Guardrails) WithBus(bus *events.Bus, source string) *Guardrails {
	g.bus = bus
	g.source = source
	return g
}

func (g *Guardrails) publish(check string, r Result) {
	if g.bus == nil || r.Action == ActionContinue {
		return
	}
	priority := events.PriorityHigh
	if r.Action == ActionKill {
		priority = events.PriorityCritical
	}
	g.bus.Publish(events.NewEvent(events.EventGuardrail, "guardrails", "all", priority, map[string]interface{}{
		"check":     check,
		"action":    string(r.Action),
		"violation": r.Violation,
		"message":   r.Violation,
		"source":    g.source,
	}))
}

// CheckCost compares currentCost against MaxCost, killing over the
// limit and warning at 80% of it. A nil MaxCost always passes.
func (g *Guardrails) CheckCost(currentCost float64) Result {
	if g.cfg.MaxCost == nil {
		return ok()
	}
	max := *g.cfg.MaxCost

	if currentCost > max {
		return Result{
			Passed:    false,
			Violation: fmt.Sprintf("Cost limit exceeded: %.2f > %.2f", currentCost, max),
			Action:    ActionKill,
		}
	}
	if currentCost >= max*warnThreshold {
		return Result{
			Passed:    true,
			Violation: fmt.Sprintf("Cost approaching limit: %.2f / %.2f", currentCost, max),
			Action:    ActionWarn,
		}
	}
	return ok()
}

// CheckDuration compares elapsed against MaxDuration, killing over the
// limit and warning at 80% of it.
func (g *Guardrails) CheckDuration(elapsed time.Duration) Result {
	if elapsed > g.cfg.MaxDuration {
		return Result{
			Passed:    false,
			Violation: fmt.Sprintf("Duration limit exceeded: %ds > %ds", int(elapsed.Seconds()), int(g.cfg.MaxDuration.Seconds())),
			Action:    ActionKill,
		}
	}
	if float64(elapsed) >= float64(g.cfg.MaxDuration)*warnThreshold {
		return Result{
			Passed:    true,
			Violation: fmt.Sprintf("Duration approaching limit: %ds / %ds", int(elapsed.Seconds()), int(g.cfg.MaxDuration.Seconds())),
			Action:    ActionWarn,
		}
	}
	return ok()
}

// CheckScope verifies filePath matches at least one of AllowedGlobs
// (supporting ** via doublestar). A nil AllowedGlobs always passes.
func (g *Guardrails) CheckScope(filePath string) Result {
	if g.cfg.AllowedGlobs == nil {
		return ok()
	}

	for _, pattern := range g.cfg.AllowedGlobs {
		if matched, err := doublestar.Match(pattern, filePath); err == nil && matched {
			return ok()
		}
	}

	return Result{
		Passed:    false,
		Violation: fmt.Sprintf("File path outside allowed scope: %s", filePath),
		Action:    ActionKill,
	}
}

// CheckHeartbeat compares the time since lastHeartbeat against
// HeartbeatTimeout, killing over the limit and warning at 80% of it.
func (g *Guardrails) CheckHeartbeat(lastHeartbeat, now time.Time) Result {
	elapsed := now.Sub(lastHeartbeat)

	if elapsed > g.cfg.HeartbeatTimeout {
		return Result{
			Passed:    false,
			Violation: fmt.Sprintf("Heartbeat timeout: %.0fs since last heartbeat", elapsed.Seconds()),
			Action:    ActionKill,
		}
	}
	if float64(elapsed) >= float64(g.cfg.HeartbeatTimeout)*warnThreshold {
		return Result{
			Passed:    true,
			Violation: fmt.Sprintf("Heartbeat approaching timeout: %.0fs / %ds", elapsed.Seconds(), int(g.cfg.HeartbeatTimeout.Seconds())),
			Action:    ActionWarn,
		}
	}
	return ok()
}

// CheckAll runs cost, duration, and heartbeat checks, plus a scope
// check when filePath is non-empty, publishing every warn/kill verdict
// to the attached EventSink (spec.md §4.14, SPEC_FULL.md §4.7).
func (g *Guardrails) CheckAll(currentCost float64, elapsed time.Duration, filePath string, lastHeartbeat, now time.Time) []Result {
	cost := g.CheckCost(currentCost)
	g.publish("cost", cost)
	duration := g.CheckDuration(elapsed)
	g.publish("duration", duration)
	heartbeat := g.CheckHeartbeat(lastHeartbeat, now)
	g.publish("heartbeat", heartbeat)

	results := []Result{cost, duration, heartbeat}
	if filePath != "" {
		scope := g.CheckScope(filePath)
		g.publish("scope", scope)
		results = append(results, scope)
	}
	return results
}
