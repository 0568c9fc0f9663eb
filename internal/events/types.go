// Package events implements the coordinator's best-effort audit bus: domain
// events (gate decisions, registry transitions, session outcomes) are
// published here and fanned out to subscribers without ever blocking or
// failing the calling path.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of coordinator event being published.
type EventType string

const (
	EventGateDecision   EventType = "gate_decision"   // 4Ds gate pass/block
	EventAgentState     EventType = "agent_state"     // registry transition
	EventSessionResult  EventType = "session_result"  // orchestrator synthesis
	EventLockConflict   EventType = "lock_conflict"   // conflict manager rejection
	EventBaselineUpdate EventType = "baseline_update" // optimizer apply/rollback
	EventGuardrail      EventType = "guardrail"       // cost/duration/scope/heartbeat warn or kill
)

// Priority constants for events.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is a single auditable occurrence in the coordination pipeline.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates a new event with an auto-generated ID and timestamp.
func NewEvent(eventType EventType, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventGateDecision,
		EventAgentState,
		EventSessionResult,
		EventLockConflict,
		EventBaselineUpdate,
		EventGuardrail,
	}
}
