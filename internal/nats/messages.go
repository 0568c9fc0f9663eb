package nats

import "time"

// Subject pattern constants for the coordinator's optional NATS mirror
// (spec.md §4.19 / SPEC_FULL.md §4.19): session and agent lifecycle
// events are mirrored onto these subjects for external dashboards.
// Use fmt.Sprintf(SubjectSessionEvent, sessionID) / fmt.Sprintf(SubjectAgentEvent, agentID)
// to build a specific subject; the SubjectAll* patterns subscribe to
// every instance of a kind.
const (
	SubjectSessionEvent    = "coordinator.session.%s"
	SubjectAllSessionEvent = "coordinator.session.*"
	SubjectAgentEvent      = "coordinator.agent.%s"
	SubjectAllAgentEvent   = "coordinator.agent.*"

	// SubjectAudit carries every other domain event (gate decisions,
	// lock conflicts, baseline updates, guardrail actions) that isn't
	// scoped to one session or agent.
	SubjectAudit = "coordinator.audit"
)

// SessionEventMessage is the wire format for a mirrored session-lifecycle
// event (orchestrator synthesis, in spec.md §4.11 terms).
type SessionEventMessage struct {
	SessionID string                 `json:"session_id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// AgentEventMessage is the wire format for a mirrored agent-lifecycle
// event (registry state transition, spec.md §4.9).
type AgentEventMessage struct {
	AgentID   string                 `json:"agent_id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// AuditEventMessage is the wire format for a mirrored domain event that
// isn't scoped to a single session or agent.
type AuditEventMessage struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// ClientInfo represents a connected NATS client.
type ClientInfo struct {
	ClientID    string    `json:"client_id"`
	ConnectedAt time.Time `json:"connected_at"`
}
