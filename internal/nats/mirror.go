package nats

import (
	"fmt"
	"log"

	"github.com/CLIAIMONITOR/internal/events"
)

// Mirror subscribes to the coordinator's audit bus and republishes
// session/agent lifecycle events onto NATS subjects for external
// dashboards (spec.md §4.19). It is the coordinator-domain replacement
// for the teacher's bidirectional agent-control Handler: a one-way
// publisher, not a command/control channel, consistent with
// "observability failures must not block the operation path"
// (spec.md §7.7) — a publish failure is logged, never returned to the
// caller that triggered the event.
type Mirror struct {
	client *Client
	bus    *events.Bus
	stopCh chan struct{}
}

// NewMirror creates a Mirror publishing bus events through client.
func NewMirror(client *Client, bus *events.Bus) *Mirror {
	return &Mirror{
		client: client,
		bus:    bus,
		stopCh: make(chan struct{}),
	}
}

// Start subscribes to every event type on the bus and forwards each one
// to NATS in its own goroutine until Stop is called.
func (m *Mirror) Start() {
	ch := m.bus.Subscribe("all", nil)
	go func() {
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				m.publish(event)
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the mirror's subscription loop. It does not unsubscribe
// from the bus; the caller should discard this Mirror afterward.
func (m *Mirror) Stop() {
	close(m.stopCh)
}

func (m *Mirror) publish(event events.Event) {
	subject, payload := m.route(event)
	if err := m.client.PublishJSON(subject, payload); err != nil {
		log.Printf("[NATS-MIRROR] failed to publish %s to %s: %v", event.Type, subject, err)
	}
}

// route picks the subject and wire payload for event based on its type.
func (m *Mirror) route(event events.Event) (string, interface{}) {
	switch event.Type {
	case events.EventSessionResult:
		sessionID, _ := event.Payload["session_id"].(string)
		if sessionID == "" {
			sessionID = "unknown"
		}
		return fmt.Sprintf(SubjectSessionEvent, sessionID), SessionEventMessage{
			SessionID: sessionID,
			Type:      string(event.Type),
			Payload:   event.Payload,
			Timestamp: event.CreatedAt,
		}
	case events.EventAgentState:
		agentID, _ := event.Payload["agent_id"].(string)
		if agentID == "" {
			agentID = "unknown"
		}
		return fmt.Sprintf(SubjectAgentEvent, agentID), AgentEventMessage{
			AgentID:   agentID,
			Type:      string(event.Type),
			Payload:   event.Payload,
			Timestamp: event.CreatedAt,
		}
	default:
		return SubjectAudit, AuditEventMessage{
			Type:      string(event.Type),
			Source:    event.Source,
			Target:    event.Target,
			Priority:  event.Priority,
			Payload:   event.Payload,
			Timestamp: event.CreatedAt,
		}
	}
}
