package notifications

import (
	"fmt"

	"github.com/CLIAIMONITOR/internal/events"
)

// notifiableTypes are the event types that ever trigger an outward
// notification. Every other event type (e.g. EventAgentState registry
// churn) is too frequent to surface as a desktop toast or terminal flash.
var notifiableTypes = map[events.EventType]bool{
	events.EventSessionResult: true,
	events.EventGateDecision:  true,
	events.EventGuardrail:     true,
}

// payloadMessage extracts a human-readable message from an event's
// payload, falling back to the event type if the payload carries none.
func payloadMessage(event events.Event) string {
	if msg, ok := event.Payload["message"].(string); ok && msg != "" {
		return msg
	}
	return string(event.Type)
}

// isBlocked reports whether a gate-decision or guardrail event represents
// a block/kill rather than a pass/warn — only those are worth interrupting
// the user for.
func isBlocked(event events.Event) bool {
	switch event.Type {
	case events.EventGateDecision:
		approved, _ := event.Payload["approved"].(bool)
		return !approved
	case events.EventGuardrail:
		action, _ := event.Payload["action"].(string)
		return action == "kill"
	default:
		return true
	}
}

// ToastChannel adapts ToastNotifier to the NotificationChannel interface
// (spec.md §4.18): session completions and gate/guardrail blocks, fanned
// out through the EventSink rather than called directly by the
// orchestrator.
type ToastChannel struct {
	notifier *ToastNotifier
}

// NewToastChannel wraps notifier as a NotificationChannel.
func NewToastChannel(notifier *ToastNotifier) *ToastChannel {
	return &ToastChannel{notifier: notifier}
}

func (c *ToastChannel) Name() string { return "toast" }

func (c *ToastChannel) ShouldNotify(event events.Event) bool {
	if !c.notifier.IsSupported() || !notifiableTypes[event.Type] {
		return false
	}
	return event.Type == events.EventSessionResult || isBlocked(event)
}

func (c *ToastChannel) Send(event events.Event) error {
	message := payloadMessage(event)
	if event.Type == events.EventSessionResult {
		return c.notifier.ShowToast("Session Complete", message)
	}
	return c.notifier.NotifyGateBlocked(message)
}

// TerminalChannel adapts TerminalNotifier to the NotificationChannel
// interface for the same event set as ToastChannel.
type TerminalChannel struct {
	notifier *TerminalNotifier
}

// NewTerminalChannel wraps notifier as a NotificationChannel.
func NewTerminalChannel(notifier *TerminalNotifier) *TerminalChannel {
	return &TerminalChannel{notifier: notifier}
}

func (c *TerminalChannel) Name() string { return "terminal" }

func (c *TerminalChannel) ShouldNotify(event events.Event) bool {
	if !c.notifier.IsSupported() || !notifiableTypes[event.Type] {
		return false
	}
	return event.Type == events.EventSessionResult || isBlocked(event)
}

func (c *TerminalChannel) Send(event events.Event) error {
	message := payloadMessage(event)
	if event.Type == events.EventSessionResult {
		return c.notifier.FlashTerminal(fmt.Sprintf("session complete: %s", message))
	}
	return c.notifier.NotifyGateBlocked(message)
}

// BannerChannel adapts BannerNotifier to the NotificationChannel
// interface, surfacing every notifiable event on the web dashboard
// regardless of platform support.
type BannerChannel struct {
	notifier *BannerNotifier
}

// NewBannerChannel wraps notifier as a NotificationChannel.
func NewBannerChannel(notifier *BannerNotifier) *BannerChannel {
	return &BannerChannel{notifier: notifier}
}

func (c *BannerChannel) Name() string { return "banner" }

func (c *BannerChannel) ShouldNotify(event events.Event) bool {
	return notifiableTypes[event.Type]
}

func (c *BannerChannel) Send(event events.Event) error {
	message := payloadMessage(event)
	if event.Type == events.EventSessionResult {
		return c.notifier.Show(message, string(BannerTypeInfo))
	}
	if isBlocked(event) {
		return c.notifier.ShowGateBlockedAlert(message)
	}
	return c.notifier.Show(message, string(BannerTypeWarning))
}
