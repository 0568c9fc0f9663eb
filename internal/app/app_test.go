package app

import (
	"testing"

	"github.com/CLIAIMONITOR/internal/config"
)

func TestNew_WiresEveryComponent(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Notifications = config.NotificationToggles{} // keep the test headless

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.DB == nil {
		t.Error("expected a non-nil DB handle")
	}
	if a.Bus == nil {
		t.Error("expected a non-nil event bus")
	}
	if a.Gates == nil || a.Guardrails == nil {
		t.Error("expected Gates and Guardrails to be constructed")
	}
	if a.Registry == nil || a.Conflict == nil || a.Distributor == nil || a.Executor == nil || a.Orchestrator == nil {
		t.Error("expected the coordination pipeline to be fully wired")
	}
	if a.Optimizer == nil {
		t.Error("expected the optimizer to be constructed")
	}
	if a.Metrics == nil || a.Alerts == nil {
		t.Error("expected metrics collector and alert checker to be constructed")
	}
	if a.Notifications == nil {
		t.Error("expected a notification manager even with every channel disabled")
	}
}

func TestNew_SkipsNATSWhenURLUnset(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.NATSURL = ""

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.natsClient != nil || a.natsMirror != nil {
		t.Error("expected no NATS client/mirror when NATSURL is unset")
	}
}

func TestClose_IsSafeWithoutNATS(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close returned an error: %v", err)
	}
}
