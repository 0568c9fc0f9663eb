package trust

import (
	"testing"
	"time"

	"github.com/CLIAIMONITOR/internal/store"
)

func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s.DB())
}

func TestRecordOutcome_NewAgentUninformativePriorThenUpdates(t *testing.T) {
	l := setupTestLedger(t)

	score, err := l.GetTrustScore("agent-1", "code_review")
	if err != nil {
		t.Fatalf("GetTrustScore failed: %v", err)
	}
	if score != 0.5 {
		t.Errorf("expected uninformative prior 0.5 for unknown agent, got %v", score)
	}

	score, err = l.RecordOutcome("agent-1", "code_review", true, 0.9, 12.0)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	// alpha=2, beta=1 -> 2/3
	want := 2.0 / 3.0
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected trust score %v after one success, got %v", want, score)
	}
}

func TestRecordOutcome_RunningAveragesQualityAndDuration(t *testing.T) {
	l := setupTestLedger(t)

	if _, err := l.RecordOutcome("agent-2", "research", true, 1.0, 10.0); err != nil {
		t.Fatalf("first RecordOutcome failed: %v", err)
	}
	if _, err := l.RecordOutcome("agent-2", "research", false, 0.0, 20.0); err != nil {
		t.Fatalf("second RecordOutcome failed: %v", err)
	}

	stats, err := l.GetAgentStats("agent-2", "research")
	if err != nil {
		t.Fatalf("GetAgentStats failed: %v", err)
	}
	if stats == nil {
		t.Fatal("expected stats to be non-nil")
	}
	if stats.SuccessCount != 1 || stats.FailureCount != 1 {
		t.Errorf("expected 1 success / 1 failure, got %d/%d", stats.SuccessCount, stats.FailureCount)
	}
	if stats.AvgQuality != 0.5 {
		t.Errorf("expected avg quality 0.5, got %v", stats.AvgQuality)
	}
	if stats.AvgDuration != 15.0 {
		t.Errorf("expected avg duration 15.0, got %v", stats.AvgDuration)
	}
	// alpha=2, beta=2 -> 0.5
	if stats.TrustScore != 0.5 {
		t.Errorf("expected trust score 0.5, got %v", stats.TrustScore)
	}
}

func TestRecordOutcome_RejectsOutOfRangeQuality(t *testing.T) {
	l := setupTestLedger(t)

	if _, err := l.RecordOutcome("agent-3", "debug", true, 1.5, 1.0); err == nil {
		t.Error("expected error for quality > 1.0")
	}
	if _, err := l.RecordOutcome("agent-3", "debug", true, 0.5, -1.0); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestGetTrustScore_AppliesDecayWhenStale(t *testing.T) {
	l := setupTestLedger(t)
	l.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	if _, err := l.RecordOutcome("agent-4", "implement", true, 1.0, 1.0); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	// Still fresh: no decay. alpha=2, beta=1 -> 2/3
	base := 2.0 / 3.0
	l.now = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	fresh, err := l.GetTrustScore("agent-4", "implement")
	if err != nil {
		t.Fatalf("GetTrustScore failed: %v", err)
	}
	if fresh != base {
		t.Errorf("expected no decay within 7 days, got %v", fresh)
	}

	// 8 days later: decay applied.
	l.now = func() time.Time { return time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC) }
	stale, err := l.GetTrustScore("agent-4", "implement")
	if err != nil {
		t.Fatalf("GetTrustScore failed: %v", err)
	}
	want := base * DecayFactor
	if stale != want {
		t.Errorf("expected decayed score %v after 8 days, got %v", want, stale)
	}
}

func TestGetTopAgents_OrderedByDecayedTrustDesc(t *testing.T) {
	l := setupTestLedger(t)

	mustRecord := func(agentID string, successes, failures int) {
		for i := 0; i < successes; i++ {
			if _, err := l.RecordOutcome(agentID, "review", true, 0.8, 5.0); err != nil {
				t.Fatalf("RecordOutcome failed: %v", err)
			}
		}
		for i := 0; i < failures; i++ {
			if _, err := l.RecordOutcome(agentID, "review", false, 0.2, 5.0); err != nil {
				t.Fatalf("RecordOutcome failed: %v", err)
			}
		}
	}

	mustRecord("low-trust", 0, 5)
	mustRecord("high-trust", 5, 0)

	top, err := l.GetTopAgents("review", 5)
	if err != nil {
		t.Fatalf("GetTopAgents failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].AgentID != "high-trust" {
		t.Errorf("expected high-trust ranked first, got %s", top[0].AgentID)
	}
	if top[0].TrustScore <= top[1].TrustScore {
		t.Errorf("expected descending trust order, got %v then %v", top[0].TrustScore, top[1].TrustScore)
	}
}
