package optimizer

import (
	"testing"
	"time"

	"github.com/CLIAIMONITOR/internal/store"
)

func setupTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s.DB())
}

func seedOutcomes(t *testing.T, o *Optimizer, n int, outcome string, quality, complexity, efficiency float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := o.db.Exec(
			`INSERT INTO outcomes (session_id, outcome, quality, complexity, model_efficiency, dq_score, confidence, analyzed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			"sess", outcome, quality, complexity, efficiency, 0.7, 0.7, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			t.Fatalf("seed outcome failed: %v", err)
		}
	}
}

func TestPropose_RequiresMinimumEvidence(t *testing.T) {
	o := setupTestOptimizer(t)
	seedOutcomes(t, o, 10, "success", 4.5, 0.6, 0.8)

	proposals, err := o.Propose()
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if proposals != nil {
		t.Errorf("expected no proposals below evidence threshold, got %+v", proposals)
	}
}

func TestPropose_ProducesHighConfidenceProposalsWithEnoughEvidence(t *testing.T) {
	o := setupTestOptimizer(t)
	seedOutcomes(t, o, 60, "success", 4.5, 0.6, 0.8)

	proposals, err := o.Propose()
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(proposals) == 0 {
		t.Fatal("expected at least one proposal with 60 consistent outcomes")
	}
	for _, p := range proposals {
		if p.Confidence <= MinConfidence {
			t.Errorf("expected proposal confidence above threshold, got %v for %s", p.Confidence, p.Parameter)
		}
	}
}

func TestApply_RecordsNewBaselineGeneration(t *testing.T) {
	o := setupTestOptimizer(t)
	seedOutcomes(t, o, 60, "success", 4.5, 0.6, 0.8)

	proposals, err := o.Propose()
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	applied, err := o.Apply(proposals)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !applied {
		t.Fatal("expected Apply to report success with non-empty proposals")
	}

	var count int
	row := o.db.QueryRow("SELECT COUNT(*) FROM baselines")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query baselines failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one baseline row after apply, got %d", count)
	}
}

func TestApply_ReturnsFalseForEmptyProposals(t *testing.T) {
	o := setupTestOptimizer(t)
	applied, err := o.Apply(nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if applied {
		t.Error("expected Apply to report false for an empty proposal set")
	}
}

func TestRollback_RequiresTwoGenerations(t *testing.T) {
	o := setupTestOptimizer(t)
	seedOutcomes(t, o, 60, "success", 4.5, 0.6, 0.8)
	proposals, _ := o.Propose()
	if _, err := o.Apply(proposals); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	rolledBack, err := o.Rollback()
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if rolledBack {
		t.Error("expected Rollback to fail with only one generation on record")
	}
}

func TestRollback_RevertsToPreviousGeneration(t *testing.T) {
	o := setupTestOptimizer(t)
	seedOutcomes(t, o, 60, "success", 4.5, 0.6, 0.8)
	first, _ := o.Propose()
	if _, err := o.Apply(first); err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}

	seedOutcomes(t, o, 10, "success", 1.0, 0.1, 0.1)
	second, _ := o.Propose()
	if _, err := o.Apply(second); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}

	rolledBack, err := o.Rollback()
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !rolledBack {
		t.Fatal("expected Rollback to succeed with two generations on record")
	}

	var count int
	row := o.db.QueryRow("SELECT COUNT(*) FROM baselines")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query baselines failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected rollback to add a third baseline row, got %d", count)
	}
}
