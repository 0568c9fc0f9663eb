package types

import (
	"encoding/json"
	"testing"
)

func TestDefaultThresholds(t *testing.T) {
	thresholds := DefaultThresholds()

	if thresholds.FailedTestsMax != 5 {
		t.Errorf("FailedTestsMax = %d, want 5", thresholds.FailedTestsMax)
	}
	if thresholds.IdleTimeMaxSeconds != 600 {
		t.Errorf("IdleTimeMaxSeconds = %d, want 600", thresholds.IdleTimeMaxSeconds)
	}
	if thresholds.TokenUsageMax != 100000 {
		t.Errorf("TokenUsageMax = %d, want 100000", thresholds.TokenUsageMax)
	}
	if thresholds.ConsecutiveRejectsMax != 3 {
		t.Errorf("ConsecutiveRejectsMax = %d, want 3", thresholds.ConsecutiveRejectsMax)
	}
}

func TestAlertThresholdsJSONSerialization(t *testing.T) {
	thresholds := AlertThresholds{
		FailedTestsMax:        10,
		IdleTimeMaxSeconds:    300,
		TokenUsageMax:         50000,
		ConsecutiveRejectsMax: 2,
	}

	data, err := json.Marshal(thresholds)
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}

	var decoded AlertThresholds
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}

	if decoded.FailedTestsMax != 10 {
		t.Errorf("FailedTestsMax = %d, want 10", decoded.FailedTestsMax)
	}
	if decoded.TokenUsageMax != 50000 {
		t.Errorf("TokenUsageMax = %d, want 50000", decoded.TokenUsageMax)
	}
}

func TestAlertJSONSerialization(t *testing.T) {
	alert := &Alert{
		ID:           "alert-001",
		Type:         "failed_tests",
		AgentID:      "TestAgent",
		Message:      "Too many failures",
		Severity:     "warning",
		Acknowledged: false,
	}

	data, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}

	var decoded Alert
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}

	if decoded.Severity != "warning" {
		t.Errorf("Severity = %q, want %q", decoded.Severity, "warning")
	}
}

func TestTaskProfile_ValidateRejectsOutOfRange(t *testing.T) {
	p := TaskProfile{Complexity: 0.5, Criticality: 1.5}
	if err := p.Validate(); err == nil {
		t.Error("expected Validate to reject criticality=1.5")
	}

	valid := TaskProfile{
		Complexity: 0.5, Criticality: 0.3, Uncertainty: 0.2, Duration: 0.4,
		Cost: 0.1, ResourceRequirements: 0.2, Constraints: 0.3,
		Verifiability: 0.6, Reversibility: 0.5, Contextuality: 0.4, Subjectivity: 0.2,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid profile to pass, got %v", err)
	}
}

func TestCoordAgentState_IsTerminal(t *testing.T) {
	terminal := []CoordAgentState{AgentCompleted, AgentFailed, AgentTimeout, AgentCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	nonTerminal := []CoordAgentState{AgentPending, AgentRunning}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestSubTask_JSONRoundTrip(t *testing.T) {
	original := SubTask{
		ID:                 "sub-1",
		Description:        "implement parser",
		VerificationMethod: VerificationAutomatedTest,
		EstimatedCost:      0.3,
		EstimatedDuration:  0.4,
		ParallelSafe:       true,
		Dependencies:       []string{"sub-0"},
		Profile: TaskProfile{
			Complexity: 0.5, Verifiability: 0.6,
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal error: %v", err)
	}

	var decoded SubTask
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if decoded.VerificationMethod != original.VerificationMethod {
		t.Errorf("VerificationMethod = %q, want %q", decoded.VerificationMethod, original.VerificationMethod)
	}
	if !decoded.ParallelSafe {
		t.Error("expected ParallelSafe to round-trip as true")
	}
	if len(decoded.Dependencies) != 1 || decoded.Dependencies[0] != "sub-0" {
		t.Errorf("Dependencies = %v, want [sub-0]", decoded.Dependencies)
	}
}

func TestTrustEntry_TrustScoreInvariant(t *testing.T) {
	entry := TrustEntry{
		AgentID: "agent-1", TaskType: "implement",
		SuccessCount: 3, FailureCount: 1,
	}
	want := float64(entry.SuccessCount+1) / float64(entry.SuccessCount+entry.FailureCount+2)
	entry.TrustScore = want
	if entry.TrustScore != want {
		t.Errorf("TrustScore = %v, want %v", entry.TrustScore, want)
	}
}
