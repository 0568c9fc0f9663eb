package router

import (
	"errors"
	"testing"
	"time"

	"github.com/CLIAIMONITOR/internal/types"
)

type fakeTrustScorer struct {
	scores map[string]float64
	err    error
}

func (f *fakeTrustScorer) GetTrustScore(agentID, taskType string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[agentID], nil
}

func newTestRouter(trust TrustScorer) *Router {
	r := New(trust)
	r.now = func() time.Time { return time.Unix(0, 0) }
	return r
}

func TestRouteSubtask_BelowComplexityFloorBypassesDelegation(t *testing.T) {
	r := newTestRouter(nil)
	subtask := types.SubTask{ID: "sub-1", Description: "trivial lookup", Profile: types.TaskProfile{Complexity: 0.1}}

	a, err := r.RouteSubtask(subtask, []types.AgentCapability{{AgentID: "agent-a"}}, "implement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AgentID != DirectExecution {
		t.Errorf("AgentID = %q, want %q", a.AgentID, DirectExecution)
	}
	if a.Metadata["delegation_bypassed"] != true {
		t.Error("expected delegation_bypassed=true in metadata")
	}
}

func TestRouteSubtask_NoAgentsAvailableFallsBackToDirectExecution(t *testing.T) {
	r := newTestRouter(nil)
	subtask := types.SubTask{ID: "sub-2", Description: "implement parser", Profile: types.TaskProfile{Complexity: 0.7}}

	a, err := r.RouteSubtask(subtask, nil, "implement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AgentID != DirectExecution {
		t.Errorf("AgentID = %q, want %q", a.AgentID, DirectExecution)
	}
	if a.Metadata["no_agents_available"] != true {
		t.Error("expected no_agents_available=true in metadata")
	}
}

func TestRouteSubtask_SelectsBestCapabilityMatch(t *testing.T) {
	trust := &fakeTrustScorer{scores: map[string]float64{"agent-parser": 0.5, "agent-docs": 0.5}}
	r := newTestRouter(trust)

	subtask := types.SubTask{
		ID:            "sub-3",
		Description:   "implement parser for configuration files",
		Profile:       types.TaskProfile{Complexity: 0.7},
		EstimatedCost: 0.5,
	}
	agents := []types.AgentCapability{
		{AgentID: "agent-docs", Name: "Docs Writer", Keywords: []string{"documentation", "readme", "guide"}, EstimatedCost: 0.5},
		{AgentID: "agent-parser", Name: "Parser Builder", Keywords: []string{"parser", "configuration", "implement"}, EstimatedCost: 0.5},
	}

	a, err := r.RouteSubtask(subtask, agents, "implement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AgentID != "agent-parser" {
		t.Errorf("AgentID = %q, want agent-parser", a.AgentID)
	}
	if fallback, ok := a.Metadata["fallback_chain"].([]string); !ok || len(fallback) != 1 || fallback[0] != "agent-docs" {
		t.Errorf("fallback_chain = %v, want [agent-docs]", a.Metadata["fallback_chain"])
	}
}

func TestRouteSubtask_TrustScoreBreaksTie(t *testing.T) {
	trust := &fakeTrustScorer{scores: map[string]float64{"agent-low": 0.1, "agent-high": 0.9}}
	r := newTestRouter(trust)

	subtask := types.SubTask{ID: "sub-4", Description: "review implementation", Profile: types.TaskProfile{Complexity: 0.6}, EstimatedCost: 0.5}
	agents := []types.AgentCapability{
		{AgentID: "agent-low", Name: "Low Trust", EstimatedCost: 0.5},
		{AgentID: "agent-high", Name: "High Trust", EstimatedCost: 0.5},
	}

	a, err := r.RouteSubtask(subtask, agents, "review")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AgentID != "agent-high" {
		t.Errorf("AgentID = %q, want agent-high (higher trust breaks a capability-match tie)", a.AgentID)
	}
}

func TestRouteSubtask_PropagatesTrustLookupError(t *testing.T) {
	wantErr := errors.New("ledger unavailable")
	trust := &fakeTrustScorer{err: wantErr}
	r := newTestRouter(trust)

	subtask := types.SubTask{ID: "sub-5", Description: "implement feature", Profile: types.TaskProfile{Complexity: 0.6}}
	agents := []types.AgentCapability{{AgentID: "agent-a"}}

	_, err := r.RouteSubtask(subtask, agents, "implement")
	if err == nil {
		t.Fatal("expected an error from the failing TrustScorer")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestRouteBatch_RoutesEachSubtaskIndependently(t *testing.T) {
	trust := &fakeTrustScorer{scores: map[string]float64{"agent-a": 0.5}}
	r := newTestRouter(trust)

	subtasks := []types.SubTask{
		{ID: "sub-a", Description: "trivial", Profile: types.TaskProfile{Complexity: 0.05}},
		{ID: "sub-b", Description: "implement feature", Profile: types.TaskProfile{Complexity: 0.8}},
	}
	agents := []types.AgentCapability{{AgentID: "agent-a", Name: "Agent A"}}

	assignments, err := r.RouteBatch(subtasks, agents, "implement")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].AgentID != DirectExecution {
		t.Errorf("sub-a AgentID = %q, want %q (below complexity floor)", assignments[0].AgentID, DirectExecution)
	}
	if assignments[1].AgentID != "agent-a" {
		t.Errorf("sub-b AgentID = %q, want agent-a", assignments[1].AgentID)
	}
}
