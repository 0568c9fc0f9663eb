package optimization

import "testing"

func TestSelectTopology_NoEdgesIsParallel(t *testing.T) {
	g := TaskGraph{Nodes: []string{"a", "b", "c"}}
	r := SelectTopology(g)
	if r.Topology != "parallel" {
		t.Errorf("expected parallel topology, got %s", r.Topology)
	}
	if len(r.AgentAssignments) != 3 {
		t.Errorf("expected 3 agent assignments, got %d", len(r.AgentAssignments))
	}
}

func TestSelectTopology_HighComplexityIsHierarchicalBeforeLinearCheck(t *testing.T) {
	g := TaskGraph{
		Nodes:        []string{"a", "b"},
		Edges:        [][2]string{{"a", "b"}},
		Complexities: map[string]float64{"a": 0.95},
	}
	r := SelectTopology(g)
	if r.Topology != "hierarchical" {
		t.Errorf("expected hierarchical topology for a high-complexity linear graph, got %s", r.Topology)
	}
	if r.AgentAssignments["supervisor"] != "agent_supervisor" {
		t.Errorf("expected a supervisor assignment, got %+v", r.AgentAssignments)
	}
}

func TestSelectTopology_LinearChainIsSequential(t *testing.T) {
	g := TaskGraph{
		Nodes: []string{"a", "b", "c"},
		Edges: [][2]string{{"a", "b"}, {"b", "c"}},
	}
	r := SelectTopology(g)
	if r.Topology != "sequential" {
		t.Errorf("expected sequential topology for a linear chain, got %s", r.Topology)
	}
	for _, n := range g.Nodes {
		if r.AgentAssignments[n] != "agent_0" {
			t.Errorf("expected every node on agent_0 for a sequential chain, got %+v", r.AgentAssignments)
		}
	}
}

func TestSelectTopology_BranchingGraphIsHybridAndAlwaysAgentZeroForSequentialNodes(t *testing.T) {
	// a -> b, a -> c: "a" alone, then {b, c} in parallel.
	g := TaskGraph{
		Nodes: []string{"a", "b", "c"},
		Edges: [][2]string{{"a", "b"}, {"a", "c"}},
	}
	r := SelectTopology(g)
	if r.Topology != "hybrid" {
		t.Errorf("expected hybrid topology for a branching graph, got %s", r.Topology)
	}
	if r.AgentAssignments["a"] != "agent_0" {
		t.Errorf("expected the lone sequential node to land on agent_0 (replicating the original's modulo quirk), got %+v", r.AgentAssignments)
	}
}

func TestSelectTopology_ExecutionOrderGroupsIndependentNodes(t *testing.T) {
	g := TaskGraph{
		Nodes: []string{"a", "b", "c"},
		Edges: [][2]string{{"a", "c"}, {"b", "c"}},
	}
	r := SelectTopology(g)
	if len(r.ExecutionOrder) != 2 {
		t.Fatalf("expected two execution steps, got %d: %+v", len(r.ExecutionOrder), r.ExecutionOrder)
	}
	if len(r.ExecutionOrder[0].Parallel) != 2 {
		t.Errorf("expected the first step to group the two independent roots, got %+v", r.ExecutionOrder[0])
	}
	if r.ExecutionOrder[1].Node != "c" {
		t.Errorf("expected c to run last, got %+v", r.ExecutionOrder[1])
	}
}
