package optimization

import "fmt"

// TaskGraph is a task dependency graph: nodes are task IDs, edges are
// (from, to) dependency pairs, and complexities optionally scores each
// node 0-1.
type TaskGraph struct {
	Nodes        []string
	Edges        [][2]string
	Complexities map[string]float64
}

// ExecutionStep is either a single task ID or a slice of task IDs that
// may run in parallel.
type ExecutionStep struct {
	Node     string
	Parallel []string
}

// TopologyResult is the outcome of selecting an execution topology.
type TopologyResult struct {
	Topology         string // parallel/sequential/hybrid/hierarchical
	AgentAssignments map[string]string
	ExecutionOrder   []ExecutionStep
}

func isLinearChain(g TaskGraph) bool {
	if len(g.Edges) == 0 {
		return false
	}
	if len(g.Edges) != len(g.Nodes)-1 {
		return false
	}

	inDegree := make(map[string]int, len(g.Nodes))
	outDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n] = 0
		outDegree[n] = 0
	}
	for _, e := range g.Edges {
		outDegree[e[0]]++
		inDegree[e[1]]++
	}
	for _, n := range g.Nodes {
		if inDegree[n] > 1 || outDegree[n] > 1 {
			return false
		}
	}
	return true
}

func hasHighComplexityNode(g TaskGraph) bool {
	for _, c := range g.Complexities {
		if c > 0.9 {
			return true
		}
	}
	return false
}

func topologicalSort(g TaskGraph) []ExecutionStep {
	inDegree := make(map[string]int, len(g.Nodes))
	children := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n] = 0
		children[n] = nil
	}
	for _, e := range g.Edges {
		children[e[0]] = append(children[e[0]], e[1])
		inDegree[e[1]]++
	}

	var queue []string
	for _, n := range g.Nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var result []ExecutionStep
	for len(queue) > 0 {
		if len(queue) == 1 {
			result = append(result, ExecutionStep{Node: queue[0]})
		} else {
			group := make([]string, len(queue))
			copy(group, queue)
			result = append(result, ExecutionStep{Parallel: group})
		}

		var next []string
		for _, n := range queue {
			for _, child := range children[n] {
				inDegree[child]--
				if inDegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		queue = next
	}
	return result
}

// SelectTopology chooses an execution topology for g: parallel when
// there are no dependencies, hierarchical (opus supervisor) when any
// node is very complex — checked before the linear-chain case —
// sequential for a single linear chain, and hybrid otherwise.
func SelectTopology(g TaskGraph) TopologyResult {
	switch {
	case len(g.Edges) == 0:
		assignments := make(map[string]string, len(g.Nodes))
		for i, n := range g.Nodes {
			assignments[n] = fmt.Sprintf("agent_%d", i)
		}
		nodes := make([]string, len(g.Nodes))
		copy(nodes, g.Nodes)
		return TopologyResult{
			Topology:         "parallel",
			AgentAssignments: assignments,
			ExecutionOrder:   []ExecutionStep{{Parallel: nodes}},
		}

	case hasHighComplexityNode(g):
		order := topologicalSort(g)
		assignments := map[string]string{"supervisor": "agent_supervisor"}
		for i, n := range g.Nodes {
			assignments[n] = fmt.Sprintf("agent_%d", i)
		}
		return TopologyResult{Topology: "hierarchical", AgentAssignments: assignments, ExecutionOrder: order}

	case isLinearChain(g):
		order := topologicalSort(g)
		assignments := make(map[string]string, len(g.Nodes))
		for _, n := range g.Nodes {
			assignments[n] = "agent_0"
		}
		return TopologyResult{Topology: "sequential", AgentAssignments: assignments, ExecutionOrder: order}

	default:
		order := topologicalSort(g)
		assignments := make(map[string]string)
		agentCount := 0
		for _, step := range order {
			if step.Parallel != nil {
				for _, n := range step.Parallel {
					assignments[n] = fmt.Sprintf("agent_%d", agentCount)
					agentCount++
				}
			} else {
				// Replicates the original's `agent_count % max(1, agent_count)`,
				// which is always 0 — every sequential node in a hybrid
				// topology lands on "agent_0". Kept as observed behavior.
				assignments[step.Node] = "agent_0"
			}
		}
		return TopologyResult{Topology: "hybrid", AgentAssignments: assignments, ExecutionOrder: order}
	}
}
