// Package router implements the coordinator's Agent Router (spec.md
// §4.5): capability-matched, trust-weighted delegation of a subtask to
// one of a set of candidate agents.
package router

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/CLIAIMONITOR/internal/types"
)

// MinComplexityForDelegation is the complexity floor below which a
// subtask executes directly instead of being routed to an agent.
const MinComplexityForDelegation = 0.2

// Scoring weights, must sum to 1.0.
const (
	capabilityWeight = 0.6
	trustWeight      = 0.3
	costWeight       = 0.1
)

// DirectExecution is the pseudo agent ID returned when a subtask
// bypasses delegation, either because it falls below the complexity
// floor or because no agents are available to route to.
const DirectExecution = "DIRECT_EXECUTION"

var wordPattern = regexp.MustCompile(`\w+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "from": true, "with": true,
	"this": true, "that": true, "are": true, "was": true, "will": true,
	"can": true, "has": true, "have": true, "been": true, "get": true,
	"set": true, "list": true, "find": true, "search": true, "load": true,
	"create": true,
}

// TrustScorer supplies an agent's trust score for a task type. Pluggable
// so callers can back it with internal/trust's Ledger in production and
// a stub in tests. internal/trust.Ledger already satisfies this.
type TrustScorer interface {
	GetTrustScore(agentID, taskType string) (float64, error)
}

// Router routes subtasks to the best-matching agent by blending
// keyword-overlap capability match, trust score, and cost efficiency.
type Router struct {
	Trust TrustScorer
	now   func() time.Time
}

// New returns a Router backed by trust. trust may be nil, in which case
// every agent is scored with the uninformative prior trust score of 0.5.
func New(trust TrustScorer) *Router {
	return &Router{Trust: trust, now: time.Now}
}

// extractKeywords lowercases text, splits into word runs, and keeps
// only words at least 4 runes long that aren't in the stopword list,
// deduplicated.
func extractKeywords(text string) map[string]bool {
	words := wordPattern.FindAllString(toLower(text), -1)
	keywords := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) >= 4 && !stopwords[w] {
			keywords[w] = true
		}
	}
	return keywords
}

func toLower(s string) string {
	r := []rune(s)
	for i, c := range r {
		if c >= 'A' && c <= 'Z' {
			r[i] = c + ('a' - 'A')
		}
	}
	return string(r)
}

// capabilityMatch is the overlap between a subtask's extracted keywords
// and an agent's declared keywords, normalized by the larger of the two
// keyword counts. Zero if either side has no keywords.
func capabilityMatch(subtaskKeywords map[string]bool, agent types.AgentCapability) float64 {
	if len(subtaskKeywords) == 0 || len(agent.Keywords) == 0 {
		return 0
	}
	agentSet := make(map[string]bool, len(agent.Keywords))
	for _, k := range agent.Keywords {
		agentSet[k] = true
	}
	overlap := 0
	for k := range subtaskKeywords {
		if agentSet[k] {
			overlap++
		}
	}
	maxLen := len(subtaskKeywords)
	if len(agentSet) > maxLen {
		maxLen = len(agentSet)
	}
	return float64(overlap) / float64(maxLen)
}

type scoredAgent struct {
	agent           types.AgentCapability
	capabilityMatch float64
	trustScore      float64
	costEfficiency  float64
	finalScore      float64
}

// RouteSubtask routes one subtask to the best-scoring agent in agents,
// recording the top 3 runners-up as a fallback chain in the returned
// Assignment's metadata. taskType is passed through to the TrustScorer.
func (r *Router) RouteSubtask(subtask types.SubTask, agents []types.AgentCapability, taskType string) (types.Assignment, error) {
	if subtask.Profile.Complexity < MinComplexityForDelegation {
		return types.Assignment{
			SubtaskID:       subtask.ID,
			AgentID:         DirectExecution,
			TrustScore:      1.0,
			CapabilityMatch: 1.0,
			Timestamp:       r.now(),
			Reasoning: fmt.Sprintf(
				"complexity %.2f below delegation threshold %.1f -> direct execution",
				subtask.Profile.Complexity, MinComplexityForDelegation),
			Metadata: map[string]any{"delegation_bypassed": true},
		}, nil
	}

	if len(agents) == 0 {
		return types.Assignment{
			SubtaskID:       subtask.ID,
			AgentID:         DirectExecution,
			TrustScore:      0.5,
			CapabilityMatch: 0,
			Timestamp:       r.now(),
			Reasoning:       "no agents available -> fallback to direct execution",
			Metadata:        map[string]any{"no_agents_available": true},
		}, nil
	}

	subtaskKeywords := extractKeywords(subtask.Description)
	scored := make([]scoredAgent, 0, len(agents))
	for _, agent := range agents {
		trustScore := 0.5
		if r.Trust != nil {
			ts, err := r.Trust.GetTrustScore(agent.AgentID, taskType)
			if err != nil {
				return types.Assignment{}, fmt.Errorf("trust lookup for agent %s: %w", agent.AgentID, err)
			}
			trustScore = ts
		}

		cm := capabilityMatch(subtaskKeywords, agent)
		costEfficiency := 1.0 - math.Abs(subtask.EstimatedCost-agent.EstimatedCost)
		finalScore := cm*capabilityWeight + trustScore*trustWeight + costEfficiency*costWeight

		scored = append(scored, scoredAgent{
			agent: agent, capabilityMatch: cm, trustScore: trustScore,
			costEfficiency: costEfficiency, finalScore: finalScore,
		})
	}

	// Stable sort: agents tied on final_score keep their input order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].finalScore > scored[j].finalScore
	})

	best := scored[0]
	fallback := make([]string, 0, 3)
	for _, s := range scored[1:] {
		if len(fallback) == 3 {
			break
		}
		fallback = append(fallback, s.agent.AgentID)
	}

	return types.Assignment{
		SubtaskID:       subtask.ID,
		AgentID:         best.agent.AgentID,
		TrustScore:      best.trustScore,
		CapabilityMatch: best.capabilityMatch,
		Timestamp:       r.now(),
		Reasoning: fmt.Sprintf(
			"selected %s (score: %.3f) | capability: %.3f, trust: %.3f, cost: %.3f",
			best.agent.Name, best.finalScore, best.capabilityMatch, best.trustScore, best.costEfficiency),
		Metadata: map[string]any{
			"final_score":       best.finalScore,
			"cost_efficiency":   best.costEfficiency,
			"agent_name":        best.agent.Name,
			"agent_description": best.agent.Description,
			"fallback_chain":    fallback,
		},
	}, nil
}

// RouteBatch routes each subtask independently, stopping at the first
// error (e.g. a failed trust lookup).
func (r *Router) RouteBatch(subtasks []types.SubTask, agents []types.AgentCapability, taskType string) ([]types.Assignment, error) {
	assignments := make([]types.Assignment, 0, len(subtasks))
	for _, st := range subtasks {
		a, err := r.RouteSubtask(st, agents, taskType)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}
