// Package decomposer implements contract-first task decomposition
// (spec.md §4.1): a task is recursively split into subtasks until every
// leaf meets a minimum verifiability bar, since delegation is only sound
// when the outcome can be precisely checked.
package decomposer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/CLIAIMONITOR/internal/types"
)

const (
	// MinVerifiability is the threshold below which a subtask is
	// recursively decomposed further instead of being accepted as a leaf.
	MinVerifiability = 0.3
	// MaxDepth bounds recursion; a subtask still unverifiable at this
	// depth is forced through with verifiability pinned to the minimum.
	MaxDepth = 4
)

// LLMDecomposeFunc produces subtasks for one decomposition step. A nil
// func, or one that returns an error, falls back to the heuristic
// templates below.
type LLMDecomposeFunc func(task string, profile types.TaskProfile, parentID string, depth int) ([]types.SubTask, error)

type template struct {
	description  string
	method       types.VerificationMethod
	cost         float64
	duration     float64
	parallelSafe bool
	dependencies []string
}

var buildKeywords = []string{"build", "create", "develop", "implement system"}
var researchKeywords = []string{"research", "investigate", "explore", "analyze"}
var implementKeywords = []string{"implement", "code", "write"}

func templatesFor(taskLower string) []template {
	switch {
	case containsAny(taskLower, buildKeywords):
		return []template{
			{"Design system architecture", types.VerificationHumanReview, 0.4, 0.3, false, nil},
			{"Implement core functionality", types.VerificationAutomatedTest, 0.5, 0.6, false, []string{"subtask-0"}},
			{"Add tests and validation", types.VerificationAutomatedTest, 0.3, 0.3, false, []string{"subtask-1"}},
			{"Deploy and verify", types.VerificationGroundTruth, 0.4, 0.4, false, []string{"subtask-2"}},
		}
	case containsAny(taskLower, researchKeywords):
		return []template{
			{"Survey existing solutions", types.VerificationHumanReview, 0.3, 0.4, true, nil},
			{"Analyze findings", types.VerificationSemanticSimilarity, 0.4, 0.5, false, []string{"subtask-0"}},
			{"Synthesize recommendations", types.VerificationHumanReview, 0.5, 0.4, false, []string{"subtask-1"}},
		}
	case containsAny(taskLower, implementKeywords):
		return []template{
			{"Plan implementation approach", types.VerificationHumanReview, 0.3, 0.2, false, nil},
			{"Write code", types.VerificationAutomatedTest, 0.5, 0.6, false, []string{"subtask-0"}},
			{"Add tests", types.VerificationAutomatedTest, 0.3, 0.3, false, []string{"subtask-1"}},
		}
	default:
		return []template{
			{"Understand requirements", types.VerificationHumanReview, 0.2, 0.2, false, nil},
			{"Execute main task", types.VerificationAutomatedTest, 0.6, 0.6, false, []string{"subtask-0"}},
			{"Verify completion", types.VerificationGroundTruth, 0.3, 0.2, false, []string{"subtask-1"}},
		}
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func newSubtaskID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "subtask-" + hex.EncodeToString(b)
}

// heuristicDecompose is the keyword-template fallback used when no
// LLMDecomposeFunc is supplied, or the supplied one errors.
func heuristicDecompose(task string, profile types.TaskProfile, parentID string, depth int) []types.SubTask {
	templates := templatesFor(strings.ToLower(task))

	subtasks := make([]types.SubTask, 0, len(templates))
	for _, tmpl := range templates {
		stProfile := types.TaskProfile{
			Complexity:           max64(0.2, profile.Complexity*0.6),
			Criticality:          profile.Criticality,
			Uncertainty:          max64(0.2, profile.Uncertainty*0.7),
			Duration:             tmpl.duration,
			Cost:                 tmpl.cost,
			ResourceRequirements: profile.ResourceRequirements * 0.5,
			Constraints:          profile.Constraints * 0.5,
			Verifiability:        0.7,
			Reversibility:        max64(0.5, profile.Reversibility),
			Contextuality:        profile.Contextuality * 0.6,
			Subjectivity:         profile.Subjectivity * 0.5,
		}

		desc := tmpl.description
		trimmed := task
		if len(trimmed) > 50 {
			trimmed = trimmed[:50]
		}
		desc = fmt.Sprintf("%s for: %s", desc, trimmed)

		subtasks = append(subtasks, types.SubTask{
			ID:                 newSubtaskID(),
			Description:        desc,
			VerificationMethod: tmpl.method,
			EstimatedCost:      tmpl.cost,
			EstimatedDuration:  tmpl.duration,
			ParallelSafe:       tmpl.parallelSafe,
			ParentID:           parentID,
			Dependencies:       tmpl.dependencies,
			Profile:            stProfile,
			Metadata:           map[string]any{"depth": depth, "heuristic": true},
		})
	}

	return subtasks
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// recursiveDecompose decomposes task, recursing into any subtask whose
// profile verifiability is below MinVerifiability.
func recursiveDecompose(task string, profile types.TaskProfile, parentID string, depth int, llmFn LLMDecomposeFunc) []types.SubTask {
	if depth >= MaxDepth {
		forced := profile
		forced.Verifiability = MinVerifiability
		return []types.SubTask{{
			ID:                 newSubtaskID(),
			Description:        task,
			VerificationMethod: types.VerificationHumanReview,
			EstimatedCost:      profile.Cost,
			EstimatedDuration:  profile.Duration,
			ParallelSafe:       true,
			ParentID:           parentID,
			Dependencies:       nil,
			Profile:            forced,
			Metadata:           map[string]any{"depth": depth, "forced_verifiable": true},
		}}
	}

	var subtasks []types.SubTask
	if llmFn != nil {
		if result, err := llmFn(task, profile, parentID, depth); err == nil {
			subtasks = result
		} else {
			subtasks = heuristicDecompose(task, profile, parentID, depth)
		}
	} else {
		subtasks = heuristicDecompose(task, profile, parentID, depth)
	}

	verified := make([]types.SubTask, 0, len(subtasks))
	for _, st := range subtasks {
		if st.Profile.Verifiability < MinVerifiability {
			nested := recursiveDecompose(st.Description, st.Profile, st.ID, depth+1, llmFn)
			verified = append(verified, nested...)
		} else {
			verified = append(verified, st)
		}
	}

	return verified
}

// analyzeDependencies propagates non-parallel-safety transitively: a
// subtask depending on a non-parallel-safe subtask is itself marked
// non-parallel-safe, iterated to a fixed point.
func analyzeDependencies(subtasks []types.SubTask) []types.SubTask {
	byID := make(map[string]*types.SubTask, len(subtasks))
	for i := range subtasks {
		byID[subtasks[i].ID] = &subtasks[i]
	}

	for changed := true; changed; {
		changed = false
		for i := range subtasks {
			st := &subtasks[i]
			if !st.ParallelSafe || len(st.Dependencies) == 0 {
				continue
			}
			allParallel := true
			for _, depID := range st.Dependencies {
				dep, ok := byID[depID]
				if !ok || !dep.ParallelSafe {
					allParallel = false
					break
				}
			}
			if !allParallel {
				st.ParallelSafe = false
				changed = true
			}
		}
	}

	return subtasks
}

// DecomposeTask decomposes task into verifiable subtasks, following the
// contract-first principle: every returned subtask has
// Profile.Verifiability >= MinVerifiability.
func DecomposeTask(task string, profile types.TaskProfile, llmFn LLMDecomposeFunc) []types.SubTask {
	subtasks := recursiveDecompose(task, profile, "", 0, llmFn)
	return analyzeDependencies(subtasks)
}
