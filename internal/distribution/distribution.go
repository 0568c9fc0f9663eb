// Package distribution assigns subtasks to models and estimates their
// cost (spec.md §4.11): a lighter, orchestrator-facing sibling to
// internal/scoring's DQ scorer, scoped to the fields the executor
// needs to actually spawn an agent (files, lock type, model, cost).
package distribution

import (
	"strings"
)

// Weights are this package's own DQ weighting, distinct from (and
// lighter than) internal/scoring's tier-selection weights: validity
// dominates here because the assignment has already fixed the model,
// so the main question is whether that choice was appropriate.
var Weights = struct {
	Validity    float64
	Specificity float64
	Correctness float64
}{Validity: 0.4, Specificity: 0.3, Correctness: 0.3}

// ComplexityThreshold is a [min, max) complexity band for a model tier.
type ComplexityThreshold struct {
	Min, Max float64
}

// ComplexityThresholds map each tier to the complexity band it owns.
var ComplexityThresholds = map[string]ComplexityThreshold{
	"haiku":  {Min: 0.0, Max: 0.30},
	"sonnet": {Min: 0.30, Max: 0.70},
	"opus":   {Min: 0.70, Max: 1.0},
}

// CostPerMtok is the approximate dollar cost per million input/output
// tokens for each tier.
var CostPerMtok = map[string]struct{ Input, Output float64 }{
	"haiku":  {Input: 0.25, Output: 1.25},
	"sonnet": {Input: 3.0, Output: 15.0},
	"opus":   {Input: 5.0, Output: 25.0},
}

// bestFor lists the task-type hints each tier is the preferred choice
// for, independent of raw complexity.
var bestFor = map[string][]string{
	"haiku":  {"explore", "read", "search", "simple review"},
	"sonnet": {"implement", "refactor", "debug", "test", "review"},
	"opus":   {"architecture", "research", "complex design", "multi-step planning"},
}

var highComplexityKeywords = []string{
	"architecture", "design", "refactor", "rewrite", "optimize", "complex",
	"system", "framework", "integrate", "migrate", "security", "performance",
	"scalable", "distributed",
}

var mediumComplexityKeywords = []string{
	"implement", "create", "build", "add", "modify", "update",
	"fix", "debug", "test", "analyze", "review",
}

var lowComplexityKeywords = []string{
	"read", "find", "search", "list", "check", "show",
	"simple", "quick", "basic", "minor",
}

var writeOperationKeywords = []string{"write", "edit", "create file", "modify"}
var multiFileKeywords = []string{"multiple files", "several files", "across files"}

// EstimateComplexity scores a subtask's complexity in [0, 1] from its
// text and optional context, starting from a 0.3 base and nudging for
// keyword signals and implied file operations.
func EstimateComplexity(subtask, context string) float64 {
	text := strings.ToLower(subtask + " " + context)
	score := 0.3

	for _, kw := range highComplexityKeywords {
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}
	for _, kw := range mediumComplexityKeywords {
		if strings.Contains(text, kw) {
			score += 0.05
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(text, kw) {
			score -= 0.05
		}
	}
	if containsAny(text, writeOperationKeywords) {
		score += 0.1
	}
	if containsAny(text, multiFileKeywords) {
		score += 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// SelectModel picks the tier for complexity, preferring a taskType's
// declared best-fit tier when complexity doesn't exceed that tier's
// band.
func SelectModel(complexity float64, taskType string) string {
	if taskType != "" {
		taskTypeLower := strings.ToLower(taskType)
		for _, model := range []string{"haiku", "sonnet", "opus"} {
			for _, fit := range bestFor[model] {
				if fit == taskTypeLower {
					if complexity > ComplexityThresholds[model].Max {
						continue
					}
					return model
				}
			}
		}
	}

	for _, model := range []string{"haiku", "sonnet", "opus"} {
		t := ComplexityThresholds[model]
		if complexity >= t.Min && complexity < t.Max {
			return model
		}
	}

	if complexity >= 0.7 {
		return "opus"
	}
	return "sonnet"
}

// EstimateCost approximates a subtask's dollar cost for model, from an
// explicit token estimate or, absent one, from the subtask's word
// count.
func EstimateCost(subtask, model string, estimatedTokens int) float64 {
	var inputTokens, outputTokens float64
	if estimatedTokens <= 0 {
		words := float64(len(strings.Fields(subtask)))
		inputTokens = max64(150, words*1.5) + 1000
		outputTokens = max64(500, words*5)
	} else {
		inputTokens = float64(estimatedTokens) * 0.3
		outputTokens = float64(estimatedTokens) * 0.7
	}

	costs, ok := CostPerMtok[model]
	if !ok {
		costs = CostPerMtok["sonnet"]
	}

	inputCost := (inputTokens / 1_000_000) * costs.Input
	outputCost := (outputTokens / 1_000_000) * costs.Output
	return inputCost + outputCost
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

var specificWords = []string{"specifically", "exactly", "only"}
var vagueWords = []string{"maybe", "perhaps", "might"}

// CalculateDQScore scores a subtask-model assignment as a weighted sum
// of validity (does the model fit the complexity band), specificity
// (how well-defined the subtask text is), and correctness (historical
// accuracy for model, from baselines — 0.7 when unknown).
func CalculateDQScore(subtask, model string, complexity float64, baselineAccuracy map[string]float64) float64 {
	thresholds := ComplexityThresholds[model]
	var validity float64
	switch {
	case complexity >= thresholds.Min && complexity < thresholds.Max:
		validity = 1.0
	case abs(complexity-(thresholds.Min+thresholds.Max)/2) < 0.15:
		validity = 0.7
	default:
		validity = 0.4
	}

	specificity := 0.5
	if len(subtask) > 50 {
		specificity += 0.2
	}
	subtaskLower := strings.ToLower(subtask)
	if containsAny(subtaskLower, specificWords) {
		specificity += 0.15
	}
	if containsAny(subtaskLower, vagueWords) {
		specificity -= 0.15
	}
	specificity = clamp01(specificity)

	correctness := 0.7
	if baselineAccuracy != nil {
		if v, ok := baselineAccuracy[model]; ok {
			correctness = v
		}
	}

	dq := validity*Weights.Validity + specificity*Weights.Specificity + correctness*Weights.Correctness
	return round3(dq)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

// SubtaskSpec is the orchestrator-level input to Assign: a subtask's
// description plus its declared file footprint and type hints.
type SubtaskSpec struct {
	Subtask   string
	Files     []string
	LockType  string
	AgentType string
	Priority  int
}

// Assignment is one subtask assigned to a model, with its cost and DQ
// estimate, ready to become an executor.Config.
type Assignment struct {
	Subtask      string
	Model        string
	Complexity   float64
	DQScore      float64
	CostEstimate float64
	Priority     int
	AgentType    string
	Files        []string
	LockType     string
}

// Distributor assigns subtasks to models using complexity-band
// selection, optionally informed by historical accuracy baselines.
type Distributor struct {
	BaselineAccuracy map[string]float64
}

// New returns a Distributor with no baseline accuracy data (correctness
// falls back to 0.7 for every model).
func New() *Distributor {
	return &Distributor{}
}

// Assign scores and models every spec, defaulting unset lock types to
// "read" and agent types to "general-purpose", then sorts the result by
// ascending priority (lower runs first).
func (d *Distributor) Assign(specs []SubtaskSpec) []Assignment {
	assignments := make([]Assignment, 0, len(specs))

	for i, spec := range specs {
		lockType := spec.LockType
		if lockType == "" {
			lockType = "read"
		}
		agentType := spec.AgentType
		if agentType == "" {
			agentType = "general-purpose"
		}
		priority := spec.Priority
		if priority == 0 && i > 0 {
			priority = i
		}

		complexity := EstimateComplexity(spec.Subtask, "")
		if lockType == "write" {
			complexity = clamp01(complexity + 0.1)
		}

		model := SelectModel(complexity, agentType)
		dqScore := d.CalculateDQScore(spec.Subtask, model, complexity)
		cost := EstimateCost(spec.Subtask, model, 0)

		assignments = append(assignments, Assignment{
			Subtask:      spec.Subtask,
			Model:        model,
			Complexity:   complexity,
			DQScore:      dqScore,
			CostEstimate: cost,
			Priority:     priority,
			AgentType:    agentType,
			Files:        spec.Files,
			LockType:     lockType,
		})
	}

	sortByPriority(assignments)
	return assignments
}

// CalculateDQScore delegates to the package-level function using this
// distributor's baseline accuracy data.
func (d *Distributor) CalculateDQScore(subtask, model string, complexity float64) float64 {
	return CalculateDQScore(subtask, model, complexity, d.BaselineAccuracy)
}

func sortByPriority(assignments []Assignment) {
	for i := 1; i < len(assignments); i++ {
		j := i
		for j > 0 && assignments[j-1].Priority > assignments[j].Priority {
			assignments[j-1], assignments[j] = assignments[j], assignments[j-1]
			j--
		}
	}
}

// CostEstimateSummary totals an assignment batch's cost, broken down by
// model.
type CostEstimateSummary struct {
	Total      float64
	ByModel    map[string]float64
	AgentCount int
}

// EstimateTotalCost sums an assignment batch's cost estimates, broken
// down by model tier.
func EstimateTotalCost(assignments []Assignment) CostEstimateSummary {
	summary := CostEstimateSummary{
		ByModel:    map[string]float64{"haiku": 0, "sonnet": 0, "opus": 0},
		AgentCount: len(assignments),
	}
	for _, a := range assignments {
		summary.Total += a.CostEstimate
		summary.ByModel[a.Model] += a.CostEstimate
	}
	summary.Total = round4(summary.Total)
	for k, v := range summary.ByModel {
		summary.ByModel[k] = round4(v)
	}
	return summary
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}

// OptimizeForCost downgrades assignments' models, cheapest first where
// needed, to fit within budget, dropping any assignment that cannot be
// made to fit even at the haiku tier.
func (d *Distributor) OptimizeForCost(assignments []Assignment, budget float64) []Assignment {
	var optimized []Assignment
	remaining := budget

	for _, a := range assignments {
		if a.CostEstimate <= remaining {
			optimized = append(optimized, a)
			remaining -= a.CostEstimate
			continue
		}

		if a.Model == "opus" {
			newCost := EstimateCost(a.Subtask, "sonnet", 0)
			if newCost <= remaining {
				a.Model = "sonnet"
				a.CostEstimate = newCost
				a.DQScore = d.CalculateDQScore(a.Subtask, "sonnet", a.Complexity)
				optimized = append(optimized, a)
				remaining -= newCost
				continue
			}
		}

		if a.Model == "opus" || a.Model == "sonnet" {
			newCost := EstimateCost(a.Subtask, "haiku", 0)
			if newCost <= remaining {
				a.Model = "haiku"
				a.CostEstimate = newCost
				a.DQScore = d.CalculateDQScore(a.Subtask, "haiku", a.Complexity)
				optimized = append(optimized, a)
				remaining -= newCost
			}
		}
	}

	return optimized
}

// researchKeywords, implementTaskKeywords, and testKeywords drive the
// flat, non-recursive decomposition DecomposeTaskSimple performs — a
// lighter sibling to internal/decomposer's contract-first recursive
// decomposition, used by the orchestrator for its non-strategy-specific
// "auto" fallback.
var researchKeywords = []string{"understand", "analyze", "explore", "find", "investigate"}
var implementTaskKeywords = []string{"implement", "create", "add", "build", "write"}
var testKeywords = []string{"test", "verify", "check"}

// DecomposeTaskSimple splits task into up to four canonical phases
// (research, implement, test, review) based on keyword presence, always
// including a review phase and falling back to a single generic subtask
// plus review when nothing else matched.
func DecomposeTaskSimple(task string) []SubtaskSpec {
	taskLower := strings.ToLower(task)
	var subtasks []SubtaskSpec

	if containsAny(taskLower, researchKeywords) {
		subtasks = append(subtasks, SubtaskSpec{
			Subtask: "Research and explore: " + task, AgentType: "explore", LockType: "read", Priority: 0,
		})
	}
	if containsAny(taskLower, implementTaskKeywords) {
		subtasks = append(subtasks, SubtaskSpec{
			Subtask: "Implement: " + task, AgentType: "general-purpose", LockType: "write", Priority: 1,
		})
	}
	if containsAny(taskLower, testKeywords) {
		subtasks = append(subtasks, SubtaskSpec{
			Subtask: "Test and verify: " + task, AgentType: "general-purpose", LockType: "read", Priority: 2,
		})
	}

	subtasks = append(subtasks, SubtaskSpec{
		Subtask: "Review changes for: " + task, AgentType: "explore", LockType: "read", Priority: 3,
	})

	if len(subtasks) == 1 {
		subtasks = append([]SubtaskSpec{{
			Subtask: task, AgentType: "general-purpose", LockType: "read", Priority: 0,
		}}, subtasks...)
	}

	return subtasks
}
