// Package ace implements the ACE (analysis-consensus-evaluation) session
// analyzer (spec.md §4.12): six independent analysis passes over a
// completed session's transcript, synthesized into one consensus outcome
// via DQ-weighted voting, and persisted to the outcomes table for the
// optimizer and evolution engine to learn from.
package ace

import (
	"database/sql"
	"fmt"
	"time"
)

// Weights mirrors the DQ weighting used across every analysis pass:
// validity 40%, specificity 30%, correctness 30%.
var Weights = struct {
	Validity, Specificity, Correctness float64
}{Validity: 0.4, Specificity: 0.3, Correctness: 0.3}

// ToolCall is one tool invocation recorded in a session transcript.
type ToolCall struct {
	Name string
}

// SessionData is the subset of a session transcript the analyzers need.
type SessionData struct {
	SessionID string
	Messages  []string
	Errors    []string
	Tools     []ToolCall
	Model     string
}

// AnalysisResult is the output of a single analysis pass.
type AnalysisResult struct {
	AgentName  string
	Summary    string
	DQScore    float64
	Confidence float64
	Data       map[string]any
}

// Consensus is the synthesized outcome of all six analysis passes.
type Consensus struct {
	Outcome         string
	Quality         float64
	Complexity      float64
	ModelEfficiency float64
	DQScore         float64
	Confidence      float64
}

func hasTool(tools []ToolCall, names ...string) bool {
	for _, t := range tools {
		for _, name := range names {
			if t.Name == name {
				return true
			}
		}
	}
	return false
}

// DetectOutcome classifies a session's outcome (success/partial/error/
// research/abandoned) from coarse transcript signals.
func DetectOutcome(s SessionData) AnalysisResult {
	var outcome string
	var validity float64

	switch {
	case len(s.Errors) > 5:
		outcome, validity = "error", 0.7
	case len(s.Messages) < 5:
		outcome, validity = "abandoned", 0.5
	case hasTool(s.Tools, "Read") && !hasTool(s.Tools, "Write", "Edit"):
		outcome, validity = "research", 0.8
	case hasTool(s.Tools, "Write", "Edit"):
		validity = 0.7
		if len(s.Errors) < 3 {
			outcome = "success"
		} else {
			outcome = "partial"
		}
	default:
		outcome, validity = "partial", 0.5
	}

	dq := Weights.Validity*validity + Weights.Specificity*0.6

	return AnalysisResult{
		AgentName:  "outcome_detector",
		Summary:    fmt.Sprintf("Outcome: %s", outcome),
		DQScore:    dq,
		Confidence: 0.7,
		Data:       map[string]any{"outcome": outcome},
	}
}

// ScoreQuality rates a session 1-5 from its error rate.
func ScoreQuality(s SessionData) AnalysisResult {
	denom := len(s.Messages)
	if denom < 1 {
		denom = 1
	}
	errorRate := float64(len(s.Errors)) / float64(denom)

	var quality, correctness float64
	switch {
	case errorRate < 0.1:
		quality, correctness = 4.5, 0.8
	case errorRate < 0.2:
		quality, correctness = 3.5, 0.6
	default:
		quality, correctness = 2.5, 0.4
	}

	dq := Weights.Correctness*correctness + Weights.Specificity*0.6

	return AnalysisResult{
		AgentName:  "quality_scorer",
		Summary:    fmt.Sprintf("Quality: %.1f/5", quality),
		DQScore:    dq,
		Confidence: 0.7,
		Data:       map[string]any{"quality": quality},
	}
}

// AnalyzeComplexity estimates task complexity in [0,1] from transcript size.
func AnalyzeComplexity(s SessionData) AnalysisResult {
	msgCount, toolCount := len(s.Messages), len(s.Tools)

	var complexity, specificity float64
	switch {
	case msgCount > 50 || toolCount > 30:
		complexity, specificity = 0.8, 0.8
	case msgCount > 20 || toolCount > 15:
		complexity, specificity = 0.5, 0.6
	default:
		complexity, specificity = 0.3, 0.5
	}

	dq := Weights.Specificity*specificity + Weights.Validity*0.6

	return AnalysisResult{
		AgentName:  "complexity_analyzer",
		Summary:    fmt.Sprintf("Complexity: %.0f%%", complexity*100),
		DQScore:    dq,
		Confidence: 0.6,
		Data:       map[string]any{"complexity": complexity},
	}
}

// AssessModelEfficiency judges whether the model tier used matched the
// task's apparent complexity.
func AssessModelEfficiency(s SessionData) AnalysisResult {
	complexity := 0.5
	if len(s.Messages) >= 20 {
		complexity = 0.7
	}

	var efficiency float64
	var optimal string
	switch {
	case containsFold(s.Model, "opus"):
		optimal = "sonnet"
		efficiency = 0.5
		if complexity > 0.6 {
			optimal, efficiency = "opus", 0.9
		}
	case containsFold(s.Model, "sonnet"):
		efficiency, optimal = 0.8, "sonnet"
	case containsFold(s.Model, "haiku"):
		optimal = "sonnet"
		efficiency = 0.4
		if complexity <= 0.5 {
			optimal, efficiency = "haiku", 0.7
		}
	default:
		efficiency, optimal = 0.5, "unknown"
	}

	dq := Weights.Validity*0.6 + Weights.Correctness*efficiency

	return AnalysisResult{
		AgentName:  "model_efficiency",
		Summary:    fmt.Sprintf("Efficiency: %.0f%%", efficiency*100),
		DQScore:    dq,
		Confidence: 0.6,
		Data:       map[string]any{"efficiency": efficiency, "optimal_model": optimal},
	}
}

// AnalyzeProductivity scores the ratio of productive (Write/Edit) to
// exploratory (Read/Grep/Glob) tool calls.
func AnalyzeProductivity(s SessionData) AnalysisResult {
	var productive, exploratory int
	for _, t := range s.Tools {
		switch t.Name {
		case "Write", "Edit":
			productive++
		case "Read", "Grep", "Glob":
			exploratory++
		}
	}

	score := 0.3
	if productive > 0 {
		score = float64(productive) / float64(productive+exploratory)
	}

	level := "Low"
	switch {
	case score > 0.6:
		level = "High"
	case score > 0.3:
		level = "Moderate"
	}

	dq := Weights.Specificity*score + Weights.Validity*0.6

	return AnalysisResult{
		AgentName:  "productivity_analyzer",
		Summary:    fmt.Sprintf("Productivity: %s", level),
		DQScore:    dq,
		Confidence: 0.6,
		Data:       map[string]any{"productivity_score": score, "level": level},
	}
}

// AssessRoutingQuality judges whether the model tier suited the task's
// apparent complexity band.
func AssessRoutingQuality(s SessionData) AnalysisResult {
	complexity := 0.5
	if len(s.Messages) >= 20 {
		complexity = 0.7
	}

	var quality float64
	switch {
	case containsFold(s.Model, "opus") && complexity > 0.6:
		quality = 0.9
	case containsFold(s.Model, "sonnet") && complexity > 0.3 && complexity < 0.7:
		quality = 0.8
	case containsFold(s.Model, "haiku") && complexity < 0.4:
		quality = 0.8
	default:
		quality = 0.5
	}

	dq := Weights.Validity*quality + Weights.Specificity*0.6

	return AnalysisResult{
		AgentName:  "routing_quality",
		Summary:    fmt.Sprintf("Routing quality: %.0f%%", quality*100),
		DQScore:    dq,
		Confidence: 0.6,
		Data:       map[string]any{"routing_quality": quality},
	}
}

func containsFold(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	lower := toLower(s)
	target := toLower(substr)
	for i := 0; i+len(target) <= len(lower); i++ {
		if lower[i:i+len(target)] == target {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// RunAll runs all six analysis passes over s.
func RunAll(s SessionData) []AnalysisResult {
	return []AnalysisResult{
		DetectOutcome(s),
		ScoreQuality(s),
		AnalyzeComplexity(s),
		AssessModelEfficiency(s),
		AnalyzeProductivity(s),
		AssessRoutingQuality(s),
	}
}

// Synthesize combines analysis results into one Consensus via DQ-weighted
// voting. The outcome detector carries 2x weight — it is the primary
// authority on session outcome.
func Synthesize(results []AnalysisResult) Consensus {
	if len(results) == 0 {
		return Consensus{Outcome: "unknown", Quality: 3.0, Complexity: 0.5, ModelEfficiency: 0.5, DQScore: 0.5, Confidence: 0.3}
	}

	outcome := "unknown"
	quality := 3.0
	complexity := 0.5
	modelEfficiency := 0.5

	var totalDQ, totalWeight float64
	for _, r := range results {
		weight := r.DQScore * r.Confidence

		switch r.AgentName {
		case "outcome_detector":
			if v, ok := r.Data["outcome"].(string); ok {
				outcome = v
			}
			weight *= 2
		case "quality_scorer":
			if v, ok := r.Data["quality"].(float64); ok {
				quality = v
			}
		case "complexity_analyzer":
			if v, ok := r.Data["complexity"].(float64); ok {
				complexity = v
			}
		case "model_efficiency":
			if v, ok := r.Data["efficiency"].(float64); ok {
				modelEfficiency = v
			}
		}

		totalDQ += r.DQScore * weight
		totalWeight += weight
	}

	overallDQ := 0.5
	if totalWeight > 0 {
		overallDQ = totalDQ / totalWeight
	}

	var sumDQ, sumConf float64
	for _, r := range results {
		sumDQ += r.DQScore
		sumConf += r.Confidence
	}
	avgDQ := sumDQ / float64(len(results))
	avgConf := sumConf / float64(len(results))
	confidence := 0.6*avgDQ + 0.4*avgConf
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}

	return Consensus{
		Outcome:         outcome,
		Quality:         quality,
		Complexity:      complexity,
		ModelEfficiency: modelEfficiency,
		DQScore:         overallDQ,
		Confidence:      confidence,
	}
}

// Analyzer runs the full analysis-consensus pipeline and persists the
// consensus to the outcomes table.
type Analyzer struct {
	db  *sql.DB
	now func() time.Time
}

// New returns an Analyzer backed by db (the coordinator's shared *sql.DB).
func New(db *sql.DB) *Analyzer {
	return &Analyzer{db: db, now: time.Now}
}

// Analyze runs all analysis passes over s, synthesizes a consensus, records
// it to the outcomes table, and returns it.
func (a *Analyzer) Analyze(s SessionData) (Consensus, error) {
	consensus := Synthesize(RunAll(s))

	_, err := a.db.Exec(
		`INSERT INTO outcomes
		   (session_id, outcome, quality, complexity, model_efficiency, dq_score, confidence, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, consensus.Outcome, consensus.Quality, consensus.Complexity,
		consensus.ModelEfficiency, consensus.DQScore, consensus.Confidence,
		a.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return Consensus{}, fmt.Errorf("ace: record outcome: %w", err)
	}

	return consensus, nil
}
