// Package optimization implements the coordinator's task-graph and
// resource-allocation heuristics (spec.md §4.13): pattern detection for
// strategy suggestion, topology selection for execution shape, and
// entropy-based resource allocation under a budget.
package optimization

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// pattern bundles a pattern name with its keyword list and suggested
// strategy. Kept as an ordered slice (not a map) so tie-break-by-first-
// match behavior matches the original's dict-insertion-order iteration.
type pattern struct {
	name     string
	keywords []string
	strategy string
}

var patterns = []pattern{
	{"debugging", []string{"debug", "fix", "bug", "error", "issue", "broken", "crash", "traceback"}, "review"},
	{"research", []string{"research", "explore", "investigate", "understand", "analyze", "study", "survey"}, "research"},
	{"architecture", []string{"architect", "design", "structure", "system", "refactor major", "redesign"}, "full"},
	{"refactoring", []string{"refactor", "rename", "extract", "reorganize", "cleanup", "simplify"}, "implement"},
	{"implementation", []string{"implement", "build", "create", "add", "feature", "develop", "new"}, "implement"},
	{"testing", []string{"test", "spec", "coverage", "vitest", "jest", "pytest", "assert"}, "review"},
	{"documentation", []string{"doc", "readme", "comment", "explain", "guide", "tutorial"}, "research"},
	{"optimization", []string{"optim", "performance", "speed", "efficient", "cache", "fast", "slow"}, "full"},
}

// PatternResult is the outcome of detecting a task's pattern.
type PatternResult struct {
	Pattern           string
	Confidence        float64
	SuggestedStrategy string
}

// DetectPattern scores taskDescription against every known pattern's
// keyword list and returns the best match. Ties keep the first pattern
// in declaration order, matching the original's dict-iteration tie-break.
func DetectPattern(taskDescription string) PatternResult {
	lower := strings.ToLower(taskDescription)

	bestName := ""
	bestStrategy := ""
	bestScore := 0
	bestKeywordCount := 0

	for _, p := range patterns {
		matches := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches > bestScore {
			bestName = p.name
			bestStrategy = p.strategy
			bestScore = matches
			bestKeywordCount = len(p.keywords)
		}
	}

	if bestScore == 0 {
		return PatternResult{Pattern: "unknown", Confidence: 0.0, SuggestedStrategy: "implement"}
	}

	confidence := float64(bestScore) / float64(bestKeywordCount)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return PatternResult{Pattern: bestName, Confidence: confidence, SuggestedStrategy: bestStrategy}
}

// PatternDetector persists detected patterns to the shared patterns table.
type PatternDetector struct {
	db  *sql.DB
	now func() time.Time
}

// NewPatternDetector returns a PatternDetector backed by db.
func NewPatternDetector(db *sql.DB) *PatternDetector {
	return &PatternDetector{db: db, now: time.Now}
}

// Detect runs DetectPattern and records the result against sessionID.
func (d *PatternDetector) Detect(sessionID, taskDescription string) (PatternResult, error) {
	result := DetectPattern(taskDescription)

	_, err := d.db.Exec(
		`INSERT INTO patterns (session_id, detected_pattern, confidence, selected_strategy, detected_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, result.Pattern, result.Confidence, result.SuggestedStrategy,
		d.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return PatternResult{}, fmt.Errorf("optimization: record pattern: %w", err)
	}
	return result, nil
}
