// Package scoring implements the Decision-Quality scorer and the
// complexity analyzer that feeds it: token-band and keyword-signal
// complexity estimation, per-tier validity/specificity/correctness
// scoring, and model-tier recommendation.
package scoring

import (
	"regexp"
	"strings"
)

// ModelTier identifies a model capability tier.
type ModelTier string

const (
	TierHaiku  ModelTier = "haiku"
	TierSonnet ModelTier = "sonnet"
	TierOpus   ModelTier = "opus"
)

// signalCategory is one keyword bag contributing to the complexity score.
type signalCategory struct {
	keywords []string
	weight   float64
}

const maxSignalMatches = 3

var signalCategories = map[string]signalCategory{
	"code":         {keywords: []string{"implement", "function", "class", "refactor", "bug", "code"}, weight: 0.15},
	"architecture": {keywords: []string{"architecture", "design", "system", "scalab", "distributed"}, weight: 0.25},
	"debug":        {keywords: []string{"debug", "error", "crash", "trace", "stack"}, weight: 0.10},
	"multiFile":    {keywords: []string{"across files", "multiple files", "codebase", "project-wide"}, weight: 0.20},
	"analysis":     {keywords: []string{"analyze", "investigate", "review", "evaluate"}, weight: 0.15},
	"creation":     {keywords: []string{"create", "build", "add", "write"}, weight: 0.10},
	"simple":       {keywords: []string{"typo", "rename", "small", "quick", "simple"}, weight: -0.15},
}

var requiresProjectContext = regexp.MustCompile(`(?i)(this project|our codebase|the repo|existing code|current implementation)`)
var conversationalPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|what is|explain)\b`)

// AnalyzeComplexity scores [0,1] from the query's token-count band plus
// weighted keyword-category signals, then applies the project-context and
// conversational adjustments.
func AnalyzeComplexity(query string) float64 {
	// Token count is a 4-char approximation, not a word count.
	tokenCount := max(1, len([]rune(query))/4)

	var score float64
	switch {
	case tokenCount <= 20:
		score = 0.10
	case tokenCount <= 100:
		score = 0.30
	case tokenCount <= 500:
		score = 0.60
	default:
		score = 0.90
	}

	lower := strings.ToLower(query)
	for _, cat := range signalCategories {
		matches := 0
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				matches++
				if matches >= maxSignalMatches {
					break
				}
			}
		}
		score += float64(matches) * cat.weight
	}

	if requiresProjectContext.MatchString(query) {
		score += 0.15
	}

	if conversationalPattern.MatchString(strings.TrimSpace(query)) && len([]rune(query)) < 50 {
		score -= 0.20
	}

	return clamp01(score)
}

// RecommendedTier maps a complexity score to the cheapest capable tier.
func RecommendedTier(complexity float64) ModelTier {
	switch {
	case complexity < 0.25:
		return TierHaiku
	case complexity < 0.60:
		return TierSonnet
	default:
		return TierOpus
	}
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
