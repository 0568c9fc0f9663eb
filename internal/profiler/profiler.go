// Package profiler assigns an eleven-dimensional TaskProfile to a free-form
// task description using keyword-band heuristics, with an optional
// pluggable classifier for callers that want to replace the heuristics.
package profiler

import (
	"errors"
	"strings"

	"github.com/CLIAIMONITOR/internal/types"
)

// ErrEmptyDescription is returned when Classify is given a blank
// description.
var ErrEmptyDescription = errors.New("profiler: empty description")

// Context carries the optional flags that post-modify a heuristic profile.
type Context struct {
	IsCritical    bool
	TimeSensitive bool
	HighStakes    bool
}

// Classifier is the injection point for a custom task classifier. It
// returns a complete profile or an error; on error the caller falls back
// to heuristics.
type Classifier func(description string, ctx Context) (types.TaskProfile, error)

// maxKeywordMatches caps the keyword hit count. Matches beyond 3 keywords in
// a category don't add further score, mirroring the dq_scorer/complexity
// style of capping category contribution.
const maxKeywordMatches = 3

type keywordCategory struct {
	keywords []string
	weight   float64
}

// dimensionKeywords gives each of the eleven dimensions its own keyword
// bag and a per-match weight; bands are applied on top via scoreDimension.
var dimensionKeywords = map[string]keywordCategory{
	"complexity": {
		keywords: []string{"architecture", "distributed", "concurrent", "complex", "integrate", "system", "refactor"},
		weight:   0.08,
	},
	"criticality": {
		keywords: []string{"production", "critical", "security", "payment", "auth", "outage", "data loss"},
		weight:   0.1,
	},
	"uncertainty": {
		keywords: []string{"investigate", "explore", "unclear", "research", "figure out", "not sure"},
		weight:   0.1,
	},
	"duration": {
		keywords: []string{"migrate", "rewrite", "overhaul", "large", "full", "entire"},
		weight:   0.08,
	},
	"cost": {
		keywords: []string{"expensive", "many files", "large scale", "bulk", "across the codebase"},
		weight:   0.08,
	},
	"resource_requirements": {
		keywords: []string{"gpu", "memory", "cluster", "infrastructure", "provision", "scale"},
		weight:   0.08,
	},
	"constraints": {
		keywords: []string{"must", "require", "compliance", "deadline", "constraint", "cannot"},
		weight:   0.08,
	},
	"verifiability": {
		keywords: []string{"test", "verify", "benchmark", "assert", "validate", "measurable"},
		weight:   0.1,
	},
	"reversibility": {
		keywords: []string{"irreversible", "delete", "drop table", "destructive", "one-way", "permanent"},
		weight:   -0.1, // presence of destructive keywords lowers reversibility
	},
	"contextuality": {
		keywords: []string{"depends on", "context", "existing code", "legacy", "integrate with"},
		weight:   0.08,
	},
	"subjectivity": {
		keywords: []string{"opinion", "style", "preference", "feels", "nicer", "cleaner"},
		weight:   0.1,
	},
}

// defaultScore holds the "default ~0.4-0.5" band the spec calls for when no
// keyword in a category matches.
var defaultScore = map[string]float64{
	"complexity":            0.4,
	"criticality":           0.3,
	"uncertainty":           0.4,
	"duration":              0.4,
	"cost":                  0.3,
	"resource_requirements": 0.3,
	"constraints":           0.3,
	"verifiability":         0.5,
	"reversibility":         0.7,
	"contextuality":         0.4,
	"subjectivity":          0.2,
}

// Profiler assigns TaskProfiles to free-form task descriptions.
type Profiler struct {
	custom Classifier
}

// New creates a Profiler. custom may be nil; when non-nil it is tried
// first and heuristics are used only on failure.
func New(custom Classifier) *Profiler {
	return &Profiler{custom: custom}
}

// Classify maps a description and context to a TaskProfile.
func (p *Profiler) Classify(description string, ctx Context) (types.TaskProfile, error) {
	if strings.TrimSpace(description) == "" {
		return types.TaskProfile{}, ErrEmptyDescription
	}

	if p.custom != nil {
		if profile, err := p.custom(description, ctx); err == nil {
			return profile, nil
		}
	}

	return p.heuristic(description, ctx), nil
}

func (p *Profiler) heuristic(description string, ctx Context) types.TaskProfile {
	lower := strings.ToLower(description)

	profile := types.TaskProfile{
		Complexity:           scoreDimension(lower, "complexity"),
		Criticality:          scoreDimension(lower, "criticality"),
		Uncertainty:          scoreDimension(lower, "uncertainty"),
		Duration:             scoreDimension(lower, "duration"),
		Cost:                 scoreDimension(lower, "cost"),
		ResourceRequirements: scoreDimension(lower, "resource_requirements"),
		Constraints:          scoreDimension(lower, "constraints"),
		Verifiability:        scoreDimension(lower, "verifiability"),
		Reversibility:        scoreDimension(lower, "reversibility"),
		Contextuality:        scoreDimension(lower, "contextuality"),
		Subjectivity:         scoreDimension(lower, "subjectivity"),
	}

	if ctx.IsCritical {
		profile.Criticality = max(profile.Criticality, 0.7)
	}
	if ctx.TimeSensitive {
		profile.Duration = max(profile.Duration, 0.6)
	}
	if ctx.HighStakes {
		profile.Reversibility = min(profile.Reversibility, 0.4)
	}

	return clampProfile(profile)
}

// scoreDimension counts keyword hits (capped) and applies the category's
// per-match weight on top of the dimension's default band.
func scoreDimension(lower, dimension string) float64 {
	cat, ok := dimensionKeywords[dimension]
	if !ok {
		return defaultScore[dimension]
	}

	matches := 0
	for _, kw := range cat.keywords {
		if strings.Contains(lower, kw) {
			matches++
			if matches >= maxKeywordMatches {
				break
			}
		}
	}

	if matches == 0 {
		return defaultScore[dimension]
	}

	score := defaultScore[dimension] + float64(matches)*cat.weight
	return clamp01(score)
}

func clampProfile(p types.TaskProfile) types.TaskProfile {
	p.Complexity = clamp01(p.Complexity)
	p.Criticality = clamp01(p.Criticality)
	p.Uncertainty = clamp01(p.Uncertainty)
	p.Duration = clamp01(p.Duration)
	p.Cost = clamp01(p.Cost)
	p.ResourceRequirements = clamp01(p.ResourceRequirements)
	p.Constraints = clamp01(p.Constraints)
	p.Verifiability = clamp01(p.Verifiability)
	p.Reversibility = clamp01(p.Reversibility)
	p.Contextuality = clamp01(p.Contextuality)
	p.Subjectivity = clamp01(p.Subjectivity)
	return p
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

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// DelegationOverhead computes 1 - weighted(complexity, duration, cost),
// clamped, with a shortcut to 0.1 for trivially simple tasks.
func DelegationOverhead(p types.TaskProfile) float64 {
	if p.Complexity < 0.2 {
		return 0.1
	}
	overhead := 1 - (0.5*p.Complexity + 0.3*p.Duration + 0.2*p.Cost)
	return clamp01(overhead)
}

// RiskScore computes a weighted blend of criticality, inverse
// reversibility, and uncertainty.
func RiskScore(p types.TaskProfile) float64 {
	return 0.5*p.Criticality + 0.3*(1-p.Reversibility) + 0.2*p.Uncertainty
}
