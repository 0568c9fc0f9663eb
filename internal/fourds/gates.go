// Package fourds implements Anthropic's 4Ds framework gates for
// responsible AI delegation (spec.md §4.7): Delegation, Description,
// Discernment, and Diligence. Every gate evaluation is logged as a
// best-effort delegation_events row; a logging failure never blocks the
// gate's decision.
package fourds

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/CLIAIMONITOR/internal/events"
	"github.com/CLIAIMONITOR/internal/types"
)

// Gates evaluates the four gates, optionally persisting each decision
// and optionally fanning it out on the coordinator's EventSink.
type Gates struct {
	db  *sql.DB
	bus *events.Bus
}

// New returns a Gates backed by db (the coordinator's shared *sql.DB).
// db may be nil, in which case gate decisions are simply not logged.
func New(db *sql.DB) *Gates {
	return &Gates{db: db}
}

// WithBus attaches an EventSink so every gate decision also fans out to
// subscribers (notifications, the NATS mirror) in addition to its
// delegation_events row. Returns g for chaining; bus may be nil.
func (g *Gates) WithBus(bus *events.Bus) *Gates {
	g.bus = bus
	return g
}

// Delegation is Gate 1: should this task be delegated to AI at all?
// Blocks on the combination of high subjectivity + high criticality +
// low reversibility, or high criticality paired with either low
// verifiability or low reversibility.
func (g *Gates) Delegation(task string, profile types.TaskProfile) (bool, string) {
	highRisk := profile.Subjectivity > 0.7 && profile.Criticality > 0.8 && profile.Reversibility < 0.2
	if highRisk {
		reason := fmt.Sprintf(
			"task blocked: high subjectivity (%.2f) + high criticality (%.2f) + low reversibility (%.2f) requires human judgment",
			profile.Subjectivity, profile.Criticality, profile.Reversibility,
		)
		g.logEvent("delegation", false, nil, reason)
		return false, reason
	}

	if profile.Criticality >= 0.8 && (profile.Verifiability < 0.3 || profile.Reversibility < 0.3) {
		var reason string
		if profile.Verifiability < 0.3 {
			reason = fmt.Sprintf(
				"task blocked: high criticality (%.2f) + low verifiability (%.2f) makes validation difficult",
				profile.Criticality, profile.Verifiability,
			)
		} else {
			reason = fmt.Sprintf(
				"task blocked: high criticality (%.2f) + low reversibility (%.2f) makes errors costly",
				profile.Criticality, profile.Reversibility,
			)
		}
		g.logEvent("delegation", false, nil, reason)
		return false, reason
	}

	reason := "task approved: risk factors within acceptable bounds"
	g.logEvent("delegation", true, nil, reason)
	return true, reason
}

// Description is Gate 2: how well is this task described? Returns a
// [0,1] score and a human-readable verdict plus improvement suggestions.
func (g *Gates) Description(description string) (float64, string) {
	lower := strings.ToLower(description)
	var suggestions []string
	var weighted float64

	vagueWords := []string{"thing", "stuff", "something", "somehow", "figure out", "handle", "deal with"}
	hasVague := containsAny(lower, vagueWords)

	specificIndicators := []string{"implement", "create", "build", "analyze", "verify", "test"}
	hasSpecific := containsAny(lower, specificIndicators)

	specificity := 0.5
	switch {
	case hasVague:
		specificity = 0.3
	case hasSpecific:
		specificity = 0.8
	}
	weighted += specificity * 0.4
	if hasVague {
		suggestions = append(suggestions, "replace vague language with specific requirements")
	}
	if !hasSpecific {
		suggestions = append(suggestions, "add concrete action verbs (implement, create, analyze)")
	}

	wordCount := len(strings.Fields(description))
	var completeness float64
	switch {
	case wordCount < 5:
		completeness = 0.2
		suggestions = append(suggestions, "provide more context and details")
	case wordCount < 15:
		completeness = 0.5
		suggestions = append(suggestions, "add more context about requirements and constraints")
	default:
		completeness = 0.8
	}
	weighted += completeness * 0.3

	hasCriteria := containsAny(lower, []string{"should", "must", "verify", "test", "expect", "ensure", "include", "output"})
	hasMetrics := strings.ContainsAny(description, "<>=%") || containsAny(lower, []string{"at least", "minimum", "maximum"})

	constraintClarity := 0.3
	switch {
	case hasCriteria && hasMetrics:
		constraintClarity = 0.8
	case hasCriteria:
		constraintClarity = 0.6
	}
	weighted += constraintClarity * 0.3
	if !hasCriteria {
		suggestions = append(suggestions, "define success criteria")
	}
	if !hasMetrics {
		suggestions = append(suggestions, "add measurable constraints where applicable")
	}

	totalScore := clamp01(weighted)

	var verdict string
	switch {
	case totalScore >= 0.8:
		verdict = "description is clear and complete"
	case totalScore >= 0.6:
		verdict = "good description. consider: " + strings.Join(suggestions, "; ")
	default:
		verdict = "improve description: " + strings.Join(suggestions, "; ")
	}

	g.logEvent("description", totalScore >= 0.6, &totalScore, verdict)
	return totalScore, verdict
}

// Discernment is Gate 3: is this AI output acceptable? Scores output
// against the expected result on completeness, error-freedom, and
// length consistency, and flags issues for human review below 0.7.
func (g *Gates) Discernment(output, expected string, profile types.TaskProfile) (float64, []string) {
	var issues []string
	var weighted float64

	outputWords := wordSet(output)
	expectedWords := wordSet(expected)
	denom := len(expectedWords)
	if denom == 0 {
		denom = 1
	}
	overlap := 0
	for w := range outputWords {
		if expectedWords[w] {
			overlap++
		}
	}
	keywordOverlap := float64(overlap) / float64(denom)
	completeness := keywordOverlap + 0.3
	if completeness > 1.0 {
		completeness = 1.0
	}
	weighted += completeness * 0.4
	if completeness < 0.5 {
		issues = append(issues, fmt.Sprintf("low completeness (%.2f): output may be missing key requirements", completeness))
	}

	errorIndicators := []string{"error", "failed", "exception", "undefined", "null", "nan", "invalid"}
	hasErrors := containsAny(strings.ToLower(output), errorIndicators)
	correctness := 0.8
	if hasErrors {
		correctness = 0.3
	}
	weighted += correctness * 0.3
	if hasErrors {
		issues = append(issues, "output contains error indicators")
	}

	expectedLen := len(expected)
	if expectedLen == 0 {
		expectedLen = 1
	}
	lengthRatio := float64(len(output)) / float64(expectedLen)
	var consistency float64
	switch {
	case lengthRatio < 0.3:
		consistency = 0.4
		issues = append(issues, "output significantly shorter than expected")
	case lengthRatio > 3.0:
		consistency = 0.6
		issues = append(issues, "output significantly longer than expected")
	default:
		consistency = 0.8
	}
	weighted += consistency * 0.3

	totalScore := clamp01(weighted)

	if totalScore < 0.7 {
		issues = append([]string{fmt.Sprintf("quality score %.2f < 0.7 threshold — flagged for human review", totalScore)}, issues...)
	}
	if len(issues) == 0 {
		issues = append(issues, "output quality acceptable")
	}

	g.logEvent("discernment", totalScore >= 0.7, &totalScore, strings.Join(issues, "; "))
	return totalScore, issues
}

// Diligence is Gate 4: are ethical and safety constraints satisfied?
// Blocks only on sensitive+destructive+irreversible, or destructive with
// critically low reversibility; everything else surfaces as a warning.
func (g *Gates) Diligence(task string, profile types.TaskProfile) (bool, []string) {
	var warnings []string
	lower := strings.ToLower(task)

	sensitiveKeywords := []string{"password", "credential", "secret", "api_key", "token", "private_key", "ssn", "credit_card", "personal", "pii", "confidential"}
	hasSensitiveData := containsAny(lower, sensitiveKeywords)
	if hasSensitiveData {
		warnings = append(warnings, "task involves sensitive data — ensure proper access controls")
	}

	destructiveKeywords := []string{"delete", "drop", "remove", "destroy", "wipe", "erase", "truncate", "clear", "purge", "reset"}
	isDestructive := containsAny(lower, destructiveKeywords)
	if isDestructive && profile.Reversibility < 0.5 {
		warnings = append(warnings, fmt.Sprintf("destructive operation with low reversibility (%.2f) — high risk", profile.Reversibility))
	}

	if profile.Criticality > 0.8 && profile.Reversibility < 0.3 {
		warnings = append(warnings, fmt.Sprintf(
			"high criticality (%.2f) + low reversibility (%.2f) — consider human oversight",
			profile.Criticality, profile.Reversibility,
		))
	}

	productionKeywords := []string{"deploy", "production", "release", "publish", "launch"}
	isProduction := containsAny(lower, productionKeywords)
	if isProduction && profile.Verifiability <= 0.6 {
		warnings = append(warnings, fmt.Sprintf(
			"production deployment with low verifiability (%.2f) — ensure thorough testing",
			profile.Verifiability,
		))
	}

	unsafe := (hasSensitiveData && isDestructive && profile.Reversibility < 0.2) ||
		(isDestructive && profile.Reversibility < 0.15)

	var safe bool
	if unsafe {
		safe = false
		if hasSensitiveData {
			warnings = append([]string{"BLOCKED: sensitive + destructive + irreversible combination"}, warnings...)
		} else {
			warnings = append([]string{"BLOCKED: destructive operation with critically low reversibility"}, warnings...)
		}
	} else {
		safe = true
		if len(warnings) == 0 {
			warnings = append(warnings, "no ethical or safety concerns detected")
		}
	}

	g.logEvent("diligence", safe, nil, strings.Join(warnings, "; "))
	return safe, warnings
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
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

// logEvent persists a gate decision and, if a bus is attached, publishes
// it as an EventGateDecision; both are best-effort and never block the
// gate's own return value (spec.md §4.7, SPEC_FULL.md §4.7).
func (g *Gates) logEvent(gate string, passed bool, score *float64, reason string) {
	if g.db != nil {
		passedInt := 0
		if passed {
			passedInt = 1
		}
		_, _ = g.db.Exec(
			`INSERT INTO delegation_events (gate, passed, score, reason, recorded_at)
			 VALUES (?, ?, ?, ?, ?)`,
			gate, passedInt, score, reason, time.Now().UTC().Format(time.RFC3339),
		)
	}

	if g.bus != nil {
		payload := map[string]interface{}{
			"gate":    gate,
			"passed":  passed,
			"reason":  reason,
			"message": reason,
		}
		if score != nil {
			payload["score"] = *score
		}
		priority := events.PriorityNormal
		if !passed {
			priority = events.PriorityHigh
		}
		g.bus.Publish(events.NewEvent(events.EventGateDecision, "fourds", "all", priority, payload))
	}
}
