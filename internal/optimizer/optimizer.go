// Package optimizer implements the self-optimization feedback loop
// (spec.md §4.12): it mines the outcomes table for evidence and proposes
// adjustments to coordinator thresholds, applying only high-confidence
// proposals and recording every applied generation as a new baselines
// row so a prior generation can be rolled back to.
package optimizer

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MinEvidence is the minimum number of recent outcomes required
	// before the optimizer will propose anything.
	MinEvidence = 50
	// MinConfidence is the confidence a proposal must exceed for Propose
	// to return it; Apply does not check it.
	MinConfidence = 0.75
	// minSuccessfulSamples is the minimum number of successful outcomes
	// a per-parameter proposal needs before it is considered at all.
	minSuccessfulSamples = 10

	recentOutcomesLimit = 200
)

var defaultBaselines = map[string]float64{
	"quality_threshold":    3.0,
	"complexity_threshold": 0.5,
	"efficiency_threshold": 0.7,
}

// Proposal is a proposed change to one coordinator parameter.
type Proposal struct {
	Parameter      string
	CurrentValue   float64
	ProposedValue  float64
	Confidence     float64
	EvidenceCount  int
	ImprovementPct float64
}

type outcomeRow struct {
	outcome         string
	quality         float64
	complexity      float64
	modelEfficiency float64
	dqScore         float64
}

// Optimizer mines the outcomes table for parameter-tuning evidence.
type Optimizer struct {
	db  *sql.DB
	now func() time.Time
}

// New returns an Optimizer backed by db (the coordinator's shared *sql.DB).
func New(db *sql.DB) *Optimizer {
	return &Optimizer{db: db, now: time.Now}
}

// Propose generates optimization proposals from recent outcomes. It
// returns nil until at least MinEvidence outcomes have been recorded,
// and only includes proposals above MinConfidence.
func (o *Optimizer) Propose() ([]Proposal, error) {
	rows, err := o.recentOutcomes()
	if err != nil {
		return nil, err
	}
	if len(rows) < MinEvidence {
		return nil, nil
	}

	baselines, err := o.loadBaselines()
	if err != nil {
		return nil, err
	}

	var proposals []Proposal
	for _, p := range []*Proposal{
		o.optimizeQualityThreshold(rows, baselines),
		o.optimizeComplexityThreshold(rows, baselines),
		o.optimizeEfficiencyThreshold(rows, baselines),
	} {
		if p != nil && p.Confidence > MinConfidence {
			proposals = append(proposals, *p)
		}
	}
	return proposals, nil
}

func (o *Optimizer) optimizeQualityThreshold(rows []outcomeRow, baselines map[string]float64) *Proposal {
	var successful []float64
	for _, r := range rows {
		if r.outcome == "success" {
			successful = append(successful, r.quality)
		}
	}
	if len(successful) < minSuccessfulSamples {
		return nil
	}

	optimal := mean(successful)
	current := baselines["quality_threshold"]
	return &Proposal{
		Parameter:      "quality_threshold",
		CurrentValue:   current,
		ProposedValue:  optimal,
		Confidence:     confidenceFromSamples(len(successful)),
		EvidenceCount:  len(successful),
		ImprovementPct: improvementPct(optimal, current),
	}
}

func (o *Optimizer) optimizeComplexityThreshold(rows []outcomeRow, baselines map[string]float64) *Proposal {
	if len(rows) == 0 {
		return nil
	}
	complexities := make([]float64, len(rows))
	for i, r := range rows {
		complexities[i] = r.complexity
	}
	sort.Float64s(complexities)
	optimal := complexities[len(complexities)/2]
	current := baselines["complexity_threshold"]

	return &Proposal{
		Parameter:      "complexity_threshold",
		CurrentValue:   current,
		ProposedValue:  optimal,
		Confidence:     confidenceFromSamples(len(complexities)),
		EvidenceCount:  len(complexities),
		ImprovementPct: improvementPct(optimal, current),
	}
}

func (o *Optimizer) optimizeEfficiencyThreshold(rows []outcomeRow, baselines map[string]float64) *Proposal {
	var successful []float64
	for _, r := range rows {
		if r.outcome == "success" {
			successful = append(successful, r.modelEfficiency)
		}
	}
	if len(successful) < minSuccessfulSamples {
		return nil
	}

	optimal := mean(successful)
	current := baselines["efficiency_threshold"]
	return &Proposal{
		Parameter:      "efficiency_threshold",
		CurrentValue:   current,
		ProposedValue:  optimal,
		Confidence:     confidenceFromSamples(len(successful)),
		EvidenceCount:  len(successful),
		ImprovementPct: improvementPct(optimal, current),
	}
}

// Apply writes proposals into a new baselines generation and records
// lineage. Returns false if proposals is empty.
func (o *Optimizer) Apply(proposals []Proposal) (bool, error) {
	if len(proposals) == 0 {
		return false, nil
	}

	baselines, err := o.loadBaselines()
	if err != nil {
		return false, err
	}
	for _, p := range proposals {
		baselines[p.Parameter] = p.ProposedValue
	}

	paramsJSON, err := json.Marshal(baselines)
	if err != nil {
		return false, fmt.Errorf("optimizer: marshal baselines: %w", err)
	}

	type lineageEntry struct {
		Parameter  string  `json:"parameter"`
		From       float64 `json:"from"`
		To         float64 `json:"to"`
		Confidence float64 `json:"confidence"`
		Evidence   int     `json:"evidence"`
	}
	lineage := make([]lineageEntry, len(proposals))
	var evidenceSum int
	var confidenceSum float64
	for i, p := range proposals {
		lineage[i] = lineageEntry{p.Parameter, p.CurrentValue, p.ProposedValue, p.Confidence, p.EvidenceCount}
		evidenceSum += p.EvidenceCount
		confidenceSum += p.Confidence
	}
	lineageJSON, err := json.Marshal(lineage)
	if err != nil {
		return false, fmt.Errorf("optimizer: marshal lineage: %w", err)
	}

	version, err := o.nextVersion()
	if err != nil {
		return false, err
	}

	_, err = o.db.Exec(
		`INSERT INTO baselines (version, parameters, evidence_count, confidence, lineage, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		version, string(paramsJSON), evidenceSum, confidenceSum/float64(len(proposals)),
		string(lineageJSON), o.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("optimizer: insert baseline: %w", err)
	}
	return true, nil
}

// Rollback reverts to the previous baseline generation. Returns false if
// there is no earlier generation to revert to.
func (o *Optimizer) Rollback() (bool, error) {
	rows, err := o.db.Query(
		`SELECT parameters FROM baselines ORDER BY applied_at DESC LIMIT 2`,
	)
	if err != nil {
		return false, fmt.Errorf("optimizer: query baselines: %w", err)
	}
	defer rows.Close()

	var generations []string
	for rows.Next() {
		var params string
		if err := rows.Scan(&params); err != nil {
			return false, fmt.Errorf("optimizer: scan baseline: %w", err)
		}
		generations = append(generations, params)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("optimizer: iterate baselines: %w", err)
	}
	if len(generations) < 2 {
		return false, nil
	}

	var prev map[string]float64
	if err := json.Unmarshal([]byte(generations[1]), &prev); err != nil {
		return false, fmt.Errorf("optimizer: unmarshal previous baseline: %w", err)
	}

	version, err := o.nextVersion()
	if err != nil {
		return false, err
	}
	paramsJSON, err := json.Marshal(prev)
	if err != nil {
		return false, fmt.Errorf("optimizer: marshal rollback baseline: %w", err)
	}

	_, err = o.db.Exec(
		`INSERT INTO baselines (version, parameters, evidence_count, confidence, lineage, applied_at)
		 VALUES (?, ?, 0, 1.0, '[]', ?)`,
		version, string(paramsJSON), o.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("optimizer: insert rollback baseline: %w", err)
	}
	return true, nil
}

func (o *Optimizer) recentOutcomes() ([]outcomeRow, error) {
	rows, err := o.db.Query(
		`SELECT outcome, quality, complexity, model_efficiency, dq_score
		 FROM outcomes ORDER BY analyzed_at DESC LIMIT ?`,
		recentOutcomesLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("optimizer: query outcomes: %w", err)
	}
	defer rows.Close()

	var out []outcomeRow
	for rows.Next() {
		var r outcomeRow
		if err := rows.Scan(&r.outcome, &r.quality, &r.complexity, &r.modelEfficiency, &r.dqScore); err != nil {
			return nil, fmt.Errorf("optimizer: scan outcome: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("optimizer: iterate outcomes: %w", err)
	}
	return out, nil
}

func (o *Optimizer) loadBaselines() (map[string]float64, error) {
	row := o.db.QueryRow(`SELECT parameters FROM baselines ORDER BY applied_at DESC LIMIT 1`)

	var params string
	err := row.Scan(&params)
	if err == sql.ErrNoRows {
		out := make(map[string]float64, len(defaultBaselines))
		for k, v := range defaultBaselines {
			out[k] = v
		}
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optimizer: load baselines: %w", err)
	}

	var out map[string]float64
	if err := json.Unmarshal([]byte(params), &out); err != nil {
		return nil, fmt.Errorf("optimizer: unmarshal baselines: %w", err)
	}
	return out, nil
}

func (o *Optimizer) nextVersion() (string, error) {
	row := o.db.QueryRow(`SELECT version FROM baselines ORDER BY applied_at DESC LIMIT 1`)
	var current string
	err := row.Scan(&current)
	if err == sql.ErrNoRows {
		return "1.0.0", nil
	}
	if err != nil {
		return "", fmt.Errorf("optimizer: load current version: %w", err)
	}

	parts := strings.Split(current, ".")
	last, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", fmt.Errorf("optimizer: parse version %q: %w", current, err)
	}
	parts[len(parts)-1] = strconv.Itoa(last + 1)
	return strings.Join(parts, "."), nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func improvementPct(optimal, current float64) float64 {
	if current <= 0 {
		return 0
	}
	delta := optimal - current
	if delta < 0 {
		delta = -delta
	}
	return delta / current * 100
}

func confidenceFromSamples(n int) float64 {
	c := float64(n) / 50.0
	if c > 1.0 {
		return 1.0
	}
	return c
}
