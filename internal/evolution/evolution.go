// Package evolution implements the delegation evolution engine (spec.md
// §4.12): a purely statistical learning loop over recorded delegation
// outcomes — no ML model, just EMA-smoothed trends and weighted averages
// read back out of the shared store's evolution_outcomes and
// evolution_weights tables.
package evolution

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EMAAlpha is the smoothing factor for the quality-trend exponential
// moving average.
const EMAAlpha = 0.3

// ComplexityBand is one half-open complexity range used to bucket
// decomposition evidence.
type ComplexityBand struct {
	Low, High float64
	Label     string
}

// ComplexityBands partitions [0,1] complexity into four learning buckets.
var ComplexityBands = []ComplexityBand{
	{0.0, 0.3, "low"},
	{0.3, 0.6, "medium"},
	{0.6, 0.8, "high"},
	{0.8, 1.0, "very_high"},
}

func bandFor(complexity float64) string {
	for _, b := range ComplexityBands {
		if complexity >= b.Low && complexity < b.High {
			return b.Label
		}
	}
	return "very_high"
}

// globalAgentID is the sentinel agent_id used for weights that are not
// scoped to a single agent (decomposition bands, the overall quality
// trend, cost efficiency).
const globalAgentID = "_global"

// Outcome is one recorded delegation result.
type Outcome struct {
	DelegationID   string
	Success        bool
	QualityScore   float64
	ActualCost     float64
	ActualDuration float64
	Complexity     float64
	SubtaskCount   int
	AgentIDs       []string
	Feedback       string
}

// DecompositionStat summarizes learned decomposition shape for one
// complexity band.
type DecompositionStat struct {
	OptimalSubtaskCount float64
	SampleSize          int
	AvgQuality          float64
}

// AgentAffinityStat summarizes one agent's track record across recorded
// delegations.
type AgentAffinityStat struct {
	SuccessRate      float64
	AvgQuality       float64
	TotalDelegations int
}

// QualityTrend summarizes the EMA-smoothed quality trend across all
// recorded outcomes.
type QualityTrend struct {
	EMAQuality float64
	Trend      string // improving, declining, stable, insufficient_data
	SampleSize int
}

// CostEfficiency summarizes cost-per-quality across recent outcomes.
type CostEfficiency struct {
	AvgCostPerQuality float64
	AvgCost           float64
	SuccessRate       float64
	SampleSize        int
}

// Results bundles everything one EvolveStrategies pass learns.
type Results struct {
	Decomposition  map[string]DecompositionStat
	AgentAffinity  map[string]AgentAffinityStat
	QualityTrend   QualityTrend
	CostEfficiency CostEfficiency
}

// Engine learns from delegation outcomes to improve future routing and
// decomposition decisions.
type Engine struct {
	db  *sql.DB
	now func() time.Time
}

// New returns an Engine backed by db (the coordinator's shared *sql.DB).
func New(db *sql.DB) *Engine {
	return &Engine{db: db, now: time.Now}
}

// RecordOutcome records a delegation outcome for later learning.
func (e *Engine) RecordOutcome(o Outcome) error {
	quality := o.QualityScore
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}

	agentIDsJSON, err := json.Marshal(o.AgentIDs)
	if err != nil {
		return fmt.Errorf("evolution: marshal agent ids: %w", err)
	}

	success := 0
	if o.Success {
		success = 1
	}

	_, err = e.db.Exec(
		`INSERT OR REPLACE INTO evolution_outcomes
		   (id, delegation_id, timestamp, success, quality_score,
		    actual_cost, actual_duration, complexity, subtask_count, agent_ids, feedback)
		 VALUES (
		   (SELECT id FROM evolution_outcomes WHERE delegation_id = ?),
		   ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.DelegationID,
		o.DelegationID, e.now().UTC().Format(time.RFC3339), success, quality,
		o.ActualCost, o.ActualDuration, o.Complexity, o.SubtaskCount, string(agentIDsJSON), o.Feedback,
	)
	if err != nil {
		return fmt.Errorf("evolution: record outcome: %w", err)
	}
	return nil
}

// EvolveStrategies runs all four learning passes and persists derived
// weights back into evolution_weights.
func (e *Engine) EvolveStrategies() (Results, error) {
	decomposition, err := e.learnDecomposition()
	if err != nil {
		return Results{}, err
	}
	affinity, err := e.learnAgentAffinity()
	if err != nil {
		return Results{}, err
	}
	trend, err := e.learnQualityTrend()
	if err != nil {
		return Results{}, err
	}
	cost, err := e.learnCostEfficiency()
	if err != nil {
		return Results{}, err
	}

	for band, stat := range decomposition {
		if err := e.setWeight(globalAgentID, "decomp_"+band, nil, nil, &stat.AvgQuality); err != nil {
			return Results{}, err
		}
	}
	if trend.EMAQuality > 0 {
		if err := e.setWeight(globalAgentID, "_trend", nil, nil, &trend.EMAQuality); err != nil {
			return Results{}, err
		}
	}
	for agentID, stat := range affinity {
		successRate := stat.SuccessRate
		if err := e.setWeight(agentID, "_all", &successRate, nil, &stat.AvgQuality); err != nil {
			return Results{}, err
		}
	}
	if cost.SampleSize > 0 {
		costEff := 1.0
		if cost.AvgCostPerQuality > 0 {
			costEff = 1.0 / cost.AvgCostPerQuality
		}
		if err := e.setWeight(globalAgentID, "_cost", nil, &costEff, nil); err != nil {
			return Results{}, err
		}
	}

	return Results{
		Decomposition:  decomposition,
		AgentAffinity:  affinity,
		QualityTrend:   trend,
		CostEfficiency: cost,
	}, nil
}

func (e *Engine) learnDecomposition() (map[string]DecompositionStat, error) {
	result := make(map[string]DecompositionStat)
	for _, band := range ComplexityBands {
		rows, err := e.db.Query(
			`SELECT subtask_count, quality_score FROM evolution_outcomes
			 WHERE success = 1 AND complexity >= ? AND complexity < ? AND subtask_count > 0
			 ORDER BY timestamp DESC LIMIT 50`,
			band.Low, band.High,
		)
		if err != nil {
			return nil, fmt.Errorf("evolution: query decomposition band %s: %w", band.Label, err)
		}

		var counts []int
		var qualities []float64
		for rows.Next() {
			var count int
			var quality float64
			if err := rows.Scan(&count, &quality); err != nil {
				rows.Close()
				return nil, fmt.Errorf("evolution: scan decomposition row: %w", err)
			}
			counts = append(counts, count)
			qualities = append(qualities, quality)
		}
		rerr := rows.Err()
		rows.Close()
		if rerr != nil {
			return nil, fmt.Errorf("evolution: iterate decomposition band %s: %w", band.Label, rerr)
		}
		if len(counts) == 0 {
			continue
		}

		var totalWeight float64
		for _, q := range qualities {
			totalWeight += q
		}

		var optimal float64
		if totalWeight > 0 {
			var weightedSum float64
			for i := range counts {
				weightedSum += float64(counts[i]) * qualities[i]
			}
			optimal = weightedSum / totalWeight
		} else {
			var sum int
			for _, c := range counts {
				sum += c
			}
			optimal = float64(sum) / float64(len(counts))
		}

		result[band.Label] = DecompositionStat{
			OptimalSubtaskCount: round1(optimal),
			SampleSize:          len(counts),
			AvgQuality:          round3(totalWeight / float64(len(counts))),
		}
	}
	return result, nil
}

func (e *Engine) learnAgentAffinity() (map[string]AgentAffinityStat, error) {
	rows, err := e.db.Query(
		`SELECT agent_ids, success, quality_score FROM evolution_outcomes
		 WHERE agent_ids != '[]' ORDER BY timestamp DESC LIMIT 200`,
	)
	if err != nil {
		return nil, fmt.Errorf("evolution: query agent affinity: %w", err)
	}
	defer rows.Close()

	type agentTotals struct {
		successes, failures, count int
		qualitySum                 float64
	}
	totals := make(map[string]*agentTotals)

	for rows.Next() {
		var agentIDsJSON string
		var success int
		var quality float64
		if err := rows.Scan(&agentIDsJSON, &success, &quality); err != nil {
			return nil, fmt.Errorf("evolution: scan agent affinity row: %w", err)
		}
		var agentIDs []string
		if err := json.Unmarshal([]byte(agentIDsJSON), &agentIDs); err != nil {
			return nil, fmt.Errorf("evolution: unmarshal agent ids: %w", err)
		}
		for _, id := range agentIDs {
			t, ok := totals[id]
			if !ok {
				t = &agentTotals{}
				totals[id] = t
			}
			t.count++
			t.qualitySum += quality
			if success != 0 {
				t.successes++
			} else {
				t.failures++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("evolution: iterate agent affinity: %w", err)
	}

	affinity := make(map[string]AgentAffinityStat, len(totals))
	for agentID, t := range totals {
		total := t.successes + t.failures
		stat := AgentAffinityStat{TotalDelegations: total}
		if total > 0 {
			stat.SuccessRate = round3(float64(t.successes) / float64(total))
		}
		if t.count > 0 {
			stat.AvgQuality = round3(t.qualitySum / float64(t.count))
		}
		affinity[agentID] = stat
	}
	return affinity, nil
}

func (e *Engine) learnQualityTrend() (QualityTrend, error) {
	rows, err := e.db.Query(`SELECT quality_score FROM evolution_outcomes ORDER BY timestamp ASC`)
	if err != nil {
		return QualityTrend{}, fmt.Errorf("evolution: query quality trend: %w", err)
	}
	defer rows.Close()

	var qualities []float64
	for rows.Next() {
		var q float64
		if err := rows.Scan(&q); err != nil {
			return QualityTrend{}, fmt.Errorf("evolution: scan quality trend row: %w", err)
		}
		qualities = append(qualities, q)
	}
	if err := rows.Err(); err != nil {
		return QualityTrend{}, fmt.Errorf("evolution: iterate quality trend: %w", err)
	}

	if len(qualities) == 0 {
		return QualityTrend{EMAQuality: 0, Trend: "insufficient_data", SampleSize: 0}, nil
	}

	ema := qualities[0]
	for _, q := range qualities[1:] {
		ema = EMAAlpha*q + (1-EMAAlpha)*ema
	}

	trend := "insufficient_data"
	mid := len(qualities) / 2
	if mid > 0 {
		firstHalf := mean(qualities[:mid])
		secondHalf := mean(qualities[mid:])
		delta := secondHalf - firstHalf
		switch {
		case delta > 0.05:
			trend = "improving"
		case delta < -0.05:
			trend = "declining"
		default:
			trend = "stable"
		}
	}

	return QualityTrend{EMAQuality: round3(ema), Trend: trend, SampleSize: len(qualities)}, nil
}

func (e *Engine) learnCostEfficiency() (CostEfficiency, error) {
	rows, err := e.db.Query(
		`SELECT actual_cost, quality_score, success FROM evolution_outcomes
		 WHERE actual_cost > 0 ORDER BY timestamp DESC LIMIT 50`,
	)
	if err != nil {
		return CostEfficiency{}, fmt.Errorf("evolution: query cost efficiency: %w", err)
	}
	defer rows.Close()

	var totalCost, totalQuality float64
	var successCount, n int
	for rows.Next() {
		var cost, quality float64
		var success int
		if err := rows.Scan(&cost, &quality, &success); err != nil {
			return CostEfficiency{}, fmt.Errorf("evolution: scan cost efficiency row: %w", err)
		}
		totalCost += cost
		totalQuality += quality
		if success != 0 {
			successCount++
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return CostEfficiency{}, fmt.Errorf("evolution: iterate cost efficiency: %w", err)
	}
	if n == 0 {
		return CostEfficiency{}, nil
	}

	qualityDenom := totalQuality
	if qualityDenom < 0.01 {
		qualityDenom = 0.01
	}

	return CostEfficiency{
		AvgCostPerQuality: round3(totalCost / qualityDenom),
		AvgCost:           round3(totalCost / float64(n)),
		SuccessRate:       round3(float64(successCount) / float64(n)),
		SampleSize:        n,
	}, nil
}

func (e *Engine) setWeight(agentID, taskType string, affinity, costEfficiency, emaQuality *float64) error {
	toNull := func(p *float64) sql.NullFloat64 {
		if p == nil {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: *p, Valid: true}
	}
	deflt := func(p *float64) float64 {
		if p != nil {
			return *p
		}
		return 0.5
	}

	_, err := e.db.Exec(
		`INSERT INTO evolution_weights (agent_id, task_type, affinity, cost_efficiency, ema_quality, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id, task_type) DO UPDATE SET
		   affinity = COALESCE(?, affinity),
		   cost_efficiency = COALESCE(?, cost_efficiency),
		   ema_quality = COALESCE(?, ema_quality),
		   updated_at = excluded.updated_at`,
		agentID, taskType, deflt(affinity), deflt(costEfficiency), deflt(emaQuality), e.now().UTC().Format(time.RFC3339),
		toNull(affinity), toNull(costEfficiency), toNull(emaQuality),
	)
	if err != nil {
		return fmt.Errorf("evolution: set weight %s/%s: %w", agentID, taskType, err)
	}
	return nil
}

// GetWeight reads back a single learned weight, or def if none has been
// recorded yet for (agentID, taskType).
func (e *Engine) GetWeight(agentID, taskType string, field string, def float64) (float64, error) {
	var column string
	switch field {
	case "affinity":
		column = "affinity"
	case "cost_efficiency":
		column = "cost_efficiency"
	case "ema_quality":
		column = "ema_quality"
	default:
		return 0, fmt.Errorf("evolution: unknown weight field %q", field)
	}

	row := e.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM evolution_weights WHERE agent_id = ? AND task_type = ?`, column),
		agentID, taskType,
	)
	var value float64
	if err := row.Scan(&value); err == sql.ErrNoRows {
		return def, nil
	} else if err != nil {
		return 0, fmt.Errorf("evolution: get weight %s/%s: %w", agentID, taskType, err)
	}
	return value, nil
}

// Recommendations generates human-readable, actionable recommendations
// from the learned patterns.
func (e *Engine) Recommendations() ([]string, error) {
	var recommendations []string

	row := e.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM evolution_outcomes`)
	var total, wins int
	if err := row.Scan(&total, &wins); err != nil {
		return nil, fmt.Errorf("evolution: count outcomes: %w", err)
	}
	if total >= 5 {
		rate := float64(wins) / float64(total)
		switch {
		case rate < 0.6:
			recommendations = append(recommendations, fmt.Sprintf(
				"Success rate is low (%.0f%%). Consider raising quality_threshold or improving task descriptions.", rate*100))
		case rate > 0.9:
			recommendations = append(recommendations, fmt.Sprintf(
				"Success rate is high (%.0f%%). You may be over-cautious — consider delegating more complex tasks.", rate*100))
		}
	}

	row = e.db.QueryRow(
		`SELECT AVG(subtask_count), AVG(quality_score) FROM evolution_outcomes
		 WHERE success = 1 AND subtask_count > 0`,
	)
	var avgSubtasks, avgQuality sql.NullFloat64
	if err := row.Scan(&avgSubtasks, &avgQuality); err != nil {
		return nil, fmt.Errorf("evolution: average subtask stats: %w", err)
	}
	if avgSubtasks.Valid {
		switch {
		case avgSubtasks.Float64 > 6:
			recommendations = append(recommendations, fmt.Sprintf(
				"Average subtask count is high (%.1f). Over-decomposition may be adding overhead.", avgSubtasks.Float64))
		case avgSubtasks.Float64 < 2:
			recommendations = append(recommendations, fmt.Sprintf(
				"Average subtask count is low (%.1f). Consider deeper decomposition for complex tasks.", avgSubtasks.Float64))
		}
	}

	ema, err := e.GetWeight(globalAgentID, "_trend", "ema_quality", 0.0)
	if err != nil {
		return nil, err
	}
	if ema > 0 && ema < 0.6 {
		recommendations = append(recommendations, fmt.Sprintf(
			"EMA quality trend is low (%.3f). Review recent delegation failures for patterns.", ema))
	}

	if len(recommendations) == 0 {
		recommendations = append(recommendations, "System is performing within normal parameters.")
	}
	return recommendations, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round1(v float64) float64 { return roundN(v, 1) }
func round3(v float64) float64 { return roundN(v, 3) }

func roundN(v float64, n int) float64 {
	mult := 1.0
	for i := 0; i < n; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+sign(v)*0.5)) / mult
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
