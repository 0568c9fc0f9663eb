package scoring

// Weights is the canonical DQ weight set used by DQ Scorer (C4) routing
// decisions. Two other DQ_WEIGHTS-shaped constants exist elsewhere in this
// codebase's lineage (the orchestrator's internal distributor ranking, and
// the ACE analyzer's consensus scoring) — they are scoped to their own
// components and are never substituted for this one; see DESIGN.md.
var Weights = struct {
	Validity    float64
	Specificity float64
	Correctness float64
}{
	Validity:    0.35,
	Specificity: 0.25,
	Correctness: 0.40,
}

// ActionableThreshold is the minimum DQ score considered actionable.
const ActionableThreshold = 0.5

// tierCapability describes one model tier's ceiling and per-token costs.
type tierCapability struct {
	maxComplexity  float64
	costInPerMTok  float64
	costOutPerMTok float64
}

var capabilities = map[ModelTier]tierCapability{
	TierHaiku:  {maxComplexity: 0.20, costInPerMTok: 0.80, costOutPerMTok: 4.0},
	TierSonnet: {maxComplexity: 0.70, costInPerMTok: 3.0, costOutPerMTok: 15.0},
	TierOpus:   {maxComplexity: 1.0, costInPerMTok: 5.0, costOutPerMTok: 25.0},
}

// ThinkingEffort is an Opus reasoning-effort tier.
type ThinkingEffort string

const (
	EffortLow    ThinkingEffort = "low"
	EffortMedium ThinkingEffort = "medium"
	EffortHigh   ThinkingEffort = "high"
	EffortMax    ThinkingEffort = "max"
)

// thinkingRange is a half-open complexity interval [lo, hi) mapped to an
// Opus thinking-effort tier; the last entry is closed at its upper bound.
type thinkingRange struct {
	lo, hi float64
	effort ThinkingEffort
}

var opusThinkingRanges = []thinkingRange{
	{0.60, 0.72, EffortLow},
	{0.72, 0.85, EffortMedium},
	{0.85, 0.95, EffortHigh},
	{0.95, 1.001, EffortMax},
}

// OpusThinkingEffort returns the thinking-effort tier for a given
// complexity, assuming the Opus tier was already selected. Returns "" if
// complexity is below the Opus thinking range.
func OpusThinkingEffort(complexity float64) ThinkingEffort {
	for _, r := range opusThinkingRanges {
		if complexity >= r.lo && complexity < r.hi {
			return r.effort
		}
	}
	return ""
}

// adaptiveIdealTier maps a complexity band to the "ideal" model used when
// scoring specificity — a query whose complexity matches the ideal tier's
// sweet spot scores higher specificity.
func adaptiveIdealTier(complexity float64) ModelTier {
	switch {
	case complexity < 0.25:
		return TierHaiku
	case complexity < 0.65:
		return TierSonnet
	default:
		return TierOpus
	}
}

// TierScore is one tier's DQ evaluation.
type TierScore struct {
	Tier        ModelTier
	DQScore     float64
	Validity    float64
	Specificity float64
	Correctness float64
	CostRank    float64
}

// Score evaluates all three tiers for the given complexity and picks the
// best by (highest DQ, then lowest cost rank) — ties broken toward cheaper
// tiers.
func Score(complexity float64) TierScore {
	var best TierScore
	haveBest := false

	for _, tier := range []ModelTier{TierHaiku, TierSonnet, TierOpus} {
		ts := scoreTier(tier, complexity)
		if !haveBest || better(ts, best) {
			best = ts
			haveBest = true
		}
	}

	return best
}

// tierOrder is the ideal-model distance scale for specificity: haiku and
// opus are two steps apart, sonnet is one step from either.
var tierOrder = []ModelTier{TierHaiku, TierSonnet, TierOpus}

func tierIndex(tier ModelTier) int {
	for i, t := range tierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}

func scoreTier(tier ModelTier, complexity float64) TierScore {
	tc := capabilities[tier]

	var validity float64
	if complexity <= tc.maxComplexity {
		// Within range: a small penalty for over-provisioning, floored for
		// the worst offenders (opus/sonnet on tasks well below their ceiling).
		overProvision := tc.maxComplexity - complexity
		switch {
		case tier == TierOpus && complexity < 0.5:
			validity = 0.6
		case tier == TierSonnet && complexity < 0.2:
			validity = 0.7
		default:
			validity = 1.0 - overProvision*0.2
		}
	} else {
		// Under-provisioning is penalized more heavily than over-provisioning.
		underProvision := complexity - tc.maxComplexity
		validity = clamp01(1 - underProvision*2)
	}

	// Specificity: 1.0 at the ideal tier, decaying 0.4 per tier of distance.
	distance := tierIndex(tier) - tierIndex(adaptiveIdealTier(complexity))
	if distance < 0 {
		distance = -distance
	}
	specificity := clamp01(float64(10-4*distance) / 10)

	// Correctness is neutral in standalone mode; historical accuracy is
	// layered in by the coordinator once session outcomes are available.
	correctness := 0.5

	dq := Weights.Validity*validity + Weights.Specificity*specificity + Weights.Correctness*correctness

	return TierScore{
		Tier:        tier,
		DQScore:     dq,
		Validity:    validity,
		Specificity: specificity,
		Correctness: correctness,
		CostRank:    tc.costInPerMTok + tc.costOutPerMTok,
	}
}

// better reports whether candidate beats current under (-dq, cost_rank)
// ordering: higher DQ wins; ties go to the cheaper tier.
func better(candidate, current TierScore) bool {
	if candidate.DQScore != current.DQScore {
		return candidate.DQScore > current.DQScore
	}
	return candidate.CostRank < current.CostRank
}

// IsActionable reports whether a DQ score clears the actionable threshold.
func IsActionable(dqScore float64) bool {
	return dqScore >= ActionableThreshold
}
