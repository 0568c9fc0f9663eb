package scoring

import "testing"

func TestWeights_SumToOne(t *testing.T) {
	sum := Weights.Validity + Weights.Specificity + Weights.Correctness
	if sum != 1.0 {
		t.Errorf("expected DQ weights to sum to 1.0, got %v", sum)
	}
}

func TestScore_LowComplexityPrefersHaiku(t *testing.T) {
	ts := Score(0.1)
	if ts.Tier != TierHaiku {
		t.Errorf("expected haiku for trivial complexity, got %v (dq=%v)", ts.Tier, ts.DQScore)
	}
}

func TestScore_HighComplexityPrefersOpus(t *testing.T) {
	ts := Score(0.95)
	if ts.Tier != TierOpus {
		t.Errorf("expected opus for near-maximal complexity, got %v (dq=%v)", ts.Tier, ts.DQScore)
	}
}

func TestScore_MidComplexityPrefersSonnet(t *testing.T) {
	ts := Score(0.45)
	if ts.Tier != TierSonnet {
		t.Errorf("expected sonnet for mid complexity, got %v (dq=%v)", ts.Tier, ts.DQScore)
	}
}

func TestOpusThinkingEffort_Bands(t *testing.T) {
	cases := []struct {
		complexity float64
		want       ThinkingEffort
	}{
		{0.60, EffortLow},
		{0.71, EffortLow},
		{0.72, EffortMedium},
		{0.84, EffortMedium},
		{0.85, EffortHigh},
		{0.94, EffortHigh},
		{0.95, EffortMax},
		{1.0, EffortMax},
	}
	for _, c := range cases {
		if got := OpusThinkingEffort(c.complexity); got != c.want {
			t.Errorf("OpusThinkingEffort(%v) = %v, want %v", c.complexity, got, c.want)
		}
	}
}

func TestOpusThinkingEffort_BelowRangeIsEmpty(t *testing.T) {
	if got := OpusThinkingEffort(0.3); got != "" {
		t.Errorf("expected empty effort below Opus thinking range, got %v", got)
	}
}

func TestScoreTier_ValiditySonnetOverProvisionFloor(t *testing.T) {
	ts := scoreTier(TierSonnet, 0.1)
	if ts.Validity != 0.7 {
		t.Errorf("expected sonnet validity=0.7 below complexity 0.2, got %v", ts.Validity)
	}
}

func TestScoreTier_ValidityOpusOverProvisionFloor(t *testing.T) {
	ts := scoreTier(TierOpus, 0.3)
	if ts.Validity != 0.6 {
		t.Errorf("expected opus validity=0.6 below complexity 0.5, got %v", ts.Validity)
	}
}

func TestScoreTier_ValidityPenalizesOverProvisioningOutsideFloors(t *testing.T) {
	ts := scoreTier(TierSonnet, 0.69)
	want := 1.0 - (0.70-0.69)*0.2
	if ts.Validity != want {
		t.Errorf("expected sonnet validity=%v at complexity 0.69 (near its ceiling, above the floor), got %v", want, ts.Validity)
	}
}

func TestScoreTier_SpecificityDecaysByTierDistance(t *testing.T) {
	if got := scoreTier(TierOpus, 0.1).Specificity; got != 0.2 {
		t.Errorf("expected opus specificity=0.2 at complexity 0.1 (two tiers from ideal haiku), got %v", got)
	}
	if got := scoreTier(TierSonnet, 0.1).Specificity; got != 0.6 {
		t.Errorf("expected sonnet specificity=0.6 at complexity 0.1 (one tier from ideal haiku), got %v", got)
	}
	if got := scoreTier(TierHaiku, 0.1).Specificity; got != 1.0 {
		t.Errorf("expected haiku specificity=1.0 at complexity 0.1 (the ideal tier), got %v", got)
	}
}

func TestScoreTier_CorrectnessIsNeutralInStandaloneMode(t *testing.T) {
	for _, tier := range []ModelTier{TierHaiku, TierSonnet, TierOpus} {
		for _, complexity := range []float64{0.05, 0.45, 0.95} {
			if got := scoreTier(tier, complexity).Correctness; got != 0.5 {
				t.Errorf("scoreTier(%v, %v).Correctness = %v, want 0.5", tier, complexity, got)
			}
		}
	}
}

func TestIsActionable_Threshold(t *testing.T) {
	if !IsActionable(0.5) {
		t.Error("expected 0.5 to be actionable (threshold is inclusive)")
	}
	if IsActionable(0.49) {
		t.Error("expected 0.49 to not be actionable")
	}
}
