package optimization

import "testing"

func TestDetectPattern_MatchesDebugging(t *testing.T) {
	r := DetectPattern("help me fix this crash and traceback")
	if r.Pattern != "debugging" {
		t.Errorf("expected debugging pattern, got %s", r.Pattern)
	}
	if r.SuggestedStrategy != "review" {
		t.Errorf("expected review strategy, got %s", r.SuggestedStrategy)
	}
}

func TestDetectPattern_NoMatchReturnsUnknownWithImplementDefault(t *testing.T) {
	r := DetectPattern("do the thing over there")
	if r.Pattern != "unknown" || r.SuggestedStrategy != "implement" {
		t.Errorf("expected unknown/implement default, got %+v", r)
	}
	if r.Confidence != 0.0 {
		t.Errorf("expected zero confidence for no match, got %v", r.Confidence)
	}
}

func TestDetectPattern_ConfidenceIsMatchesOverKeywordCount(t *testing.T) {
	r := DetectPattern("research and investigate this")
	if r.Pattern != "research" {
		t.Fatalf("expected research pattern, got %s", r.Pattern)
	}
	// 2 of 7 research keywords match ("research", "investigate")
	want := 2.0 / 7.0
	if r.Confidence != want {
		t.Errorf("expected confidence %v, got %v", want, r.Confidence)
	}
}

func TestDetectPattern_TiesKeepFirstDeclaredPattern(t *testing.T) {
	// "design" (architecture) and "build" (implementation) each match once;
	// architecture is declared first, so it should win the tie.
	r := DetectPattern("design and build")
	if r.Pattern != "architecture" {
		t.Errorf("expected architecture to win the tie by declaration order, got %s", r.Pattern)
	}
}
