package risk

import "testing"

func TestScoreFormula(t *testing.T) {
	s := NewScorer()

	// Perfect signals score 0 and bucket VERY_LOW.
	a := s.Score(Input{QualityPassed: true, QualityScore: 1, Confidence: 1, MatchScore: 1})
	if a.Score != 0 {
		t.Fatalf("score = %d, want 0", a.Score)
	}
	if a.Level != LevelVeryLow {
		t.Fatalf("level = %s, want VERY_LOW", a.Level)
	}
	if !a.Valid {
		t.Fatal("perfect input should be valid")
	}

	// 0.2*1 + 0.3*0.9 + 0.5*0.8 = 0.87 -> score 13.
	a = s.Score(Input{QualityPassed: true, QualityScore: 1, Confidence: 0.9, MatchScore: 0.8})
	if a.Score != 13 {
		t.Fatalf("score = %d, want 13", a.Score)
	}

	// Zero signals score 100.
	a = s.Score(Input{QualityPassed: true})
	if a.Score != 100 || a.Level != LevelVeryHigh {
		t.Fatalf("score = %d level = %s, want 100 VERY_HIGH", a.Score, a.Level)
	}
}

func TestLevelBuckets(t *testing.T) {
	s := NewScorer()
	tests := []struct {
		score int
		want  Level
	}{
		{0, LevelVeryLow},
		{20, LevelVeryLow},
		{21, LevelLow},
		{40, LevelLow},
		{41, LevelMedium},
		{60, LevelMedium},
		{61, LevelHigh},
		{80, LevelHigh},
		{81, LevelVeryHigh},
		{100, LevelVeryHigh},
	}
	for _, tc := range tests {
		if got := s.levelFor(tc.score); got != tc.want {
			t.Fatalf("levelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestQualityFailureFloorsScore(t *testing.T) {
	s := NewScorer()
	a := s.Score(Input{QualityPassed: false, QualityScore: 1, Confidence: 1, MatchScore: 1})
	if a.Score < 61 {
		t.Fatalf("score = %d, want >= 61", a.Score)
	}
	if a.Level != LevelHigh && a.Level != LevelVeryHigh {
		t.Fatalf("level = %s, want HIGH or VERY_HIGH", a.Level)
	}
	if a.Valid {
		t.Fatal("hard-failed case must not be valid")
	}
	if !hasAnomaly(a.Anomalies, AnomalyDocumentQuality) {
		t.Fatal("expected DOCUMENT_QUALITY anomaly")
	}
}

func TestInsufficientDataFloorsScore(t *testing.T) {
	s := NewScorer()
	a := s.Score(Input{QualityPassed: true, QualityScore: 0.9, Confidence: 0.9, Insufficient: true})
	if a.Score < 61 {
		t.Fatalf("score = %d, want >= 61", a.Score)
	}
	if a.Valid {
		t.Fatal("insufficient data must not be valid")
	}
	if !hasAnomaly(a.Anomalies, AnomalyInsufficientData) {
		t.Fatal("expected INSUFFICIENT_DATA anomaly")
	}
}

func TestInputAnomaliesCarriedThrough(t *testing.T) {
	s := NewScorer()
	in := Input{
		QualityPassed: true,
		QualityScore:  1, Confidence: 1, MatchScore: 1,
		Anomalies: []Anomaly{
			{Type: AnomalyMismatch, Field: "dob", Severity: SeverityMedium, Description: "dob differs"},
		},
	}
	a := s.Score(in)
	if !hasAnomaly(a.Anomalies, AnomalyMismatch) {
		t.Fatal("input anomaly dropped")
	}
}

func TestScoreMonotonicInMatchScore(t *testing.T) {
	s := NewScorer()
	prev := 101
	for _, m := range []float64{0, 0.25, 0.5, 0.75, 1} {
		a := s.Score(Input{QualityPassed: true, QualityScore: 1, Confidence: 1, MatchScore: m})
		if a.Score > prev {
			t.Fatalf("score increased as match improved: %d after %d", a.Score, prev)
		}
		prev = a.Score
	}
}

func TestRecommendationsFollowLevel(t *testing.T) {
	s := NewScorer()
	a := s.Score(Input{QualityPassed: true, QualityScore: 1, Confidence: 1, MatchScore: 1})
	if len(a.Recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
	a = s.Score(Input{QualityPassed: false})
	if len(a.Recommendations) < 2 {
		t.Fatalf("expected escalation plus remediation recommendations, got %v", a.Recommendations)
	}
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights(" 0.1, 0.4 ,0.5 ")
	if err != nil {
		t.Fatalf("ParseWeights: %v", err)
	}
	if w.Quality != 0.1 || w.Confidence != 0.4 || w.Match != 0.5 {
		t.Fatalf("unexpected weights: %+v", w)
	}

	for _, bad := range []string{"", "0.2,0.3", "0.2,0.3,0.5,0", "a,b,c", "-1,1,1", "0,0,0"} {
		if _, err := ParseWeights(bad); err == nil {
			t.Fatalf("ParseWeights(%q): expected error", bad)
		}
	}
}

func hasAnomaly(list []Anomaly, typ AnomalyType) bool {
	for _, a := range list {
		if a.Type == typ {
			return true
		}
	}
	return false
}
