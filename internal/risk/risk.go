// Package risk turns document quality, extraction confidence and field
// match signals into a single case-level risk assessment.
package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Level buckets a risk score for human triage.
type Level string

const (
	LevelVeryLow  Level = "VERY_LOW"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelVeryHigh Level = "VERY_HIGH"
)

// AnomalyType classifies a detected inconsistency.
type AnomalyType string

const (
	AnomalyMissingField      AnomalyType = "MISSING_FIELD"
	AnomalyMismatch          AnomalyType = "MISMATCH"
	AnomalyInvalidFormat     AnomalyType = "INVALID_FORMAT"
	AnomalySuspiciousPattern AnomalyType = "SUSPICIOUS_PATTERN"
	AnomalyAgeInconsistency  AnomalyType = "AGE_INCONSISTENCY"
	AnomalyDocumentQuality   AnomalyType = "DOCUMENT_QUALITY"
	AnomalyDuplicateEntry    AnomalyType = "DUPLICATE_ENTRY"
	AnomalyInsufficientData  AnomalyType = "INSUFFICIENT_DATA"
)

// Severity grades a single anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one detected inconsistency attached to an assessment.
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Field       string      `json:"field,omitempty"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
}

// Weights distributes the three input signals. They should sum to 1.
type Weights struct {
	Quality    float64
	Confidence float64
	Match      float64
}

// Config holds the tunable parameters of the scorer. Zero values are
// replaced by defaults in NewScorer.
type Config struct {
	Weights Weights

	// Upper score bound (inclusive) per level, ascending.
	VeryLowMax int
	LowMax     int
	MediumMax  int
	HighMax    int

	// HardFailFloor is the minimum score assigned when a hard failure
	// (quality rejection or insufficient data) occurred, regardless of
	// how well the remaining signals scored.
	HardFailFloor int
}

func defaultConfig() Config {
	return Config{
		Weights:       Weights{Quality: 0.2, Confidence: 0.3, Match: 0.5},
		VeryLowMax:    20,
		LowMax:        40,
		MediumMax:     60,
		HighMax:       80,
		HardFailFloor: 61,
	}
}

// Option customizes a Scorer.
type Option func(*Config)

// WithWeights overrides the signal weights.
func WithWeights(w Weights) Option {
	return func(c *Config) { c.Weights = w }
}

// WithHardFailFloor overrides the minimum score applied on hard failure.
func WithHardFailFloor(floor int) Option {
	return func(c *Config) { c.HardFailFloor = floor }
}

// ParseWeights reads weights from a "quality,confidence,match" triple of
// decimals, the format used for environment configuration.
func ParseWeights(s string) (Weights, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return Weights{}, fmt.Errorf("risk: weights must be three comma-separated values, got %q", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("risk: invalid weight %q", p)
		}
		if v < 0 {
			return Weights{}, fmt.Errorf("risk: weight %q is negative", p)
		}
		vals[i] = v
	}
	if vals[0]+vals[1]+vals[2] <= 0 {
		return Weights{}, fmt.Errorf("risk: weights sum to zero")
	}
	return Weights{Quality: vals[0], Confidence: vals[1], Match: vals[2]}, nil
}

// Input carries the signals for one assessment. Scores are in [0, 1].
type Input struct {
	QualityPassed bool
	QualityScore  float64
	Confidence    float64
	MatchScore    float64
	Insufficient  bool
	Anomalies     []Anomaly
}

// Assessment is the scored outcome. Score runs 0 (no risk) to 100.
type Assessment struct {
	Score           int       `json:"risk_score"`
	Level           Level     `json:"risk_level"`
	Valid           bool      `json:"is_valid"`
	HardFail        bool      `json:"hard_fail"`
	Anomalies       []Anomaly `json:"anomalies"`
	Recommendations []string  `json:"recommendations"`
}

// Scorer computes assessments with a fixed configuration.
type Scorer struct {
	cfg Config
}

// NewScorer builds a Scorer, applying defaults then options.
func NewScorer(opts ...Option) *Scorer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scorer{cfg: cfg}
}

// Score produces the assessment for one input. Anomalies from the input
// are carried through, with hard failures adding their own entries.
func (s *Scorer) Score(in Input) Assessment {
	anomalies := make([]Anomaly, 0, len(in.Anomalies)+2)
	anomalies = append(anomalies, in.Anomalies...)

	hardFail := false
	if !in.QualityPassed {
		hardFail = true
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyDocumentQuality,
			Severity:    SeverityHigh,
			Description: "document failed quality checks",
		})
	}
	if in.Insufficient {
		hardFail = true
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyInsufficientData,
			Severity:    SeverityHigh,
			Description: "not enough extracted data to cross-validate the form",
		})
	}

	composite := s.cfg.Weights.Quality*clamp01(in.QualityScore) +
		s.cfg.Weights.Confidence*clamp01(in.Confidence) +
		s.cfg.Weights.Match*clamp01(in.MatchScore)
	score := 100 - int(math.Round(100*composite))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if hardFail && score < s.cfg.HardFailFloor {
		score = s.cfg.HardFailFloor
	}

	level := s.levelFor(score)
	a := Assessment{
		Score:     score,
		Level:     level,
		Valid:     !hardFail && (level == LevelVeryLow || level == LevelLow),
		HardFail:  hardFail,
		Anomalies: anomalies,
	}
	a.Recommendations = recommendations(a)
	return a
}

func (s *Scorer) levelFor(score int) Level {
	switch {
	case score <= s.cfg.VeryLowMax:
		return LevelVeryLow
	case score <= s.cfg.LowMax:
		return LevelLow
	case score <= s.cfg.MediumMax:
		return LevelMedium
	case score <= s.cfg.HighMax:
		return LevelHigh
	default:
		return LevelVeryHigh
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

func recommendations(a Assessment) []string {
	recs := []string{}
	switch a.Level {
	case LevelVeryLow, LevelLow:
		recs = append(recs, "eligible for standard approval")
	case LevelMedium:
		recs = append(recs, "manual review of mismatched fields recommended")
	default:
		recs = append(recs, "escalate for enhanced due diligence")
	}

	seen := map[AnomalyType]bool{}
	for _, an := range a.Anomalies {
		if seen[an.Type] {
			continue
		}
		seen[an.Type] = true
		switch an.Type {
		case AnomalyDocumentQuality:
			recs = append(recs, "request a clearer document scan")
		case AnomalyInsufficientData:
			recs = append(recs, "request re-submission of supporting documents")
		case AnomalyDuplicateEntry:
			recs = append(recs, "investigate possible duplicate identity")
		case AnomalyMismatch:
			if an.Field != "" {
				recs = append(recs, fmt.Sprintf("verify %s with the applicant", an.Field))
			}
		}
	}
	return recs
}
