package cases

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"kycdesk.org/internal/match"
	"kycdesk.org/internal/obs"
	"kycdesk.org/internal/risk"
)

var (
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarPattern = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	digitsOnly     = regexp.MustCompile(`[^0-9]`)
)

// suspiciousKeywords flag obviously fabricated values.
var suspiciousKeywords = []string{"test", "dummy", "sample", "xxx", "example"}

const (
	minApplicantAge = 18
	maxApplicantAge = 100
)

// reassess recomputes every case aggregate from the complete current
// set of per-document results. It always runs inside the store's atomic
// update, so a concurrent upload can never interleave a stale aggregate.
func (s *Service) reassess(c *Case) {
	if len(c.OCR) == 0 {
		c.MatchScore = nil
		c.RiskScore = nil
		c.RiskLevel = ""
		c.Assessment = nil
		return
	}

	var matchSum, confSum, qualitySum float64
	allPassed := true
	allInsufficient := true
	for _, ocr := range c.OCR {
		matchSum += ocr.Validation.MatchScore
		confSum += ocr.Confidence
		if ocr.Quality.Passed {
			qualitySum += 1.0
		} else {
			allPassed = false
		}
		if !ocr.Validation.Insufficient {
			allInsufficient = false
		}
	}
	n := float64(len(c.OCR))

	anomalies := s.deriveAnomalies(c)
	anomalies = append(anomalies, c.ContextAnomalies...)

	assessment := s.scorer.Score(risk.Input{
		QualityPassed: allPassed,
		QualityScore:  qualitySum / n,
		Confidence:    confSum / n,
		MatchScore:    matchSum / n,
		Insufficient:  allInsufficient,
		Anomalies:     anomalies,
	})

	matchScore := matchSum / n
	c.MatchScore = &matchScore
	c.RiskScore = &assessment.Score
	c.RiskLevel = assessment.Level
	c.Assessment = &assessment
	obs.RecordRiskLevel(string(assessment.Level))
}

// deriveAnomalies inspects the current validation results and the
// submitted profile for inconsistencies. Format and plausibility issues
// only ever surface as anomaly records; they never change the weighted
// score outside the documented hard-fail rule.
func (s *Service) deriveAnomalies(c *Case) []risk.Anomaly {
	var out []risk.Anomaly
	seen := map[string]bool{}
	add := func(a risk.Anomaly) {
		key := string(a.Type) + "|" + a.Field
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, a)
	}

	for _, docType := range sortedDocTypes(c.OCR) {
		for _, cmp := range c.OCR[docType].Validation.Comparisons {
			if cmp.Matched {
				continue
			}
			if strings.TrimSpace(cmp.Extracted) == "" {
				add(risk.Anomaly{
					Type:        risk.AnomalyMissingField,
					Field:       cmp.Field,
					Severity:    risk.SeverityMedium,
					Description: fmt.Sprintf("%s not found in %s document", cmp.Field, docType),
				})
				continue
			}
			severity := risk.SeverityMedium
			if match.KindOf(cmp.Field) == match.KindIdentifier {
				severity = risk.SeverityHigh
			}
			add(risk.Anomaly{
				Type:        risk.AnomalyMismatch,
				Field:       cmp.Field,
				Severity:    severity,
				Description: fmt.Sprintf("%s differs between form and %s document (similarity %.2f)", cmp.Field, docType, cmp.Similarity),
			})
		}
	}

	s.checkProfileFormats(c.Profile, add)
	return out
}

func (s *Service) checkProfileFormats(p Profile, add func(risk.Anomaly)) {
	if p.PAN != "" && !panPattern.MatchString(match.NormalizeIdentifier(p.PAN)) {
		add(risk.Anomaly{
			Type:        risk.AnomalyInvalidFormat,
			Field:       match.FieldPAN,
			Severity:    risk.SeverityHigh,
			Description: "PAN does not match the expected AAAAA9999A format",
		})
	}
	if p.Aadhaar != "" && !aadhaarPattern.MatchString(match.NormalizeIdentifier(p.Aadhaar)) {
		add(risk.Anomaly{
			Type:        risk.AnomalyInvalidFormat,
			Field:       match.FieldAadhaar,
			Severity:    risk.SeverityHigh,
			Description: "Aadhaar must be 12 digits and cannot start with 0 or 1",
		})
	}
	if p.Phone != "" {
		digits := digitsOnly.ReplaceAllString(p.Phone, "")
		if len(digits) != 10 && len(digits) != 12 {
			add(risk.Anomaly{
				Type:        risk.AnomalyInvalidFormat,
				Field:       match.FieldPhone,
				Severity:    risk.SeverityLow,
				Description: "phone number must carry 10 or 12 digits",
			})
		}
	}
	if dob, ok := match.ParseDate(p.DOB); ok {
		age := yearsBetween(dob, s.now().UTC())
		if age < minApplicantAge || age > maxApplicantAge {
			add(risk.Anomaly{
				Type:        risk.AnomalyAgeInconsistency,
				Field:       match.FieldDOB,
				Severity:    risk.SeverityHigh,
				Description: fmt.Sprintf("computed age %d is outside the accepted %d-%d range", age, minApplicantAge, maxApplicantAge),
			})
		}
	}

	lower := strings.ToLower(p.Name)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			add(risk.Anomaly{
				Type:        risk.AnomalySuspiciousPattern,
				Field:       match.FieldName,
				Severity:    risk.SeverityMedium,
				Description: fmt.Sprintf("name contains placeholder keyword %q", kw),
			})
			break
		}
	}
	if tokens := strings.Fields(lower); len(tokens) > 1 {
		same := true
		for _, tok := range tokens[1:] {
			if tok != tokens[0] {
				same = false
				break
			}
		}
		if same {
			add(risk.Anomaly{
				Type:        risk.AnomalySuspiciousPattern,
				Field:       match.FieldName,
				Severity:    risk.SeverityMedium,
				Description: "name is a single repeated token",
			})
		}
	}
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

// ValidationReport is the full cross-validation view of one case.
type ValidationReport struct {
	CaseID     string                  `json:"case_id"`
	Status     Status                  `json:"status"`
	Results    map[string]match.Result `json:"results"`
	MatchScore *float64                `json:"match_score,omitempty"`
	Assessment *risk.Assessment        `json:"risk_assessment,omitempty"`
	Report     string                  `json:"report"`
}

// Validation returns the current validation results, the risk
// assessment and a plain-text report suitable for a review screen.
func (s *Service) Validation(ctx context.Context, actor Actor, caseID string) (*ValidationReport, error) {
	c, err := s.Get(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	rep := &ValidationReport{
		CaseID:     c.ID,
		Status:     c.Status,
		Results:    map[string]match.Result{},
		MatchScore: c.MatchScore,
		Assessment: c.Assessment,
	}
	for docType, ocr := range c.OCR {
		rep.Results[docType] = ocr.Validation
	}
	rep.Report = formatReport(c)
	return rep, nil
}

func formatReport(c *Case) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validation report for case %s (%s)\n", c.ID, c.Status)
	if len(c.OCR) == 0 {
		b.WriteString("No documents processed yet.\n")
		return b.String()
	}
	for _, docType := range sortedDocTypes(c.OCR) {
		v := c.OCR[docType].Validation
		fmt.Fprintf(&b, "\n[%s] match score %.2f\n", docType, v.MatchScore)
		for _, cmp := range v.Comparisons {
			mark := "MISMATCH"
			if cmp.Matched {
				mark = "ok"
			}
			fmt.Fprintf(&b, "  %-12s %-8s similarity %.2f\n", cmp.Field, mark, cmp.Similarity)
		}
		if v.Explanation != "" {
			fmt.Fprintf(&b, "  %s\n", v.Explanation)
		}
	}
	if a := c.Assessment; a != nil {
		fmt.Fprintf(&b, "\nRisk: %d (%s), valid=%t\n", a.Score, a.Level, a.Valid)
		for _, an := range a.Anomalies {
			fmt.Fprintf(&b, "  [%s/%s] %s\n", an.Type, an.Severity, an.Description)
		}
		for _, rec := range a.Recommendations {
			fmt.Fprintf(&b, "  -> %s\n", rec)
		}
	}
	return b.String()
}

func sortedDocTypes(m map[string]OCRResult) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
