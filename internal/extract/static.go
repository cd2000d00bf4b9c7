package extract

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"kycdesk.org/internal/match"
)

// minPayloadBytes is the smallest document that passes quality checks.
const minPayloadBytes = 24

// staticConfidence is reported for every successful static extraction.
// Line-oriented parsing either finds a labelled value or it does not,
// so a fixed confidence keeps downstream scoring deterministic.
const staticConfidence = 0.92

// fieldAliases maps labels seen in documents to canonical field names.
var fieldAliases = map[string]string{
	"name":            match.FieldName,
	"full name":       match.FieldName,
	"dob":             match.FieldDOB,
	"date of birth":   match.FieldDOB,
	"address":         match.FieldAddress,
	"email":           match.FieldEmail,
	"phone":           match.FieldPhone,
	"mobile":          match.FieldPhone,
	"pan":             match.FieldPAN,
	"pan number":      match.FieldPAN,
	"aadhaar":         match.FieldAadhaar,
	"aadhaar number":  match.FieldAadhaar,
	"passport no":     match.FieldPassportNo,
	"passport number": match.FieldPassportNo,
}

// Static extracts labelled values from line-oriented text documents. It
// backs local development, tests and the smoke binary; production
// deployments point at a remote extraction service instead.
type Static struct{}

// NewStatic returns the deterministic extractor.
func NewStatic() *Static { return &Static{} }

// Extract parses "label: value" lines out of the payload.
func (s *Static) Extract(ctx context.Context, docType string, payload []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{
		RawText: string(payload),
		Fields:  map[string]string{},
		Quality: checkQuality(payload),
	}
	if !res.Quality.Passed {
		return res, nil
	}
	res.Confidence = staticConfidence

	sc := bufio.NewScanner(bytes.NewReader(payload))
	for sc.Scan() {
		label, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		field, known := fieldAliases[strings.ToLower(strings.TrimSpace(label))]
		if !known {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		res.Fields[field] = value
	}
	return res, nil
}

func checkQuality(payload []byte) Quality {
	q := Quality{Metrics: map[string]float64{
		"bytes": float64(len(payload)),
	}}
	text := strings.TrimSpace(string(payload))
	switch {
	case len(payload) < minPayloadBytes:
		q.Reason = "document too small to read"
	case !strings.Contains(text, ":"):
		q.Reason = "no labelled values found"
	default:
		q.Passed = true
		q.Metrics["legibility"] = 1.0
	}
	if !q.Passed {
		q.Metrics["legibility"] = 0.0
	}
	return q
}
