// Package extract defines the document extraction capability used by the
// case workflow, with a deterministic built-in extractor and a client
// for an external extraction service.
package extract

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the extraction capability could not be
// reached or did not return a usable response.
var ErrUnavailable = errors.New("extract: capability unavailable")

// Document types accepted for upload.
const (
	DocTypePAN      = "pan"
	DocTypeAadhaar  = "aadhaar"
	DocTypePassport = "passport"
)

// ValidDocType reports whether t is an accepted document type.
func ValidDocType(t string) bool {
	switch t {
	case DocTypePAN, DocTypeAadhaar, DocTypePassport:
		return true
	}
	return false
}

// Quality is the outcome of pre-extraction document checks.
type Quality struct {
	Passed  bool               `json:"passed"`
	Reason  string             `json:"reason,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Result is the structured output of one extraction run.
type Result struct {
	RawText    string            `json:"raw_text"`
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
	Quality    Quality           `json:"quality"`
}

// Extractor runs text extraction over an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, docType string, payload []byte) (Result, error)
}
