// Package cases implements the verification case lifecycle: the state
// machine, cross-validation of extracted document data against the
// applicant's form data, risk assessment and the append-only audit
// trail.
package cases

import (
	"time"

	"kycdesk.org/internal/auth"
	"kycdesk.org/internal/extract"
	"kycdesk.org/internal/match"
	"kycdesk.org/internal/risk"
)

// Status is the case lifecycle state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusAIReviewed Status = "AI_REVIEWED"
	StatusReturned   Status = "RETURNED_TO_MAKER"
	StatusApproved   Status = "CHECKER_APPROVED"
	StatusRejected   Status = "CHECKER_REJECTED"
)

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseStatus validates a caller-supplied status string.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusDraft, StatusSubmitted, StatusAIReviewed, StatusReturned, StatusApproved, StatusRejected:
		return Status(raw), true
	}
	return "", false
}

// Action names an audit-trail entry.
type Action string

const (
	ActionCreated           Action = "CREATED"
	ActionDocumentProcessed Action = "DOCUMENT_PROCESSED"
	ActionSubmitted         Action = "SUBMITTED"
	ActionAIReviewed        Action = "AI_REVIEWED"
	ActionApproved          Action = "CHECKER_APPROVED"
	ActionRejected          Action = "CHECKER_REJECTED"
	ActionReturned          Action = "RETURNED_TO_MAKER"
)

// workflowAction reports whether a is a state-machine transition rather
// than a creation or document event. The compensating delete is only
// legal while the trail holds no workflow actions.
func (a Action) workflowAction() bool {
	switch a {
	case ActionSubmitted, ActionAIReviewed, ActionApproved, ActionRejected, ActionReturned:
		return true
	}
	return false
}

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Role auth.Role `json:"role"`
}

// systemActor stamps the automatic review step.
var systemActor = Actor{ID: "system", Name: "Automated Review", Role: auth.RoleSystem}

// Profile is the applicant's self-reported data. Identifier fields are
// optional; whichever are supplied participate in cross-validation.
type Profile struct {
	Name       string `json:"name"`
	DOB        string `json:"dob"`
	Address    string `json:"address,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	PAN        string `json:"pan,omitempty"`
	Aadhaar    string `json:"aadhaar,omitempty"`
	PassportNo string `json:"passport_no,omitempty"`
}

// FormFields returns the populated profile values keyed by the shared
// field vocabulary.
func (p Profile) FormFields() map[string]string {
	fields := map[string]string{}
	put := func(key, value string) {
		if v := trimmed(value); v != "" {
			fields[key] = v
		}
	}
	put(match.FieldName, p.Name)
	put(match.FieldDOB, p.DOB)
	put(match.FieldAddress, p.Address)
	put(match.FieldEmail, p.Email)
	put(match.FieldPhone, p.Phone)
	put(match.FieldPAN, p.PAN)
	put(match.FieldAadhaar, p.Aadhaar)
	put(match.FieldPassportNo, p.PassportNo)
	return fields
}

// Document is the stored reference for one uploaded document.
type Document struct {
	Type       string    `json:"type"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Ref        string    `json:"ref"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// OCRResult is the extraction outcome attached per document type,
// immutable once stored. A re-upload replaces it wholesale.
type OCRResult struct {
	RawText     string            `json:"raw_text"`
	Fields      map[string]string `json:"fields"`
	Confidence  float64           `json:"confidence"`
	Quality     extract.Quality   `json:"quality"`
	Validation  match.Result      `json:"validation"`
	ProcessedAt time.Time         `json:"processed_at"`
}

// AuditEntry is one immutable record in a case's trail.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Role      auth.Role `json:"role"`
	Action    Action    `json:"action"`
	Comments  string    `json:"comments,omitempty"`
}

// Case is the unit of work.
type Case struct {
	ID          string               `json:"id"`
	Profile     Profile              `json:"profile"`
	Status      Status               `json:"status"`
	CreatorID   string               `json:"creator_id"`
	CreatorName string               `json:"creator_name"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Documents   map[string]Document  `json:"documents"`
	OCR         map[string]OCRResult `json:"ocr_results"`

	// Aggregates, present once at least one document was processed.
	MatchScore *float64         `json:"match_score,omitempty"`
	RiskScore  *int             `json:"risk_score,omitempty"`
	RiskLevel  risk.Level       `json:"risk_level,omitempty"`
	Assessment *risk.Assessment `json:"risk_assessment,omitempty"`

	// ContextAnomalies hold cross-case signals such as duplicate
	// identifier reuse, fed into every reassessment.
	ContextAnomalies []risk.Anomaly `json:"context_anomalies,omitempty"`

	Audit []AuditEntry `json:"audit"`
}

// OwnedBy reports whether userID created the case.
func (c *Case) OwnedBy(userID string) bool {
	return c.CreatorID == userID
}

// ProcessedDocuments counts documents with an attached extraction result.
func (c *Case) ProcessedDocuments() int {
	return len(c.OCR)
}

// Clone returns a deep copy safe to mutate.
func (c *Case) Clone() *Case {
	cp := *c
	cp.Documents = make(map[string]Document, len(c.Documents))
	for k, v := range c.Documents {
		cp.Documents[k] = v
	}
	cp.OCR = make(map[string]OCRResult, len(c.OCR))
	for k, v := range c.OCR {
		cp.OCR[k] = cloneOCR(v)
	}
	if c.MatchScore != nil {
		v := *c.MatchScore
		cp.MatchScore = &v
	}
	if c.RiskScore != nil {
		v := *c.RiskScore
		cp.RiskScore = &v
	}
	if c.Assessment != nil {
		a := *c.Assessment
		a.Anomalies = append([]risk.Anomaly(nil), c.Assessment.Anomalies...)
		a.Recommendations = append([]string(nil), c.Assessment.Recommendations...)
		cp.Assessment = &a
	}
	cp.ContextAnomalies = append([]risk.Anomaly(nil), c.ContextAnomalies...)
	cp.Audit = append([]AuditEntry(nil), c.Audit...)
	return &cp
}

func cloneOCR(o OCRResult) OCRResult {
	cp := o
	cp.Fields = make(map[string]string, len(o.Fields))
	for k, v := range o.Fields {
		cp.Fields[k] = v
	}
	if o.Quality.Metrics != nil {
		cp.Quality.Metrics = make(map[string]float64, len(o.Quality.Metrics))
		for k, v := range o.Quality.Metrics {
			cp.Quality.Metrics[k] = v
		}
	}
	cp.Validation.Comparisons = append([]match.Comparison(nil), o.Validation.Comparisons...)
	cp.Validation.Matched = append([]string(nil), o.Validation.Matched...)
	cp.Validation.Mismatched = append([]string(nil), o.Validation.Mismatched...)
	return cp
}
