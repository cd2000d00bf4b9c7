package cases

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"kycdesk.org/internal/auth"
	"kycdesk.org/internal/extract"
	"kycdesk.org/internal/ids"
	"kycdesk.org/internal/match"
	"kycdesk.org/internal/obs"
	"kycdesk.org/internal/risk"
	"kycdesk.org/internal/stream"
)

// Filter narrows a case listing.
type Filter struct {
	Status    Status
	CreatorID string
}

// Store persists cases. Update must run its callback atomically with
// respect to other operations on the same case: the callback observes
// the current record and either commits its mutation in full or leaves
// the record untouched when it returns an error.
type Store interface {
	Create(ctx context.Context, c *Case) error
	Get(ctx context.Context, id string) (*Case, error)
	List(ctx context.Context, f Filter) ([]*Case, error)
	Update(ctx context.Context, id string, fn func(*Case) error) (*Case, error)
	Delete(ctx context.Context, id string) error

	// FindIdentifier returns the id of another case whose extracted
	// data carries the same normalized identifier value, or ErrNotFound.
	FindIdentifier(ctx context.Context, field, value, excludeCaseID string) (string, error)
}

// Service owns case workflow semantics on top of a Store.
type Service struct {
	store          Store
	extractor      extract.Extractor
	scorer         *risk.Scorer
	events         *stream.Stream
	now            func() time.Time
	extractTimeout time.Duration
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock injects a deterministic time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithEvents attaches a stream that receives case lifecycle events.
func WithEvents(st *stream.Stream) ServiceOption {
	return func(s *Service) { s.events = st }
}

// WithExtractTimeout bounds a single extraction call.
func WithExtractTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.extractTimeout = d }
}

// NewService wires the workflow engine.
func NewService(store Store, extractor extract.Extractor, scorer *risk.Scorer, opts ...ServiceOption) *Service {
	s := &Service{
		store:          store,
		extractor:      extractor,
		scorer:         scorer,
		now:            time.Now,
		extractTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new DRAFT case for the maker.
func (s *Service) Create(ctx context.Context, actor Actor, profile Profile) (*Case, error) {
	if actor.Role != auth.RoleMaker {
		return nil, fmt.Errorf("%w: creating cases requires role %s", ErrPermission, auth.RoleMaker)
	}
	if err := validateProfile(profile); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &Case{
		ID:          ids.New(),
		Profile:     normalizeProfile(profile),
		Status:      StatusDraft,
		CreatorID:   actor.ID,
		CreatorName: actor.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
		Documents:   map[string]Document{},
		OCR:         map[string]OCRResult{},
	}
	c.appendAudit(now, actor, ActionCreated, "")

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	obs.RecordCaseCreated()
	s.publish(c, ActionCreated, actor.Name)
	return c, nil
}

// UploadDocument runs the extraction capability over the payload,
// cross-validates the result against the form data and attaches it to
// the case. Extraction runs outside the case lock; only the mutation
// and aggregate recomputation are serialized per case.
func (s *Service) UploadDocument(ctx context.Context, actor Actor, caseID, docType, filename string, payload []byte) (*Case, error) {
	if !extract.ValidDocType(docType) {
		return nil, fmt.Errorf("%w: unsupported document type %q", ErrValidation, docType)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty document payload", ErrValidation)
	}

	cur, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUploadable(cur, actor); err != nil {
		return nil, err
	}

	ectx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()
	start := s.now()
	res, err := s.extractor.Extract(ectx, docType, payload)
	obs.ObserveExtraction(docType, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalCapability, err)
	}
	if !res.Quality.Passed {
		return nil, fmt.Errorf("%w: %s", ErrQualityRejected, res.Quality.Reason)
	}

	// Duplicate identifier reuse across other cases is looked up before
	// taking the case lock; the result rides into the atomic update as
	// a context anomaly.
	dupes := s.findDuplicates(ctx, caseID, res.Fields)

	now := s.now().UTC()
	updated, err := s.store.Update(ctx, caseID, func(c *Case) error {
		if err := s.checkUploadable(c, actor); err != nil {
			return err
		}
		c.Documents[docType] = Document{
			Type:       docType,
			Filename:   trimmed(filename),
			Size:       int64(len(payload)),
			Ref:        fmt.Sprintf("cases/%s/%s", c.ID, docType),
			UploadedAt: now,
		}
		c.OCR[docType] = OCRResult{
			RawText:     res.RawText,
			Fields:      res.Fields,
			Confidence:  res.Confidence,
			Quality:     res.Quality,
			Validation:  match.CrossValidate(c.Profile.FormFields(), res.Fields),
			ProcessedAt: now,
		}
		c.mergeContextAnomalies(dupes)
		s.reassess(c)
		c.appendAudit(now, actor, ActionDocumentProcessed, fmt.Sprintf("%s document processed", docType))
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(updated, ActionDocumentProcessed, actor.Name)
	return updated, nil
}

func (s *Service) checkUploadable(c *Case, actor Actor) error {
	if actor.Role != auth.RoleMaker {
		return fmt.Errorf("%w: uploading documents requires role %s", ErrPermission, auth.RoleMaker)
	}
	if !c.OwnedBy(actor.ID) {
		return fmt.Errorf("%w: only the case owner may upload documents", ErrPermission)
	}
	if c.Status != StatusDraft && c.Status != StatusReturned {
		return fmt.Errorf("%w: documents can only be uploaded in %s or %s", ErrPrecondition, StatusDraft, StatusReturned)
	}
	return nil
}

// Submit moves an owned case to SUBMITTED and immediately performs the
// automated review, refreshing the risk assessment and advancing to
// AI_REVIEWED. Both steps commit in one atomic update.
func (s *Service) Submit(ctx context.Context, actor Actor, caseID, comments string) (*Case, error) {
	now := s.now().UTC()
	updated, err := s.store.Update(ctx, caseID, func(c *Case) error {
		tr, err := authorize(c, VerbSubmit, actor, comments)
		if err != nil {
			return err
		}
		c.Status = tr.To
		c.appendAudit(now, actor, tr.Action, comments)

		s.reassess(c)
		c.Status = StatusAIReviewed
		summary := "automated review completed"
		if c.RiskScore != nil {
			summary = fmt.Sprintf("automated review completed: risk score %d (%s)", *c.RiskScore, c.RiskLevel)
		}
		c.appendAudit(now, systemActor, ActionAIReviewed, summary)
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		recordTransitionErr(ActionSubmitted, err)
		return nil, err
	}
	obs.RecordTransition(string(ActionSubmitted), "ok")
	obs.RecordTransition(string(ActionAIReviewed), "ok")
	s.publish(updated, ActionSubmitted, actor.Name)
	s.publish(updated, ActionAIReviewed, systemActor.Name)
	return updated, nil
}

// Approve finishes the case as CHECKER_APPROVED.
func (s *Service) Approve(ctx context.Context, actor Actor, caseID, comments string) (*Case, error) {
	return s.decide(ctx, actor, caseID, VerbApprove, comments)
}

// Reject finishes the case as CHECKER_REJECTED. Comments are required.
func (s *Service) Reject(ctx context.Context, actor Actor, caseID, comments string) (*Case, error) {
	return s.decide(ctx, actor, caseID, VerbReject, comments)
}

// ReturnToMaker sends the case back for correction. Comments are required.
func (s *Service) ReturnToMaker(ctx context.Context, actor Actor, caseID, comments string) (*Case, error) {
	return s.decide(ctx, actor, caseID, VerbReturn, comments)
}

func (s *Service) decide(ctx context.Context, actor Actor, caseID string, verb Verb, comments string) (*Case, error) {
	now := s.now().UTC()
	var action Action
	updated, err := s.store.Update(ctx, caseID, func(c *Case) error {
		tr, err := authorize(c, verb, actor, comments)
		if err != nil {
			return err
		}
		action = tr.Action
		c.Status = tr.To
		c.appendAudit(now, actor, tr.Action, comments)
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		recordTransitionErr(verbActions[verb], err)
		return nil, err
	}
	obs.RecordTransition(string(action), "ok")
	s.publish(updated, action, actor.Name)
	return updated, nil
}

// Get returns one case. Makers only see their own cases.
func (s *Service) Get(ctx context.Context, actor Actor, caseID string) (*Case, error) {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleMaker && !c.OwnedBy(actor.ID) {
		return nil, fmt.Errorf("%w: case belongs to another maker", ErrPermission)
	}
	return c, nil
}

// List returns cases visible to the actor, optionally filtered by
// status. Checkers see every case, makers only their own.
func (s *Service) List(ctx context.Context, actor Actor, statusFilter string) ([]*Case, error) {
	f := Filter{}
	if actor.Role == auth.RoleMaker {
		f.CreatorID = actor.ID
	}
	if raw := trimmed(statusFilter); raw != "" {
		st, ok := ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
		}
		f.Status = st
	}
	return s.store.List(ctx, f)
}

// AuditTrail returns the full ordered trail for a case.
func (s *Service) AuditTrail(ctx context.Context, actor Actor, caseID string) ([]AuditEntry, error) {
	c, err := s.Get(ctx, actor, caseID)
	if err != nil {
		return nil, err
	}
	return c.Audit, nil
}

// Delete is the compensating action for a case whose creation-time
// upload failed. It is not a workflow transition: it is limited to the
// owning maker, DRAFT status, and a trail without workflow entries.
func (s *Service) Delete(ctx context.Context, actor Actor, caseID string) error {
	c, err := s.store.Get(ctx, caseID)
	if err != nil {
		return err
	}
	if actor.Role != auth.RoleMaker || !c.OwnedBy(actor.ID) {
		return fmt.Errorf("%w: only the owning maker may delete a case", ErrPermission)
	}
	if c.Status != StatusDraft {
		return fmt.Errorf("%w: only %s cases can be deleted", ErrPrecondition, StatusDraft)
	}
	for _, entry := range c.Audit {
		if entry.Action.workflowAction() {
			return fmt.Errorf("%w: case already entered the workflow", ErrPrecondition)
		}
	}
	return s.store.Delete(ctx, caseID)
}

func (s *Service) findDuplicates(ctx context.Context, caseID string, extracted map[string]string) []risk.Anomaly {
	var anomalies []risk.Anomaly
	for _, field := range []string{match.FieldPAN, match.FieldAadhaar} {
		value := match.NormalizeIdentifier(extracted[field])
		if value == "" {
			continue
		}
		otherID, err := s.store.FindIdentifier(ctx, field, value, caseID)
		if err != nil {
			continue
		}
		anomalies = append(anomalies, risk.Anomaly{
			Type:        risk.AnomalyDuplicateEntry,
			Field:       field,
			Severity:    risk.SeverityHigh,
			Description: fmt.Sprintf("%s already present on case %s", field, otherID),
		})
	}
	return anomalies
}

func (s *Service) publish(c *Case, action Action, actorName string) {
	if s.events == nil {
		return
	}
	ev := stream.CaseEvent{
		CaseID:    c.ID,
		Action:    string(action),
		Status:    string(c.Status),
		RiskLevel: string(c.RiskLevel),
		Actor:     actorName,
		Timestamp: s.now().UTC(),
	}
	if c.RiskScore != nil {
		v := *c.RiskScore
		ev.RiskScore = &v
	}
	s.events.Publish(ev)
}

func (c *Case) appendAudit(now time.Time, actor Actor, action Action, comments string) {
	c.Audit = append(c.Audit, AuditEntry{
		ID:        ids.New(),
		Timestamp: now,
		UserID:    actor.ID,
		UserName:  actor.Name,
		Role:      actor.Role,
		Action:    action,
		Comments:  comments,
	})
}

func (c *Case) mergeContextAnomalies(fresh []risk.Anomaly) {
	for _, a := range fresh {
		dup := false
		for _, existing := range c.ContextAnomalies {
			if existing.Type == a.Type && existing.Field == a.Field {
				dup = true
				break
			}
		}
		if !dup {
			c.ContextAnomalies = append(c.ContextAnomalies, a)
		}
	}
}

func validateProfile(p Profile) error {
	if trimmed(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if trimmed(p.DOB) == "" {
		return fmt.Errorf("%w: dob is required", ErrValidation)
	}
	if _, ok := match.ParseDate(p.DOB); !ok {
		return fmt.Errorf("%w: dob is not a recognizable date", ErrValidation)
	}
	if email := trimmed(p.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("%w: invalid email address", ErrValidation)
		}
	}
	return nil
}

func normalizeProfile(p Profile) Profile {
	p.Name = trimmed(p.Name)
	p.DOB = trimmed(p.DOB)
	p.Address = trimmed(p.Address)
	p.Email = trimmed(p.Email)
	p.Phone = trimmed(p.Phone)
	p.PAN = trimmed(p.PAN)
	p.Aadhaar = trimmed(p.Aadhaar)
	p.PassportNo = trimmed(p.PassportNo)
	return p
}

func recordTransitionErr(action Action, err error) {
	outcome := "error"
	switch {
	case errors.Is(err, ErrPermission):
		outcome = "permission"
	case errors.Is(err, ErrPrecondition):
		outcome = "precondition"
	}
	obs.RecordTransition(string(action), outcome)
}

func trimmed(s string) string { return strings.TrimSpace(s) }
