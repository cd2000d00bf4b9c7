package cases

import "errors"

var (
	// ErrNotFound indicates the case does not exist.
	ErrNotFound = errors.New("cases: not found")
	// ErrValidation indicates malformed or missing request fields.
	ErrValidation = errors.New("cases: invalid input")
	// ErrPermission indicates the wrong role or a non-owner acting.
	ErrPermission = errors.New("cases: permission denied")
	// ErrPrecondition indicates a transition from the wrong state or
	// with an unmet requirement such as submitting without documents.
	ErrPrecondition = errors.New("cases: precondition failed")
	// ErrQualityRejected indicates the document failed the external
	// quality gate; no extraction result was attached.
	ErrQualityRejected = errors.New("cases: document quality rejected")
	// ErrExternalCapability indicates the extraction capability errored
	// or timed out; the case is unchanged and the upload is retryable.
	ErrExternalCapability = errors.New("cases: extraction capability failed")
)
