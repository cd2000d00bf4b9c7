package cases

import (
	"fmt"

	"kycdesk.org/internal/auth"
)

// Verb names a requested workflow transition.
type Verb string

const (
	VerbSubmit  Verb = "submit"
	VerbApprove Verb = "approve"
	VerbReject  Verb = "reject"
	VerbReturn  Verb = "return"
)

// verbActions maps a requested verb to its audit action, used to label
// metrics for attempts that never resolve a transition row.
var verbActions = map[Verb]Action{
	VerbSubmit:  ActionSubmitted,
	VerbApprove: ActionApproved,
	VerbReject:  ActionRejected,
	VerbReturn:  ActionReturned,
}

// transition declares one row of the state machine: who may perform the
// verb from a given state, what it requires and where it leads.
type transition struct {
	To              Status
	Action          Action
	Role            auth.Role
	OwnerOnly       bool
	NotOwner        bool
	RequireComments bool
	NeedsDocument   bool
}

// transitions is the complete state machine. Anything absent here is
// rejected; terminal states have no rows at all.
var transitions = map[Status]map[Verb]transition{
	StatusDraft: {
		VerbSubmit: {To: StatusSubmitted, Action: ActionSubmitted, Role: auth.RoleMaker, OwnerOnly: true, NeedsDocument: true},
	},
	StatusReturned: {
		VerbSubmit: {To: StatusSubmitted, Action: ActionSubmitted, Role: auth.RoleMaker, OwnerOnly: true},
	},
	StatusSubmitted: {
		VerbApprove: {To: StatusApproved, Action: ActionApproved, Role: auth.RoleChecker, NotOwner: true},
		VerbReject:  {To: StatusRejected, Action: ActionRejected, Role: auth.RoleChecker, NotOwner: true, RequireComments: true},
		VerbReturn:  {To: StatusReturned, Action: ActionReturned, Role: auth.RoleChecker, NotOwner: true, RequireComments: true},
	},
	StatusAIReviewed: {
		VerbApprove: {To: StatusApproved, Action: ActionApproved, Role: auth.RoleChecker, NotOwner: true},
		VerbReject:  {To: StatusRejected, Action: ActionRejected, Role: auth.RoleChecker, NotOwner: true, RequireComments: true},
		VerbReturn:  {To: StatusReturned, Action: ActionReturned, Role: auth.RoleChecker, NotOwner: true, RequireComments: true},
	},
}

// authorize resolves the transition for (case state, verb, actor) and
// validates everything except the document precondition, which depends
// on the verb's target effect and is checked by the caller. Wrong state
// is a precondition failure; wrong role or ownership is a permission
// failure.
func authorize(c *Case, verb Verb, actor Actor, comments string) (transition, error) {
	rows, ok := transitions[c.Status]
	if !ok {
		return transition{}, fmt.Errorf("%w: case is %s and accepts no further transitions", ErrPrecondition, c.Status)
	}
	tr, ok := rows[verb]
	if !ok {
		return transition{}, fmt.Errorf("%w: cannot %s a case in status %s", ErrPrecondition, verb, c.Status)
	}
	if actor.Role != tr.Role {
		return transition{}, fmt.Errorf("%w: %s requires role %s", ErrPermission, verb, tr.Role)
	}
	if tr.OwnerOnly && !c.OwnedBy(actor.ID) {
		return transition{}, fmt.Errorf("%w: only the case owner may %s", ErrPermission, verb)
	}
	if tr.NotOwner && c.OwnedBy(actor.ID) {
		return transition{}, fmt.Errorf("%w: the case owner may not %s their own case", ErrPermission, verb)
	}
	if tr.RequireComments && trimmed(comments) == "" {
		return transition{}, fmt.Errorf("%w: comments are required to %s", ErrValidation, verb)
	}
	if tr.NeedsDocument && c.ProcessedDocuments() == 0 {
		return transition{}, fmt.Errorf("%w: at least one processed document is required", ErrPrecondition)
	}
	return tr, nil
}
