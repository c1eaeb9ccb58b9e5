// Package workflow holds the approval state machine for spend requests: a
// fixed transition table keyed by (request type, current state, decision) and
// the pure eligibility predicates deciding who may act at which stage. Nothing
// here touches the database; the approval service evaluates these inside its
// locked transaction.
package workflow

import (
	"github.com/google/uuid"

	"spendflow/internal/model"
)

type transitionKey struct {
	reqType  string
	state    string
	decision string
}

// transitions is the full state machine. States absent from the table are
// terminal for normal flow.
var transitions = map[transitionKey]string{
	{model.RequestTypePurchase, model.StateSubmitted, model.DecisionApproved}:  model.StateDMApproved,
	{model.RequestTypePurchase, model.StateSubmitted, model.DecisionRejected}:  model.StateDMRejected,
	{model.RequestTypePurchase, model.StateDMApproved, model.DecisionApproved}: model.StateFinalApproved,
	{model.RequestTypePurchase, model.StateDMApproved, model.DecisionRejected}: model.StateFinalRejected,
	{model.RequestTypeProject, model.StateSubmitted, model.DecisionApproved}:   model.StateProcessing,
	{model.RequestTypeProject, model.StateSubmitted, model.DecisionRejected}:   model.StateFinalRejected,
}

// NextState resolves the transition table. ok is false when no transition is
// defined, meaning the decision is not valid in the current state.
func NextState(reqType, state, decision string) (string, bool) {
	next, ok := transitions[transitionKey{reqType, state, decision}]
	return next, ok
}

// ValidPath reports whether the given sequence of states is reachable in
// order through the transition table from its first element.
func ValidPath(reqType string, states []string) bool {
	for i := 1; i < len(states); i++ {
		found := false
		for key, next := range transitions {
			if key.reqType == reqType && key.state == states[i-1] && next == states[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Actor is the subset of a user the predicates need.
type Actor struct {
	ID     uuid.UUID
	Role   string
	Active bool
}

// Subject is the subset of a request the predicates need. HasQuotes is
// evaluated by the caller against the loaded quotes.
type Subject struct {
	Type            string
	State           string
	DirectManagerID *uuid.UUID
	HasQuotes       bool
}

// CanApprove decides stage eligibility for an approval. DM and FINAL stages
// are pooled: any active holder of the role may act, first actor wins, except
// when a direct manager is pinned on the request. Accountants never approve;
// they participate by attaching quotes and confirming client payment.
func CanApprove(actor Actor, sub Subject) bool {
	if !actor.Active {
		return false
	}
	switch actor.Role {
	case model.RoleDirectManager:
		if sub.Type != model.RequestTypePurchase || sub.State != model.StateSubmitted {
			return false
		}
		if sub.DirectManagerID != nil {
			return actor.ID == *sub.DirectManagerID
		}
		return true
	case model.RoleFinalManager:
		if sub.Type == model.RequestTypePurchase {
			return sub.State == model.StateDMApproved && sub.HasQuotes
		}
		if sub.Type == model.RequestTypeProject {
			return sub.State == model.StateSubmitted
		}
		return false
	case model.RoleAdmin:
		return sub.State == model.StateSubmitted || sub.State == model.StateDMApproved
	}
	return false
}

// CanReject mirrors CanApprove with two differences: the FM quote requirement
// does not apply, and accountants may reject a purchase at the quote stage
// (the API layer still turns accountant rejects away with a blanket 403; the
// predicate keeps the underlying capability explicit).
func CanReject(actor Actor, sub Subject) bool {
	if !actor.Active {
		return false
	}
	switch actor.Role {
	case model.RoleDirectManager:
		if sub.Type != model.RequestTypePurchase || sub.State != model.StateSubmitted {
			return false
		}
		if sub.DirectManagerID != nil {
			return actor.ID == *sub.DirectManagerID
		}
		return true
	case model.RoleFinalManager:
		return (sub.Type == model.RequestTypePurchase && sub.State == model.StateDMApproved) ||
			(sub.Type == model.RequestTypeProject && sub.State == model.StateSubmitted)
	case model.RoleAccountant:
		return sub.Type == model.RequestTypePurchase && sub.State == model.StateDMApproved
	case model.RoleAdmin:
		return sub.State == model.StateSubmitted || sub.State == model.StateDMApproved
	}
	return false
}

// ExpectedState returns the state a role must observe after acquiring the row
// lock for its action to still be valid. ok is false when the role has no
// fixed expected state (admins act at either pooled stage).
func ExpectedState(role, reqType string) (string, bool) {
	switch role {
	case model.RoleDirectManager:
		return model.StateSubmitted, true
	case model.RoleFinalManager:
		if reqType == model.RequestTypeProject {
			return model.StateSubmitted, true
		}
		return model.StateDMApproved, true
	case model.RoleAccountant:
		return model.StateDMApproved, true
	}
	return "", false
}

// CanSelectQuote gates quote selection: final managers and admins only, and
// only while the purchase sits at the quote stage.
func CanSelectQuote(actor Actor, sub Subject) bool {
	if actor.Role != model.RoleFinalManager && actor.Role != model.RoleAdmin {
		return false
	}
	return sub.State == model.StateDMApproved
}

// CanAddQuotes gates quote upload to accountants (and admins) at DM_APPROVED.
func CanAddQuotes(actor Actor, sub Subject) bool {
	if actor.Role != model.RoleAccountant && actor.Role != model.RoleAdmin {
		return false
	}
	return sub.State == model.StateDMApproved
}
