// Package workflow is the single authority for validating and applying
// status transitions across the five entity types. All status changes go
// through Engine.Transition; nothing else writes entity statuses.
package workflow

import "github.com/keza/ikimina/internal/models"

// rule is one legal edge in an entity's state machine.
type rule struct {
	from models.Status
	to   models.Status
}

// tables holds the complete state machines. A transition absent from an
// entity's table is illegal from every state.
var tables = map[models.EntityType]map[models.Transition]rule{
	models.EntityGroup: {
		models.TransitionApprove: {from: models.StatusPending, to: models.StatusApproved},
		models.TransitionReject:  {from: models.StatusPending, to: models.StatusRejected},
	},
	models.EntityMembership: {
		models.TransitionApprove: {from: models.StatusPending, to: models.StatusApproved},
		models.TransitionReject:  {from: models.StatusPending, to: models.StatusRejected},
		models.TransitionRemove:  {from: models.StatusApproved, to: models.StatusRemoved},
	},
	models.EntityContribution: {
		models.TransitionApprove: {from: models.StatusPending, to: models.StatusApproved},
	},
	models.EntityLoan: {
		models.TransitionApprove: {from: models.StatusPending, to: models.StatusApproved},
		models.TransitionReject:  {from: models.StatusPending, to: models.StatusRejected},
		models.TransitionRepay:   {from: models.StatusApproved, to: models.StatusRepaid},
	},
	models.EntityPayment: {
		models.TransitionApprove: {from: models.StatusPending, to: models.StatusApproved},
		models.TransitionReject:  {from: models.StatusPending, to: models.StatusRejected},
		models.TransitionRecord:  {from: models.StatusApproved, to: models.StatusRecorded},
	},
}

// Resolve validates a transition against the entity's state machine and
// returns the resulting status. A redundant request (entity already in
// the target status) yields AlreadyInStateError so retrying clients can
// tell it apart from a fresh apply.
func Resolve(t models.EntityType, tr models.Transition, current models.Status) (models.Status, error) {
	r, ok := tables[t][tr]
	if !ok {
		return "", &InvalidTransitionError{Entity: t, Transition: tr, Current: current}
	}
	if current == r.to {
		return "", &AlreadyInStateError{Entity: t, Status: current}
	}
	if current != r.from {
		return "", &InvalidTransitionError{Entity: t, Transition: tr, Current: current, Requested: r.to}
	}
	return r.to, nil
}

// IsTerminal reports whether no transition leads out of the given status
// for the entity type.
func IsTerminal(t models.EntityType, s models.Status) bool {
	for _, r := range tables[t] {
		if r.from == s {
			return false
		}
	}
	return true
}

// Transitions returns the transition names defined for an entity type.
func Transitions(t models.EntityType) []models.Transition {
	trs := make([]models.Transition, 0, len(tables[t]))
	for tr := range tables[t] {
		trs = append(trs, tr)
	}
	return trs
}
