// Package policy decides who may apply which transition. It is a pure,
// total function over value types: every (entity type, transition) pair
// resolves to a rule, and anything unmatched denies.
package policy

import "github.com/keza/ikimina/internal/models"

// Relationship is the actor's relationship to the entity under decision,
// computed by the caller from loaded state.
type Relationship struct {
	// IsGroupLeader is true when the actor leads the entity's group.
	IsGroupLeader bool

	// IsRequester is true when the actor created the request being
	// decided.
	IsRequester bool
}

// requirement is the rule for one (entity, transition) pair.
type requirement int

const (
	siteAdminOnly requirement = iota
	leaderOrAdmin
)

// rules is the complete authorization table. Pairs not listed here are
// denied outright.
var rules = map[models.EntityType]map[models.Transition]requirement{
	models.EntityGroup: {
		models.TransitionApprove: siteAdminOnly,
		models.TransitionReject:  siteAdminOnly,
	},
	models.EntityMembership: {
		models.TransitionApprove: leaderOrAdmin,
		models.TransitionReject:  leaderOrAdmin,
		models.TransitionRemove:  leaderOrAdmin,
	},
	models.EntityContribution: {
		models.TransitionApprove: leaderOrAdmin,
	},
	models.EntityLoan: {
		models.TransitionApprove: leaderOrAdmin,
		models.TransitionReject:  leaderOrAdmin,
		models.TransitionRepay:   leaderOrAdmin,
	},
	models.EntityPayment: {
		models.TransitionApprove: leaderOrAdmin,
		models.TransitionReject:  leaderOrAdmin,
		models.TransitionRecord:  leaderOrAdmin,
	},
}

// Decide reports whether the actor may apply the transition to an entity
// they hold the given relationship to. Self-approval is denied before any
// role rule applies: an actor never approves or records their own
// request, whatever their role.
func Decide(t models.EntityType, tr models.Transition, actor models.Identity, rel Relationship) bool {
	if rel.IsRequester && (tr == models.TransitionApprove || tr == models.TransitionRecord) {
		return false
	}

	req, ok := rules[t][tr]
	if !ok {
		return false
	}

	switch req {
	case siteAdminOnly:
		return actor.Role == models.RoleSiteAdmin
	case leaderOrAdmin:
		return actor.Role == models.RoleSiteAdmin || rel.IsGroupLeader
	}
	return false
}
