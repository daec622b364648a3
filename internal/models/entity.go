package models

// EntityType identifies which state machine an entity belongs to.
type EntityType string

const (
	EntityGroup        EntityType = "group"
	EntityMembership   EntityType = "membership"
	EntityContribution EntityType = "contribution"
	EntityLoan         EntityType = "loan"
	EntityPayment      EntityType = "payment"
)

// Status is a lifecycle state of an entity.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusRemoved  Status = "removed"
	StatusRepaid   Status = "repaid"
	StatusRecorded Status = "recorded"
)

// Transition is a named status change requested by an actor.
type Transition string

const (
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
	TransitionRemove  Transition = "remove"
	TransitionRepay   Transition = "repay"
	TransitionRecord  Transition = "record"
)

// TransitionPayload carries the transition-specific inputs. Which fields
// are required depends on the transition: reject needs a Reason, record
// needs a ReceiptRef.
type TransitionPayload struct {
	Reason     string `json:"reason,omitempty"`
	ReceiptRef string `json:"receipt_ref,omitempty"`
}

// Entity is the snapshot view the workflow engine operates on. Every
// domain entity implements it. Apply returns a new snapshot with the
// given status and decision metadata; the receiver is left untouched.
type Entity interface {
	EntityType() EntityType
	EntityID() string

	// GroupRef is the group the entity belongs to, used as the event
	// routing key. For a Group it is the group's own ID.
	GroupRef() string

	// RequestedBy is the user who created the request (group creator,
	// joining member, contributor, borrower, payer).
	RequestedBy() string

	CurrentStatus() Status
	CurrentVersion() int64

	Apply(status Status, decidedBy string, decidedAt int64, p TransitionPayload) Entity
}
