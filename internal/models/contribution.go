package models

import "github.com/shopspring/decimal"

// Contribution is a member's payment into the group pot. The amount is
// fixed at creation; the only transition is leader approval.
type Contribution struct {
	// ID is the unique identifier for the contribution (UUID format).
	ID string

	GroupID  string
	MemberID string

	// Amount is non-negative, fixed at creation.
	Amount decimal.Decimal

	Status Status

	DecidedBy string

	SubmittedAt int64
	DecidedAt   int64

	Version int64
}

func (c *Contribution) EntityType() EntityType { return EntityContribution }
func (c *Contribution) EntityID() string       { return c.ID }
func (c *Contribution) GroupRef() string       { return c.GroupID }
func (c *Contribution) RequestedBy() string    { return c.MemberID }
func (c *Contribution) CurrentStatus() Status  { return c.Status }
func (c *Contribution) CurrentVersion() int64  { return c.Version }

func (c *Contribution) Apply(status Status, decidedBy string, decidedAt int64, p TransitionPayload) Entity {
	next := *c
	next.Status = status
	next.DecidedBy = decidedBy
	next.DecidedAt = decidedAt
	next.Version = c.Version + 1
	return &next
}
