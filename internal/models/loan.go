package models

import "github.com/shopspring/decimal"

// Loan is a member's borrow request against the group pot. Approved loans
// stay open until marked repaid.
type Loan struct {
	// ID is the unique identifier for the loan (UUID format).
	ID string

	GroupID    string
	BorrowerID string

	// Amount is the requested amount, strictly positive.
	Amount decimal.Decimal

	Status Status

	DecidedBy string

	// Reason is the rejection reason, empty unless rejected.
	Reason string

	RequestedAt int64
	DecidedAt   int64

	Version int64
}

func (l *Loan) EntityType() EntityType { return EntityLoan }
func (l *Loan) EntityID() string       { return l.ID }
func (l *Loan) GroupRef() string       { return l.GroupID }
func (l *Loan) RequestedBy() string    { return l.BorrowerID }
func (l *Loan) CurrentStatus() Status  { return l.Status }
func (l *Loan) CurrentVersion() int64  { return l.Version }

func (l *Loan) Apply(status Status, decidedBy string, decidedAt int64, p TransitionPayload) Entity {
	next := *l
	next.Status = status
	next.DecidedBy = decidedBy
	next.DecidedAt = decidedAt
	next.Reason = p.Reason
	next.Version = l.Version + 1
	return &next
}
