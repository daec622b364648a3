package models

import "github.com/shopspring/decimal"

// PaymentRequest is a disbursement or repayment record tied to a loan or
// contribution. Recording it requires a receipt reference.
type PaymentRequest struct {
	// ID is the unique identifier for the payment request (UUID format).
	ID string

	GroupID string

	// LoanID and ContributionID reference the subject of the payment;
	// exactly one is set.
	LoanID         string
	ContributionID string

	// PayerID is the user paying or being paid.
	PayerID string

	Amount decimal.Decimal

	Status Status

	// ReceiptRef is the receipt reference, set when the payment is
	// recorded and empty before that.
	ReceiptRef string

	DecidedBy string

	// Reason is the rejection reason, empty unless rejected.
	Reason string

	RequestedAt int64
	DecidedAt   int64

	Version int64
}

func (p *PaymentRequest) EntityType() EntityType { return EntityPayment }
func (p *PaymentRequest) EntityID() string       { return p.ID }
func (p *PaymentRequest) GroupRef() string       { return p.GroupID }
func (p *PaymentRequest) RequestedBy() string    { return p.PayerID }
func (p *PaymentRequest) CurrentStatus() Status  { return p.Status }
func (p *PaymentRequest) CurrentVersion() int64  { return p.Version }

func (p *PaymentRequest) Apply(status Status, decidedBy string, decidedAt int64, tp TransitionPayload) Entity {
	next := *p
	next.Status = status
	next.DecidedBy = decidedBy
	next.DecidedAt = decidedAt
	next.Reason = tp.Reason
	if tp.ReceiptRef != "" {
		next.ReceiptRef = tp.ReceiptRef
	}
	next.Version = p.Version + 1
	return &next
}
