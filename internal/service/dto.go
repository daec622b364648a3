package service

import "github.com/keza/ikimina/internal/models"

// Response shapes. Amounts are serialized as decimal strings.

type groupJSON struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by"`
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt int64  `json:"created_at"`
	DecidedAt int64  `json:"decided_at,omitempty"`
	Version   int64  `json:"version"`
}

func toGroupJSON(g *models.Group) groupJSON {
	return groupJSON{
		ID:        g.ID,
		Code:      g.Code,
		Name:      g.Name,
		Status:    string(g.Status),
		CreatedBy: g.CreatedBy,
		DecidedBy: g.DecidedBy,
		Reason:    g.Reason,
		CreatedAt: g.CreatedAt,
		DecidedAt: g.DecidedAt,
		Version:   g.Version,
	}
}

type membershipJSON struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	DecidedBy   string `json:"decided_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RequestedAt int64  `json:"requested_at"`
	DecidedAt   int64  `json:"decided_at,omitempty"`
	Version     int64  `json:"version"`
}

func toMembershipJSON(m *models.Membership) membershipJSON {
	return membershipJSON{
		ID:          m.ID,
		GroupID:     m.GroupID,
		UserID:      m.UserID,
		Status:      string(m.Status),
		DecidedBy:   m.DecidedBy,
		Reason:      m.Reason,
		RequestedAt: m.RequestedAt,
		DecidedAt:   m.DecidedAt,
		Version:     m.Version,
	}
}

type contributionJSON struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	MemberID    string `json:"member_id"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	DecidedBy   string `json:"decided_by,omitempty"`
	SubmittedAt int64  `json:"submitted_at"`
	DecidedAt   int64  `json:"decided_at,omitempty"`
	Version     int64  `json:"version"`
}

func toContributionJSON(c *models.Contribution) contributionJSON {
	return contributionJSON{
		ID:          c.ID,
		GroupID:     c.GroupID,
		MemberID:    c.MemberID,
		Amount:      c.Amount.String(),
		Status:      string(c.Status),
		DecidedBy:   c.DecidedBy,
		SubmittedAt: c.SubmittedAt,
		DecidedAt:   c.DecidedAt,
		Version:     c.Version,
	}
}

type loanJSON struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id"`
	BorrowerID  string `json:"borrower_id"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	DecidedBy   string `json:"decided_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RequestedAt int64  `json:"requested_at"`
	DecidedAt   int64  `json:"decided_at,omitempty"`
	Version     int64  `json:"version"`
}

func toLoanJSON(l *models.Loan) loanJSON {
	return loanJSON{
		ID:          l.ID,
		GroupID:     l.GroupID,
		BorrowerID:  l.BorrowerID,
		Amount:      l.Amount.String(),
		Status:      string(l.Status),
		DecidedBy:   l.DecidedBy,
		Reason:      l.Reason,
		RequestedAt: l.RequestedAt,
		DecidedAt:   l.DecidedAt,
		Version:     l.Version,
	}
}

type paymentJSON struct {
	ID             string `json:"id"`
	GroupID        string `json:"group_id"`
	LoanID         string `json:"loan_id,omitempty"`
	ContributionID string `json:"contribution_id,omitempty"`
	PayerID        string `json:"payer_id"`
	Amount         string `json:"amount"`
	Status         string `json:"status"`
	ReceiptRef     string `json:"receipt_ref,omitempty"`
	DecidedBy      string `json:"decided_by,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RequestedAt    int64  `json:"requested_at"`
	DecidedAt      int64  `json:"decided_at,omitempty"`
	Version        int64  `json:"version"`
}

func toPaymentJSON(p *models.PaymentRequest) paymentJSON {
	return paymentJSON{
		ID:             p.ID,
		GroupID:        p.GroupID,
		LoanID:         p.LoanID,
		ContributionID: p.ContributionID,
		PayerID:        p.PayerID,
		Amount:         p.Amount.String(),
		Status:         string(p.Status),
		ReceiptRef:     p.ReceiptRef,
		DecidedBy:      p.DecidedBy,
		Reason:         p.Reason,
		RequestedAt:    p.RequestedAt,
		DecidedAt:      p.DecidedAt,
		Version:        p.Version,
	}
}

type userJSON struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   int64  `json:"created_at"`
}

func toUserJSON(u *models.User) userJSON {
	return userJSON{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
	}
}
