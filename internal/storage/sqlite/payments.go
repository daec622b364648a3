package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

const paymentColumns = "id, group_id, loan_id, contribution_id, payer_id, amount, status, receipt_ref, decided_by, reason, requested_at, decided_at, version"

func (s *SQLiteStore) savePayment(ctx context.Context, p *models.PaymentRequest, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.GroupID, nullable(p.LoanID), nullable(p.ContributionID), p.PayerID,
			p.Amount.String(), string(p.Status), nullable(p.ReceiptRef),
			nullable(p.DecidedBy), nullable(p.Reason), p.RequestedAt, p.DecidedAt, p.Version,
		)
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, receipt_ref = ?, decided_by = ?, reason = ?, decided_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(p.Status), nullable(p.ReceiptRef), nullable(p.DecidedBy), nullable(p.Reason), p.DecidedAt, p.Version,
		p.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return s.checkUpdate(ctx, res, "payments", p.ID)
}

func (s *SQLiteStore) getPayment(ctx context.Context, id string) (*models.PaymentRequest, error) {
	return s.scanPayment(s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
}

// ListGroupPayments returns all payment requests in a group, newest first.
func (s *SQLiteStore) ListGroupPayments(ctx context.Context, groupID string) ([]*models.PaymentRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE group_id = ? ORDER BY requested_at DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.PaymentRequest
	for rows.Next() {
		p, err := s.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *SQLiteStore) scanPayment(row rowScanner) (*models.PaymentRequest, error) {
	p := &models.PaymentRequest{}
	var status, amount string
	var loanID, contributionID, receiptRef, decidedBy, reason sql.NullString

	err := row.Scan(&p.ID, &p.GroupID, &loanID, &contributionID, &p.PayerID,
		&amount, &status, &receiptRef, &decidedBy, &reason,
		&p.RequestedAt, &p.DecidedAt, &p.Version)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	p.Status = models.Status(status)
	p.LoanID = loanID.String
	p.ContributionID = contributionID.String
	p.ReceiptRef = receiptRef.String
	p.DecidedBy = decidedBy.String
	p.Reason = reason.String
	return p, nil
}
