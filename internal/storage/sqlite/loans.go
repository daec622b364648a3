package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

const loanColumns = "id, group_id, borrower_id, amount, status, decided_by, reason, requested_at, decided_at, version"

func (s *SQLiteStore) saveLoan(ctx context.Context, l *models.Loan, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.GroupID, l.BorrowerID, l.Amount.String(), string(l.Status),
			nullable(l.DecidedBy), nullable(l.Reason), l.RequestedAt, l.DecidedAt, l.Version,
		)
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to insert loan: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE loans SET status = ?, decided_by = ?, reason = ?, decided_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(l.Status), nullable(l.DecidedBy), nullable(l.Reason), l.DecidedAt, l.Version,
		l.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return s.checkUpdate(ctx, res, "loans", l.ID)
}

func (s *SQLiteStore) getLoan(ctx context.Context, id string) (*models.Loan, error) {
	return s.scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id))
}

// ListGroupLoans returns all loans in a group, newest first.
func (s *SQLiteStore) ListGroupLoans(ctx context.Context, groupID string) ([]*models.Loan, error) {
	return s.listLoans(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE group_id = ? ORDER BY requested_at DESC`,
		groupID)
}

// ListBorrowerLoans returns a user's loans across groups.
func (s *SQLiteStore) ListBorrowerLoans(ctx context.Context, borrowerID string) ([]*models.Loan, error) {
	return s.listLoans(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE borrower_id = ? ORDER BY requested_at DESC`,
		borrowerID)
}

func (s *SQLiteStore) listLoans(ctx context.Context, query string, arg any) ([]*models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		l, err := s.scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func (s *SQLiteStore) scanLoan(row rowScanner) (*models.Loan, error) {
	l := &models.Loan{}
	var status, amount string
	var decidedBy, reason sql.NullString

	err := row.Scan(&l.ID, &l.GroupID, &l.BorrowerID, &amount, &status,
		&decidedBy, &reason, &l.RequestedAt, &l.DecidedAt, &l.Version)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan loan: %w", err)
	}

	l.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	l.Status = models.Status(status)
	l.DecidedBy = decidedBy.String
	l.Reason = reason.String
	return l, nil
}
