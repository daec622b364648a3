package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

const contributionColumns = "id, group_id, member_id, amount, status, decided_by, submitted_at, decided_at, version"

func (s *SQLiteStore) saveContribution(ctx context.Context, c *models.Contribution, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO contributions (`+contributionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.GroupID, c.MemberID, c.Amount.String(), string(c.Status),
			nullable(c.DecidedBy), c.SubmittedAt, c.DecidedAt, c.Version,
		)
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to insert contribution: %w", err)
		}
		return nil
	}

	// Amount is fixed at creation and never part of an update.
	res, err := s.db.ExecContext(ctx,
		`UPDATE contributions SET status = ?, decided_by = ?, decided_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(c.Status), nullable(c.DecidedBy), c.DecidedAt, c.Version,
		c.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	return s.checkUpdate(ctx, res, "contributions", c.ID)
}

func (s *SQLiteStore) getContribution(ctx context.Context, id string) (*models.Contribution, error) {
	return s.scanContribution(s.db.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id))
}

// ListGroupContributions returns all contributions in a group, newest first.
func (s *SQLiteStore) ListGroupContributions(ctx context.Context, groupID string) ([]*models.Contribution, error) {
	return s.listContributions(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE group_id = ? ORDER BY submitted_at DESC`,
		groupID)
}

// ListMemberContributions returns a member's contributions across groups.
func (s *SQLiteStore) ListMemberContributions(ctx context.Context, memberID string) ([]*models.Contribution, error) {
	return s.listContributions(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE member_id = ? ORDER BY submitted_at DESC`,
		memberID)
}

func (s *SQLiteStore) listContributions(ctx context.Context, query string, arg any) ([]*models.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		c, err := s.scanContribution(rows)
		if err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

func (s *SQLiteStore) scanContribution(row rowScanner) (*models.Contribution, error) {
	c := &models.Contribution{}
	var status, amount string
	var decidedBy sql.NullString

	err := row.Scan(&c.ID, &c.GroupID, &c.MemberID, &amount, &status,
		&decidedBy, &c.SubmittedAt, &c.DecidedAt, &c.Version)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contribution: %w", err)
	}

	c.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	c.Status = models.Status(status)
	c.DecidedBy = decidedBy.String
	return c, nil
}
