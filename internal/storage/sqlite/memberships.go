package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

const membershipColumns = "id, group_id, user_id, status, decided_by, reason, requested_at, decided_at, version"

func (s *SQLiteStore) saveMembership(ctx context.Context, m *models.Membership, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO memberships (`+membershipColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.GroupID, m.UserID, string(m.Status),
			nullable(m.DecidedBy), nullable(m.Reason), m.RequestedAt, m.DecidedAt, m.Version,
		)
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET status = ?, decided_by = ?, reason = ?, decided_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(m.Status), nullable(m.DecidedBy), nullable(m.Reason), m.DecidedAt, m.Version,
		m.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return s.checkUpdate(ctx, res, "memberships", m.ID)
}

func (s *SQLiteStore) getMembership(ctx context.Context, id string) (*models.Membership, error) {
	return s.scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE id = ?`, id))
}

// GetMembership retrieves the unique membership for a (group, user) pair.
func (s *SQLiteStore) GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	return s.scanMembership(s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE group_id = ? AND user_id = ?`,
		groupID, userID))
}

// ListGroupMemberships returns all memberships of a group, newest first.
func (s *SQLiteStore) ListGroupMemberships(ctx context.Context, groupID string) ([]*models.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE group_id = ? ORDER BY requested_at DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m, err := s.scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (s *SQLiteStore) scanMembership(row rowScanner) (*models.Membership, error) {
	m := &models.Membership{}
	var status string
	var decidedBy, reason sql.NullString

	err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &status,
		&decidedBy, &reason, &m.RequestedAt, &m.DecidedAt, &m.Version)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}

	m.Status = models.Status(status)
	m.DecidedBy = decidedBy.String
	m.Reason = reason.String
	return m, nil
}
