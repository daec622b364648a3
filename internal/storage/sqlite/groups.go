package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

const groupColumns = "id, code, name, status, created_by, decided_by, reason, created_at, decided_at, version"

func (s *SQLiteStore) saveGroup(ctx context.Context, g *models.Group, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Code, g.Name, string(g.Status), g.CreatedBy,
			nullable(g.DecidedBy), nullable(g.Reason), g.CreatedAt, g.DecidedAt, g.Version,
		)
		if isUniqueViolation(err) {
			return storage.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET status = ?, decided_by = ?, reason = ?, decided_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(g.Status), nullable(g.DecidedBy), nullable(g.Reason), g.DecidedAt, g.Version,
		g.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return s.checkUpdate(ctx, res, "groups", g.ID)
}

func (s *SQLiteStore) getGroup(ctx context.Context, id string) (*models.Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id))
}

// GetGroupByCode resolves a join code to its group. Codes are stored with
// NOCASE collation, so the lookup is case-insensitive.
func (s *SQLiteStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE code = ?`, code))
}

// ListGroups returns groups filtered by status; empty status means all.
func (s *SQLiteStore) ListGroups(ctx context.Context, status models.Status) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + groupColumns + ` FROM groups WHERE status = ? ORDER BY created_at DESC`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := s.scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanGroup(row rowScanner) (*models.Group, error) {
	g := &models.Group{}
	var status string
	var decidedBy, reason sql.NullString

	err := row.Scan(&g.ID, &g.Code, &g.Name, &status, &g.CreatedBy,
		&decidedBy, &reason, &g.CreatedAt, &g.DecidedAt, &g.Version)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan group: %w", err)
	}

	g.Status = models.Status(status)
	g.DecidedBy = decidedBy.String
	g.Reason = reason.String
	return g, nil
}
