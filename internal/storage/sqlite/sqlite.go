// Package sqlite provides a SQLite-backed implementation of the
// storage.Store interface with optimistic versioning: every entity row
// carries a version column, and updates only apply when the expected
// version still matches.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load retrieves the latest snapshot of an entity by type and id.
func (s *SQLiteStore) Load(ctx context.Context, t models.EntityType, id string) (models.Entity, error) {
	switch t {
	case models.EntityGroup:
		return s.getGroup(ctx, id)
	case models.EntityMembership:
		return s.getMembership(ctx, id)
	case models.EntityContribution:
		return s.getContribution(ctx, id)
	case models.EntityLoan:
		return s.getLoan(ctx, id)
	case models.EntityPayment:
		return s.getPayment(ctx, id)
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
}

// Save persists a snapshot. expectedVersion 0 inserts; any other value
// updates only the row still at that version.
func (s *SQLiteStore) Save(ctx context.Context, e models.Entity, expectedVersion int64) error {
	switch v := e.(type) {
	case *models.Group:
		return s.saveGroup(ctx, v, expectedVersion)
	case *models.Membership:
		return s.saveMembership(ctx, v, expectedVersion)
	case *models.Contribution:
		return s.saveContribution(ctx, v, expectedVersion)
	case *models.Loan:
		return s.saveLoan(ctx, v, expectedVersion)
	case *models.PaymentRequest:
		return s.savePayment(ctx, v, expectedVersion)
	default:
		return fmt.Errorf("unknown entity snapshot type %T", e)
	}
}

// checkUpdate interprets the result of a versioned UPDATE: zero rows
// means either the row is gone or someone else won the version race.
func (s *SQLiteStore) checkUpdate(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("existence check: %w", err)
	}
	return storage.ErrVersionConflict
}

// isUniqueViolation detects a UNIQUE constraint failure from the driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullable maps an empty string to NULL for optional columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
