// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/keza/ikimina/internal/models"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned by Save when the persisted version
	// differs from the expected one (optimistic concurrency).
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned when a uniqueness constraint would be
	// violated (membership per (group, user), group code, user email).
	ErrDuplicate = errors.New("already exists")
)

// Store defines the interface to the storage collaborator. The workflow
// engine only uses Load and Save; the rest serves the transport layer's
// read endpoints. This abstraction allows swapping storage backends
// without changing the engine or services.
type Store interface {
	// Load retrieves the latest snapshot of an entity.
	// Returns ErrNotFound if absent.
	Load(ctx context.Context, t models.EntityType, id string) (models.Entity, error)

	// Save persists a snapshot. expectedVersion 0 inserts a new entity;
	// otherwise the write succeeds only if the persisted version still
	// equals expectedVersion, else ErrVersionConflict.
	Save(ctx context.Context, e models.Entity, expectedVersion int64) error

	// GetGroupByCode resolves a human-readable join code
	// (case-insensitive) to a group. Returns ErrNotFound if absent.
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)

	// ListGroups filters by status; empty status means all groups.
	ListGroups(ctx context.Context, status models.Status) ([]*models.Group, error)
	ListGroupMemberships(ctx context.Context, groupID string) ([]*models.Membership, error)
	GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error)
	ListGroupContributions(ctx context.Context, groupID string) ([]*models.Contribution, error)
	ListMemberContributions(ctx context.Context, memberID string) ([]*models.Contribution, error)
	ListGroupLoans(ctx context.Context, groupID string) ([]*models.Loan, error)
	ListBorrowerLoans(ctx context.Context, borrowerID string) ([]*models.Loan, error)
	ListGroupPayments(ctx context.Context, groupID string) ([]*models.PaymentRequest, error)

	// User accounts (auth collaborator's backing store).
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Close releases any resources held by the store.
	Close() error
}
