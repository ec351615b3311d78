package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/shinobiwanshin/Sweetify/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")

	// ErrConstraint is returned when a write violates a check or foreign key constraint
	ErrConstraint = errors.New("constraint violation")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// UserRepository stores shop accounts. Email is unique across all users and
// external id is unique among external users.
type UserRepository interface {
	// Create inserts a new user. Returns ErrDuplicate on a uniqueness violation.
	Create(ctx context.Context, user *models.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)

	GetByEmail(ctx context.Context, email string) (*models.User, error)

	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// Update applies patch in a single atomic write and returns the stored result.
	// Returns ErrDuplicate if the new email is taken.
	Update(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error)
}

// SweetRepository stores catalog items
type SweetRepository interface {
	Create(ctx context.Context, sweet *models.Sweet) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Sweet, error)

	// GetByIDForUpdate locks the row for the rest of the surrounding transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sweet, error)

	List(ctx context.Context) ([]*models.Sweet, error)

	Search(ctx context.Context, filter models.SweetFilter) ([]*models.Sweet, error)

	Update(ctx context.Context, sweet *models.Sweet) error

	// AdjustQuantity adds delta to the stock and returns the updated sweet.
	AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.Sweet, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// PurchaseRepository stores the sales ledger
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *models.Purchase) error

	// ListByCustomer returns the customer's purchases, newest first
	ListByCustomer(ctx context.Context, email string) ([]*models.Purchase, error)

	// List returns all purchases, newest first
	List(ctx context.Context) ([]*models.Purchase, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users     UserRepository
	Sweets    SweetRepository
	Purchases PurchaseRepository
}
