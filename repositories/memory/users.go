// Package memory provides process-local repositories with the same
// uniqueness semantics as the PostgreSQL schema. Used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

// UserRepository is an in-memory repositories.UserRepository
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

// NewUserRepository creates an empty user store
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]*models.User)}
}

// Create inserts a copy of user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return fmt.Errorf("%w: users_pkey", repositories.ErrDuplicate)
	}
	if err := r.checkUnique(user, uuid.Nil); err != nil {
		return err
	}
	r.users[user.ID] = user.Clone()
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if u, ok := r.users[id]; ok {
		return u.Clone(), nil
	}
	return nil, repositories.ErrNotFound
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return externalID != "" && u.ExternalID() == externalID })
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == repositories.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// Update applies patch under the write lock so no reader sees a partial update
func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if patch.IsEmpty() {
		return current.Clone(), nil
	}

	next := patch.Apply(current)
	next.UpdatedAt = time.Now().UTC()
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	if err := r.checkUnique(next, id); err != nil {
		return nil, err
	}

	r.users[id] = next
	return next.Clone(), nil
}

// Len returns the number of stored users
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, repositories.ErrNotFound
}

// checkUnique must be called with the write lock held. self is skipped.
func (r *UserRepository) checkUnique(user *models.User, self uuid.UUID) error {
	externalID := user.ExternalID()
	for id, other := range r.users {
		if id == self {
			continue
		}
		if other.Email == user.Email {
			return fmt.Errorf("%w: users_email_key", repositories.ErrDuplicate)
		}
		if externalID != "" && other.ExternalID() == externalID {
			return fmt.Errorf("%w: users_external_id_key", repositories.ErrDuplicate)
		}
	}
	return nil
}
