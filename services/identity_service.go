package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/clerk"
	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

// maxCreateAttempts bounds the retry after losing a create race.
const maxCreateAttempts = 2

// ExternalProfile is the identity-provider view of a user as delivered by a
// verified token or a webhook event.
type ExternalProfile struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	// Role is applied when non-nil. Webhook user events leave it nil so they
	// never overwrite a role granted by tokens or membership events.
	Role *models.Role
}

// ProfileFromIdentity converts a verified token identity. A token without an
// email falls back to the subject, matching the principal's username.
func ProfileFromIdentity(id clerk.Identity) ExternalProfile {
	role := id.Role
	return ExternalProfile{
		ExternalID: id.Subject,
		Email:      id.Username(),
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		Role:       &role,
	}
}

// IdentityService mirrors external identities into the local user store
type IdentityService struct {
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewIdentityService creates an IdentityService. users may be nil, in which
// case every call returns ErrStoreUnavailable.
func NewIdentityService(users repositories.UserRepository, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{users: users, logger: logger}
}

// Available reports whether a user store is wired
func (s *IdentityService) Available() bool {
	return s != nil && s.users != nil
}

// Reconcile upserts the user behind a verified token. Lookup is by external
// id, then by email. The write is detached from ctx cancellation so an aborted
// request never leaves a half-applied reconciliation.
func (s *IdentityService) Reconcile(ctx context.Context, id clerk.Identity) (*models.User, error) {
	return s.SyncUser(ctx, ProfileFromIdentity(id))
}

// SyncUser applies the same lookup order and email guard as Reconcile.
func (s *IdentityService) SyncUser(ctx context.Context, p ExternalProfile) (*models.User, error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	p.Email = NormalizeEmail(p.Email)
	if p.ExternalID == "" || p.Email == "" {
		return nil, ErrInvalidInput.Wrap(errors.New("external id and email are required"))
	}

	ctx = context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		user, err := s.syncOnce(ctx, p)
		if !errors.Is(err, repositories.ErrDuplicate) {
			return user, err
		}
		lastErr = err
		s.logger.Info("lost user create race, retrying as update",
			zap.String("email", p.Email),
			zap.Int("attempt", attempt+1))
	}
	return nil, ErrConcurrentUpdate.Wrap(lastErr)
}

// syncOnce returns repositories.ErrDuplicate only when a create lost a race.
func (s *IdentityService) syncOnce(ctx context.Context, p ExternalProfile) (*models.User, error) {
	user, err := s.users.GetByExternalID(ctx, p.ExternalID)
	switch {
	case err == nil:
		return s.updateLinked(ctx, user, p)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, WrapInternal("failed to look up user by external id", err)
	}

	user, err = s.users.GetByEmail(ctx, p.Email)
	switch {
	case err == nil:
		return s.migrate(ctx, user, p)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, WrapInternal("failed to look up user by email", err)
	}

	return s.create(ctx, p)
}

func (s *IdentityService) create(ctx context.Context, p ExternalProfile) (*models.User, error) {
	role := models.RoleUser
	if p.Role != nil {
		role = *p.Role
	}
	user, err := models.NewExternalUser(p.ExternalID, p.Email, p.FirstName, p.LastName, role)
	if err != nil {
		return nil, ErrInvalidInput.Wrap(err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
		return nil, WrapInternal("failed to create user", err)
	}

	s.logger.Info("created external user",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)))
	return user, nil
}

// updateLinked handles a user already bound to this external id. Email and
// profile follow the latest identity unless the email belongs to someone else.
func (s *IdentityService) updateLinked(ctx context.Context, user *models.User, p ExternalProfile) (*models.User, error) {
	if p.Email != user.Email {
		other, err := s.users.GetByEmail(ctx, p.Email)
		switch {
		case err == nil && other.ID != user.ID:
			s.logger.Warn("refusing to reassign email owned by another user",
				zap.String("user_id", user.ID.String()),
				zap.String("owner_id", other.ID.String()))
			return nil, ErrEmailConflict
		case err != nil && !errors.Is(err, repositories.ErrNotFound):
			return nil, WrapInternal("failed to check email ownership", err)
		}
	}
	return s.apply(ctx, user, profilePatch(user, p, nil))
}

// migrate links an existing account found only by email. Legacy rows without
// an auth mode are claimed and external rows are rebound to the new external
// id. Local accounts are left untouched.
func (s *IdentityService) migrate(ctx context.Context, user *models.User, p ExternalProfile) (*models.User, error) {
	var creds models.Credentials
	switch c := user.Credentials.(type) {
	case nil:
		creds = models.External{ExternalID: p.ExternalID}
	case models.External:
		if c.ExternalID != p.ExternalID {
			s.logger.Info("rebinding external id by email",
				zap.String("user_id", user.ID.String()),
				zap.String("old_external_id", c.ExternalID))
			creds = models.External{ExternalID: p.ExternalID}
		}
	default:
		s.logger.Warn("external identity presented for a local account",
			zap.String("user_id", user.ID.String()))
		return nil, ErrAuthModeConflict.Wrap(fmt.Errorf("account auth mode is %s", user.AuthMode()))
	}

	s.logger.Info("linking existing user to external identity",
		zap.String("user_id", user.ID.String()))
	return s.apply(ctx, user, profilePatch(user, p, creds))
}

func (s *IdentityService) apply(ctx context.Context, user *models.User, patch models.UserPatch) (*models.User, error) {
	if patch.IsEmpty() {
		return user, nil
	}

	updated, err := s.users.Update(ctx, user.ID, patch)
	switch {
	case errors.Is(err, repositories.ErrDuplicate):
		return nil, ErrEmailConflict.Wrap(err)
	case errors.Is(err, repositories.ErrNotFound):
		return nil, ErrConcurrentUpdate.Wrap(err)
	case err != nil:
		return nil, WrapInternal("failed to update user", err)
	}

	s.logger.Debug("reconciled user",
		zap.String("user_id", user.ID.String()),
		zap.Strings("fields", patch.Fields()))
	return updated, nil
}

// profilePatch is the pure diff between a stored user and a profile. Empty
// names in the profile never clear stored names.
func profilePatch(user *models.User, p ExternalProfile, creds models.Credentials) models.UserPatch {
	var patch models.UserPatch
	if p.Email != user.Email {
		patch.Email = &p.Email
	}
	if p.FirstName != "" && p.FirstName != user.FirstName {
		patch.FirstName = &p.FirstName
	}
	if p.LastName != "" && p.LastName != user.LastName {
		patch.LastName = &p.LastName
	}
	if p.Role != nil && *p.Role != user.Role {
		patch.Role = p.Role
	}
	patch.Credentials = creds
	return patch
}

// SetRoleByEmail applies a membership-driven role change. Unknown emails are ignored.
func (s *IdentityService) SetRoleByEmail(ctx context.Context, email string, role models.Role) (*models.User, error) {
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	ctx = context.WithoutCancel(ctx)

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapInternal("failed to look up user by email", err)
	}
	return s.apply(ctx, user, models.UserPatch{Role: rolePtr(role, user.Role)})
}

func rolePtr(want, have models.Role) *models.Role {
	if want == have {
		return nil
	}
	return &want
}

// NormalizeEmail trims and lowercases an address for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
