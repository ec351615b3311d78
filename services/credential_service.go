package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// PasswordHasher hashes and checks passwords. Compare returns nil on a match.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) error
}

// BcryptHasher is a salted bcrypt PasswordHasher
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher. Out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1,max=72"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=USER ADMIN user admin"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CredentialService handles password accounts
type CredentialService struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	issuer *TokenIssuer
	logger *zap.Logger
}

// NewCredentialService creates a CredentialService
func NewCredentialService(users repositories.UserRepository, hasher PasswordHasher, issuer *TokenIssuer, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{users: users, hasher: hasher, issuer: issuer, logger: logger}
}

// Register creates a LOCAL user. An existing email is rejected, never merged.
func (s *CredentialService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, ErrInvalidInput.Wrap(err)
	}
	if s.users == nil {
		return nil, WrapInternal("registration unavailable", ErrStoreUnavailable)
	}

	email := NormalizeEmail(req.Email)
	role := models.RoleUser
	if req.Role != "" {
		r, ok := models.ParseRole(req.Role)
		if !ok {
			return nil, ErrInvalidInput.Wrap(models.ErrInvalidRole)
		}
		role = r
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, WrapInternal("failed to check email", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}
	user, err := models.NewLocalUser(email, hash, role)
	if err != nil {
		return nil, ErrInvalidInput.Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailExists
		}
		return nil, WrapInternal("failed to create user", err)
	}

	s.logger.Info("registered local user",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))
	return user, nil
}

// Login checks a password and returns a signed token.
func (s *CredentialService) Login(ctx context.Context, req LoginRequest) (string, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return "", ErrInvalidInput.Wrap(err)
	}
	if s.users == nil {
		return "", WrapInternal("login unavailable", ErrStoreUnavailable)
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(req.Email))
	if errors.Is(err, repositories.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", WrapInternal("failed to look up user", err)
	}

	// External accounts have no password to match.
	hash := user.PasswordHash()
	if hash == "" || s.hasher.Compare(hash, req.Password) != nil {
		s.logger.Info("login rejected", zap.String("user_id", user.ID.String()))
		return "", ErrInvalidPassword
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return "", WrapInternal("failed to issue token", err)
	}
	return token, nil
}
