package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

const userColumns = `id, email, external_id, auth_mode, password_hash, role, first_name, last_name, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	mode, externalID, passwordHash := credentialColumns(user.Credentials)
	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Email,
		externalID,
		mode,
		passwordHash,
		string(user.Role),
		nullString(user.FirstName),
		nullString(user.LastName),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translateError(err))
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("auth_mode", string(user.AuthMode())))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByExternalID retrieves a user by identity provider id
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return r.getOne(ctx, "external_id = $1", externalID)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

// ExistsByEmail reports whether any user has the email
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// Update applies the patch with a single UPDATE ... RETURNING statement
func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	args := []interface{}{id}
	var sets []string
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.FirstName != nil {
		set("first_name", nullString(*patch.FirstName))
	}
	if patch.LastName != nil {
		set("last_name", nullString(*patch.LastName))
	}
	if patch.Role != nil {
		set("role", string(*patch.Role))
	}
	if patch.Credentials != nil {
		mode, externalID, passwordHash := credentialColumns(patch.Credentials)
		set("auth_mode", mode)
		set("external_id", externalID)
		set("password_hash", passwordHash)
	}
	set("updated_at", time.Now().UTC())

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $1 RETURNING %s`, strings.Join(sets, ", "), userColumns)

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", translateError(err))
	}

	r.logger.Debug("user updated", zap.String("id", id.String()), zap.Strings("fields", patch.Fields()))
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translateError(err))
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user                                         models.User
		role                                         string
		externalID, mode, passwordHash, first, last sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&externalID,
		&mode,
		&passwordHash,
		&role,
		&first,
		&last,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = models.Role(role)
	user.FirstName = first.String
	user.LastName = last.String
	switch models.AuthMode(mode.String) {
	case models.AuthModeExternal:
		user.Credentials = models.External{ExternalID: externalID.String}
	case models.AuthModeLocal:
		user.Credentials = models.Local{PasswordHash: passwordHash.String}
	}
	return &user, nil
}

// credentialColumns flattens the credential variant into its three columns.
func credentialColumns(c models.Credentials) (mode, externalID, passwordHash sql.NullString) {
	switch v := c.(type) {
	case models.External:
		return nullString(string(models.AuthModeExternal)), nullString(v.ExternalID), sql.NullString{}
	case models.Local:
		return nullString(string(models.AuthModeLocal)), sql.NullString{}, nullString(v.PasswordHash)
	}
	return sql.NullString{}, sql.NullString{}, sql.NullString{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
