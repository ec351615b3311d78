package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse authorization level granted to a user
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// authorityPrefix is prepended to a role to form a granted authority
const authorityPrefix = "ROLE_"

// ParseRole accepts a role name in any case. Unknown names are rejected.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Authority returns the granted-authority form of the role, e.g. ROLE_ADMIN
func (r Role) Authority() string {
	return authorityPrefix + string(r)
}

// AuthMode discriminates which credential invariants apply to a user
type AuthMode string

const (
	AuthModeExternal AuthMode = "EXTERNAL"
	AuthModeLocal    AuthMode = "LOCAL"
)

var (
	ErrEmailRequired        = errors.New("email is required")
	ErrExternalIDRequired   = errors.New("external id is required for external users")
	ErrPasswordHashRequired = errors.New("password hash is required for local users")
	ErrInvalidRole          = errors.New("invalid role")
)

// Credentials is how a user proves identity. It is either External or Local.
type Credentials interface {
	Mode() AuthMode
	validate() error
}

// External credentials belong to users authenticated by the identity provider.
type External struct {
	ExternalID string
}

func (External) Mode() AuthMode { return AuthModeExternal }

func (c External) validate() error {
	if strings.TrimSpace(c.ExternalID) == "" {
		return ErrExternalIDRequired
	}
	return nil
}

// Local credentials belong to password accounts.
type Local struct {
	PasswordHash string
}

func (Local) Mode() AuthMode { return AuthModeLocal }

func (c Local) validate() error {
	if c.PasswordHash == "" {
		return ErrPasswordHashRequired
	}
	return nil
}

// User is a shop account. Credentials is nil only for legacy rows whose
// auth mode was never recorded; such users can be claimed by an external identity.
type User struct {
	ID          uuid.UUID
	Email       string
	Credentials Credentials
	Role        Role
	FirstName   string
	LastName    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewExternalUser creates a user mirrored from the identity provider.
func NewExternalUser(externalID, email, firstName, lastName string, role Role) (*User, error) {
	return newUser(email, External{ExternalID: externalID}, role, firstName, lastName)
}

// NewLocalUser creates a password account. passwordHash must already be hashed.
func NewLocalUser(email, passwordHash string, role Role) (*User, error) {
	return newUser(email, Local{PasswordHash: passwordHash}, role, "", "")
}

func newUser(email string, creds Credentials, role Role, firstName, lastName string) (*User, error) {
	if role == "" {
		role = RoleUser
	}
	now := time.Now().UTC()
	u := &User{
		ID:          uuid.New(),
		Email:       email,
		Credentials: creds,
		Role:        role,
		FirstName:   firstName,
		LastName:    lastName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks the user invariants. Stores call it before every write.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmailRequired
	}
	if _, ok := ParseRole(string(u.Role)); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRole, u.Role)
	}
	if u.Credentials != nil {
		return u.Credentials.validate()
	}
	return nil
}

// AuthMode returns the user's auth mode, or "" when unset.
func (u *User) AuthMode() AuthMode {
	if u.Credentials == nil {
		return ""
	}
	return u.Credentials.Mode()
}

// ExternalID returns the identity provider id, or "" for non-external users.
func (u *User) ExternalID() string {
	if c, ok := u.Credentials.(External); ok {
		return c.ExternalID
	}
	return ""
}

// PasswordHash returns the stored hash, or "" for non-local users.
func (u *User) PasswordHash() string {
	if c, ok := u.Credentials.(Local); ok {
		return c.PasswordHash
	}
	return ""
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Clone returns a copy safe to mutate
func (u *User) Clone() *User {
	c := *u
	return &c
}

type userJSON struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	ExternalID string    `json:"externalId,omitempty"`
	AuthMode   AuthMode  `json:"authMode,omitempty"`
	Role       Role      `json:"role"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MarshalJSON never includes the password hash.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(userJSON{
		ID:         u.ID,
		Email:      u.Email,
		ExternalID: u.ExternalID(),
		AuthMode:   u.AuthMode(),
		Role:       u.Role,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
}

// UserPatch is the set of fields that differ between a stored user and the
// desired state. Nil fields are left untouched.
type UserPatch struct {
	Email       *string
	FirstName   *string
	LastName    *string
	Role        *Role
	Credentials Credentials
}

// IsEmpty reports whether the patch changes nothing
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil && p.Role == nil && p.Credentials == nil
}

// Fields lists the column names touched by the patch, for logging.
func (p UserPatch) Fields() []string {
	var fields []string
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.FirstName != nil {
		fields = append(fields, "first_name")
	}
	if p.LastName != nil {
		fields = append(fields, "last_name")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	if p.Credentials != nil {
		fields = append(fields, "credentials")
	}
	return fields
}

// Apply returns a copy of u with the patch applied. u is not modified.
func (p UserPatch) Apply(u *User) *User {
	out := u.Clone()
	if p.Email != nil {
		out.Email = *p.Email
	}
	if p.FirstName != nil {
		out.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		out.LastName = *p.LastName
	}
	if p.Role != nil {
		out.Role = *p.Role
	}
	if p.Credentials != nil {
		out.Credentials = p.Credentials
	}
	return out
}
