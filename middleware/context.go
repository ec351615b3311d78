package middleware

import (
	"context"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shinobiwanshin/Sweetify/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"
)

// Principal is the authenticated identity attached to a request.
// Username is the email when known, else the token subject.
type Principal struct {
	UserID      *uuid.UUID
	Subject     string
	Username    string
	Role        models.Role
	Authorities []string
	Local       bool
	ExpiresAt   time.Time
}

// NewPrincipal builds a principal granting the authority for role.
func NewPrincipal(subject, username string, role models.Role, expiresAt time.Time) *Principal {
	if role == "" {
		role = models.RoleUser
	}
	return &Principal{
		Subject:     subject,
		Username:    username,
		Role:        role,
		Authorities: []string{role.Authority()},
		ExpiresAt:   expiresAt,
	}
}

// HasRole reports whether the principal was granted role
func (p *Principal) HasRole(role models.Role) bool {
	return p.HasAuthority(role.Authority())
}

// HasAuthority reports whether the principal holds a granted authority such as ROLE_ADMIN
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// GetRequestIDFromContext retrieves the request ID from context, falling back
// to the id assigned by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetPrincipalFromContext returns the principal installed by the gate, or nil
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds a principal to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
