package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/clerk"
	"github.com/shinobiwanshin/Sweetify/internal/observability"
	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/services"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// TokenVerifier checks a compact token and returns its verified claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*clerk.VerifiedToken, error)
}

// IdentityReconciler mirrors an external identity into the user store
type IdentityReconciler interface {
	Reconcile(ctx context.Context, id clerk.Identity) (*models.User, error)
}

// UserLookup loads users named by self-issued tokens
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthRecorder counts gate outcomes
type AuthRecorder interface {
	RecordAuth(outcome string)
}

// AuthMiddleware is the authentication gate. Authenticate never rejects a
// request; RequireAuth and RequireRole enforce access on the routes that need it.
type AuthMiddleware struct {
	verifier   TokenVerifier
	reconciler IdentityReconciler
	users      UserLookup
	metrics    AuthRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthMiddleware creates a new AuthMiddleware. reconciler, users and
// metrics may be nil.
func NewAuthMiddleware(verifier TokenVerifier, reconciler IdentityReconciler, users UserLookup, metrics AuthRecorder, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		verifier:   verifier,
		reconciler: reconciler,
		users:      users,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Authenticate installs a principal when the request carries a valid bearer
// token. Requests without one, or with one that fails at any stage, continue
// anonymously.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if GetPrincipalFromContext(ctx) != nil {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			m.record(observability.AuthAnonymous)
			next.ServeHTTP(w, r)
			return
		}

		principal, outcome := m.Resolve(ctx, token)
		m.record(outcome)
		if principal == nil {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Debug("principal installed",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("username", principal.Username),
			zap.String("role", string(principal.Role)),
			zap.Bool("local", principal.Local))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// Resolve runs verification and reconciliation for token. It returns a nil
// principal, never an error, when any stage fails; the outcome names the
// stage for metrics. A panic in a collaborator is recovered as a failure.
func (m *AuthMiddleware) Resolve(ctx context.Context, token string) (principal *Principal, outcome string) {
	requestID := GetRequestIDFromContext(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("authentication panicked",
				zap.String("request_id", requestID),
				zap.String("panic", fmt.Sprint(rec)))
			principal, outcome = nil, observability.AuthPanic
		}
	}()

	if m.verifier == nil {
		return nil, observability.AuthRejected
	}

	verified, err := m.verifier.Verify(ctx, token)
	if err != nil {
		m.logger.Info("token rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, observability.AuthRejected
	}
	if !verified.ExpiresAt.After(m.now()) {
		return nil, observability.AuthRejected
	}

	identity := clerk.Interpret(verified)
	if verified.Local {
		if p := m.localPrincipal(ctx, verified, identity); p != nil {
			return p, observability.AuthLocal
		}
		return nil, observability.AuthRejected
	}
	return m.externalPrincipal(ctx, verified, identity)
}

// localPrincipal trusts self-issued claims, but prefers the stored user so a
// role change takes effect before the token expires.
func (m *AuthMiddleware) localPrincipal(ctx context.Context, verified *clerk.VerifiedToken, id clerk.Identity) *Principal {
	p := NewPrincipal(id.Subject, id.Username(), id.Role, verified.ExpiresAt)
	p.Local = true

	userID, err := uuid.Parse(id.Subject)
	if err != nil {
		m.logger.Warn("local token subject is not a user id",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("kid", verified.KeyID))
		return nil
	}
	p.UserID = &userID

	if m.users == nil {
		return p
	}
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		m.logger.Warn("local token names an unknown user",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil
	}
	return m.fromUser(user, verified, true)
}

func (m *AuthMiddleware) externalPrincipal(ctx context.Context, verified *clerk.VerifiedToken, id clerk.Identity) (*Principal, string) {
	if m.reconciler == nil {
		return NewPrincipal(id.Subject, id.Username(), id.Role, verified.ExpiresAt), observability.AuthDegraded
	}

	user, err := m.reconciler.Reconcile(ctx, id)
	switch {
	case errors.Is(err, services.ErrStoreUnavailable):
		m.logger.Debug("user store unavailable, using token claims",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("sub", id.Subject))
		return NewPrincipal(id.Subject, id.Username(), id.Role, verified.ExpiresAt), observability.AuthDegraded
	case err != nil:
		m.logger.Warn("identity reconciliation failed",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("kid", verified.KeyID),
			zap.Strings("claim_keys", verified.ClaimKeys()),
			zap.String("role_source", id.RoleSource),
			zap.Error(err))
		return nil, observability.AuthReconcileKO
	}
	return m.fromUser(user, verified, false), observability.AuthExternal
}

func (m *AuthMiddleware) fromUser(user *models.User, verified *clerk.VerifiedToken, local bool) *Principal {
	p := NewPrincipal(verified.Subject, user.Email, user.Role, verified.ExpiresAt)
	id := user.ID
	p.UserID = &id
	p.Local = local
	return p
}

func (m *AuthMiddleware) record(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordAuth(outcome)
	}
}

// RequireAuth rejects requests without a principal
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipalFromContext(r.Context()) == nil {
			m.logger.Debug("unauthenticated request",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole is a middleware that requires a specific role
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			principal := GetPrincipalFromContext(ctx)
			if principal == nil {
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !principal.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("required_role", string(role)),
					zap.Strings("authorities", principal.Authorities))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
