package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/clerk"
	"github.com/shinobiwanshin/Sweetify/internal/observability"
	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories/memory"
	"github.com/shinobiwanshin/Sweetify/services"
)

var testLocalKey = clerk.LocalKey{
	ID:     "sweetify-local",
	Secret: []byte("middleware-test-secret-middleware-test"),
	Issuer: "sweetify",
}

// MockReconciler is a mock implementation of IdentityReconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, id clerk.Identity) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (*clerk.VerifiedToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clerk.VerifiedToken), args.Error(1)
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordAuth(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func signToken(t *testing.T, kid string, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func externalToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	return signToken(t, "ins_ext", []byte("unused-by-decode-only-path"), claims)
}

func localToken(t *testing.T, userID uuid.UUID, email string, role models.Role) string {
	t.Helper()
	return signToken(t, testLocalKey.ID, testLocalKey.Secret, jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"role":  string(role),
		"iss":   testLocalKey.Issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
}

// decodeOnlyVerifier verifies local tokens and decodes external ones unverified.
func decodeOnlyVerifier() *clerk.Verifier {
	return clerk.NewVerifier(nil, "", testLocalKey, zap.NewNop())
}

// capture runs the gate and returns the principal the downstream handler saw.
func capture(t *testing.T, gate *AuthMiddleware, req *http.Request) (*Principal, int) {
	t.Helper()
	var seen *Principal
	handler := gate.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return seen, w.Code
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/sweets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthenticate_NoToken(t *testing.T) {
	verifier := new(MockTokenVerifier)
	rec := &outcomeRecorder{}
	gate := NewAuthMiddleware(verifier, nil, nil, rec, zap.NewNop())

	principal, code := capture(t, gate, httptest.NewRequest(http.MethodGet, "/api/sweets", nil))

	assert.Nil(t, principal)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{observability.AuthAnonymous}, rec.outcomes)
	verifier.AssertNotCalled(t, "Verify")
}

func TestAuthenticate_RejectedTokenContinuesAnonymously(t *testing.T) {
	verifier := new(MockTokenVerifier)
	verifier.On("Verify", mock.Anything, "garbage").Return(nil, clerk.ErrTokenMalformed)
	rec := &outcomeRecorder{}
	gate := NewAuthMiddleware(verifier, nil, nil, rec, zap.NewNop())

	principal, code := capture(t, gate, bearer("garbage"))

	assert.Nil(t, principal)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{observability.AuthRejected}, rec.outcomes)
	verifier.AssertExpectations(t)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	reconciler := new(MockReconciler)
	gate := NewAuthMiddleware(decodeOnlyVerifier(), reconciler, nil, nil, zap.NewNop())

	token := externalToken(t, jwt.MapClaims{"sub": "user_1", "exp": time.Now().Add(-time.Minute).Unix()})
	principal, _ := capture(t, gate, bearer(token))

	assert.Nil(t, principal)
	reconciler.AssertNotCalled(t, "Reconcile")
}

func TestAuthenticate_RechecksExpiry(t *testing.T) {
	verifier := new(MockTokenVerifier)
	verifier.On("Verify", mock.Anything, "tok").Return(&clerk.VerifiedToken{
		Subject:   "user_1",
		ExpiresAt: time.Now().Add(-time.Second),
	}, nil)
	reconciler := new(MockReconciler)
	gate := NewAuthMiddleware(verifier, reconciler, nil, nil, zap.NewNop())

	principal, _ := capture(t, gate, bearer("tok"))

	assert.Nil(t, principal)
	reconciler.AssertNotCalled(t, "Reconcile")
}

func TestAuthenticate_ExternalTokenReconciles(t *testing.T) {
	reconciler := new(MockReconciler)
	stored, err := models.NewExternalUser("user_1", "ada@x.com", "Ada", "", models.RoleAdmin)
	require.NoError(t, err)

	reconciler.On("Reconcile", mock.Anything, mock.MatchedBy(func(id clerk.Identity) bool {
		return id.Subject == "user_1" && id.Email == "ada@x.com" && id.Role == models.RoleAdmin
	})).Return(stored, nil)

	rec := &outcomeRecorder{}
	gate := NewAuthMiddleware(decodeOnlyVerifier(), reconciler, nil, rec, zap.NewNop())

	token := externalToken(t, jwt.MapClaims{
		"sub":      "user_1",
		"email":    "ada@x.com",
		"org_role": "org:admin",
	})
	principal, _ := capture(t, gate, bearer(token))

	require.NotNil(t, principal)
	assert.Equal(t, "ada@x.com", principal.Username)
	assert.Equal(t, "user_1", principal.Subject)
	assert.Equal(t, stored.ID, *principal.UserID)
	assert.True(t, principal.HasAuthority("ROLE_ADMIN"))
	assert.False(t, principal.Local)
	assert.Equal(t, []string{observability.AuthExternal}, rec.outcomes)
	reconciler.AssertExpectations(t)
}

func TestAuthenticate_ReconcileFailureInstallsNothing(t *testing.T) {
	reconciler := new(MockReconciler)
	reconciler.On("Reconcile", mock.Anything, mock.Anything).Return(nil, services.ErrEmailConflict)
	rec := &outcomeRecorder{}
	gate := NewAuthMiddleware(decodeOnlyVerifier(), reconciler, nil, rec, zap.NewNop())

	principal, code := capture(t, gate, bearer(externalToken(t, jwt.MapClaims{"sub": "user_1", "email": "b@x.com"})))

	assert.Nil(t, principal)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{observability.AuthReconcileKO}, rec.outcomes)
}

func TestAuthenticate_StoreUnavailableUsesClaims(t *testing.T) {
	gate := NewAuthMiddleware(decodeOnlyVerifier(), services.NewIdentityService(nil, zap.NewNop()), nil, nil, zap.NewNop())

	token := externalToken(t, jwt.MapClaims{"sub": "user_1", "roles": []string{"admin"}})
	principal, _ := capture(t, gate, bearer(token))

	require.NotNil(t, principal)
	assert.Nil(t, principal.UserID)
	assert.Equal(t, "user_1", principal.Username)
	assert.True(t, principal.HasRole(models.RoleAdmin))
}

func TestAuthenticate_ReconcilesIntoStore(t *testing.T) {
	users := memory.NewUserRepository()
	identity := services.NewIdentityService(users, zap.NewNop())
	gate := NewAuthMiddleware(decodeOnlyVerifier(), identity, users, nil, zap.NewNop())

	token := externalToken(t, jwt.MapClaims{"sub": "user_1", "email": "a@x.com"})
	for i := 0; i < 3; i++ {
		principal, _ := capture(t, gate, bearer(token))
		require.NotNil(t, principal)
		assert.Equal(t, []string{"ROLE_USER"}, principal.Authorities)
	}
	assert.Equal(t, 1, users.Len())
}

func TestAuthenticate_LocalToken(t *testing.T) {
	users := memory.NewUserRepository()
	user, err := models.NewLocalUser("a@x.com", "hash", models.RoleUser)
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))

	reconciler := new(MockReconciler)
	rec := &outcomeRecorder{}
	gate := NewAuthMiddleware(decodeOnlyVerifier(), reconciler, users, rec, zap.NewNop())

	t.Run("stored role wins over token role", func(t *testing.T) {
		principal, _ := capture(t, gate, bearer(localToken(t, user.ID, "a@x.com", models.RoleAdmin)))
		require.NotNil(t, principal)
		assert.True(t, principal.Local)
		assert.Equal(t, "a@x.com", principal.Username)
		assert.Equal(t, user.ID, *principal.UserID)
		assert.False(t, principal.HasRole(models.RoleAdmin))
	})

	t.Run("unknown user", func(t *testing.T) {
		principal, _ := capture(t, gate, bearer(localToken(t, uuid.New(), "ghost@x.com", models.RoleUser)))
		assert.Nil(t, principal)
	})

	t.Run("without a store the claims are used", func(t *testing.T) {
		claimsOnly := NewAuthMiddleware(decodeOnlyVerifier(), nil, nil, nil, zap.NewNop())
		principal, _ := capture(t, claimsOnly, bearer(localToken(t, user.ID, "a@x.com", models.RoleAdmin)))
		require.NotNil(t, principal)
		assert.True(t, principal.HasRole(models.RoleAdmin))
	})

	t.Run("forged signature", func(t *testing.T) {
		forged := signToken(t, testLocalKey.ID, []byte("not-the-local-secret-at-all-really"), jwt.MapClaims{
			"sub": user.ID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		principal, _ := capture(t, gate, bearer(forged))
		assert.Nil(t, principal)
	})

	reconciler.AssertNotCalled(t, "Reconcile")
}

func TestAuthenticate_KeepsExistingPrincipal(t *testing.T) {
	verifier := new(MockTokenVerifier)
	gate := NewAuthMiddleware(verifier, nil, nil, nil, zap.NewNop())

	existing := NewPrincipal("user_1", "a@x.com", models.RoleUser, time.Now().Add(time.Hour))
	req := bearer("other-token")
	req = req.WithContext(WithPrincipal(req.Context(), existing))

	principal, _ := capture(t, gate, req)

	assert.Same(t, existing, principal)
	verifier.AssertNotCalled(t, "Verify")
}

func TestAuthenticate_RecoversFromPanic(t *testing.T) {
	reconciler := new(MockReconciler)
	reconciler.On("Reconcile", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("store exploded")
	})
	rec := &outcomeRecorder{}
	gate := NewAuthMiddleware(decodeOnlyVerifier(), reconciler, nil, rec, zap.NewNop())

	var principal *Principal
	var code int
	assert.NotPanics(t, func() {
		principal, code = capture(t, gate, bearer(externalToken(t, jwt.MapClaims{"sub": "user_1"})))
	})
	assert.Nil(t, principal)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{observability.AuthPanic}, rec.outcomes)
}

func TestRequireAuth(t *testing.T) {
	gate := NewAuthMiddleware(nil, nil, nil, nil, zap.NewNop())
	protected := gate.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous returns 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("principal passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), NewPrincipal("s", "a@x.com", models.RoleUser, time.Now())))
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	gate := NewAuthMiddleware(nil, nil, nil, nil, zap.NewNop())
	adminOnly := gate.RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name      string
		principal *Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"user", NewPrincipal("s", "u@x.com", models.RoleUser, time.Now()), http.StatusForbidden},
		{"admin", NewPrincipal("s", "a@x.com", models.RoleAdmin, time.Now()), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/sweets/1", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()
			adminOnly.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"basic scheme", "Basic dXNlcjpwdw==", ""},
		{"no credentials", "Bearer", ""},
		{"extra spaces", "Bearer   abc  ", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}

func TestPrincipal(t *testing.T) {
	p := NewPrincipal("user_1", "a@x.com", "", time.Now())
	assert.Equal(t, models.RoleUser, p.Role)
	assert.True(t, p.HasAuthority("ROLE_USER"))

	var none *Principal
	assert.False(t, none.HasRole(models.RoleUser))
}

func TestGetRequestIDFromContext(t *testing.T) {
	assert.Empty(t, GetRequestIDFromContext(context.Background()))
	assert.Equal(t, "req-1", GetRequestIDFromContext(WithRequestID(context.Background(), "req-1")))
}
