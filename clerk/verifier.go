package clerk

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrTokenMalformed is returned when the token cannot be decoded
	ErrTokenMalformed = errors.New("malformed token")

	// ErrMissingKeyID is returned when the token header carries no kid
	ErrMissingKeyID = errors.New("token missing kid header")

	// ErrSignatureInvalid is returned when the signature does not verify
	ErrSignatureInvalid = errors.New("invalid token signature")

	// ErrIssuerMismatch is returned when the token issuer is not the expected one
	ErrIssuerMismatch = errors.New("invalid issuer")

	// ErrTokenExpired is returned when the token expiry is not in the future
	ErrTokenExpired = errors.New("token expired")
)

// externalMethods are the algorithms accepted for key-set signed tokens.
// Symmetric methods are excluded so a public key can never act as an HMAC secret.
var externalMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// LocalKey is the single symmetric key used for self-issued tokens.
type LocalKey struct {
	ID     string
	Secret []byte
	Issuer string
}

// VerifiedToken is the immutable result of a successful verification.
type VerifiedToken struct {
	Subject   string
	KeyID     string
	ExpiresAt time.Time
	// Local is true for tokens signed with the local key
	Local bool
	// Unverified is true when the signature was not checked (no key set configured)
	Unverified bool

	claims jwt.MapClaims
}

// Claims returns a copy of the raw claim set
func (t *VerifiedToken) Claims() map[string]any {
	return maps.Clone(t.claims)
}

// ClaimKeys lists claim names, for diagnostics
func (t *VerifiedToken) ClaimKeys() []string {
	keys := make([]string, 0, len(t.claims))
	for k := range t.claims {
		keys = append(keys, k)
	}
	return keys
}

// Verifier checks bearer tokens. Tokens whose kid matches the local key are
// verified with HMAC; all others go through the key resolver. With no
// resolver configured, external tokens are decoded without verification.
type Verifier struct {
	resolver KeyResolver
	issuer   string
	local    LocalKey
	logger   *zap.Logger
	now      func() time.Time
}

// NewVerifier creates a Verifier. resolver may be nil, which enables the
// insecure decode-only fallback for external tokens.
func NewVerifier(resolver KeyResolver, issuer string, local LocalKey, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		resolver: resolver,
		issuer:   issuer,
		local:    local,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify validates tokenString and returns its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*VerifiedToken, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMissingKeyID
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	// Expiry is checked first so expired tokens are rejected whatever their signature.
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrTokenMalformed)
	}
	if !exp.Time.After(v.now()) {
		return nil, ErrTokenExpired
	}

	result := &VerifiedToken{KeyID: kid, ExpiresAt: exp.Time}

	switch {
	case v.isLocal(kid):
		claims, err = v.verifyLocal(tokenString)
		result.Local = true
	case v.resolver != nil:
		claims, err = v.verifyExternal(ctx, tokenString, kid)
	default:
		v.logger.Warn("JWKS URI not configured, accepting token without signature verification (not safe for production)",
			zap.String("kid", kid))
		result.Unverified = true
	}
	if err != nil {
		return nil, err
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenMalformed)
	}

	result.Subject = sub
	result.claims = maps.Clone(claims)
	return result, nil
}

func (v *Verifier) isLocal(kid string) bool {
	return v.local.ID != "" && len(v.local.Secret) > 0 && kid == v.local.ID
}

func (v *Verifier) verifyLocal(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.local.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.local.Issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.local.Secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (v *Verifier) verifyExternal(ctx context.Context, tokenString, kid string) (jwt.MapClaims, error) {
	key, err := v.resolver.Resolve(ctx, kid)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(externalMethods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// classify maps golang-jwt validation errors onto the verifier taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}
