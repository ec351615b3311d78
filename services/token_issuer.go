package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shinobiwanshin/Sweetify/clerk"
	"github.com/shinobiwanshin/Sweetify/models"
)

// TokenIssuer mints HS256 tokens for local accounts. The kid header is the
// local key id, which is how the verifier routes them to HMAC verification.
type TokenIssuer struct {
	key clerk.LocalKey
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer creates a TokenIssuer
func NewTokenIssuer(key clerk.LocalKey, ttl time.Duration) (*TokenIssuer, error) {
	if key.ID == "" || len(key.Secret) == 0 {
		return nil, errors.New("local signing key requires an id and a secret")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid token lifetime %s", ttl)
	}
	return &TokenIssuer{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for user: sub is the user id, with email and role claims.
func (i *TokenIssuer) Issue(user *models.User) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"role":  string(user.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(i.ttl).Unix(),
	}
	if i.key.Issuer != "" {
		claims["iss"] = i.key.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = i.key.ID

	signed, err := token.SignedString(i.key.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
