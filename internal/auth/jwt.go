// Package auth verifies bearer tokens and carries the verified identity
// through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin grants access to the maintenance endpoints.
const RoleAdmin = "admin"

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("missing auth token")

	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the token claims the service relies on.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier issues and verifies HS256 tokens.
type Verifier struct {
	secret []byte
	clock  func() time.Time
}

// NewVerifier creates a Verifier for the shared secret.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("NewVerifier: secret is required")
	}
	return &Verifier{secret: []byte(secret), clock: time.Now}, nil
}

// Issue signs a token for userID. A zero ttl issues a token without expiry.
func (v *Verifier) Issue(userID, role string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("Issue: user id is required")
	}

	now := v.clock()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("Issue: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenStr and returns the identity it carries.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrMissingToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.clock), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("%w: user_id missing", ErrInvalidToken)
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFromContext returns the verified user id.
func UserIDFromContext(ctx context.Context) (string, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", errors.New("user not authenticated")
	}
	return id.UserID, nil
}
