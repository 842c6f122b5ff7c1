// Package auth turns connection credentials into caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"restaurant-chat/internal/models"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier is the Account/Identity service contract.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// Claims is the token payload issued by the account service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Role   string `json:"role"`
}

// JWTVerifier validates HMAC-signed tokens locally.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify checks the signature and expiry and returns the embedded identity.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (models.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return models.Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	return NewIdentity(id, claims.Role)
}

// NewIdentity validates a raw (id, role) pair coming from any identity source.
func NewIdentity(id, role string) (models.Identity, error) {
	identity := models.Identity{ID: strings.TrimSpace(id), Role: models.Role(strings.ToLower(strings.TrimSpace(role)))}
	if identity.ID == "" || !identity.Role.Valid() {
		return models.Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// TokenFromHeader extracts the bearer token from an Authorization header value.
func TokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}
