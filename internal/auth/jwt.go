// Package auth verifies HS256 bearer tokens issued by the identity provider
// and maps their claims onto a domain Principal.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

// Claims is the token payload. The subject is the principal id.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

var _ auth.Verifier = (*JWTVerifier)(nil)

// JWTVerifier implements auth.Verifier for HMAC-signed tokens.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify parses and validates token. Every failure is reported as an
// Unauthenticated error so no parsing detail leaks to the client.
func (v *JWTVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	var claims Claims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return auth.Principal{}, apperr.Unauthenticated("invalid or expired token")
	}

	role := auth.Role(strings.ToLower(claims.Role))
	if strings.TrimSpace(claims.Subject) == "" || !role.Valid() {
		return auth.Principal{}, apperr.Unauthenticated("invalid token claims")
	}
	return auth.Principal{
		ID:    claims.Subject,
		Role:  role,
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// Issue signs a token for p that expires after ttl.
func Issue(secret []byte, p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  string(p.Role),
		Name:  p.Name,
		Email: p.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
