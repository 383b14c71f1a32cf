package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the simplejwt access token claims dm cares about.
type Claims struct {
	UserID    int64
	TokenType string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its exp claim. Tokens without
// exp never expire.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

type accessClaims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the token payload without checking the signature; the
// server stays the only authority on validity.
func ParseClaims(token string) (Claims, error) {
	var decoded accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &decoded); err != nil {
		return Claims{}, fmt.Errorf("parse access token: %w", err)
	}

	claims := Claims{UserID: decoded.UserID, TokenType: decoded.TokenType}
	if decoded.ExpiresAt != nil {
		claims.ExpiresAt = decoded.ExpiresAt.Time
	}

	return claims, nil
}
