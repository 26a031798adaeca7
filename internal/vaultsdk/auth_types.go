package vaultsdk

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AuthTokenType string

const (
	AccessToken  AuthTokenType = "access"
	RefreshToken AuthTokenType = "refresh"
)

type OTPRequest struct {
	Email string `json:"email"`
}

type OTPVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type AuthClaims struct {
	Type AuthTokenType `json:"type"`
	jwt.RegisteredClaims
}

func (c *AuthClaims) Validate(email string) error {
	if c.Subject != email {
		return fmt.Errorf("invalid claims: token subject %q does not match %q", c.Subject, email)
	}
	return nil
}

// ParseAuthClaims decodes token claims without signature verification.
// The server is the authority; the client only needs subject and expiry.
func ParseAuthClaims(token string) (*AuthClaims, error) {
	var claims AuthClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &claims, nil
}

// TokenExpiresWithin reports whether the token expires inside the window.
// Unparseable tokens count as expiring, forcing a refresh attempt.
func TokenExpiresWithin(token string, window time.Duration) bool {
	claims, err := ParseAuthClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return time.Until(claims.ExpiresAt.Time) < window
}
