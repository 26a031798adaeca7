package vaultsdk

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims *AuthClaims) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return tokenStr
}

func TestIsValidOTP(t *testing.T) {
	assert.True(t, IsValidOTP("ABCD1234"))
	assert.False(t, IsValidOTP("abcd1234"), "lowercase should fail")
	assert.False(t, IsValidOTP("ABC123"), "wrong length should fail")
	assert.False(t, IsValidOTP("ABCD123!"), "non-alnum should fail")
}

func TestParseAuthClaims_SubjectAndType(t *testing.T) {
	tokenStr := signedToken(t, &AuthClaims{
		Type: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice@acme.test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		},
	})

	claims, err := ParseAuthClaims(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, AccessToken, claims.Type)
	assert.NoError(t, claims.Validate("alice@acme.test"))
	assert.Error(t, claims.Validate("bob@acme.test"))

	_, err = ParseAuthClaims("not-a-token")
	assert.Error(t, err)
}

func TestTokenExpiresWithin(t *testing.T) {
	fresh := signedToken(t, &AuthClaims{
		Type: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		},
	})
	stale := signedToken(t, &AuthClaims{
		Type: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Minute)),
		},
	})

	assert.False(t, TokenExpiresWithin(fresh, 5*time.Minute))
	assert.True(t, TokenExpiresWithin(stale, 5*time.Minute))

	// No expiry claim or garbage forces a refresh.
	assert.True(t, TokenExpiresWithin("garbage", time.Minute))
}

func TestRequestOTP_RejectsBadEmail(t *testing.T) {
	err := RequestOTP(context.Background(), "http://127.0.0.1:9", "not an email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestRefreshAuthToken_InputValidation(t *testing.T) {
	_, err := RefreshAuthToken(context.Background(), "http://127.0.0.1:9", "")
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestVerifyOTP_RejectsEmptyCode(t *testing.T) {
	_, err := VerifyOTP(context.Background(), "http://127.0.0.1:9", &OTPVerifyRequest{Email: "a@b.test"})
	assert.ErrorIs(t, err, ErrInvalidOTP)
}
