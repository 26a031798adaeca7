package vaultsdk

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"

	"github.com/imroc/req/v3"
)

var otpRegex = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// IsValidOTP reports whether code looks like a server-issued one-time password.
func IsValidOTP(code string) bool {
	return otpRegex.MatchString(code)
}

const (
	v1AuthOTPRequest = "/api/v1/auth/otp"
	v1AuthOTPVerify  = "/api/v1/auth/otp/verify"
	v1AuthRefresh    = "/api/v1/auth/refresh"
)

// authClient builds a bare client for the pre-login endpoints.
func authClient(serverURL string) *req.Client {
	return req.C().
		SetBaseURL(serverURL).
		SetUserAgent(UserAgent).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)
}

// RequestOTP starts the email verification flow by requesting a one-time
// password from the server.
func RequestOTP(ctx context.Context, serverURL string, email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	resp, err := authClient(serverURL).R().
		SetContext(ctx).
		SetBody(&OTPRequest{Email: email}).
		Post(v1AuthOTPRequest)

	return handleAPIError(resp, err, "auth otp request")
}

// VerifyOTP exchanges the emailed code for a token pair.
func VerifyOTP(ctx context.Context, serverURL string, verifyReq *OTPVerifyRequest) (*AuthTokenResponse, error) {
	if verifyReq.Code == "" {
		return nil, ErrInvalidOTP
	}

	var tokens AuthTokenResponse
	resp, err := authClient(serverURL).R().
		SetContext(ctx).
		SetBody(verifyReq).
		SetSuccessResult(&tokens).
		Post(v1AuthOTPVerify)

	if err := handleAPIError(resp, err, "auth otp verify"); err != nil {
		return nil, err
	}

	return &tokens, nil
}

// RefreshAuthToken exchanges a refresh token for a new token pair.
func RefreshAuthToken(ctx context.Context, serverURL string, refreshToken string) (*AuthTokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	var tokens AuthTokenResponse
	resp, err := authClient(serverURL).R().
		SetContext(ctx).
		SetBody(&RefreshTokenRequest{RefreshToken: refreshToken}).
		SetSuccessResult(&tokens).
		Post(v1AuthRefresh)

	if err := handleAPIError(resp, err, "auth refresh"); err != nil {
		return nil, err
	}

	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("auth refresh: %w", NewAPIError(CodeAuthRefreshFailed, "empty token response"))
	}

	return &tokens, nil
}
