package vaultsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	// sdk common
	ErrNoRefreshToken = errors.New("sdk: refresh token missing")
	ErrNoServerURL    = errors.New("sdk: server url missing")
	ErrInvalidEmail   = errors.New("sdk: invalid email")

	// auth
	ErrInvalidOTP = errors.New("sdk: invalid otp")

	// transfer
	ErrFileNotFound = errors.New("sdk: file not found")

	// events
	ErrEventsNotConnected = errors.New("sdk: events not connected")
)

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing or expired credentials
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error

	// Auth errors
	CodeAuthInvalidCredentials = "E_AUTH_INVALID_CREDENTIALS" // credentials invalid, expired or malformed
	CodeAuthOTPFailed          = "E_AUTH_OTP_FAILED"          // one-time password verification failed
	CodeAuthRefreshFailed      = "E_AUTH_REFRESH_FAILED"      // token refresh failed

	// Record / lock errors
	CodeRecordNotFound  = "E_RECORD_NOT_FOUND" // no record for the given file id
	CodeLockConflict    = "E_LOCK_CONFLICT"    // another user or machine holds the checkout
	CodeCrossMachine    = "E_CROSS_MACHINE"    // same user, checkout held by a different machine
	CodeMachineOnline   = "E_MACHINE_ONLINE"   // force refused, holding machine is reachable
	CodeVersionConflict = "E_VERSION_CONFLICT" // conditional update lost the race
	CodeNotCheckedOut   = "E_NOT_CHECKED_OUT"  // checkin/release without holding the lock

	// Blob errors
	CodeBlobNotFound  = "E_BLOB_NOT_FOUND"
	CodeBlobPutFailed = "E_BLOB_PUT_FAILED"
	CodeBlobGetFailed = "E_BLOB_GET_FAILED"

	// Presigned URL errors
	CodePresignedExpired   = "E_PRESIGNED_EXPIRED"
	CodePresignedInvalid   = "E_PRESIGNED_INVALID"
	CodePresignedForbidden = "E_PRESIGNED_FORBIDDEN"
	CodePresignedNotFound  = "E_PRESIGNED_NOT_FOUND"
)

type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// BaseError provides common error functionality
type BaseError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *BaseError) ErrorCode() string    { return e.Code }
func (e *BaseError) ErrorMessage() string { return e.Message }

// APIError represents PartVault server API errors
type APIError struct {
	BaseError
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		BaseError: BaseError{
			Code:    code,
			Message: message,
		},
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

var _ SDKError = (*APIError)(nil)

// PresignedURLError represents presigned URL transfer errors
type PresignedURLError struct {
	BaseError
}

func NewPresignedURLError(code, message string) *PresignedURLError {
	return &PresignedURLError{
		BaseError: BaseError{
			Code:    code,
			Message: message,
		},
	}
}

func (e *PresignedURLError) Error() string {
	return fmt.Sprintf("presigned url error: %s - %s", e.Code, e.Message)
}

var _ SDKError = (*PresignedURLError)(nil)

// TransportError wraps failures where no server response arrived at all.
// The staging queue keys off this to tell "offline" apart from "rejected".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sdk: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err means the server never answered.
func IsUnreachable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ErrorCode extracts the server error code from err, or "" if none.
func ErrorCode(err error) string {
	var sdkErr SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr.ErrorCode()
	}
	return ""
}

// IsCode reports whether err carries the given server error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return &TransportError{Op: operation, Err: requestErr}
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			return fmt.Errorf("%s: %w", operation, err)
		}

		return fmt.Errorf("api error: %s: %s", operation, resp.Status)
	}

	return nil
}
