package vaultsdk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_CodeExtraction(t *testing.T) {
	apiErr := NewAPIError(CodeLockConflict, "held by bob@CAD-02")
	wrapped := fmt.Errorf("records checkout: %w", apiErr)

	assert.True(t, IsCode(wrapped, CodeLockConflict))
	assert.False(t, IsCode(wrapped, CodeCrossMachine))
	assert.Equal(t, CodeLockConflict, ErrorCode(wrapped))
	assert.Contains(t, wrapped.Error(), "E_LOCK_CONFLICT")

	var sdkErr SDKError
	assert.True(t, errors.As(wrapped, &sdkErr))
	assert.Equal(t, "held by bob@CAD-02", sdkErr.ErrorMessage())
}

func TestTransportError_IsUnreachable(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	transErr := &TransportError{Op: "records checkin", Err: cause}
	wrapped := fmt.Errorf("checkin bracket.sldprt: %w", transErr)

	assert.True(t, IsUnreachable(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	// A server rejection is not unreachability.
	apiErr := fmt.Errorf("op: %w", NewAPIError(CodeLockConflict, "nope"))
	assert.False(t, IsUnreachable(apiErr))
	assert.Empty(t, ErrorCode(errors.New("plain")))
}

func TestPresignedStatusError_Mapping(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{403, CodePresignedForbidden},
		{404, CodePresignedNotFound},
		{429, CodeRateLimited},
		{500, CodeInternalError},
		{503, CodeInternalError},
		{418, CodeUnknownError},
	}

	for _, tt := range tests {
		err := presignedStatusError(tt.status, "")
		assert.Equal(t, tt.code, err.ErrorCode(), "status %d", tt.status)
	}

	assert.Equal(t, CodePresignedExpired, presignedStatusError(403, "request expired").ErrorCode())
}
