package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@acme.test"))
	assert.ErrorIs(t, ValidateEmail(""), ErrEmailEmpty)
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrEmailInvalid)
	assert.ErrorIs(t, ValidateEmail("alice@localhost"), ErrEmailInvalid)
	assert.ErrorIs(t, ValidateEmail("two words@acme.test"), ErrEmailInvalid)
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("bob@shop.example"))
	assert.False(t, IsValidEmail("bob@"))
}
