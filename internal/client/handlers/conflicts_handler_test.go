package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partvault/partvault/internal/client/sync"
)

func TestResolveOptionsForExplicitPolicy(t *testing.T) {
	opts, err := resolveOptionsFor("rename", &sync.VaultSettings{})
	require.NoError(t, err)
	assert.Equal(t, sync.PolicyRename, opts.FilePolicy)
	assert.True(t, opts.ApplyToAll)

	_, err = resolveOptionsFor("clobber", &sync.VaultSettings{})
	require.Error(t, err)
}

func TestResolveOptionsForConfiguredDefault(t *testing.T) {
	settings := &sync.VaultSettings{}
	settings.Conflicts.Files = "overwrite"

	// No explicit policy: the vault's configured policy applies.
	opts, err := resolveOptionsFor("", settings)
	require.NoError(t, err)
	assert.Equal(t, sync.PolicyOverwrite, opts.FilePolicy)
	assert.True(t, opts.ApplyToAll)

	// An explicit policy always wins over the configured one.
	opts, err = resolveOptionsFor("skip", settings)
	require.NoError(t, err)
	assert.Equal(t, sync.PolicySkip, opts.FilePolicy)
}

func TestResolveOptionsForNothingConfigured(t *testing.T) {
	// Empty policy with no vault.yaml policies must refuse, not guess.
	_, err := resolveOptionsFor("", &sync.VaultSettings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none configured")
}
