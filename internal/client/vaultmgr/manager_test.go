package vaultmgr

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/partvault/partvault/internal/client/config"
	"github.com/stretchr/testify/assert"
)

func TestVaultManager_NewDefaults(t *testing.T) {
	mgr := NewManager()
	st := mgr.Status()
	assert.Equal(t, VaultStatusUnprovisioned, st.Status)
	assert.Nil(t, st.Error)
	assert.Nil(t, mgr.GetVault())
}

func TestVaultManager_GetConfigPath_DefaultAndOverride(t *testing.T) {
	mgr := NewManager()
	assert.Equal(t, config.DefaultConfigPath, mgr.getConfigPath())

	mgr.SetConfigPath("/tmp/custom.json")
	assert.Equal(t, "/tmp/custom.json", mgr.getConfigPath())
}

func TestVaultManager_StartWithoutConfigIsNoop(t *testing.T) {
	mgr := NewManager()
	mgr.SetConfigPath(filepath.Join(t.TempDir(), "missing.json"))

	assert.NoError(t, mgr.Start(context.Background()))

	st := mgr.Status()
	assert.Equal(t, VaultStatusUnprovisioned, st.Status)
	assert.Nil(t, mgr.GetVault())
}

func TestVaultManager_ProvisionGuards(t *testing.T) {
	mgr := NewManager()

	// Nil config rejected.
	assert.ErrorIs(t, mgr.Provision(nil), ErrConfigIsNil)

	// Already-started rejected.
	mgr.vault = &Vault{}
	err := mgr.Provision(&config.Config{})
	assert.ErrorIs(t, err, ErrVaultAlreadyStarted)
}

func TestVaultManager_Get_NotStarted(t *testing.T) {
	mgr := NewManager()
	_, err := mgr.Get()
	assert.ErrorIs(t, err, ErrVaultNotStarted)
}

func TestVaultManager_RuntimeConfigPatchesProvisionedConfig(t *testing.T) {
	mgr := NewManager()
	mgr.SetRuntimeConfig(&RuntimeConfig{
		ClientURL:   "http://localhost:9999",
		ClientToken: "secret",
	})

	// An invalid config fails vault creation, but the runtime patch is
	// applied first.
	cfg := &config.Config{}
	_ = mgr.Provision(cfg)
	assert.Equal(t, "http://localhost:9999", cfg.ClientURL)
	assert.Equal(t, "secret", cfg.ClientToken)
}
