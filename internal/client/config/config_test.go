package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_NormalizesAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		VaultDir:  tmp,
		Email:     "Alice@Example.com",
		ServerURL: "http://127.0.0.1:8080",
		Path:      filepath.Join(tmp, "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.VaultDir))
	assert.Equal(t, "alice@example.com", cfg.Email)
	assert.Equal(t, DefaultClientURL, cfg.ClientURL)
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()

	valid := func() *Config {
		return &Config{
			VaultDir:  tmp,
			Email:     "alice@example.com",
			ServerURL: "http://127.0.0.1:8080",
		}
	}

	t.Run("bad email", func(t *testing.T) {
		cfg := valid()
		cfg.Email = "not-an-email"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad server url", func(t *testing.T) {
		cfg := valid()
		cfg.ServerURL = "ftp://bad.example.com"
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server url")
	})

	t.Run("bad client url", func(t *testing.T) {
		cfg := valid()
		cfg.ClientURL = "://bad"
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "client url")
	})

	t.Run("bad verify cron", func(t *testing.T) {
		cfg := valid()
		cfg.VerifyCron = "every full moon"
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "verify cron")
	})
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.json")

	cfg := &Config{
		VaultDir:     tmp,
		Email:        "alice@example.com",
		ServerURL:    "http://127.0.0.1:8080",
		ClientURL:    "http://localhost:7938",
		ClientToken:  "tok",
		RefreshToken: "rtok",
		VerifyCron:   "@daily",
		AccessToken:  "atok",
		Path:         path,
	}

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.VaultDir, loaded.VaultDir)
	assert.Equal(t, cfg.Email, loaded.Email)
	assert.Equal(t, cfg.ServerURL, loaded.ServerURL)
	assert.Equal(t, cfg.ClientURL, loaded.ClientURL)
	assert.Equal(t, cfg.ClientToken, loaded.ClientToken)
	assert.Equal(t, cfg.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, cfg.VerifyCron, loaded.VerifyCron)

	// Runtime-only fields default on load.
	assert.True(t, loaded.AppsEnabled)
	assert.Empty(t, loaded.AccessToken)
	assert.Equal(t, path, loaded.Path)
}
