package vaultmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/partvault/partvault/internal/client/config"
	"github.com/partvault/partvault/internal/utils"
)

var (
	ErrVaultAlreadyStarted = errors.New("vault already started")
	ErrVaultNotStarted     = errors.New("vault not started")
	ErrConfigIsNil         = errors.New("config is nil")
)

// RuntimeConfig carries values the daemon knows only at runtime, patched
// over whatever the config file says.
type RuntimeConfig struct {
	ClientURL   string
	ClientToken string
}

// VaultManager provisions and tears down the vault. The daemon starts it
// before any config may exist; the control plane can provision a vault later
// without a restart.
type VaultManager struct {
	vault      *Vault
	status     VaultStatus
	vaultErr   error
	runtimeCfg *RuntimeConfig
	configPath string
	mu         sync.RWMutex
}

func NewManager() *VaultManager {
	return &VaultManager{
		status: VaultStatusUnprovisioned,
	}
}

func (m *VaultManager) SetRuntimeConfig(cfg *RuntimeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runtimeCfg = cfg
}

func (m *VaultManager) SetConfigPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configPath = path
}

func (m *VaultManager) Start(ctx context.Context) error {
	slog.Info("vault manager start")

	configPath := m.getConfigPath()
	if !utils.FileExists(configPath) {
		slog.Info("config not found. waiting to be provisioned.", "path", configPath)
		return nil
	}

	slog.Info("config found. provisioning vault.", "path", configPath)
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// a bad config can be provisioned again through the control plane, so
	// don't bubble up the error
	if err := m.newVault(ctx, cfg); err != nil {
		slog.Error("vault start", "error", err)
	}

	return nil
}

func (m *VaultManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.vault != nil {
		m.vault.Stop()
		m.vault = nil
		m.status = VaultStatusUnprovisioned
	}

	slog.Info("vault manager stopped")
}

func (m *VaultManager) Get() (*Vault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.vault == nil {
		return nil, ErrVaultNotStarted
	}

	return m.vault, nil
}

// GetVault returns the active vault or nil when none is provisioned.
func (m *VaultManager) GetVault() *Vault {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vault
}

func (m *VaultManager) Status() *ManagerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &ManagerStatus{
		Status: m.status,
		Error:  m.vaultErr,
	}
}

// Provision creates and starts a vault from a fresh config. Called by the
// control plane after first-time setup.
func (m *VaultManager) Provision(cfg *config.Config) error {
	return m.newVault(context.Background(), cfg)
}

func (m *VaultManager) newVault(ctx context.Context, cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg == nil {
		return ErrConfigIsNil
	}

	if m.vault != nil {
		return ErrVaultAlreadyStarted
	}

	// patch config to use the daemon's control plane address
	if m.runtimeCfg != nil {
		cfg.ClientURL = m.runtimeCfg.ClientURL
		cfg.ClientToken = m.runtimeCfg.ClientToken
	}

	m.status = VaultStatusProvisioning
	m.vaultErr = nil

	newVault, err := New(cfg)
	if err != nil {
		m.vaultErr = err
		m.status = VaultStatusError
		return fmt.Errorf("create vault: %w", err)
	}

	m.vault = newVault

	go func() {
		if err := newVault.Start(ctx); err != nil {
			slog.Error("start vault", "error", err)
			newVault.Stop()

			m.mu.Lock()
			m.vault = nil
			m.vaultErr = err
			m.status = VaultStatusError
			m.mu.Unlock()
			return
		}

		m.mu.Lock()
		m.status = VaultStatusProvisioned
		m.mu.Unlock()
	}()

	return nil
}

func (m *VaultManager) getConfigPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.configPath != "" {
		return m.configPath
	}
	return config.DefaultConfigPath
}
