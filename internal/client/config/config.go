// Package config holds the client configuration persisted at
// ~/.partvault/config.json and the defaults applied on top of it.
package config

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/vaultsdk"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".partvault")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultVaultDir    = filepath.Join(home, "PartVault")
	DefaultServerURL   = "https://vault.partvault.io"
	DefaultClientURL   = "http://localhost:7938"
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "client.log")
)

// Config is the on-disk client configuration. Fields tagged `json:"-"` are
// runtime-only and never persisted.
type Config struct {
	VaultDir     string             `json:"vault_dir" mapstructure:"vault_dir"`
	Email        string             `json:"email" mapstructure:"email"`
	ServerURL    string             `json:"server_url" mapstructure:"server_url"`
	ClientURL    string             `json:"client_url" mapstructure:"client_url"`
	ClientToken  string             `json:"client_token,omitempty" mapstructure:"client_token"`
	RefreshToken string             `json:"refresh_token,omitempty" mapstructure:"refresh_token"`
	Storage      *vaultsdk.S3Config `json:"storage,omitempty" mapstructure:"storage"`
	VerifyCron   string             `json:"verify_cron,omitempty" mapstructure:"verify_cron"`

	// AppsEnabled toggles integrations that shell out to CAD add-ins.
	AppsEnabled bool   `json:"-" mapstructure:"-"`
	AccessToken string `json:"-" mapstructure:"-"`
	Path        string `json:"-" mapstructure:"-"`
}

// Validate normalizes the config in place and reports the first invalid field.
func (c *Config) Validate() error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("invalid email %q: %w", c.Email, err)
	}

	vaultDir, err := utils.ResolvePath(c.VaultDir)
	if err != nil {
		return fmt.Errorf("invalid vault dir %q: %w", c.VaultDir, err)
	}
	c.VaultDir = vaultDir

	serverURL, err := url.Parse(c.ServerURL)
	if err != nil || (serverURL.Scheme != "http" && serverURL.Scheme != "https") || serverURL.Host == "" {
		return fmt.Errorf("invalid server url %q", c.ServerURL)
	}

	if c.ClientURL == "" {
		c.ClientURL = DefaultClientURL
	}
	clientURL, err := url.Parse(c.ClientURL)
	if err != nil || clientURL.Scheme == "" || clientURL.Host == "" {
		return fmt.Errorf("invalid client url %q", c.ClientURL)
	}

	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return fmt.Errorf("invalid storage config: %w", err)
		}
	}

	if c.VerifyCron != "" {
		if _, err := cron.ParseStandard(c.VerifyCron); err != nil {
			return fmt.Errorf("invalid verify cron %q: %w", c.VerifyCron, err)
		}
	}

	if c.Path != "" {
		path, err := utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("invalid config path %q: %w", c.Path, err)
		}
		c.Path = path
	}

	return nil
}

// Save writes the config to c.Path, or DefaultConfigPath if unset.
func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}

	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.Path, data, 0o644)
}

// LoadFromFile reads a config from path and applies defaults for fields the
// file leaves empty.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse %q: %w", path, err)
	}

	cfg.Path = path
	cfg.AppsEnabled = true
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.ClientURL == "" {
		cfg.ClientURL = DefaultClientURL
	}

	return &cfg, nil
}
