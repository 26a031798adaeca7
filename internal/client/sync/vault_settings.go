package sync

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// VaultSettings is the per-vault policy file stored at
// .partvault/vault.yaml. It carries the admin-chosen conflict policies and
// the glob patterns for transfer prioritization. An absent file means no
// policies are set, which makes unattended batch resolution fail loudly.
type VaultSettings struct {
	VaultName string   `yaml:"vault_name,omitempty"`
	Priority  []string `yaml:"priority,omitempty"`

	Conflicts struct {
		Files      string `yaml:"files,omitempty"`
		Folders    string `yaml:"folders,omitempty"`
		ApplyToAll bool   `yaml:"apply_to_all,omitempty"`
	} `yaml:"conflicts,omitempty"`
}

// LoadVaultSettings reads vault.yaml. A missing file yields empty settings.
func LoadVaultSettings(path string) (*VaultSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &VaultSettings{}, nil
		}
		return nil, fmt.Errorf("read vault settings %s: %w", path, err)
	}

	var settings VaultSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse vault settings %s: %w", path, err)
	}

	if _, err := settings.ResolveOptions(); err != nil {
		return nil, fmt.Errorf("vault settings %s: %w", path, err)
	}

	return &settings, nil
}

// Save writes the settings back to path.
func (s *VaultSettings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ResolveOptions converts the configured policy strings into resolver
// options. Unset strings stay PolicyUnset so the resolver can refuse
// unattended resolution.
func (s *VaultSettings) ResolveOptions() (*ResolveOptions, error) {
	opts := &ResolveOptions{ApplyToAll: s.Conflicts.ApplyToAll}

	if s.Conflicts.Files != "" {
		p, err := ParseConflictPolicy(s.Conflicts.Files)
		if err != nil {
			return nil, err
		}
		if !p.validFor(false) {
			return nil, fmt.Errorf("policy %s does not apply to files", p)
		}
		opts.FilePolicy = p
	}

	if s.Conflicts.Folders != "" {
		p, err := ParseConflictPolicy(s.Conflicts.Folders)
		if err != nil {
			return nil, err
		}
		if !p.validFor(true) {
			return nil, fmt.Errorf("policy %s does not apply to folders", p)
		}
		opts.FolderPolicy = p
	}

	return opts, nil
}

// IsPriority reports whether a vault-relative path matches one of the
// priority globs. Priority files jump the transfer queue.
func (s *VaultSettings) IsPriority(relPath string) bool {
	for _, pattern := range s.Priority {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}
