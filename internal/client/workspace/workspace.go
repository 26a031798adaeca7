// Package workspace manages the on-disk layout of a local vault checkout:
// the working tree the user edits plus the .partvault metadata directory
// holding the journal, staged check-ins and logs.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/partvault/partvault/internal/utils"
)

const (
	MetadataDirName = ".partvault"

	stagingDir   = "staging"
	logsDir      = "logs"
	journalFile  = "journal.db"
	stagingFile  = "staging.db"
	settingsFile = "vault.yaml"
	lockFile     = "partvault.lock"
)

var ErrVaultLocked = errors.New("vault locked by another process")

// Workspace describes a local vault checkout rooted at Root. All metadata
// lives under Root/.partvault so the working tree stays clean.
type Workspace struct {
	Owner        string
	Root         string
	MetadataDir  string
	StagingDir   string
	LogsDir      string
	JournalPath  string
	StagingPath  string
	SettingsPath string

	flock *flock.Flock
}

func NewWorkspace(rootDir string, owner string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metadataDir := filepath.Join(root, MetadataDirName)

	return &Workspace{
		Owner:        owner,
		Root:         root,
		MetadataDir:  metadataDir,
		StagingDir:   filepath.Join(metadataDir, stagingDir),
		LogsDir:      filepath.Join(metadataDir, logsDir),
		JournalPath:  filepath.Join(metadataDir, journalFile),
		StagingPath:  filepath.Join(metadataDir, stagingFile),
		SettingsPath: filepath.Join(metadataDir, settingsFile),
		flock:        flock.New(filepath.Join(metadataDir, lockFile)),
	}, nil
}

// Lock takes the single-instance lock so two clients cannot mutate the same
// vault checkout concurrently.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock vault: %w", err)
	}
	if !locked {
		return ErrVaultLocked
	}

	return nil
}

// Unlock releases the lock and removes the lock file. It is a no-op if this
// process does not hold the lock.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and creates the metadata layout.
func (w *Workspace) Setup() error {
	if info, err := os.Stat(w.Root); err == nil && !info.IsDir() {
		return fmt.Errorf("vault root %s exists and is not a directory", w.Root)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	dirs := []string{w.MetadataDir, w.StagingDir, w.LogsDir}
	for _, dir := range dirs {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// AbsPath returns the absolute path of a vault-relative path.
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath returns the vault-relative path of an absolute path inside the
// working tree, normalized to forward slashes.
func (w *Workspace) RelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path %s is outside the vault root", absPath)
	}
	return NormPath(relPath), nil
}

// IsMetadataPath reports whether a vault-relative path points inside the
// .partvault metadata directory.
func IsMetadataPath(relPath string) bool {
	relPath = NormPath(relPath)
	return relPath == MetadataDirName || strings.HasPrefix(relPath, MetadataDirName+"/")
}

// NormPath normalizes a path by cleaning it, replacing backslashes with
// slashes, and trimming leading slashes.
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}
