package sync

import (
	"errors"
	"fmt"
	"os"

	"github.com/partvault/partvault/internal/utils"
)

// ErrIntegrityMismatch means a content fingerprint disagrees with the
// expected state. Never auto-resolved: surfaced to the reconciler, which
// refuses to guess which side is correct.
var ErrIntegrityMismatch = errors.New("content integrity mismatch")

// verifyAndPlace moves a fully downloaded temp file into the working tree.
// The fingerprint is checked before the rename so a torn or corrupted
// download never lands at the destination; the temp file is removed on any
// failure.
func verifyAndPlace(tmpPath, destPath, expectedETag string) error {
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	etag, err := utils.FileMD5(tmpPath)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", tmpPath, err)
	}

	if expectedETag != "" && etag != expectedETag {
		return fmt.Errorf("%w: expected %s got %s", ErrIntegrityMismatch, expectedETag, etag)
	}

	if err := utils.EnsureParent(destPath); err != nil {
		return fmt.Errorf("ensure parent for %s: %w", destPath, err)
	}

	// Rename is atomic only within a filesystem; the staging dir lives
	// inside the vault so this holds.
	if err := os.Rename(tmpPath, destPath); err != nil {
		if err := utils.MoveFile(tmpPath, destPath); err != nil {
			return fmt.Errorf("place %s: %w", destPath, err)
		}
	}

	success = true
	return nil
}

// tempDownloadPath returns a unique temp path under dir for an in-flight
// download.
func tempDownloadPath(dir, base string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, base+".dl.*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()
	return path, nil
}
