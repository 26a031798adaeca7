package sync

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/utils"
)

// etagCacheSize bounds the fingerprint cache. Vaults can hold tens of
// thousands of entries; at ~100 bytes each this stays a few MB.
const etagCacheSize = 65536

type etagCacheEntry struct {
	size    int64
	modTime int64 // unix nanos
	etag    string
}

// LocalScanner walks the vault working tree and produces the LocalEntry map
// for classification. Content fingerprints are MD5 and cached keyed by
// (size, mtime) so an unchanged file is never re-hashed.
type LocalScanner struct {
	ws     *workspace.Workspace
	ignore *IgnoreList
	etags  *lru.Cache[string, etagCacheEntry]
}

func NewLocalScanner(ws *workspace.Workspace, ignore *IgnoreList) (*LocalScanner, error) {
	etags, err := lru.New[string, etagCacheEntry](etagCacheSize)
	if err != nil {
		return nil, err
	}
	return &LocalScanner{
		ws:     ws,
		ignore: ignore,
		etags:  etags,
	}, nil
}

// Scan walks the working tree. Directories, ignored paths and conflict or
// rejected marker copies are excluded; the result holds every syncable file
// keyed by vault-relative path.
func (s *LocalScanner) Scan() (map[string]*LocalEntry, error) {
	state := make(map[string]*LocalEntry)

	err := filepath.WalkDir(s.ws.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk error: %w", walkErr)
		}

		if d.IsDir() {
			if path == s.ws.MetadataDir {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := s.ws.RelPath(path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}

		if s.ignore.ShouldIgnore(relPath) || IsMarkedPath(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("failed to stat file", "path", path, "error", err)
			return nil
		}

		etag, err := s.fileETag(path, relPath, info)
		if err != nil {
			slog.Warn("failed to fingerprint file", "path", path, "error", err)
			return nil
		}

		state[relPath] = &LocalEntry{
			Path:    relPath,
			Size:    info.Size(),
			ETag:    etag,
			ModTime: info.ModTime(),
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}

	return state, nil
}

// ScanFile fingerprints a single file by vault-relative path.
func (s *LocalScanner) ScanFile(relPath string) (*LocalEntry, error) {
	absPath := s.ws.AbsPath(relPath)
	info, err := utils.StatFile(absPath)
	if err != nil {
		return nil, err
	}

	etag, err := s.fileETag(absPath, relPath, info)
	if err != nil {
		return nil, err
	}

	return &LocalEntry{
		Path:    relPath,
		Size:    info.Size(),
		ETag:    etag,
		ModTime: info.ModTime(),
	}, nil
}

func (s *LocalScanner) fileETag(absPath, relPath string, info fs.FileInfo) (string, error) {
	if cached, ok := s.etags.Get(relPath); ok &&
		cached.size == info.Size() && cached.modTime == info.ModTime().UnixNano() {
		return cached.etag, nil
	}

	etag, err := utils.FileMD5(absPath)
	if err != nil {
		return "", err
	}

	s.etags.Add(relPath, etagCacheEntry{
		size:    info.Size(),
		modTime: info.ModTime().UnixNano(),
		etag:    etag,
	})
	return etag, nil
}

// Invalidate drops the cached fingerprint for a path. Called after the
// engine itself writes the file, so the next scan re-hashes it.
func (s *LocalScanner) Invalidate(relPath string) {
	s.etags.Remove(relPath)
}
