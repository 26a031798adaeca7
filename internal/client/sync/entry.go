package sync

import (
	"time"
)

// LocalEntry is one file observed in the vault working tree. Path is
// vault-relative with forward slashes.
type LocalEntry struct {
	Path    string
	Size    int64
	ETag    string
	ModTime time.Time
}

// JournalEntry is the last-synced state of one vault file: the server record
// id, the version confirmed at the last successful sync, and the content
// fingerprint at that instant.
type JournalEntry struct {
	Path    string
	FileID  string
	Version int64
	ETag    string
	Size    int64
	ModTime time.Time
}
