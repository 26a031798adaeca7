package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/partvault/partvault/internal/db"
	"github.com/partvault/partvault/internal/utils"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS vault_journal (
    path TEXT PRIMARY KEY,
    file_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    etag TEXT NOT NULL,
    size INTEGER NOT NULL,
    last_modified TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_journal_file_id ON vault_journal(file_id);
CREATE INDEX IF NOT EXISTS idx_journal_etag ON vault_journal(etag);
`

// dbJournalEntry mirrors JournalEntry with time as TEXT for sqlite.
type dbJournalEntry struct {
	Path         string `db:"path"`
	FileID       string `db:"file_id"`
	Version      int64  `db:"version"`
	ETag         string `db:"etag"`
	Size         int64  `db:"size"`
	LastModified string `db:"last_modified"`
}

func (d *dbJournalEntry) toEntry() (*JournalEntry, error) {
	modTime, err := time.Parse(time.RFC3339, d.LastModified)
	if err != nil {
		return nil, fmt.Errorf("parse stored timestamp for %s: %w", d.Path, err)
	}
	return &JournalEntry{
		Path:    d.Path,
		FileID:  d.FileID,
		Version: d.Version,
		ETag:    d.ETag,
		Size:    d.Size,
		ModTime: modTime,
	}, nil
}

// Journal is the persistent record of last-synced state per vault path,
// backed by SQLite under the .partvault metadata directory. It is the
// client's only memory of "what the server confirmed last", so statuses are
// always recomputed against it rather than patched.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

func NewJournal(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

// Open the journal and the underlying database.
func (j *Journal) Open() error {
	if j.db != nil {
		return fmt.Errorf("journal already open")
	}

	dbDir := filepath.Dir(j.dbPath)
	if err := utils.EnsureDir(dbDir); err != nil {
		return fmt.Errorf("failed to create journal directory %s: %w", dbDir, err)
	}

	sdb, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := sdb.Exec(journalSchema); err != nil {
		sdb.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j.db = sdb
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return fmt.Errorf("journal not open")
	}
	if err := j.db.Close(); err != nil {
		slog.Error("failed to close journal database", "error", err)
		return err
	}
	slog.Debug("journal closed")
	j.db = nil
	return nil
}

// Get retrieves the last-synced entry for a path, or nil if none exists.
func (j *Journal) Get(path string) (*JournalEntry, error) {
	var row dbJournalEntry
	err := j.db.Get(&row, "SELECT path, file_id, version, etag, size, last_modified FROM vault_journal WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query path %s: %w", path, err)
	}
	return row.toEntry()
}

// GetByFileID retrieves the entry for a server record id, or nil.
func (j *Journal) GetByFileID(fileID string) (*JournalEntry, error) {
	var row dbJournalEntry
	err := j.db.Get(&row, "SELECT path, file_id, version, etag, size, last_modified FROM vault_journal WHERE file_id = ?", fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query file id %s: %w", fileID, err)
	}
	return row.toEntry()
}

// Set inserts or updates the entry for a path.
func (j *Journal) Set(entry *JournalEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot set nil entry")
	}

	row := dbJournalEntry{
		Path:         entry.Path,
		FileID:       entry.FileID,
		Version:      entry.Version,
		ETag:         entry.ETag,
		Size:         entry.Size,
		LastModified: entry.ModTime.Format(time.RFC3339),
	}

	query := `INSERT OR REPLACE INTO vault_journal (path, file_id, version, etag, size, last_modified)
	          VALUES (:path, :file_id, :version, :etag, :size, :last_modified)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to set entry for path %s: %w", entry.Path, err)
	}
	slog.Debug("journal set", "path", entry.Path, "version", entry.Version, "etag", entry.ETag)
	return nil
}

// GetState retrieves the entire journal keyed by path.
func (j *Journal) GetState() (map[string]*JournalEntry, error) {
	var rows []dbJournalEntry
	err := j.db.Select(&rows, "SELECT path, file_id, version, etag, size, last_modified FROM vault_journal")
	if err != nil {
		return nil, fmt.Errorf("failed to query full state: %w", err)
	}

	state := make(map[string]*JournalEntry, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			slog.Error("skipping corrupt journal row", "path", rows[i].Path, "error", err)
			continue
		}
		state[entry.Path] = entry
	}

	return state, nil
}

// Count returns the number of journal entries.
func (j *Journal) Count() (int, error) {
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM vault_journal"); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Delete removes the entry for a path.
func (j *Journal) Delete(path string) error {
	if _, err := j.db.Exec("DELETE FROM vault_journal WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete path %s: %w", path, err)
	}
	return nil
}

// Rename moves an entry to a new path, keeping its synced state.
func (j *Journal) Rename(oldPath, newPath string) error {
	if _, err := j.db.Exec("UPDATE vault_journal SET path = ? WHERE path = ?", newPath, oldPath); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Destroy closes the journal and moves the database aside with a timestamp
// so a rebuild starts clean without losing forensic state.
func (j *Journal) Destroy() error {
	if err := j.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	if err := os.Rename(j.dbPath, fmt.Sprintf("%s.%s.bak", j.dbPath, timestamp)); err != nil {
		return fmt.Errorf("failed to move journal aside: %w", err)
	}
	return nil
}
