package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/partvault/partvault/internal/db"
	"github.com/partvault/partvault/internal/utils"
)

// StagedOpType is the closed set of operations that can be queued while
// offline.
type StagedOpType int

const (
	StagedCheckin StagedOpType = iota
	StagedCreate
	StagedDelete
)

func (t StagedOpType) String() string {
	switch t {
	case StagedCheckin:
		return "checkin"
	case StagedCreate:
		return "create"
	case StagedDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// StagedOperation is one queued check-in created while the server was
// unreachable. The snapshot preserves the content as it was at staging
// time, so later edits to the working copy cannot corrupt the queued
// intent. Destroyed on successful replay or explicit discard.
type StagedOperation struct {
	Seq         int64        `db:"seq" json:"-"`
	ID          string       `db:"op_id" json:"id"`
	Op          StagedOpType `db:"op" json:"op"`
	Path        string       `db:"path" json:"path"`
	FileID      string       `db:"file_id" json:"fileId,omitempty"`
	BaseVersion int64        `db:"base_version" json:"baseVersion"`
	ETag        string       `db:"etag" json:"etag,omitempty"`
	Size        int64        `db:"size" json:"size,omitempty"`
	Snapshot    string       `db:"snapshot" json:"-"`
	Force       bool         `db:"force_flag" json:"force,omitempty"`
	Attempts    int          `db:"attempts" json:"attempts"`
	LastError   string       `db:"last_error" json:"lastError,omitempty"`
	CreatedAt   string       `db:"created_at" json:"createdAt"`
}

const stagingSchema = `
CREATE TABLE IF NOT EXISTS staged_ops (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    op_id TEXT NOT NULL UNIQUE,
    op INTEGER NOT NULL,
    path TEXT NOT NULL,
    file_id TEXT NOT NULL DEFAULT '',
    base_version INTEGER NOT NULL DEFAULT 0,
    etag TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    snapshot TEXT NOT NULL DEFAULT '',
    force_flag INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staged_path ON staged_ops(path);
`

// StagingQueue persists offline check-ins in FIFO order. Both the queue
// database and the content snapshots live under the .partvault metadata
// directory so they survive restarts.
type StagingQueue struct {
	db          *sqlx.DB
	dbPath      string
	snapshotDir string
}

func NewStagingQueue(dbPath, snapshotDir string) *StagingQueue {
	return &StagingQueue{dbPath: dbPath, snapshotDir: snapshotDir}
}

func (q *StagingQueue) Open() error {
	if q.db != nil {
		return fmt.Errorf("staging queue already open")
	}

	if err := utils.EnsureDir(q.snapshotDir); err != nil {
		return fmt.Errorf("failed to create snapshot directory %s: %w", q.snapshotDir, err)
	}
	if err := utils.EnsureParent(q.dbPath); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	sdb, err := db.NewSqliteDB(db.WithPath(q.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open staging queue: %w", err)
	}

	if _, err := sdb.Exec(stagingSchema); err != nil {
		sdb.Close()
		return fmt.Errorf("failed to initialize staging schema: %w", err)
	}

	q.db = sdb
	return nil
}

func (q *StagingQueue) Close() error {
	if q.db == nil {
		return fmt.Errorf("staging queue not open")
	}
	err := q.db.Close()
	q.db = nil
	return err
}

// Stage enqueues an operation. For content-bearing ops the file at
// contentPath is snapshotted into the staging area first, so the queued
// intent is immune to further edits of the working copy.
func (q *StagingQueue) Stage(op *StagedOperation, contentPath string) error {
	if op.Path == "" {
		return fmt.Errorf("staged operation needs a path")
	}

	op.ID = uuid.NewString()
	op.CreatedAt = time.Now().Format(time.RFC3339)

	if contentPath != "" {
		snapshot := filepath.Join(q.snapshotDir, op.ID+filepath.Ext(op.Path))
		if err := utils.CopyFile(contentPath, snapshot); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", contentPath, err)
		}
		op.Snapshot = snapshot
	}

	query := `INSERT INTO staged_ops (op_id, op, path, file_id, base_version, etag, size, snapshot, force_flag, attempts, last_error, created_at)
	          VALUES (:op_id, :op, :path, :file_id, :base_version, :etag, :size, :snapshot, :force_flag, :attempts, :last_error, :created_at)`
	if _, err := q.db.NamedExec(query, op); err != nil {
		if op.Snapshot != "" {
			os.Remove(op.Snapshot)
		}
		return fmt.Errorf("failed to stage %s for %s: %w", op.Op, op.Path, err)
	}

	slog.Info("staged offline operation", "op", op.Op, "path", op.Path, "id", op.ID)
	return nil
}

// List returns all staged operations in FIFO enqueue order.
func (q *StagingQueue) List() ([]*StagedOperation, error) {
	var ops []*StagedOperation
	err := q.db.Select(&ops, "SELECT * FROM staged_ops ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list staged operations: %w", err)
	}
	return ops, nil
}

// Len returns the number of queued operations.
func (q *StagingQueue) Len() (int, error) {
	var count int
	if err := q.db.Get(&count, "SELECT COUNT(*) FROM staged_ops"); err != nil {
		return 0, fmt.Errorf("failed to count staged operations: %w", err)
	}
	return count, nil
}

// IsStaged reports whether a path has any queued operation.
func (q *StagingQueue) IsStaged(path string) bool {
	var count int
	if err := q.db.Get(&count, "SELECT COUNT(*) FROM staged_ops WHERE path = ?", path); err != nil {
		return false
	}
	return count > 0
}

// Paths returns the set of paths with queued operations.
func (q *StagingQueue) Paths() (map[string]struct{}, error) {
	var paths []string
	if err := q.db.Select(&paths, "SELECT DISTINCT path FROM staged_ops"); err != nil {
		return nil, fmt.Errorf("failed to query staged paths: %w", err)
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

// MarkAttempt bumps the attempt counter after a failed replay.
func (q *StagingQueue) MarkAttempt(id string, attemptErr error) error {
	msg := ""
	if attemptErr != nil {
		msg = attemptErr.Error()
	}
	_, err := q.db.Exec("UPDATE staged_ops SET attempts = attempts + 1, last_error = ? WHERE op_id = ?", msg, id)
	if err != nil {
		return fmt.Errorf("failed to mark attempt for %s: %w", id, err)
	}
	return nil
}

// Remove deletes an operation and its snapshot.
func (q *StagingQueue) Remove(op *StagedOperation) error {
	if _, err := q.db.Exec("DELETE FROM staged_ops WHERE op_id = ?", op.ID); err != nil {
		return fmt.Errorf("failed to remove staged operation %s: %w", op.ID, err)
	}
	if op.Snapshot != "" {
		if err := os.Remove(op.Snapshot); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove snapshot", "path", op.Snapshot, "error", err)
		}
	}
	return nil
}

// DiscardPath removes every queued operation for a path. Explicit discard
// is the only way a staged operation disappears without replay.
func (q *StagingQueue) DiscardPath(path string) (int, error) {
	ops, err := q.opsForPath(path)
	if err != nil {
		return 0, err
	}
	for _, op := range ops {
		if err := q.Remove(op); err != nil {
			return 0, err
		}
	}
	return len(ops), nil
}

func (q *StagingQueue) opsForPath(path string) ([]*StagedOperation, error) {
	var ops []*StagedOperation
	err := q.db.Select(&ops, "SELECT * FROM staged_ops WHERE path = ? ORDER BY seq ASC", path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query staged operations for %s: %w", path, err)
	}
	return ops, nil
}
