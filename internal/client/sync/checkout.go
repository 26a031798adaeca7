package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/vaultsdk"
)

var (
	// ErrLockConflict means another (user, machine) pair holds the
	// exclusive checkout. Recoverable: the user can wait or escalate.
	ErrLockConflict = errors.New("file is checked out")

	// ErrCrossMachineCheckin means the caller's own lock lives on a
	// different machine. Recoverable via an explicit force after the
	// presence gate.
	ErrCrossMachineCheckin = errors.New("file is checked out from another machine")

	// ErrMachineOnline blocks a force check-in: the holding machine is
	// reachable and may have unsaved edits. Nothing is force-applied to an
	// online peer's work.
	ErrMachineOnline = errors.New("holding machine is online")

	// ErrNetworkUnavailable means the vault server could not be reached.
	// Check-ins recover through the staging queue.
	ErrNetworkUnavailable = errors.New("vault server unreachable")

	// ErrNotCheckedOut means a check-in or discard was attempted without
	// holding the lock.
	ErrNotCheckedOut = errors.New("file is not checked out")
)

// LockConflictError carries the identity of the current lock holder so the
// refusal can name who to ask.
type LockConflictError struct {
	Path        string
	Holder      string
	MachineID   string
	MachineName string
}

func (e *LockConflictError) Error() string {
	holder := e.Holder
	if e.MachineName != "" {
		holder = e.Holder + "@" + e.MachineName
	}
	return fmt.Sprintf("%s is checked out by %s", e.Path, holder)
}

func (e *LockConflictError) Unwrap() error { return ErrLockConflict }

// CheckinOpts modifies a check-in.
type CheckinOpts struct {
	// Force allows checking in over the caller's own lock held on a
	// different machine. Gated on that machine being offline.
	Force bool
	// AdminOverride skips the presence gate. Privileged callers only.
	AdminOverride bool
	// ContentPath overrides the working-tree file as the content source.
	// Used by staged replay to upload the snapshot, not the live file.
	ContentPath string
}

// CheckinResult reports how a check-in concluded: applied to the server, or
// converted into a staged operation because the server was unreachable.
type CheckinResult struct {
	Record *vaultsdk.FileRecord
	Staged bool
}

// CheckoutManager owns the lifecycle of per-file exclusive locks: checkout,
// check-in, force release and discard, plus replay of staged offline
// check-ins. Every remote mutation is one atomic request; the manager never
// composes multi-step transactions on the server.
type CheckoutManager struct {
	ws       *workspace.Workspace
	records  RecordService
	presence PresenceService
	transfer vaultsdk.Transfer
	journal  *Journal
	staging  *StagingQueue
	tracker  *StatusTracker
	scanner  *LocalScanner

	user        string
	machineID   string
	machineName string
}

func NewCheckoutManager(
	ws *workspace.Workspace,
	records RecordService,
	presence PresenceService,
	transfer vaultsdk.Transfer,
	journal *Journal,
	staging *StagingQueue,
	tracker *StatusTracker,
	scanner *LocalScanner,
	user string,
) *CheckoutManager {
	return &CheckoutManager{
		ws:          ws,
		records:     records,
		presence:    presence,
		transfer:    transfer,
		journal:     journal,
		staging:     staging,
		tracker:     tracker,
		scanner:     scanner,
		user:        user,
		machineID:   utils.HWID,
		machineName: utils.MachineName(),
	}
}

// Checkout acquires the exclusive lock for a path. Already-locked files
// short-circuit before any mutation; the server side is a compare-and-set,
// so two machines racing for the same file produce exactly one winner.
func (m *CheckoutManager) Checkout(ctx context.Context, relPath string) (*vaultsdk.FileRecord, error) {
	rec, err := m.resolveRecord(ctx, relPath)
	if err != nil {
		return nil, wrapUnreachable(err)
	}

	if rec.IsCheckedOut() {
		if rec.IsCheckedOutBy(m.user) && rec.CheckedOutByMachineID == m.machineID {
			// Already ours on this machine.
			return rec, nil
		}
		return nil, m.lockConflict(relPath, rec)
	}

	updated, err := m.records.Checkout(ctx, rec.ID, &vaultsdk.CheckoutParams{
		User:        m.user,
		MachineID:   m.machineID,
		MachineName: m.machineName,
	})
	if err != nil {
		// Lost the compare-and-set race.
		if vaultsdk.IsCode(err, vaultsdk.CodeLockConflict) {
			if fresh, ferr := m.records.Get(ctx, rec.ID); ferr == nil {
				return nil, m.lockConflict(relPath, fresh)
			}
			return nil, fmt.Errorf("%s: %w", relPath, ErrLockConflict)
		}
		return nil, wrapUnreachable(err)
	}

	slog.Info("checkout", "path", relPath, "version", updated.Version)
	m.tracker.SetStatus(relPath, StatusCheckedOutByMe)
	return updated, nil
}

// Checkin uploads the new content and releases the lock in one server-side
// version bump. When the server is unreachable the whole operation is
// converted into a staged operation instead of failing.
func (m *CheckoutManager) Checkin(ctx context.Context, relPath string, opts *CheckinOpts) (*CheckinResult, error) {
	if opts == nil {
		opts = &CheckinOpts{}
	}

	contentPath := opts.ContentPath
	if contentPath == "" {
		contentPath = m.ws.AbsPath(relPath)
	}
	local, err := m.localContent(relPath, contentPath)
	if err != nil {
		return nil, err
	}

	rec, err := m.resolveRecord(ctx, relPath)
	if err != nil {
		if vaultsdk.IsUnreachable(err) {
			return m.stageCheckin(relPath, contentPath, opts)
		}
		return nil, err
	}

	if err := m.validateHoldership(ctx, relPath, rec, opts); err != nil {
		return nil, err
	}

	updated, err := m.pushContent(ctx, rec, relPath, contentPath, local, opts.Force)
	if err != nil {
		if vaultsdk.IsUnreachable(err) {
			return m.stageCheckin(relPath, contentPath, opts)
		}
		return nil, err
	}

	slog.Info("checkin", "path", relPath, "version", updated.Version)
	m.tracker.SetCompleted(relPath, StatusUnmodified)
	return &CheckinResult{Record: updated}, nil
}

// ForceRelease unconditionally clears the lock regardless of holder. The
// server notifies the original holder; the caller needs the admin
// capability or the request is refused server-side.
func (m *CheckoutManager) ForceRelease(ctx context.Context, relPath string) (*vaultsdk.FileRecord, error) {
	rec, err := m.resolveRecord(ctx, relPath)
	if err != nil {
		return nil, wrapUnreachable(err)
	}

	if !rec.IsCheckedOut() {
		return rec, nil
	}

	updated, err := m.records.ForceRelease(ctx, rec.ID)
	if err != nil {
		return nil, wrapUnreachable(err)
	}

	slog.Warn("force released lock", "path", relPath, "holder", rec.HolderLabel())
	return updated, nil
}

// Discard releases the caller's lock without a version bump and reverts the
// local content to the last-synced server version. The revert lands before
// the release, so a failed release leaves the lock intact and the discard
// retryable.
func (m *CheckoutManager) Discard(ctx context.Context, relPath string) error {
	rec, err := m.resolveRecord(ctx, relPath)
	if err != nil {
		return wrapUnreachable(err)
	}

	if !rec.IsCheckedOut() {
		return fmt.Errorf("%s: %w", relPath, ErrNotCheckedOut)
	}
	if !rec.IsCheckedOutBy(m.user) {
		return m.lockConflict(relPath, rec)
	}
	if rec.CheckedOutByMachineID != m.machineID {
		return fmt.Errorf("%s: %w (held on %s)", relPath, ErrCrossMachineCheckin, rec.CheckedOutByMachineName)
	}

	if synced, err := m.journal.Get(relPath); err != nil {
		return err
	} else if synced != nil {
		if err := m.revertToSynced(ctx, relPath, rec, synced); err != nil {
			return err
		}
	}

	if _, err := m.records.Release(ctx, rec.ID); err != nil {
		return wrapUnreachable(err)
	}

	slog.Info("discarded checkout", "path", relPath)
	m.tracker.SetCompleted(relPath, StatusUnmodified)
	return nil
}

// Delete tombstones the record on the server and drops the journal entry.
// When removeLocal is set the working copy goes too. Callers confirm before
// invoking; this does not.
func (m *CheckoutManager) Delete(ctx context.Context, relPath string, removeLocal bool) error {
	rec, err := m.resolveRecord(ctx, relPath)
	if err != nil {
		if vaultsdk.IsUnreachable(err) {
			return m.stageDelete(relPath)
		}
		return err
	}

	if rec.IsCheckedOut() && !(rec.IsCheckedOutBy(m.user) && rec.CheckedOutByMachineID == m.machineID) {
		return m.lockConflict(relPath, rec)
	}

	if err := m.records.MarkDeleted(ctx, rec.ID); err != nil {
		if vaultsdk.IsUnreachable(err) {
			return m.stageDelete(relPath)
		}
		return err
	}

	if err := m.journal.Delete(relPath); err != nil {
		return err
	}

	if removeLocal {
		if err := os.Remove(m.ws.AbsPath(relPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove local copy of %s: %w", relPath, err)
		}
	}

	slog.Info("deleted", "path", relPath, "local", removeLocal)
	m.tracker.SetStatus(relPath, StatusNone)
	return nil
}

// validateHoldership enforces the check-in edge of the lock state machine.
func (m *CheckoutManager) validateHoldership(ctx context.Context, relPath string, rec *vaultsdk.FileRecord, opts *CheckinOpts) error {
	if !rec.IsCheckedOut() {
		return fmt.Errorf("%s: %w", relPath, ErrNotCheckedOut)
	}

	if !rec.IsCheckedOutBy(m.user) {
		return m.lockConflict(relPath, rec)
	}

	if rec.CheckedOutByMachineID == m.machineID {
		return nil
	}

	// Same user, different machine.
	if !opts.Force {
		return fmt.Errorf("%s: %w (held on %s)", relPath, ErrCrossMachineCheckin, rec.CheckedOutByMachineName)
	}

	if opts.AdminOverride {
		slog.Warn("force checkin with admin override", "path", relPath, "machine", rec.CheckedOutByMachineName)
		return nil
	}

	// Force is only honored when the holding machine cannot have unsaved
	// work in flight. Unknown presence counts as online.
	presence, err := m.presence.IsMachineOnline(ctx, m.user, rec.CheckedOutByMachineID)
	if err != nil {
		return fmt.Errorf("cannot verify presence of %s: %w", rec.CheckedOutByMachineName, wrapUnreachable(err))
	}
	if presence.Online {
		return fmt.Errorf("%s: %w (%s)", relPath, ErrMachineOnline, rec.CheckedOutByMachineName)
	}

	slog.Warn("force checkin over offline machine", "path", relPath, "machine", rec.CheckedOutByMachineName)
	return nil
}

// pushContent uploads content and checks it in with the next expected
// version. The server validates the bump, so a stale client view fails
// loudly instead of rewriting history.
func (m *CheckoutManager) pushContent(ctx context.Context, rec *vaultsdk.FileRecord, relPath, contentPath string, local *LocalEntry, force bool) (*vaultsdk.FileRecord, error) {
	m.tracker.SetTransferring(relPath)

	upload, err := m.transfer.Upload(ctx, &vaultsdk.UploadJob{
		FileID:   rec.ID,
		Version:  rec.Version + 1,
		FilePath: contentPath,
		ETag:     local.ETag,
		Size:     local.Size,
		Callback: m.progressFor(relPath, local.Size),
	})
	if err != nil {
		m.tracker.SetError(relPath, err)
		return nil, err
	}

	updated, err := m.records.Checkin(ctx, rec.ID, &vaultsdk.CheckinParams{
		User:       m.user,
		MachineID:  m.machineID,
		NewVersion: rec.Version + 1,
		Size:       local.Size,
		ETag:       upload.ETag,
		ContentRef: upload.ContentRef,
		Force:      force,
	})
	if err != nil {
		m.tracker.SetError(relPath, err)
		return nil, err
	}

	if err := m.journal.Set(&JournalEntry{
		Path:    relPath,
		FileID:  updated.ID,
		Version: updated.Version,
		ETag:    local.ETag,
		Size:    local.Size,
		ModTime: local.ModTime,
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// registerAndPush creates the record for a local-only file and pushes its
// first content version through the normal checkout and check-in sequence.
func (m *CheckoutManager) registerAndPush(ctx context.Context, relPath, contentPath string) (*vaultsdk.FileRecord, error) {
	local, err := m.localContent(relPath, contentPath)
	if err != nil {
		return nil, err
	}

	rec, err := m.records.Create(ctx, &vaultsdk.CreateRecordParams{
		Path: relPath,
		Size: local.Size,
		ETag: local.ETag,
	})
	if err != nil {
		return nil, err
	}

	rec, err = m.records.Checkout(ctx, rec.ID, &vaultsdk.CheckoutParams{
		User:        m.user,
		MachineID:   m.machineID,
		MachineName: m.machineName,
	})
	if err != nil {
		return nil, err
	}

	return m.pushContent(ctx, rec, relPath, contentPath, local, false)
}

func (m *CheckoutManager) stageCheckin(relPath, contentPath string, opts *CheckinOpts) (*CheckinResult, error) {
	op := &StagedOperation{
		Op:    StagedCheckin,
		Path:  relPath,
		Force: opts.Force,
	}

	synced, err := m.journal.Get(relPath)
	if err != nil {
		return nil, err
	}
	if synced != nil {
		op.FileID = synced.FileID
		op.BaseVersion = synced.Version
	} else {
		// Never synced: the record has to be created at replay.
		op.Op = StagedCreate
	}

	if local, err := m.localContent(relPath, contentPath); err == nil {
		op.ETag = local.ETag
		op.Size = local.Size
	}

	if err := m.staging.Stage(op, contentPath); err != nil {
		return nil, err
	}

	m.tracker.SetStatus(relPath, StatusStagedForCheckin)
	return &CheckinResult{Staged: true}, nil
}

func (m *CheckoutManager) stageDelete(relPath string) error {
	synced, err := m.journal.Get(relPath)
	if err != nil {
		return err
	}

	op := &StagedOperation{Op: StagedDelete, Path: relPath}
	if synced != nil {
		op.FileID = synced.FileID
		op.BaseVersion = synced.Version
	}

	if err := m.staging.Stage(op, ""); err != nil {
		return err
	}

	m.tracker.SetStatus(relPath, StatusStagedForCheckin)
	return nil
}

// revertToSynced downloads the last-synced content and atomically replaces
// the working copy after an integrity check.
func (m *CheckoutManager) revertToSynced(ctx context.Context, relPath string, rec *vaultsdk.FileRecord, synced *JournalEntry) error {
	tmpPath, err := tempDownloadPath(m.ws.StagingDir, filepath.Base(relPath))
	if err != nil {
		return err
	}

	m.tracker.SetTransferring(relPath)
	err = m.transfer.Download(ctx, &vaultsdk.DownloadJob{
		FileID:   rec.ID,
		Path:     relPath,
		Version:  synced.Version,
		DestPath: tmpPath,
		Callback: m.progressFor(relPath, synced.Size),
	})
	if err != nil {
		m.tracker.SetError(relPath, err)
		os.Remove(tmpPath)
		return wrapUnreachable(err)
	}

	if err := verifyAndPlace(tmpPath, m.ws.AbsPath(relPath), synced.ETag); err != nil {
		m.tracker.SetError(relPath, err)
		return err
	}

	m.scanner.Invalidate(relPath)
	return nil
}

// PullLatest downloads the current server content for a path and records it
// as synced. A synced working copy is replaced in place; never-synced local
// bytes are set aside as a conflict copy first, they are the user's only
// copy.
func (m *CheckoutManager) PullLatest(ctx context.Context, relPath string) error {
	rec, err := m.resolveRecord(ctx, relPath)
	if err != nil {
		return wrapUnreachable(err)
	}
	if rec.Deleted {
		return fmt.Errorf("%s: %w", relPath, vaultsdk.ErrFileNotFound)
	}

	synced, err := m.journal.Get(relPath)
	if err != nil {
		return err
	}
	if synced == nil && utils.FileExists(m.ws.AbsPath(relPath)) {
		marked, err := SetMarker(m.ws.AbsPath(relPath), Conflict)
		if err != nil {
			return err
		}
		m.scanner.Invalidate(relPath)
		slog.Warn("kept never-synced local copy as conflict",
			"path", relPath, "copy", filepath.Base(marked))
	}

	tmpPath, err := tempDownloadPath(m.ws.StagingDir, filepath.Base(relPath))
	if err != nil {
		return err
	}

	m.tracker.SetTransferring(relPath)
	err = m.transfer.Download(ctx, &vaultsdk.DownloadJob{
		FileID:   rec.ID,
		Path:     relPath,
		Version:  rec.Version,
		DestPath: tmpPath,
		Callback: m.progressFor(relPath, rec.Size),
	})
	if err != nil {
		m.tracker.SetError(relPath, err)
		os.Remove(tmpPath)
		return wrapUnreachable(err)
	}

	if err := verifyAndPlace(tmpPath, m.ws.AbsPath(relPath), rec.ETag); err != nil {
		m.tracker.SetError(relPath, err)
		return err
	}
	m.scanner.Invalidate(relPath)

	entry, err := m.scanner.ScanFile(relPath)
	if err != nil {
		return err
	}
	if err := m.journal.Set(&JournalEntry{
		Path:    relPath,
		FileID:  rec.ID,
		Version: rec.Version,
		ETag:    entry.ETag,
		Size:    entry.Size,
		ModTime: entry.ModTime,
	}); err != nil {
		return err
	}

	m.tracker.SetCompleted(relPath, StatusUnmodified)
	slog.Info("pulled latest", "path", relPath, "version", rec.Version)
	return nil
}

// resolveRecord locates the server record for a vault path: by the journal's
// file id when the path has synced before, else by exact path lookup.
func (m *CheckoutManager) resolveRecord(ctx context.Context, relPath string) (*vaultsdk.FileRecord, error) {
	synced, err := m.journal.Get(relPath)
	if err != nil {
		return nil, err
	}

	if synced != nil {
		rec, err := m.records.Get(ctx, synced.FileID)
		if err == nil {
			return rec, nil
		}
		if !vaultsdk.IsCode(err, vaultsdk.CodeRecordNotFound) {
			return nil, err
		}
		// Record vanished server-side; fall through to path lookup.
	}

	resp, err := m.records.List(ctx, &vaultsdk.ListRecordsParams{Prefix: relPath})
	if err != nil {
		return nil, err
	}
	for _, rec := range resp.Records {
		if rec.Path == relPath {
			return rec, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", relPath, vaultsdk.ErrFileNotFound)
}

func (m *CheckoutManager) lockConflict(relPath string, rec *vaultsdk.FileRecord) error {
	return &LockConflictError{
		Path:        relPath,
		Holder:      rec.CheckedOutBy,
		MachineID:   rec.CheckedOutByMachineID,
		MachineName: rec.CheckedOutByMachineName,
	}
}

func (m *CheckoutManager) localContent(relPath, contentPath string) (*LocalEntry, error) {
	if contentPath == m.ws.AbsPath(relPath) {
		return m.scanner.ScanFile(relPath)
	}

	info, err := utils.StatFile(contentPath)
	if err != nil {
		return nil, err
	}
	etag, err := utils.FileMD5(contentPath)
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

func (m *CheckoutManager) progressFor(relPath string, total int64) vaultsdk.ProgressCallback {
	return func(transferred, totalBytes int64) {
		if totalBytes <= 0 {
			totalBytes = total
		}
		if totalBytes > 0 {
			m.tracker.SetProgress(relPath, float64(transferred)/float64(totalBytes)*progressMax)
		}
	}
}

func wrapUnreachable(err error) error {
	if vaultsdk.IsUnreachable(err) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	return err
}
