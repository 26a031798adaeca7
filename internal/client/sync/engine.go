package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/vaultsdk"
)

const fullSyncInterval = 15 * time.Second

// ErrSyncInProgress means a full pass was requested while one is running.
// Triggers are not queued; the caller retries or waits for the timer.
var ErrSyncInProgress = errors.New("sync already in progress")

// Engine drives the periodic reconciliation loop: scan, fetch remote truth,
// classify, auto-update stale files, and replay staged offline work once the
// server answers again. Full passes are serialized with a try-lock; the
// timer is reset after each pass rather than ticking, so a slow pass never
// queues another behind it.
type Engine struct {
	ws         *workspace.Workspace
	records    RecordService
	events     *vaultsdk.EventsAPI
	transfer   vaultsdk.Transfer
	scanner    *LocalScanner
	journal    *Journal
	staging    *StagingQueue
	classifier *Classifier
	checkout   *CheckoutManager
	tracker    *StatusTracker
	watcher    *FileWatcher

	user string

	muSync gosync.Mutex
	wg     gosync.WaitGroup
}

func NewEngine(
	ws *workspace.Workspace,
	records RecordService,
	events *vaultsdk.EventsAPI,
	transfer vaultsdk.Transfer,
	scanner *LocalScanner,
	journal *Journal,
	staging *StagingQueue,
	classifier *Classifier,
	checkout *CheckoutManager,
	tracker *StatusTracker,
	watcher *FileWatcher,
	user string,
) *Engine {
	return &Engine{
		ws:         ws,
		records:    records,
		events:     events,
		transfer:   transfer,
		scanner:    scanner,
		journal:    journal,
		staging:    staging,
		classifier: classifier,
		checkout:   checkout,
		tracker:    tracker,
		watcher:    watcher,
		user:       user,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	slog.Info("sync engine start")

	// one pass before the loop so the first status snapshot is fresh
	if err := e.RunFullSync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("initial sync", "error", err)
	}

	if e.events != nil {
		if err := e.events.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("events connect, continuing without push", "error", err)
		}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		// timer not ticker: a pass longer than the interval must not queue
		// ticks behind itself
		timer := time.NewTimer(fullSyncInterval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := e.RunFullSync(ctx); err != nil &&
					!errors.Is(err, context.Canceled) && !errors.Is(err, ErrSyncInProgress) {
					slog.Error("full sync", "error", err)
				}
				timer.Reset(fullSyncInterval)
			}
		}
	}()

	if e.events != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleServerEvents(ctx)
		}()
	}

	if e.watcher != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleWatcherEvents(ctx)
		}()
	}

	return nil
}

func (e *Engine) Stop() {
	e.wg.Wait()
	slog.Info("sync engine stop")
}

// RunFullSync performs one scan-classify-repair pass. A second concurrent
// call returns ErrSyncInProgress instead of queueing.
func (e *Engine) RunFullSync(ctx context.Context) error {
	if !e.muSync.TryLock() {
		return ErrSyncInProgress
	}
	defer e.muSync.Unlock()

	started := time.Now()

	resp, err := e.records.List(ctx, nil)
	if err != nil {
		if vaultsdk.IsUnreachable(err) {
			slog.Debug("server unreachable, skipping pass")
			return nil
		}
		return fmt.Errorf("fetch remote state: %w", err)
	}
	remoteState := make(map[string]*vaultsdk.FileRecord, len(resp.Records))
	for _, rec := range resp.Records {
		remoteState[rec.Path] = rec
	}

	// The list call answered, so the server is reachable: drain the staging
	// queue before classifying, so replayed paths settle this same pass.
	if n, err := e.staging.Len(); err == nil && n > 0 {
		result, err := e.checkout.ReplayStaged(ctx)
		if err != nil && !errors.Is(err, ErrNetworkUnavailable) {
			slog.Error("staged replay", "error", err)
		}
		if result != nil && result.Replayed+result.Conflicts > 0 {
			// The replay moved server state; the earlier snapshot is stale.
			if fresh, err := e.records.List(ctx, nil); err == nil {
				clear(remoteState)
				for _, rec := range fresh.Records {
					remoteState[rec.Path] = rec
				}
			}
		}
	}

	localState, err := e.scanner.Scan()
	if err != nil {
		return fmt.Errorf("scan local state: %w", err)
	}

	journalState, err := e.journal.GetState()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	e.validateVersions(journalState, remoteState)

	classes := e.classifier.ClassifyAll(localState, remoteState, journalState, e.staging.IsStaged)
	e.tracker.ApplyClassifications(classes)

	var updated, orphans int
	for path, cls := range classes {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch cls.Status {
		case StatusOutdatedLocal:
			// A checked-out file never reaches this branch: checkout state
			// wins over staleness in classification.
			if cls.Synced == nil {
				// Local content that never synced, colliding with a server
				// record. Those bytes are the user's only copy: set them
				// aside as a conflict before pulling the server version.
				marked, err := SetMarker(e.ws.AbsPath(path), Conflict)
				if err != nil {
					e.tracker.SetError(path, err)
					slog.Warn("conflict set-aside failed", "path", path, "error", err)
					continue
				}
				slog.Warn("kept never-synced local copy as conflict",
					"path", path, "copy", filepath.Base(marked))
			}
			if err := e.pullLatest(ctx, cls); err != nil {
				e.tracker.SetError(path, err)
				slog.Warn("auto-update failed", "path", path, "error", err)
				continue
			}
			updated++

		case StatusDeletedRemote:
			// Orphaned local copy. Surfaced, never auto-deleted.
			orphans++
		}
	}

	if updated > 0 || orphans > 0 {
		slog.Info("full sync",
			"paths", len(classes),
			"updated", updated,
			"orphans", orphans,
			"took", time.Since(started).Round(time.Millisecond),
		)
	}
	return nil
}

// pullLatest downloads the newest server content for a stale path and lands
// it atomically after an integrity check.
func (e *Engine) pullLatest(ctx context.Context, cls *Classification) error {
	rec := cls.Remote
	relPath := cls.Path

	tmpPath, err := tempDownloadPath(e.ws.StagingDir, filepath.Base(relPath))
	if err != nil {
		return err
	}

	e.tracker.SetTransferring(relPath)
	err = e.transfer.Download(ctx, &vaultsdk.DownloadJob{
		FileID:   rec.ID,
		Path:     relPath,
		Version:  rec.Version,
		DestPath: tmpPath,
	})
	if err != nil {
		os.Remove(tmpPath)
		return wrapUnreachable(err)
	}

	absPath := e.ws.AbsPath(relPath)
	if e.watcher != nil {
		e.watcher.IgnoreNext(absPath)
	}
	if err := verifyAndPlace(tmpPath, absPath, rec.ETag); err != nil {
		return err
	}
	e.scanner.Invalidate(relPath)

	entry, err := e.scanner.ScanFile(relPath)
	if err != nil {
		return err
	}
	if err := e.journal.Set(&JournalEntry{
		Path:    relPath,
		FileID:  rec.ID,
		Version: rec.Version,
		ETag:    entry.ETag,
		Size:    entry.Size,
		ModTime: entry.ModTime,
	}); err != nil {
		return err
	}

	e.tracker.SetCompleted(relPath, StatusUnmodified)
	slog.Info("updated to latest", "path", relPath, "version", rec.Version)
	return nil
}

// validateVersions enforces the record store's strictly-increasing-version
// contract on every refresh. A regression is reported loudly and the path is
// left alone; guessing which side is right is the one thing we never do.
func (e *Engine) validateVersions(journalState map[string]*JournalEntry, remoteState map[string]*vaultsdk.FileRecord) {
	for path, synced := range journalState {
		rec, ok := remoteState[path]
		if !ok {
			continue
		}
		if synced.Version > rec.Version {
			err := fmt.Errorf("%w: journal at v%d, server at v%d", ErrIntegrityMismatch, synced.Version, rec.Version)
			e.tracker.SetError(path, err)
			slog.Error("server version regressed", "path", path, "journal", synced.Version, "server", rec.Version)
		}
	}
}

// handleServerEvents reacts to pushed lock events. A force-release of our
// own checkout flips local status immediately instead of waiting a pass.
func (e *Engine) handleServerEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-e.events.Get():
			if !ok {
				return
			}
			e.handleEvent(event)
		}
	}
}

func (e *Engine) handleEvent(event *vaultsdk.Event) {
	if event.Record == nil {
		return
	}

	switch event.Type {
	case vaultsdk.EventLockForceReleased:
		slog.Warn("checkout was force-released by an administrator",
			"path", event.Record.Path, "at", event.At)
		synced, err := e.journal.GetByFileID(event.Record.ID)
		if err == nil && synced != nil {
			e.tracker.SetStatus(synced.Path, StatusOutdatedLocal)
		}

	case vaultsdk.EventRecordUpdated:
		slog.Debug("record updated", "path", event.Record.Path, "version", event.Record.Version)
	}
}

// handleWatcherEvents refreshes the fingerprint cache for files the user
// touched, so the next classification pass sees the change right away.
func (e *Engine) handleWatcherEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case absPath, ok := <-e.watcher.Events():
			if !ok {
				return
			}

			relPath, err := e.ws.RelPath(absPath)
			if err != nil || workspace.IsMetadataPath(relPath) {
				continue
			}
			e.scanner.Invalidate(relPath)
		}
	}
}
