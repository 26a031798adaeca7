package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/partvault/partvault/internal/queue"
	"github.com/partvault/partvault/internal/vaultsdk"
)

// resyncWorkers bounds concurrent re-uploads during a repair pass.
const resyncWorkers = 4

var (
	// ErrPartialBatchFailure means some items of a batch failed. Per-item
	// failures ride along; the batch never rolls back its successes.
	ErrPartialBatchFailure = errors.New("some files failed to resync")
)

// ScanProgress is emitted while the reconciler walks the vault. Produced
// unconditionally, whether or not anyone listens.
type ScanProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// ScanProgressFunc receives incremental scan progress.
type ScanProgressFunc func(p ScanProgress)

// ResyncProgress is emitted per file during a repair pass.
type ResyncProgress struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	FileName string `json:"fileName"`
}

// ResyncProgressFunc receives incremental resync progress.
type ResyncProgressFunc func(p ResyncProgress)

// VerifyReport partitions every vault path after a full classification pass.
type VerifyReport struct {
	Total          int      `json:"total"`
	SyncedCount    int      `json:"syncedCount"`
	NeedsReupload  []string `json:"needsReupload"`
	Outdated       []string `json:"outdated"`
	MissingLocally []string `json:"missingLocally"`
	DeletedRemote  []string `json:"deletedRemote"`
	CheckedOut     []string `json:"checkedOut"`
	Staged         []string `json:"staged"`

	// VersionRegressions lists paths where the journal claims a version
	// newer than the server's. The record store promises strictly
	// increasing per-file versions, so this is validated, never assumed.
	VersionRegressions []string `json:"versionRegressions,omitempty"`
}

// FileFailure is one failed item of a resync batch, kept for caller retry.
type FileFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ResyncResult is the terminal outcome of a repair batch.
type ResyncResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []FileFailure `json:"failures,omitempty"`
}

// Reconciler runs the one-shot vault health scan used after upgrades,
// outages or suspected desync, and drives the batch repair it recommends.
type Reconciler struct {
	scanner    *LocalScanner
	records    RecordService
	journal    *Journal
	classifier *Classifier
	checkout   *CheckoutManager
	staging    *StagingQueue
	tracker    *StatusTracker
	settings   *VaultSettings
}

func NewReconciler(
	scanner *LocalScanner,
	records RecordService,
	journal *Journal,
	classifier *Classifier,
	checkout *CheckoutManager,
	staging *StagingQueue,
	tracker *StatusTracker,
	settings *VaultSettings,
) *Reconciler {
	if settings == nil {
		settings = &VaultSettings{}
	}
	return &Reconciler{
		scanner:    scanner,
		records:    records,
		journal:    journal,
		classifier: classifier,
		checkout:   checkout,
		staging:    staging,
		tracker:    tracker,
		settings:   settings,
	}
}

// Verify enumerates all local entries and all remote records, classifies
// every path, and partitions the result into a repair plan. Progress fires
// per path so a scan over tens of thousands of entries never looks frozen.
func (r *Reconciler) Verify(ctx context.Context, progress ScanProgressFunc) (*VerifyReport, error) {
	if progress == nil {
		progress = func(ScanProgress) {}
	}

	started := time.Now()
	progress(ScanProgress{Message: "scanning working tree"})

	localState, err := r.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	progress(ScanProgress{Message: "fetching vault records"})
	resp, err := r.records.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", wrapUnreachable(err))
	}
	remoteState := make(map[string]*vaultsdk.FileRecord, len(resp.Records))
	for _, rec := range resp.Records {
		remoteState[rec.Path] = rec
	}

	journalState, err := r.journal.GetState()
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	stagedPaths, err := r.staging.Paths()
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	classes := r.classifier.ClassifyAll(localState, remoteState, journalState, func(p string) bool {
		_, ok := stagedPaths[p]
		return ok
	})

	report := &VerifyReport{Total: len(classes)}

	paths := make([]string, 0, len(classes))
	for p := range classes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cls := classes[path]
		progress(ScanProgress{
			Current: i + 1,
			Total:   len(paths),
			Message: "checking " + path,
		})

		if cls.Synced != nil && cls.Remote != nil && cls.Synced.Version > cls.Remote.Version {
			// Server versions only ever move forward; a journal ahead of
			// the server means one side is corrupt and we refuse to guess.
			report.VersionRegressions = append(report.VersionRegressions, path)
			slog.Error("version regression detected", "path", path, "journal", cls.Synced.Version, "server", cls.Remote.Version)
			continue
		}

		switch cls.Status {
		case StatusUnmodified:
			// Edits outside a checkout keep the synced version but move
			// the fingerprint. Those are reupload candidates, not healthy.
			if locallyModified(cls) {
				report.NeedsReupload = append(report.NeedsReupload, path)
			} else {
				report.SyncedCount++
			}

		case StatusAdded:
			report.NeedsReupload = append(report.NeedsReupload, path)

		case StatusOutdatedLocal:
			report.Outdated = append(report.Outdated, path)

		case StatusDeletedRemote:
			report.DeletedRemote = append(report.DeletedRemote, path)

		case StatusCheckedOutByMe, StatusCheckedOutByOther:
			report.CheckedOut = append(report.CheckedOut, path)

		case StatusStagedForCheckin:
			report.Staged = append(report.Staged, path)

		case StatusNone:
			if cls.MissingLocally() {
				// A live server copy with no local counterpart is missing
				// locally, never a reupload candidate.
				report.MissingLocally = append(report.MissingLocally, path)
			}
		}
	}

	progress(ScanProgress{Current: len(paths), Total: len(paths), Message: "scan complete"})
	slog.Info("vault verify",
		"total", report.Total,
		"synced", report.SyncedCount,
		"reupload", len(report.NeedsReupload),
		"outdated", len(report.Outdated),
		"missingLocally", len(report.MissingLocally),
		"took", time.Since(started).Round(time.Millisecond),
	)
	return report, nil
}

// locallyModified reports whether the working copy's fingerprint moved away
// from the last-synced one while the server stayed at the synced version.
func locallyModified(cls *Classification) bool {
	if cls.Local == nil || cls.Synced == nil {
		return false
	}
	if cls.Remote != nil && cls.Remote.Version > cls.Synced.Version {
		return false
	}
	return cls.Local.ETag != cls.Synced.ETag
}

// ResyncFiles re-uploads each flagged file independently. Files matching a
// priority glob go first, the rest smallest-first so quick wins surface
// early. A bounded worker pool processes the batch; a failure never aborts
// it or rolls back its siblings. Cancellation is cooperative between files,
// never mid-transfer.
func (r *Reconciler) ResyncFiles(ctx context.Context, paths []string, progress ResyncProgressFunc) (*ResyncResult, error) {
	if progress == nil {
		progress = func(ResyncProgress) {}
	}

	pq := queue.NewPriorityQueue[*LocalEntry]()
	var missing []FileFailure
	for _, path := range paths {
		entry, err := r.scanner.ScanFile(path)
		if err != nil {
			missing = append(missing, FileFailure{Path: path, Error: err.Error()})
			continue
		}
		prio := int(entry.Size / 1024)
		if r.settings.IsPriority(path) {
			// Priority files jump the size ordering entirely.
			prio = -1
		}
		pq.Enqueue(entry, prio)
	}
	ordered := pq.DequeueAll()

	total := len(ordered) + len(missing)
	result := &ResyncResult{Failed: len(missing), Failures: missing}

	type itemOutcome struct {
		path string
		err  error
	}
	outcomes := make(chan itemOutcome, len(ordered))

	// Progress reports completed transfers, so the collector runs
	// alongside the workers instead of after them.
	var collect gosync.WaitGroup
	collect.Add(1)
	go func() {
		defer collect.Done()
		done := 0
		for o := range outcomes {
			done++
			progress(ResyncProgress{Current: done, Total: total, FileName: o.path})
			if o.err != nil {
				result.Failed++
				result.Failures = append(result.Failures, FileFailure{Path: o.path, Error: o.err.Error()})
				slog.Warn("resync failed", "path", o.path, "error", o.err)
			} else {
				result.Succeeded++
			}
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(resyncWorkers)

	for _, entry := range ordered {
		entry := entry
		if err := ctx.Err(); err != nil {
			// Cancelled between files: pending files keep their status.
			break
		}

		slog.Debug("resync", "path", entry.Path, "size", humanize.Bytes(uint64(entry.Size)))

		eg.Go(func() error {
			err := r.resyncOne(egCtx, entry.Path)
			outcomes <- itemOutcome{path: entry.Path, err: err}
			// Per-item errors are collected, not propagated: the batch
			// continues past individual failures.
			return nil
		})
	}

	_ = eg.Wait()
	close(outcomes)
	collect.Wait()

	slog.Info("resync done", "succeeded", result.Succeeded, "failed", result.Failed)

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d of %d", ErrPartialBatchFailure, result.Failed, total)
	}
	return result, nil
}

// PullFiles downloads the current server copy for each flagged path and
// records it as synced. Outdated and missing-local files are repaired this
// way; re-uploading them would push stale content over a newer server
// version. Priority files download first.
func (r *Reconciler) PullFiles(ctx context.Context, paths []string, progress ResyncProgressFunc) (*ResyncResult, error) {
	if progress == nil {
		progress = func(ResyncProgress) {}
	}

	ordered := make([]string, 0, len(paths))
	deferred := make([]string, 0, len(paths))
	for _, path := range paths {
		if r.settings.IsPriority(path) {
			ordered = append(ordered, path)
		} else {
			deferred = append(deferred, path)
		}
	}
	ordered = append(ordered, deferred...)

	result := &ResyncResult{}
	for i, path := range ordered {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := r.checkout.PullLatest(ctx, path); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, FileFailure{Path: path, Error: err.Error()})
			slog.Warn("pull failed", "path", path, "error", err)
		} else {
			result.Succeeded++
		}
		progress(ResyncProgress{Current: i + 1, Total: len(ordered), FileName: path})
	}

	slog.Info("pull done", "succeeded", result.Succeeded, "failed", result.Failed)

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d of %d", ErrPartialBatchFailure, result.Failed, len(ordered))
	}
	return result, nil
}

// resyncOne pushes one flagged file: local-only files are registered and
// uploaded, known files go through a regular checkout and check-in. Files
// locked elsewhere are reported, never forced.
func (r *Reconciler) resyncOne(ctx context.Context, relPath string) error {
	_, err := r.checkout.resolveRecord(ctx, relPath)
	switch {
	case err == nil:
		if _, err := r.checkout.Checkout(ctx, relPath); err != nil {
			return err
		}
		_, err := r.checkout.Checkin(ctx, relPath, nil)
		return err

	case errors.Is(err, vaultsdk.ErrFileNotFound):
		// No record for this path: first upload.
		_, err := r.checkout.registerAndPush(ctx, relPath, r.checkout.ws.AbsPath(relPath))
		if err != nil {
			return wrapUnreachable(err)
		}
		r.tracker.SetCompleted(relPath, StatusUnmodified)
		return nil

	default:
		return wrapUnreachable(err)
	}
}
