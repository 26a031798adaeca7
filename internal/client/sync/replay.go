package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ReplayResult summarizes one replay pass over the staging queue.
type ReplayResult struct {
	Replayed  int `json:"replayed"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

// ReplayStaged pushes every staged operation through the normal check-in
// path, strictly in enqueue order so the user's own earlier edit is never
// clobbered by their later one applied out of order.
//
// An operation that now conflicts (the lock was force-released and re-taken
// while offline, or the record moved past our base version) is not dropped:
// its snapshot lands next to the working copy as a conflict marker and the
// operation leaves the queue for the user to resolve. Unreachability stops
// the pass and keeps the remaining queue intact for the next probe.
func (m *CheckoutManager) ReplayStaged(ctx context.Context) (*ReplayResult, error) {
	ops, err := m.staging.List()
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		err := m.replayOne(ctx, op)
		switch {
		case err == nil:
			result.Replayed++

		case errors.Is(err, ErrNetworkUnavailable):
			// Still offline. Leave this and everything after it queued.
			slog.Info("replay paused, server unreachable", "remaining", len(ops)-result.Replayed-result.Conflicts-result.Failed)
			return result, err

		case errors.Is(err, ErrLockConflict) || errors.Is(err, ErrCrossMachineCheckin) || errors.Is(err, ErrMachineOnline):
			if err := m.surfaceReplayConflict(op, err); err != nil {
				return result, err
			}
			result.Conflicts++

		default:
			result.Failed++
			if err := m.staging.MarkAttempt(op.ID, err); err != nil {
				return result, err
			}
			slog.Warn("staged replay failed", "op", op.Op, "path", op.Path, "attempts", op.Attempts+1, "error", err)
		}
	}

	if result.Replayed > 0 || result.Conflicts > 0 {
		slog.Info("staged replay done", "replayed", result.Replayed, "conflicts", result.Conflicts, "failed", result.Failed)
	}
	return result, nil
}

func (m *CheckoutManager) replayOne(ctx context.Context, op *StagedOperation) error {
	switch op.Op {
	case StagedCheckin:
		res, err := m.Checkin(ctx, op.Path, &CheckinOpts{
			Force:       op.Force,
			ContentPath: op.Snapshot,
		})
		if err != nil {
			return err
		}
		if res.Staged {
			// Checkin re-staged itself, meaning we raced the connectivity
			// probe. Report unreachable so the pass stops cleanly; the
			// fresh row supersedes this one.
			if err := m.staging.Remove(op); err != nil {
				return err
			}
			return ErrNetworkUnavailable
		}
		return m.staging.Remove(op)

	case StagedCreate:
		if _, err := m.registerAndPush(ctx, op.Path, op.Snapshot); err != nil {
			return wrapUnreachable(err)
		}
		return m.staging.Remove(op)

	case StagedDelete:
		if op.FileID == "" {
			// Never synced and deleted while offline: nothing to tell the
			// server about.
			return m.staging.Remove(op)
		}
		if err := m.records.MarkDeleted(ctx, op.FileID); err != nil {
			return wrapUnreachable(err)
		}
		if err := m.journal.Delete(op.Path); err != nil {
			return err
		}
		return m.staging.Remove(op)

	default:
		return fmt.Errorf("unknown staged operation %d for %s", op.Op, op.Path)
	}
}

// surfaceReplayConflict converts a losing staged operation into a conflict
// marker next to the working copy, then removes it from the queue. The
// snapshot content is preserved; nothing is silently discarded.
func (m *CheckoutManager) surfaceReplayConflict(op *StagedOperation, cause error) error {
	if op.Snapshot != "" {
		marked, err := PlaceMarkerCopy(op.Snapshot, m.ws.AbsPath(op.Path), Conflict)
		if err != nil {
			return fmt.Errorf("surface replay conflict for %s: %w", op.Path, err)
		}
		slog.Warn("staged check-in lost, conflict copy placed", "path", op.Path, "copy", marked, "cause", cause)
	} else {
		slog.Warn("staged operation lost", "op", op.Op, "path", op.Path, "cause", cause)
	}

	m.tracker.SetError(op.Path, cause)
	return m.staging.Remove(op)
}
