package sync

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageOfflineCheckin checks a file out, edits it, and checks it in while
// the server is unreachable, leaving a staged operation behind. The server
// is reachable again when it returns.
func stageOfflineCheckin(t *testing.T, rig *testRig, relPath, content string) {
	t.Helper()
	ctx := context.Background()

	_, err := rig.checkout.Checkout(ctx, relPath)
	require.NoError(t, err)

	rig.writeVaultFile(t, relPath, content)
	rig.records.offline = true
	rig.transfer.offline = true

	res, err := rig.checkout.Checkin(ctx, relPath, nil)
	require.NoError(t, err)
	require.True(t, res.Staged)

	rig.records.offline = false
	rig.transfer.offline = false
}

func TestReplayStagedCheckin(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	stageOfflineCheckin(t, rig, "a.sldprt", "offline edit")

	result, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)
	assert.Zero(t, result.Conflicts)
	assert.Zero(t, result.Failed)

	// The edit landed as version 2 and the queue is empty.
	got := rig.records.get(rec.ID)
	assert.Equal(t, int64(2), got.Version)
	assert.False(t, got.IsCheckedOut())
	assert.Equal(t, []byte("offline edit"), rig.transfer.blobs[rig.transfer.key(rec.ID, 2)])

	n, err := rig.staging.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	// End state is plain unmodified, indistinguishable from an online
	// check-in.
	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusUnmodified, st.Status)
}

func TestReplayPreservesEnqueueOrder(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	recA := rig.trackRemote(t, "a.sldprt", "a v1", 1)
	recB := rig.trackRemote(t, "b.sldprt", "b v1", 1)

	stageOfflineCheckin(t, rig, "a.sldprt", "a offline")
	stageOfflineCheckin(t, rig, "b.sldprt", "b offline")

	result, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Replayed)

	assert.Equal(t, int64(2), rig.records.get(recA.ID).Version)
	assert.Equal(t, int64(2), rig.records.get(recB.ID).Version)
}

func TestReplaySnapshotWinsOverLaterEdit(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	stageOfflineCheckin(t, rig, "a.sldprt", "queued content")

	// Working copy keeps changing after staging; the replay must upload
	// the snapshot, not the live file.
	rig.writeVaultFile(t, "a.sldprt", "post-staging edit")

	_, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("queued content"), rig.transfer.blobs[rig.transfer.key(rec.ID, 2)])
}

func TestReplayStopsWhileUnreachable(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.trackRemote(t, "a.sldprt", "a v1", 1)
	rig.trackRemote(t, "b.sldprt", "b v1", 1)
	stageOfflineCheckin(t, rig, "a.sldprt", "a offline")
	stageOfflineCheckin(t, rig, "b.sldprt", "b offline")

	rig.records.offline = true
	result, err := rig.checkout.ReplayStaged(ctx)
	require.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.Zero(t, result.Replayed)

	// Everything stays queued for the next pass.
	n, err := rig.staging.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReplayConflictSurfacesMarker(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	stageOfflineCheckin(t, rig, "a.sldprt", "my offline edit")

	// While we were offline an admin force-released the lock and bob took
	// the file over.
	rig.records.setLock(rec.ID, "bob@acme.test", "machine-b", "bobs-laptop")

	result, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Replayed)
	assert.Equal(t, 1, result.Conflicts)

	// The losing edit is preserved as a conflict copy, never dropped.
	assert.True(t, ConflictCopyExists(rig.ws.AbsPath("a.sldprt")))
	files, err := os.ReadDir(rig.ws.Root)
	require.NoError(t, err)
	var conflictCopy string
	for _, f := range files {
		if IsConflictPath(f.Name()) {
			conflictCopy = f.Name()
		}
	}
	require.NotEmpty(t, conflictCopy)
	data, err := os.ReadFile(rig.ws.AbsPath(conflictCopy))
	require.NoError(t, err)
	assert.Equal(t, "my offline edit", string(data))

	// The operation left the queue and the error is on record.
	n, err := rig.staging.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Error(t, st.Error)

	// Server state untouched: bob keeps the lock, no version bump.
	got := rig.records.get(rec.ID)
	assert.Equal(t, "bob@acme.test", got.CheckedOutBy)
	assert.Equal(t, int64(1), got.Version)
}

func TestReplayStagedCreate(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	// A brand-new file checked in while offline: no record exists yet.
	rig.writeVaultFile(t, "new.sldprt", "never synced")
	rig.records.offline = true
	res, err := rig.checkout.Checkin(ctx, "new.sldprt", nil)
	require.NoError(t, err)
	require.True(t, res.Staged)
	rig.records.offline = false

	ops, err := rig.staging.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, StagedCreate, ops[0].Op)

	result, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)

	// Record created, content pushed as version 1, journal tracking it.
	synced, err := rig.journal.Get("new.sldprt")
	require.NoError(t, err)
	require.NotNil(t, synced)
	assert.Equal(t, int64(1), synced.Version)
	assert.Equal(t, []byte("never synced"), rig.transfer.blobs[rig.transfer.key(synced.FileID, 1)])
}

func TestReplayStagedDelete(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)

	rig.records.offline = true
	require.NoError(t, rig.checkout.Delete(ctx, "a.sldprt", false))
	rig.records.offline = false

	result, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)

	assert.True(t, rig.records.get(rec.ID).Deleted)
	synced, err := rig.journal.Get("a.sldprt")
	require.NoError(t, err)
	assert.Nil(t, synced)
}

func TestReplayFailureKeepsOperation(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.trackRemote(t, "a.sldprt", "v1", 1)
	stageOfflineCheckin(t, rig, "a.sldprt", "offline edit")

	// The server answers but rejects the mutation. Not a conflict and not
	// unreachability, so the operation stays queued with the attempt
	// recorded.
	rig.records.failPaths["a.sldprt"] = true

	result, err := rig.checkout.ReplayStaged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	ops, err := rig.staging.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.NotEmpty(t, ops[0].LastError)
}
