package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(rig *testRig) *Engine {
	classifier := NewClassifier(testUser, "machine-a")
	return NewEngine(rig.ws, rig.records, nil, rig.transfer, rig.scanner,
		rig.journal, rig.staging, classifier, rig.checkout, rig.tracker, nil, testUser)
}

func TestFullSyncPullsOutdated(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	// Synced at v1; the server has since moved to v2.
	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	newContent := []byte("v2 content")
	rig.transfer.put(rec.ID, 2, newContent)
	rig.records.records[rec.ID].Version = 2
	rig.records.records[rec.ID].ETag = md5Hex(newContent)

	require.NoError(t, e.RunFullSync(ctx))

	// Working copy updated in place, journal advanced.
	assert.Equal(t, "v2 content", readVaultFile(t, rig.ws, "a.sldprt"))
	synced, err := rig.journal.Get("a.sldprt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), synced.Version)

	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusUnmodified, st.Status)
}

func TestFullSyncKeepsNeverSyncedLocalAsConflict(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	// Local content that never synced, colliding with a server record at
	// the same path. The pass pulls the server copy, but the local bytes
	// are the user's only copy and must survive as a conflict copy.
	rig.writeVaultFile(t, "a.sldprt", "precious local edits")
	serverContent := []byte("server copy")
	rec := rig.records.add("a.sldprt", 3, md5Hex(serverContent))
	rig.transfer.put(rec.ID, 3, serverContent)

	require.NoError(t, e.RunFullSync(ctx))

	assert.Equal(t, "server copy", readVaultFile(t, rig.ws, "a.sldprt"))
	assert.Equal(t, "precious local edits", readVaultFile(t, rig.ws, "a.conflict.sldprt"))
	synced, err := rig.journal.Get("a.sldprt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), synced.Version)
}

func TestFullSyncLeavesCheckedOutAlone(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	// Bob holds the lock and the server is ahead. The local copy must not
	// be touched while anyone has the file checked out.
	rec := rig.trackRemote(t, "a.sldprt", "my v1 copy", 1)
	rig.transfer.put(rec.ID, 2, []byte("bobs v2"))
	rig.records.records[rec.ID].Version = 2
	rig.records.setLock(rec.ID, "bob@acme.test", "machine-b", "bobs-laptop")

	require.NoError(t, e.RunFullSync(ctx))

	assert.Equal(t, "my v1 copy", readVaultFile(t, rig.ws, "a.sldprt"))
	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusCheckedOutByOther, st.Status)
}

func TestFullSyncNeverDeletesOrphans(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.records[rec.ID].Deleted = true

	require.NoError(t, e.RunFullSync(ctx))

	// Surfaced as deletedRemote, local copy untouched.
	require.FileExists(t, rig.ws.AbsPath("a.sldprt"))
	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusDeletedRemote, st.Status)
}

func TestFullSyncSkipsWhileUnreachable(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)

	rig.records.offline = true

	// An unreachable server is a skipped pass, not a failure.
	require.NoError(t, e.RunFullSync(context.Background()))
}

func TestFullSyncSerialized(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)

	e.muSync.Lock()
	defer e.muSync.Unlock()

	err := e.RunFullSync(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)
}

func TestFullSyncDrainsStagedQueue(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	stageOfflineCheckin(t, rig, "a.sldprt", "offline edit")

	// The server answers again: the very next pass replays the queue and
	// the path settles in the same pass.
	require.NoError(t, e.RunFullSync(ctx))

	n, err := rig.staging.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(2), rig.records.get(rec.ID).Version)

	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusUnmodified, st.Status)
}

func TestFullSyncFlagsVersionRegression(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 5)
	rig.records.records[rec.ID].Version = 2

	require.NoError(t, e.RunFullSync(ctx))

	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	require.Error(t, st.Error)
	assert.ErrorIs(t, st.Error, ErrIntegrityMismatch)
}

func TestFullSyncRejectsCorruptDownload(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)
	ctx := context.Background()

	// Server claims an etag the blob content does not hash to.
	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	rig.transfer.put(rec.ID, 2, []byte("tampered"))
	rig.records.records[rec.ID].Version = 2
	rig.records.records[rec.ID].ETag = "bogus-etag"

	require.NoError(t, e.RunFullSync(ctx))

	// The corrupt download never replaced the working copy.
	assert.Equal(t, "v1 content", readVaultFile(t, rig.ws, "a.sldprt"))
	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	require.Error(t, st.Error)
	assert.ErrorIs(t, st.Error, ErrIntegrityMismatch)
}

func TestEngineStartStop(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(rig)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))

	done := make(chan struct{})
	go func() {
		cancel()
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}
