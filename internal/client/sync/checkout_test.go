package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partvault/partvault/internal/utils"
)

func TestCheckoutAcquiresLock(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "parts/bracket.sldprt", "v1 content", 1)

	got, err := rig.checkout.Checkout(ctx, "parts/bracket.sldprt")
	require.NoError(t, err)
	assert.Equal(t, testUser, got.CheckedOutBy)
	assert.Equal(t, utils.HWID, got.CheckedOutByMachineID)

	// Server state agrees.
	assert.True(t, rig.records.get(rec.ID).IsCheckedOut())

	st, ok := rig.tracker.GetStatus("parts/bracket.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusCheckedOutByMe, st.Status)
}

func TestCheckoutIdempotentOnOwnLock(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.trackRemote(t, "a.sldprt", "content", 1)
	_, err := rig.checkout.Checkout(ctx, "a.sldprt")
	require.NoError(t, err)

	// Checking out a file we already hold on this machine is a no-op.
	_, err = rig.checkout.Checkout(ctx, "a.sldprt")
	require.NoError(t, err)
}

func TestCheckoutLockConflict(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.setLock(rec.ID, "bob@acme.test", "machine-b", "bobs-laptop")

	_, err := rig.checkout.Checkout(ctx, "a.sldprt")
	require.ErrorIs(t, err, ErrLockConflict)

	// The refusal names the holder.
	var lce *LockConflictError
	require.ErrorAs(t, err, &lce)
	assert.Equal(t, "bob@acme.test", lce.Holder)
	assert.Equal(t, "bobs-laptop", lce.MachineName)
}

func TestCheckoutMutualExclusion(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)

	// Two managers for two different users racing for the same file.
	other := NewCheckoutManager(rig.ws, rig.records, rig.presence, rig.transfer,
		rig.journal, rig.staging, rig.tracker, rig.scanner, "bob@acme.test")

	_, err := other.Checkout(ctx, "a.sldprt")
	require.NoError(t, err)

	// Exactly one winner; the loser gets a conflict, not a shared lock.
	_, err = rig.checkout.Checkout(ctx, "a.sldprt")
	require.ErrorIs(t, err, ErrLockConflict)
	assert.Equal(t, "bob@acme.test", rig.records.get(rec.ID).CheckedOutBy)
}

func TestCheckinBumpsVersionAndReleases(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	_, err := rig.checkout.Checkout(ctx, "a.sldprt")
	require.NoError(t, err)

	newETag := rig.writeVaultFile(t, "a.sldprt", "v2 content")

	res, err := rig.checkout.Checkin(ctx, "a.sldprt", nil)
	require.NoError(t, err)
	require.False(t, res.Staged)
	assert.Equal(t, int64(2), res.Record.Version)
	assert.False(t, res.Record.IsCheckedOut())

	// Journal advanced to the new version.
	synced, err := rig.journal.Get("a.sldprt")
	require.NoError(t, err)
	require.NotNil(t, synced)
	assert.Equal(t, int64(2), synced.Version)
	assert.Equal(t, newETag, synced.ETag)

	// Content landed in the blob store.
	assert.Equal(t, []byte("v2 content"), rig.transfer.blobs[rig.transfer.key(rec.ID, 2)])

	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusUnmodified, st.Status)
}

func TestCheckinWithoutLock(t *testing.T) {
	rig := newTestRig(t)
	rig.trackRemote(t, "a.sldprt", "content", 1)

	_, err := rig.checkout.Checkin(context.Background(), "a.sldprt", nil)
	require.ErrorIs(t, err, ErrNotCheckedOut)
}

func TestCheckinCrossMachine(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	// Our own lock, held from the workstation at the office.
	rig.records.setLock(rec.ID, testUser, "machine-b", "office-ws")
	rig.writeVaultFile(t, "a.sldprt", "edited at home")

	// Plain check-in refuses: the lock lives elsewhere.
	_, err := rig.checkout.Checkin(ctx, "a.sldprt", nil)
	require.ErrorIs(t, err, ErrCrossMachineCheckin)

	// Force while the office machine is online refuses too: it may have
	// unsaved work.
	rig.presence.online["machine-b"] = true
	_, err = rig.checkout.Checkin(ctx, "a.sldprt", &CheckinOpts{Force: true})
	require.ErrorIs(t, err, ErrMachineOnline)
	assert.True(t, rig.records.get(rec.ID).IsCheckedOut(), "lock must survive a refused force")

	// Once the office machine goes offline the force goes through.
	rig.presence.online["machine-b"] = false
	res, err := rig.checkout.Checkin(ctx, "a.sldprt", &CheckinOpts{Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Record.Version)
	assert.False(t, res.Record.IsCheckedOut())
}

func TestCheckinAdminOverrideSkipsPresence(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.setLock(rec.ID, testUser, "machine-b", "office-ws")
	rig.presence.online["machine-b"] = true
	rig.writeVaultFile(t, "a.sldprt", "edited")

	res, err := rig.checkout.Checkin(ctx, "a.sldprt", &CheckinOpts{Force: true, AdminOverride: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Record.Version)
}

func TestCheckinOtherUsersLock(t *testing.T) {
	rig := newTestRig(t)
	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.setLock(rec.ID, "bob@acme.test", "machine-b", "bobs-laptop")

	_, err := rig.checkout.Checkin(context.Background(), "a.sldprt", &CheckinOpts{Force: true})
	require.ErrorIs(t, err, ErrLockConflict)
}

func TestCheckinStagesWhenUnreachable(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	_, err := rig.checkout.Checkout(ctx, "a.sldprt")
	require.NoError(t, err)

	rig.writeVaultFile(t, "a.sldprt", "offline edit")
	rig.records.offline = true

	res, err := rig.checkout.Checkin(ctx, "a.sldprt", nil)
	require.NoError(t, err)
	assert.True(t, res.Staged)
	assert.Nil(t, res.Record)

	ops, err := rig.staging.List()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, StagedCheckin, ops[0].Op)
	assert.Equal(t, "a.sldprt", ops[0].Path)

	st, ok := rig.tracker.GetStatus("a.sldprt")
	require.True(t, ok)
	assert.Equal(t, StatusStagedForCheckin, st.Status)
}

func TestForceRelease(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.setLock(rec.ID, "bob@acme.test", "machine-b", "bobs-laptop")

	updated, err := rig.checkout.ForceRelease(ctx, "a.sldprt")
	require.NoError(t, err)
	assert.False(t, updated.IsCheckedOut())

	// Idempotent on an unlocked file.
	_, err = rig.checkout.ForceRelease(ctx, "a.sldprt")
	require.NoError(t, err)
}

func TestDiscardRevertsContent(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "v1 content", 1)
	_, err := rig.checkout.Checkout(ctx, "a.sldprt")
	require.NoError(t, err)

	rig.writeVaultFile(t, "a.sldprt", "abandoned edit")

	require.NoError(t, rig.checkout.Discard(ctx, "a.sldprt"))

	// Working copy is back at the last-synced version, lock released, no
	// version bump.
	assert.Equal(t, "v1 content", readVaultFile(t, rig.ws, "a.sldprt"))
	got := rig.records.get(rec.ID)
	assert.False(t, got.IsCheckedOut())
	assert.Equal(t, int64(1), got.Version)
}

func TestDiscardWithoutLock(t *testing.T) {
	rig := newTestRig(t)
	rig.trackRemote(t, "a.sldprt", "content", 1)

	err := rig.checkout.Discard(context.Background(), "a.sldprt")
	require.ErrorIs(t, err, ErrNotCheckedOut)
}

func TestDeleteTombstones(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rec := rig.trackRemote(t, "a.sldprt", "content", 1)

	require.NoError(t, rig.checkout.Delete(ctx, "a.sldprt", true))

	assert.True(t, rig.records.get(rec.ID).Deleted)
	requireNoFile(t, rig.ws.AbsPath("a.sldprt"))

	synced, err := rig.journal.Get("a.sldprt")
	require.NoError(t, err)
	assert.Nil(t, synced)
}

func TestDeleteRefusedWhileLocked(t *testing.T) {
	rig := newTestRig(t)
	rec := rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.setLock(rec.ID, "bob@acme.test", "machine-b", "bobs-laptop")

	err := rig.checkout.Delete(context.Background(), "a.sldprt", false)
	require.ErrorIs(t, err, ErrLockConflict)
	assert.False(t, rig.records.get(rec.ID).Deleted)
}

func TestCheckoutUnreachable(t *testing.T) {
	rig := newTestRig(t)
	rig.trackRemote(t, "a.sldprt", "content", 1)
	rig.records.offline = true

	_, err := rig.checkout.Checkout(context.Background(), "a.sldprt")
	require.ErrorIs(t, err, ErrNetworkUnavailable)
}
