package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	gosync "sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/vaultsdk"
)

// fakeRecords is an in-memory record store with the same compare-and-set
// checkout semantics the real server promises.
type fakeRecords struct {
	mu      gosync.Mutex
	records map[string]*vaultsdk.FileRecord
	content map[string][]byte // contentRef -> bytes

	offline   bool
	failPaths map[string]bool // paths whose mutations fail hard
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		records:   make(map[string]*vaultsdk.FileRecord),
		content:   make(map[string][]byte),
		failPaths: make(map[string]bool),
	}
}

func (f *fakeRecords) add(path string, version int64, etag string) *vaultsdk.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &vaultsdk.FileRecord{
		ID:      uuid.NewString(),
		Path:    path,
		Version: version,
		ETag:    etag,
	}
	f.records[rec.ID] = rec
	return rec
}

func (f *fakeRecords) setLock(id, user, machineID, machineName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	rec.CheckedOutBy = user
	rec.CheckedOutByMachineID = machineID
	rec.CheckedOutByMachineName = machineName
}

func (f *fakeRecords) get(id string) *vaultsdk.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.records[id]
	return &cp
}

func (f *fakeRecords) unreachable() error {
	return &vaultsdk.TransportError{Op: "fake", Err: fmt.Errorf("connection refused")}
}

func (f *fakeRecords) List(ctx context.Context, params *vaultsdk.ListRecordsParams) (*vaultsdk.ListRecordsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, f.unreachable()
	}

	resp := &vaultsdk.ListRecordsResponse{}
	for _, rec := range f.records {
		cp := *rec
		resp.Records = append(resp.Records, &cp)
	}
	return resp, nil
}

func (f *fakeRecords) Get(ctx context.Context, fileID string) (*vaultsdk.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, f.unreachable()
	}
	rec, ok := f.records[fileID]
	if !ok {
		return nil, fmt.Errorf("records get: %w", vaultsdk.NewAPIError(vaultsdk.CodeRecordNotFound, "no such record"))
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Create(ctx context.Context, params *vaultsdk.CreateRecordParams) (*vaultsdk.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, f.unreachable()
	}
	if f.failPaths[params.Path] {
		return nil, vaultsdk.NewAPIError(vaultsdk.CodeInternalError, "induced failure")
	}
	rec := &vaultsdk.FileRecord{
		ID:      uuid.NewString(),
		Path:    params.Path,
		Version: 0,
		Size:    params.Size,
		ETag:    params.ETag,
	}
	f.records[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Checkout(ctx context.Context, fileID string, params *vaultsdk.CheckoutParams) (*vaultsdk.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, f.unreachable()
	}
	rec, ok := f.records[fileID]
	if !ok {
		return nil, vaultsdk.NewAPIError(vaultsdk.CodeRecordNotFound, "no such record")
	}
	// compare-and-set: only an unlocked record can be taken
	if rec.IsCheckedOut() && !(rec.CheckedOutBy == params.User && rec.CheckedOutByMachineID == params.MachineID) {
		return nil, fmt.Errorf("records checkout: %w", vaultsdk.NewAPIError(vaultsdk.CodeLockConflict, "already checked out"))
	}
	rec.CheckedOutBy = params.User
	rec.CheckedOutByMachineID = params.MachineID
	rec.CheckedOutByMachineName = params.MachineName
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Checkin(ctx context.Context, fileID string, params *vaultsdk.CheckinParams) (*vaultsdk.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, f.unreachable()
	}
	rec, ok := f.records[fileID]
	if !ok {
		return nil, vaultsdk.NewAPIError(vaultsdk.CodeRecordNotFound, "no such record")
	}
	if f.failPaths[rec.Path] {
		return nil, vaultsdk.NewAPIError(vaultsdk.CodeInternalError, "induced failure")
	}
	if params.NewVersion != rec.Version+1 {
		return nil, fmt.Errorf("records checkin: %w", vaultsdk.NewAPIError(vaultsdk.CodeVersionConflict, "stale version"))
	}
	rec.Version = params.NewVersion
	rec.Size = params.Size
	rec.ETag = params.ETag
	rec.CheckedOutBy = ""
	rec.CheckedOutByMachineID = ""
	rec.CheckedOutByMachineName = ""
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Release(ctx context.Context, fileID string) (*vaultsdk.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, f.unreachable()
	}
	rec := f.records[fileID]
	rec.CheckedOutBy = ""
	rec.CheckedOutByMachineID = ""
	rec.CheckedOutByMachineName = ""
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) ForceRelease(ctx context.Context, fileID string) (*vaultsdk.FileRecord, error) {
	return f.Release(ctx, fileID)
}

func (f *fakeRecords) MarkDeleted(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return f.unreachable()
	}
	rec, ok := f.records[fileID]
	if !ok {
		return vaultsdk.NewAPIError(vaultsdk.CodeRecordNotFound, "no such record")
	}
	rec.Deleted = true
	return nil
}

var _ RecordService = (*fakeRecords)(nil)

// fakePresence answers machine-presence queries from a fixed table.
type fakePresence struct {
	online map[string]bool
	err    error
}

func (f *fakePresence) IsMachineOnline(ctx context.Context, user, machineID string) (*vaultsdk.PresenceResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &vaultsdk.PresenceResponse{Online: f.online[machineID]}, nil
}

var _ PresenceService = (*fakePresence)(nil)

// fakeTransfer stores uploads in memory and serves downloads from them,
// keyed by (fileID, version).
type fakeTransfer struct {
	mu      gosync.Mutex
	blobs   map[string][]byte
	offline bool
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{blobs: make(map[string][]byte)}
}

func (f *fakeTransfer) key(fileID string, version int64) string {
	return fmt.Sprintf("%s/v%d", fileID, version)
}

func (f *fakeTransfer) put(fileID string, version int64, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[f.key(fileID, version)] = content
}

func (f *fakeTransfer) Upload(ctx context.Context, job *vaultsdk.UploadJob) (*vaultsdk.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, &vaultsdk.TransportError{Op: "upload", Err: fmt.Errorf("connection refused")}
	}
	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		return nil, err
	}
	key := f.key(job.FileID, job.Version)
	f.blobs[key] = data
	return &vaultsdk.UploadResult{ContentRef: key, ETag: job.ETag}, nil
}

func (f *fakeTransfer) Download(ctx context.Context, job *vaultsdk.DownloadJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return &vaultsdk.TransportError{Op: "download", Err: fmt.Errorf("connection refused")}
	}
	data, ok := f.blobs[f.key(job.FileID, job.Version)]
	if !ok {
		return vaultsdk.ErrFileNotFound
	}
	return os.WriteFile(job.DestPath, data, 0o644)
}

var _ vaultsdk.Transfer = (*fakeTransfer)(nil)

// testRig wires a full sync stack against a temp vault and in-memory
// remote services.
type testRig struct {
	ws       *workspace.Workspace
	records  *fakeRecords
	presence *fakePresence
	transfer *fakeTransfer
	scanner  *LocalScanner
	journal  *Journal
	staging  *StagingQueue
	tracker  *StatusTracker
	checkout *CheckoutManager
}

const testUser = "alice@acme.test"

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	root := t.TempDir()
	ws, err := workspace.NewWorkspace(root, testUser)
	require.NoError(t, err)
	require.NoError(t, ws.Setup())
	t.Cleanup(func() { _ = ws.Unlock() })

	journal := NewJournal(ws.JournalPath)
	require.NoError(t, journal.Open())
	t.Cleanup(func() { _ = journal.Close() })

	staging := NewStagingQueue(ws.StagingPath, ws.StagingDir)
	require.NoError(t, staging.Open())
	t.Cleanup(func() { _ = staging.Close() })

	ignore := NewIgnoreList(ws.Root)
	scanner, err := NewLocalScanner(ws, ignore)
	require.NoError(t, err)

	records := newFakeRecords()
	presence := &fakePresence{online: make(map[string]bool)}
	transfer := newFakeTransfer()
	tracker := NewStatusTracker()
	t.Cleanup(tracker.Close)

	checkout := NewCheckoutManager(ws, records, presence, transfer, journal, staging, tracker, scanner, testUser)

	return &testRig{
		ws:       ws,
		records:  records,
		presence: presence,
		transfer: transfer,
		scanner:  scanner,
		journal:  journal,
		staging:  staging,
		tracker:  tracker,
		checkout: checkout,
	}
}

// writeVaultFile creates a file in the working tree and returns its etag.
func (r *testRig) writeVaultFile(t *testing.T, relPath, content string) string {
	t.Helper()
	absPath := r.ws.AbsPath(relPath)
	require.NoError(t, utils.EnsureParent(absPath))
	require.NoError(t, os.WriteFile(absPath, []byte(content), 0o644))
	r.scanner.Invalidate(relPath)

	etag, err := utils.FileMD5(absPath)
	require.NoError(t, err)
	return etag
}

// trackRemote registers a record plus matching journal entry and blob, as if
// the file had synced cleanly before.
func (r *testRig) trackRemote(t *testing.T, relPath, content string, version int64) *vaultsdk.FileRecord {
	t.Helper()
	etag := r.writeVaultFile(t, relPath, content)
	rec := r.records.add(relPath, version, etag)
	r.transfer.put(rec.ID, version, []byte(content))

	info, err := os.Stat(r.ws.AbsPath(relPath))
	require.NoError(t, err)
	require.NoError(t, r.journal.Set(&JournalEntry{
		Path:    relPath,
		FileID:  rec.ID,
		Version: version,
		ETag:    etag,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}))
	return rec
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func readVaultFile(t *testing.T, ws *workspace.Workspace, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(ws.AbsPath(relPath))
	require.NoError(t, err)
	return string(data)
}

func requireNoFile(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "expected %s to not exist", path)
}
