package sync

import (
	"context"

	"github.com/partvault/partvault/internal/vaultsdk"
)

// RecordService is the remote record store surface the engine depends on.
// Every mutation is a single atomic request; *vaultsdk.RecordsAPI is the
// production implementation.
type RecordService interface {
	List(ctx context.Context, params *vaultsdk.ListRecordsParams) (*vaultsdk.ListRecordsResponse, error)
	Get(ctx context.Context, fileID string) (*vaultsdk.FileRecord, error)
	Create(ctx context.Context, params *vaultsdk.CreateRecordParams) (*vaultsdk.FileRecord, error)
	Checkout(ctx context.Context, fileID string, params *vaultsdk.CheckoutParams) (*vaultsdk.FileRecord, error)
	Checkin(ctx context.Context, fileID string, params *vaultsdk.CheckinParams) (*vaultsdk.FileRecord, error)
	Release(ctx context.Context, fileID string) (*vaultsdk.FileRecord, error)
	ForceRelease(ctx context.Context, fileID string) (*vaultsdk.FileRecord, error)
	MarkDeleted(ctx context.Context, fileID string) error
}

// PresenceService answers whether a machine's agent is currently reachable.
// Used only to gate force check-in.
type PresenceService interface {
	IsMachineOnline(ctx context.Context, user, machineID string) (*vaultsdk.PresenceResponse, error)
}
