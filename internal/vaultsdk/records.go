package vaultsdk

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
)

const (
	v1Records            = "/api/v1/vault/records"
	v1RecordCheckout     = "/api/v1/vault/records/%s/checkout"
	v1RecordCheckin      = "/api/v1/vault/records/%s/checkin"
	v1RecordForceRelease = "/api/v1/vault/records/%s/force-release"
	v1RecordMarkDeleted  = "/api/v1/vault/records/%s/delete"
)

// RecordsAPI queries and mutates vault file records. Every mutation is a
// single atomic request; checkout uses compare-and-set on the server so two
// machines can never both win a lock.
type RecordsAPI struct {
	client *req.Client
}

func newRecordsAPI(client *req.Client) *RecordsAPI {
	return &RecordsAPI{
		client: client,
	}
}

// List fetches all records for the vault, optionally filtered by path prefix.
func (r *RecordsAPI) List(ctx context.Context, params *ListRecordsParams) (*ListRecordsResponse, error) {
	var apiResp ListRecordsResponse

	request := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp)
	if params != nil && params.Prefix != "" {
		request.SetQueryParam("prefix", params.Prefix)
	}

	resp, err := request.Get(v1Records)
	if err := handleAPIError(resp, err, "records list"); err != nil {
		return nil, err
	}

	return &apiResp, nil
}

// Get fetches a single record by file id.
func (r *RecordsAPI) Get(ctx context.Context, fileID string) (*FileRecord, error) {
	var record FileRecord

	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&record).
		Get(v1Records + "/" + fileID)

	if err := handleAPIError(resp, err, "records get"); err != nil {
		return nil, err
	}

	return &record, nil
}

// Create registers a new record for a local-only file ahead of its first
// upload. The server assigns the id and version 1.
func (r *RecordsAPI) Create(ctx context.Context, params *CreateRecordParams) (*FileRecord, error) {
	var record FileRecord

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&record).
		Post(v1Records)

	if err := handleAPIError(resp, err, "records create"); err != nil {
		return nil, err
	}

	return &record, nil
}

// Checkout atomically sets the checkout fields on the record. The server
// performs a conditional update keyed on "checkout fields are null"; a lost
// race or an existing holder comes back as CodeLockConflict with the holder
// attached.
func (r *RecordsAPI) Checkout(ctx context.Context, fileID string, params *CheckoutParams) (*FileRecord, error) {
	var record FileRecord

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&record).
		Post(fmt.Sprintf(v1RecordCheckout, fileID))

	if err := handleAPIError(resp, err, "records checkout"); err != nil {
		return nil, err
	}

	return &record, nil
}

// Checkin releases the checkout and bumps the record to the new version.
// Cross-machine and force gating happen server-side; the relevant error codes
// are CodeCrossMachine and CodeMachineOnline.
func (r *RecordsAPI) Checkin(ctx context.Context, fileID string, params *CheckinParams) (*FileRecord, error) {
	var record FileRecord

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&record).
		Post(fmt.Sprintf(v1RecordCheckin, fileID))

	if err := handleAPIError(resp, err, "records checkin"); err != nil {
		return nil, err
	}

	return &record, nil
}

// Release clears the checkout fields without a version bump (discard).
func (r *RecordsAPI) Release(ctx context.Context, fileID string) (*FileRecord, error) {
	var record FileRecord

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(&ReleaseParams{}).
		SetSuccessResult(&record).
		Post(fmt.Sprintf(v1RecordCheckin, fileID) + "?discard=true")

	if err := handleAPIError(resp, err, "records release"); err != nil {
		return nil, err
	}

	return &record, nil
}

// ForceRelease unconditionally clears the checkout fields regardless of
// holder. Privileged; the server emits a lock.force_released event to the
// original holder.
func (r *RecordsAPI) ForceRelease(ctx context.Context, fileID string) (*FileRecord, error) {
	var record FileRecord

	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&record).
		Post(fmt.Sprintf(v1RecordForceRelease, fileID))

	if err := handleAPIError(resp, err, "records force release"); err != nil {
		return nil, err
	}

	return &record, nil
}

// MarkDeleted tombstones the record. The file id stays queryable so other
// clients can classify their surviving local copies as orphans.
func (r *RecordsAPI) MarkDeleted(ctx context.Context, fileID string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf(v1RecordMarkDeleted, fileID))

	return handleAPIError(resp, err, "records mark deleted")
}
