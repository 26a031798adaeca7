package handlers

import (
	"time"

	"github.com/partvault/partvault/internal/vaultsdk"
)

type CheckoutRequest struct {
	Path string `json:"path" binding:"required"`
}

type CheckinRequest struct {
	Path  string `json:"path" binding:"required"`
	Force bool   `json:"force"`
}

type ReleaseRequest struct {
	Path string `json:"path" binding:"required"`
}

// ForceReleaseRequest clears locks unconditionally. Confirm must equal the
// number of paths; destructive actions are never executed on a bare request.
type ForceReleaseRequest struct {
	Paths   []string `json:"paths" binding:"required"`
	Confirm int      `json:"confirm"`
}

// RecordInfo is the wire form of a server file record.
type RecordInfo struct {
	ID                      string    `json:"id"`
	Path                    string    `json:"path"`
	Version                 int64     `json:"version"`
	Size                    int64     `json:"size"`
	ETag                    string    `json:"etag"`
	CheckedOutBy            string    `json:"checkedOutBy,omitempty"`
	CheckedOutByMachineName string    `json:"checkedOutByMachineName,omitempty"`
	Deleted                 bool      `json:"deleted,omitempty"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

type CheckoutResponse struct {
	Code   string     `json:"code"`
	Record RecordInfo `json:"record"`
}

type CheckinResponse struct {
	Code   string      `json:"code"`
	Staged bool        `json:"staged"`
	Record *RecordInfo `json:"record,omitempty"`
}

type ForceReleaseResponse struct {
	Code     string   `json:"code"`
	Released []string `json:"released"`
}

func recordInfo(rec *vaultsdk.FileRecord) RecordInfo {
	return RecordInfo{
		ID:                      rec.ID,
		Path:                    rec.Path,
		Version:                 rec.Version,
		Size:                    rec.Size,
		ETag:                    rec.ETag,
		CheckedOutBy:            rec.CheckedOutBy,
		CheckedOutByMachineName: rec.CheckedOutByMachineName,
		Deleted:                 rec.Deleted,
		UpdatedAt:               rec.UpdatedAt,
	}
}
