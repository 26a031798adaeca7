package vaultsdk

import "time"

// FileRecord is one tracked file on the server. The checkout fields hold the
// exclusive edit lock: at most one (user, machine) pair per file, and only
// the server mutates them.
type FileRecord struct {
	ID                      string    `json:"id"`
	Path                    string    `json:"relativePath"`
	Version                 int64     `json:"version"`
	Size                    int64     `json:"size"`
	ETag                    string    `json:"etag"`
	CheckedOutBy            string    `json:"checkedOutBy,omitempty"`
	CheckedOutByMachineID   string    `json:"checkedOutByMachineId,omitempty"`
	CheckedOutByMachineName string    `json:"checkedOutByMachineName,omitempty"`
	Deleted                 bool      `json:"deleted"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// IsCheckedOut reports whether anyone holds the lock.
func (r *FileRecord) IsCheckedOut() bool {
	return r.CheckedOutBy != ""
}

// IsCheckedOutBy reports whether the given user holds the lock on any machine.
func (r *FileRecord) IsCheckedOutBy(user string) bool {
	return r.CheckedOutBy != "" && r.CheckedOutBy == user
}

// HolderLabel renders the lock holder for logs and errors.
func (r *FileRecord) HolderLabel() string {
	if r.CheckedOutBy == "" {
		return ""
	}
	if r.CheckedOutByMachineName != "" {
		return r.CheckedOutBy + "@" + r.CheckedOutByMachineName
	}
	return r.CheckedOutBy
}

type ListRecordsParams struct {
	Prefix string `json:"prefix,omitempty"`
}

type ListRecordsResponse struct {
	Records []*FileRecord `json:"records"`
}

type CreateRecordParams struct {
	Path string `json:"relativePath"`
	Size int64  `json:"size"`
	ETag string `json:"etag"`
}

type CheckoutParams struct {
	User        string `json:"user"`
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName"`
}

// CheckinParams releases a checkout. NewVersion is the version the caller
// expects the record to land on (last synced + 1); the server rejects it
// with CodeVersionConflict if that would break per-file monotonicity.
type CheckinParams struct {
	User       string `json:"user"`
	MachineID  string `json:"machineId"`
	NewVersion int64  `json:"newVersion"`
	Size       int64  `json:"size"`
	ETag       string `json:"etag"`
	ContentRef string `json:"contentRef"`
	Force      bool   `json:"force,omitempty"`
}

type ReleaseParams struct{}
