package handlers

import "time"

// SyncFileStatus is the wire form of one tracked path's status.
type SyncFileStatus struct {
	Path       string    `json:"path"`
	Status     string    `json:"status"`
	Activity   string    `json:"activity"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	ErrorCount int       `json:"errorCount,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SyncSummary aggregates tracked paths by diff status.
type SyncSummary struct {
	Unmodified      int `json:"unmodified"`
	Added           int `json:"added"`
	CheckedOutByMe  int `json:"checkedOutByMe"`
	CheckedOutOther int `json:"checkedOutByOther"`
	OutdatedLocal   int `json:"outdatedLocal"`
	DeletedRemote   int `json:"deletedRemote"`
	Staged          int `json:"staged"`
	Errors          int `json:"errors"`
}

type SyncStatusResponse struct {
	Files   []SyncFileStatus `json:"files"`
	Summary SyncSummary      `json:"summary"`
}
