package handlers

import "github.com/partvault/partvault/internal/client/sync"

type VerifyResponse struct {
	Code   string             `json:"code"`
	Report *sync.VerifyReport `json:"report"`
}

// ResyncRequest re-uploads the given paths. An empty list is rejected;
// callers decide what to repair, usually from a verify report.
type ResyncRequest struct {
	Paths []string `json:"paths" binding:"required"`
}

type ResyncResponse struct {
	Code   string             `json:"code"`
	Result *sync.ResyncResult `json:"result"`
}
