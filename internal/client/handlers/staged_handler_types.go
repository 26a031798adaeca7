package handlers

import "github.com/partvault/partvault/internal/client/sync"

type StagedListResponse struct {
	Operations []*sync.StagedOperation `json:"operations"`
}

type StagedReplayResponse struct {
	Code      string `json:"code"`
	Replayed  int    `json:"replayed"`
	Conflicts int    `json:"conflicts"`
	Failed    int    `json:"failed"`
}

type StagedDiscardResponse struct {
	Code    string `json:"code"`
	Removed int    `json:"removed"`
}
