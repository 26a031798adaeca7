package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/sync"
	"github.com/partvault/partvault/internal/client/vaultmgr"
)

type SyncHandler struct {
	mgr *vaultmgr.VaultManager
}

func NewSyncHandler(mgr *vaultmgr.VaultManager) *SyncHandler {
	return &SyncHandler{mgr: mgr}
}

func (h *SyncHandler) tracker(c *gin.Context) *sync.StatusTracker {
	v := h.mgr.GetVault()
	if v == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeVaultNotReady, errors.New("no active vault"))
		return nil
	}
	return v.Sync().Tracker()
}

// Status godoc
//
//	@Summary		Get sync status
//	@Description	Returns the current sync status for all tracked paths
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncStatusResponse
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/sync/status [get]
//	@Security		APIToken
func (h *SyncHandler) Status(c *gin.Context) {
	tracker := h.tracker(c)
	if tracker == nil {
		return
	}

	all := tracker.GetAll()

	files := make([]SyncFileStatus, 0, len(all))
	var summary SyncSummary

	for path, status := range all {
		files = append(files, fileStatus(path, status))

		switch status.Status {
		case sync.StatusUnmodified:
			summary.Unmodified++
		case sync.StatusAdded:
			summary.Added++
		case sync.StatusCheckedOutByMe:
			summary.CheckedOutByMe++
		case sync.StatusCheckedOutByOther:
			summary.CheckedOutOther++
		case sync.StatusOutdatedLocal:
			summary.OutdatedLocal++
		case sync.StatusDeletedRemote:
			summary.DeletedRemote++
		case sync.StatusStagedForCheckin:
			summary.Staged++
		}
		if status.Error != nil {
			summary.Errors++
		}
	}

	c.JSON(http.StatusOK, SyncStatusResponse{
		Files:   files,
		Summary: summary,
	})
}

// StatusByPath godoc
//
//	@Summary		Get sync status for one path
//	@Description	Returns the sync status for a specific vault path
//	@Tags			sync
//	@Produce		json
//	@Param			path	query		string	true	"Vault-relative path"
//	@Success		200		{object}	SyncFileStatus
//	@Failure		404		{object}	ControlPlaneError
//	@Router			/v1/sync/status/file [get]
//	@Security		APIToken
func (h *SyncHandler) StatusByPath(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("path is required"))
		return
	}

	tracker := h.tracker(c)
	if tracker == nil {
		return
	}

	status, exists := tracker.GetStatus(path)
	if !exists {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, errors.New("path not tracked"))
		return
	}

	c.JSON(http.StatusOK, fileStatus(path, status))
}

// Events godoc
//
//	@Summary		Stream sync events
//	@Description	Server-sent events stream of per-path status changes
//	@Tags			sync
//	@Produce		text/event-stream
//	@Success		200	{string}	string	"SSE stream"
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/sync/events [get]
//	@Security		APIToken
func (h *SyncHandler) Events(c *gin.Context) {
	tracker := h.tracker(c)
	if tracker == nil {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	eventCh := tracker.Subscribe()
	defer tracker.Unsubscribe(eventCh)

	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-eventCh:
			if !ok {
				return false
			}
			c.SSEvent("sync", fileStatus(event.Path, event.Status))
			return true
		}
	})
}

// TriggerSync godoc
//
//	@Summary		Trigger immediate sync
//	@Description	Runs a full sync pass now
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	ControlPlaneResponse
//	@Failure		409	{object}	ControlPlaneError
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/sync/now [post]
//	@Security		APIToken
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	v := h.mgr.GetVault()
	if v == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeVaultNotReady, errors.New("no active vault"))
		return
	}

	if err := v.Sync().TriggerSync(c.Request.Context()); err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			AbortWithError(c, http.StatusConflict, ErrCodeSyncInProgress, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

func fileStatus(path string, status *sync.PathStatus) SyncFileStatus {
	var errMsg string
	if status.Error != nil {
		errMsg = status.Error.Error()
	}

	return SyncFileStatus{
		Path:       path,
		Status:     status.Status.String(),
		Activity:   string(status.Activity),
		Progress:   status.Progress,
		Error:      errMsg,
		ErrorCount: status.ErrorCount,
		UpdatedAt:  status.LastUpdated,
	}
}
