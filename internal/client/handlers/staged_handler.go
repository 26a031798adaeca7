package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/vaultmgr"
)

// StagedHandler exposes the offline staging queue: inspect, replay, discard.
type StagedHandler struct {
	mgr *vaultmgr.VaultManager
}

func NewStagedHandler(mgr *vaultmgr.VaultManager) *StagedHandler {
	return &StagedHandler{mgr: mgr}
}

func (h *StagedHandler) vault(c *gin.Context) *vaultmgr.Vault {
	v := h.mgr.GetVault()
	if v == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeVaultNotReady, errors.New("no active vault"))
	}
	return v
}

// List godoc
//
//	@Summary		List staged operations
//	@Description	Returns queued offline check-ins in replay order
//	@Tags			staged
//	@Produce		json
//	@Success		200	{object}	StagedListResponse
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/staged [get]
//	@Security		APIToken
func (h *StagedHandler) List(c *gin.Context) {
	v := h.vault(c)
	if v == nil {
		return
	}

	ops, err := v.Sync().Staging().List()
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, StagedListResponse{Operations: ops})
}

// Replay godoc
//
//	@Summary		Replay staged operations
//	@Description	Pushes every staged operation through the normal check-in path
//	@Tags			staged
//	@Produce		json
//	@Success		200	{object}	StagedReplayResponse
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/staged/replay [post]
//	@Security		APIToken
func (h *StagedHandler) Replay(c *gin.Context) {
	v := h.vault(c)
	if v == nil {
		return
	}

	result, err := v.Sync().Checkout().ReplayStaged(c.Request.Context())
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, StagedReplayResponse{
		Code:      CodeOk,
		Replayed:  result.Replayed,
		Conflicts: result.Conflicts,
		Failed:    result.Failed,
	})
}

// Discard godoc
//
//	@Summary		Discard a staged operation
//	@Description	Removes one staged operation and its snapshot by id
//	@Tags			staged
//	@Produce		json
//	@Param			id	path		string	true	"Operation id"
//	@Success		200	{object}	StagedDiscardResponse
//	@Failure		404	{object}	ControlPlaneError
//	@Router			/v1/staged/{id} [delete]
//	@Security		APIToken
func (h *StagedHandler) Discard(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("id is required"))
		return
	}

	v := h.vault(c)
	if v == nil {
		return
	}

	staging := v.Sync().Staging()
	ops, err := staging.List()
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	for _, op := range ops {
		if op.ID != id {
			continue
		}
		if err := staging.Remove(op); err != nil {
			AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
			return
		}
		c.JSON(http.StatusOK, StagedDiscardResponse{Code: CodeOk, Removed: 1})
		return
	}

	AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, errors.New("staged operation not found"))
}
