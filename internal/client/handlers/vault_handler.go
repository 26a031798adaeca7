package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/sync"
	"github.com/partvault/partvault/internal/client/vaultmgr"
)

// VaultHandler drives the health reconciler: full verification scans and
// batch repair.
type VaultHandler struct {
	mgr *vaultmgr.VaultManager
}

func NewVaultHandler(mgr *vaultmgr.VaultManager) *VaultHandler {
	return &VaultHandler{mgr: mgr}
}

func (h *VaultHandler) reconciler(c *gin.Context) *sync.Reconciler {
	v := h.mgr.GetVault()
	if v == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeVaultNotReady, errors.New("no active vault"))
		return nil
	}
	return v.Sync().Reconciler()
}

// Verify godoc
//
//	@Summary		Verify vault health
//	@Description	Classifies every path and partitions the vault into a repair plan
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	VerifyResponse
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/vault/verify [post]
//	@Security		APIToken
func (h *VaultHandler) Verify(c *gin.Context) {
	r := h.reconciler(c)
	if r == nil {
		return
	}

	// Progress lands in the status tracker; SSE subscribers see it live.
	report, err := r.Verify(c.Request.Context(), nil)
	if err != nil {
		if errors.Is(err, sync.ErrNetworkUnavailable) {
			AbortWithError(c, http.StatusServiceUnavailable, ErrCodeNetworkUnavailable, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{Code: CodeOk, Report: report})
}

// Resync godoc
//
//	@Summary		Resync files
//	@Description	Re-uploads the given paths, smallest first
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ResyncRequest	true	"Paths to repair"
//	@Success		200		{object}	ResyncResponse
//	@Failure		207		{object}	ResyncResponse
//	@Failure		503		{object}	ControlPlaneError
//	@Router			/v1/vault/resync [post]
//	@Security		APIToken
func (h *VaultHandler) Resync(c *gin.Context) {
	var req ResyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if len(req.Paths) == 0 {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("paths is empty"))
		return
	}

	r := h.reconciler(c)
	if r == nil {
		return
	}

	result, err := r.ResyncFiles(c.Request.Context(), req.Paths, nil)
	if err != nil {
		if errors.Is(err, sync.ErrPartialBatchFailure) {
			c.JSON(http.StatusMultiStatus, ResyncResponse{Code: ErrCodePartialBatchFailure, Result: result})
			return
		}
		if errors.Is(err, sync.ErrNetworkUnavailable) {
			AbortWithError(c, http.StatusServiceUnavailable, ErrCodeNetworkUnavailable, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}

	c.JSON(http.StatusOK, ResyncResponse{Code: CodeOk, Result: result})
}
