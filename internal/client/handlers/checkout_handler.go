package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/sync"
	"github.com/partvault/partvault/internal/client/vaultmgr"
	"github.com/partvault/partvault/internal/vaultsdk"
)

// CheckoutHandler exposes per-file lock operations by vault path.
type CheckoutHandler struct {
	mgr *vaultmgr.VaultManager
}

func NewCheckoutHandler(mgr *vaultmgr.VaultManager) *CheckoutHandler {
	return &CheckoutHandler{mgr: mgr}
}

func (h *CheckoutHandler) checkout(c *gin.Context) *sync.CheckoutManager {
	v := h.mgr.GetVault()
	if v == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeVaultNotReady, errors.New("no active vault"))
		return nil
	}
	return v.Sync().Checkout()
}

// Checkout godoc
//
//	@Summary		Check out a file
//	@Description	Acquires the exclusive edit lock for a vault path
//	@Tags			checkout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CheckoutRequest	true	"Checkout request"
//	@Success		200		{object}	CheckoutResponse
//	@Failure		409		{object}	ControlPlaneError
//	@Router			/v1/checkout [post]
//	@Security		APIToken
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	cm := h.checkout(c)
	if cm == nil {
		return
	}

	rec, err := cm.Checkout(c.Request.Context(), req.Path)
	if err != nil {
		abortCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{Code: CodeOk, Record: recordInfo(rec)})
}

// Checkin godoc
//
//	@Summary		Check in a file
//	@Description	Uploads the edited content, bumps the version and releases the lock
//	@Tags			checkout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CheckinRequest	true	"Checkin request"
//	@Success		200		{object}	CheckinResponse
//	@Failure		409		{object}	ControlPlaneError
//	@Router			/v1/checkin [post]
//	@Security		APIToken
func (h *CheckoutHandler) Checkin(c *gin.Context) {
	var req CheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	cm := h.checkout(c)
	if cm == nil {
		return
	}

	result, err := cm.Checkin(c.Request.Context(), req.Path, &sync.CheckinOpts{Force: req.Force})
	if err != nil {
		abortCheckoutError(c, err)
		return
	}

	resp := CheckinResponse{Code: CodeOk, Staged: result.Staged}
	if result.Record != nil {
		info := recordInfo(result.Record)
		resp.Record = &info
	}

	c.JSON(http.StatusOK, resp)
}

// Release godoc
//
//	@Summary		Discard a checkout
//	@Description	Reverts local edits to the synced version and releases the lock
//	@Tags			checkout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ReleaseRequest	true	"Release request"
//	@Success		200		{object}	ControlPlaneResponse
//	@Failure		409		{object}	ControlPlaneError
//	@Router			/v1/checkout/release [post]
//	@Security		APIToken
func (h *CheckoutHandler) Release(c *gin.Context) {
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	cm := h.checkout(c)
	if cm == nil {
		return
	}

	if err := cm.Discard(c.Request.Context(), req.Path); err != nil {
		abortCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}

// ForceRelease godoc
//
//	@Summary		Force-release locks
//	@Description	Clears checkout locks unconditionally; confirm must equal the path count
//	@Tags			checkout
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ForceReleaseRequest	true	"Force release request"
//	@Success		200		{object}	ForceReleaseResponse
//	@Failure		400		{object}	ControlPlaneError
//	@Router			/v1/checkout/force-release [post]
//	@Security		APIToken
func (h *CheckoutHandler) ForceRelease(c *gin.Context) {
	var req ForceReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if req.Confirm != len(req.Paths) {
		AbortWithError(c, http.StatusBadRequest, ErrCodeConfirmRequired,
			fmt.Errorf("confirm %d does not match %d paths", req.Confirm, len(req.Paths)))
		return
	}

	cm := h.checkout(c)
	if cm == nil {
		return
	}

	released := make([]string, 0, len(req.Paths))
	for _, path := range req.Paths {
		if _, err := cm.ForceRelease(c.Request.Context(), path); err != nil {
			abortCheckoutError(c, err)
			return
		}
		released = append(released, path)
	}

	c.JSON(http.StatusOK, ForceReleaseResponse{Code: CodeOk, Released: released})
}

// abortCheckoutError maps sync sentinels to control plane error codes.
func abortCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sync.ErrCrossMachineCheckin):
		AbortWithError(c, http.StatusConflict, ErrCodeCrossMachine, err)
	case errors.Is(err, sync.ErrMachineOnline):
		AbortWithError(c, http.StatusConflict, ErrCodeMachineOnline, err)
	case errors.Is(err, sync.ErrLockConflict):
		AbortWithError(c, http.StatusConflict, ErrCodeLockConflict, err)
	case errors.Is(err, sync.ErrNotCheckedOut):
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
	case errors.Is(err, sync.ErrNetworkUnavailable):
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeNetworkUnavailable, err)
	case errors.Is(err, vaultsdk.ErrFileNotFound):
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
	default:
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
	}
}
