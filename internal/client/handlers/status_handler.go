package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/vaultmgr"
	"github.com/partvault/partvault/internal/version"
)

// StatusHandler handles daemon status endpoints.
type StatusHandler struct {
	mgr *vaultmgr.VaultManager
}

func NewStatusHandler(mgr *vaultmgr.VaultManager) *StatusHandler {
	return &StatusHandler{
		mgr: mgr,
	}
}

// Status godoc
//
//	@Summary		Get status
//	@Description	Returns daemon health, version and vault provisioning state
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/v1/status [get]
func (h *StatusHandler) Status(c *gin.Context) {
	// this is unlikely to happen, but just in case
	if h.mgr == nil {
		c.PureJSON(http.StatusServiceUnavailable, &ControlPlaneError{
			ErrorCode: ErrCodeUnknownError,
			Error:     "vault manager not initialized",
		})
		return
	}

	mgrStatus := h.mgr.Status()

	info := &VaultInfo{
		Status: string(mgrStatus.Status),
	}
	if mgrStatus.Error != nil {
		info.Error = mgrStatus.Error.Error()
	}
	if v := h.mgr.GetVault(); v != nil {
		info.Root = v.Workspace().Root
		info.Email = v.Config().Email
	}

	c.PureJSON(http.StatusOK, &StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Version,
		Revision:  version.Revision,
		BuildDate: version.BuildDate,
		HasConfig: mgrStatus.Status == vaultmgr.VaultStatusProvisioned,
		Vault:     info,
	})
}
