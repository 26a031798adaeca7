package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/partvault/partvault/internal/client/config"
	"github.com/partvault/partvault/internal/client/vaultmgr"
	"github.com/partvault/partvault/internal/vaultsdk"
)

const (
	ErrCodeProvisionFailed = "ERR_VAULT_PROVISION_FAILED"
	ErrCodeRequestOTP      = "ERR_REQUEST_OTP"
	ErrCodeVerifyOTP       = "ERR_VERIFY_OTP"
)

// InitHandler drives first-time setup from the desktop shell: request a
// login code, verify it, provision the vault.
type InitHandler struct {
	mgr             *vaultmgr.VaultManager
	controlPlaneURL string
}

func NewInitHandler(mgr *vaultmgr.VaultManager, controlPlaneURL string) *InitHandler {
	return &InitHandler{
		mgr:             mgr,
		controlPlaneURL: controlPlaneURL,
	}
}

// GetToken godoc
//
//	@Summary		Request login code
//	@Description	Asks the vault server to email a one-time login code
//	@Tags			init
//	@Produce		json
//	@Param			email		query		string	true	"Email"			Format(email)
//	@Param			server_url	query		string	true	"Server URL"	Format(url)
//	@Success		200			{object}	ControlPlaneResponse
//	@Failure		400			{object}	ControlPlaneError
//	@Router			/v1/init/token [get]
//	@Security		APIToken
func (h *InitHandler) GetToken(c *gin.Context) {
	var req GetTokenRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := vaultsdk.RequestOTP(c.Request.Context(), req.ServerURL, req.Email); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeRequestOTP, err)
		return
	}

	c.JSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}

// InitVault godoc
//
//	@Summary		Provision the vault
//	@Description	Verifies the login code, saves the config and starts the vault
//	@Tags			init
//	@Accept			json
//	@Produce		json
//	@Param			request	body		InitVaultRequest	true	"Init request"
//	@Success		200		{object}	ControlPlaneResponse
//	@Failure		403		{object}	ControlPlaneError
//	@Failure		500		{object}	ControlPlaneError
//	@Router			/v1/init/vault [post]
//	@Security		APIToken
func (h *InitHandler) InitVault(c *gin.Context) {
	var req InitVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	tokens, err := vaultsdk.VerifyOTP(c.Request.Context(), req.ServerURL, &vaultsdk.OTPVerifyRequest{
		Email: req.Email,
		Code:  req.Code,
	})
	if err != nil {
		AbortWithError(c, http.StatusForbidden, ErrCodeVerifyOTP, err)
		return
	}

	cfg := &config.Config{
		VaultDir:     req.VaultDir,
		ServerURL:    req.ServerURL,
		ClientURL:    h.controlPlaneURL,
		Email:        req.Email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
	if err := cfg.Validate(); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}
	if err := cfg.Save(); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeProvisionFailed, err)
		return
	}

	if err := h.mgr.Provision(cfg); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeProvisionFailed, err)
		return
	}

	c.JSON(http.StatusOK, &ControlPlaneResponse{Code: CodeOk})
}
