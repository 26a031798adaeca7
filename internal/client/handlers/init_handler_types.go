package handlers

// GetTokenRequest asks the vault server to email a login code.
type GetTokenRequest struct {
	Email     string `form:"email" binding:"required"`
	ServerURL string `form:"server_url" binding:"required"`
}

// InitVaultRequest provisions a vault from a verified login code.
type InitVaultRequest struct {
	Email     string `json:"email" binding:"required"`
	VaultDir  string `json:"vaultDir" binding:"required"`
	ServerURL string `json:"serverUrl" binding:"required"`
	Code      string `json:"code" binding:"required"`
}
