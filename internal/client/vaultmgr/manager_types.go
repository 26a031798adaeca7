package vaultmgr

type VaultStatus string

const (
	VaultStatusUnprovisioned VaultStatus = "UNPROVISIONED"
	VaultStatusProvisioning  VaultStatus = "PROVISIONING"
	VaultStatusProvisioned   VaultStatus = "PROVISIONED"
	VaultStatusError         VaultStatus = "ERROR"
)

type ManagerStatus struct {
	Status VaultStatus
	Error  error
}
