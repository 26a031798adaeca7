package handlers

// StatusResponse reports daemon health and the state of the managed vault.
type StatusResponse struct {
	Status    string     `json:"status"`    // health status ("ok").
	Timestamp string     `json:"ts"`        // when the health check ran.
	Version   string     `json:"version"`   // client version.
	Revision  string     `json:"revision"`  // client git revision.
	BuildDate string     `json:"buildDate"` // client build date.
	HasConfig bool       `json:"hasConfig"` // whether a vault is provisioned.
	Vault     *VaultInfo `json:"vault,omitempty"`
}

// VaultInfo is the provisioning state of the managed vault.
type VaultInfo struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Root   string `json:"root,omitempty"`
	Email  string `json:"email,omitempty"`
}
