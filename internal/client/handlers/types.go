package handlers

import "github.com/gin-gonic/gin"

const (
	CodeOk                     string = "OK"
	ErrCodeBadRequest          string = "ERR_BAD_REQUEST"
	ErrCodeUnknownError        string = "ERR_UNKNOWN_ERROR"
	ErrCodeVaultNotReady       string = "ERR_VAULT_NOT_READY"
	ErrCodeNotFound            string = "ERR_NOT_FOUND"
	ErrCodeLockConflict        string = "ERR_LOCK_CONFLICT"
	ErrCodeCrossMachine        string = "ERR_CROSS_MACHINE"
	ErrCodeMachineOnline       string = "ERR_MACHINE_ONLINE"
	ErrCodeNetworkUnavailable  string = "ERR_NETWORK_UNAVAILABLE"
	ErrCodeConflictUnresolved  string = "ERR_CONFLICT_UNRESOLVED"
	ErrCodeSyncInProgress      string = "ERR_SYNC_IN_PROGRESS"
	ErrCodePartialBatchFailure string = "ERR_PARTIAL_BATCH_FAILURE"
	ErrCodeConfirmRequired     string = "ERR_CONFIRM_REQUIRED"
)

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}
