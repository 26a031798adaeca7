package vaultsdk

import (
	"context"
	"time"

	"github.com/imroc/req/v3"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/version"
)

const (
	v1MachinePresence  = "/api/v1/machines/presence"
	v1MachineHeartbeat = "/api/v1/machines/heartbeat"
)

// MachinesAPI tracks agent presence. Presence exists to gate force check-in:
// a checkout held by a machine that still answers heartbeats must never be
// forced away.
type MachinesAPI struct {
	client *req.Client
}

func newMachinesAPI(client *req.Client) *MachinesAPI {
	return &MachinesAPI{
		client: client,
	}
}

type PresenceResponse struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

type HeartbeatRequest struct {
	MachineID   string `json:"machineId"`
	MachineName string `json:"machineName"`
	Platform    string `json:"platform"`
	OS          string `json:"os"`
	UptimeSec   uint64 `json:"uptimeSec"`
	Version     string `json:"version"`
}

// IsMachineOnline asks the server whether the given machine's agent is
// currently reachable.
func (m *MachinesAPI) IsMachineOnline(ctx context.Context, user, machineID string) (*PresenceResponse, error) {
	var presence PresenceResponse

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParam("user", user).
		SetQueryParam("machine", machineID).
		SetSuccessResult(&presence).
		Get(v1MachinePresence)

	if err := handleAPIError(resp, err, "machine presence"); err != nil {
		return nil, err
	}

	return &presence, nil
}

// Heartbeat registers this machine as online. Host details come from
// gopsutil; failures there degrade to an id-only heartbeat.
func (m *MachinesAPI) Heartbeat(ctx context.Context) error {
	beat := &HeartbeatRequest{
		MachineID:   utils.HWID,
		MachineName: utils.MachineName(),
		Version:     version.Version,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		beat.Platform = info.Platform
		beat.OS = info.OS
		beat.UptimeSec = info.Uptime
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(beat).
		Post(v1MachineHeartbeat)

	return handleAPIError(resp, err, "machine heartbeat")
}
