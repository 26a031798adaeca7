// Package vaultsdk is the client for the PartVault server API: vault file
// records, checkout locks, machine presence, content transfer and the
// realtime event stream.
package vaultsdk

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/imroc/req/v3"

	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-PartVault-Version"
	HeaderUser      = "X-PartVault-User"
	HeaderDeviceId  = "X-PartVault-Device-Id"
)

var UserAgent = fmt.Sprintf("PartVault/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// VaultSDK is the main client for the PartVault server.
type VaultSDK struct {
	client  *req.Client
	baseURL string

	Records  *RecordsAPI
	Machines *MachinesAPI
	Blob     *BlobAPI
	Events   *EventsAPI
}

// Config for constructing the SDK client.
type Config struct {
	BaseURL      string
	User         string
	AccessToken  string
	RefreshToken string
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	return nil
}

// New creates a VaultSDK client. The access token may be empty for the
// pre-login auth flows in auth.go.
func New(cfg *Config) (*VaultSDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1*time.Second).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderUser, cfg.User).
		SetCommonHeader(HeaderDeviceId, utils.HWID).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if cfg.AccessToken != "" {
		client.SetCommonBearerAuthToken(cfg.AccessToken)
	}

	sdk := &VaultSDK{
		client:   client,
		baseURL:  cfg.BaseURL,
		Records:  newRecordsAPI(client),
		Machines: newMachinesAPI(client),
		Blob:     newBlobAPI(client),
		Events:   newEventsAPI(client),
	}
	return sdk, nil
}

// RefreshAuth exchanges the refresh token for a new token pair and installs
// the new access token on the client.
func (s *VaultSDK) RefreshAuth(ctx context.Context, refreshToken string) (*AuthTokenResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	tokens, err := RefreshAuthToken(ctx, s.baseURL, refreshToken)
	if err != nil {
		return nil, err
	}

	s.client.SetCommonBearerAuthToken(tokens.AccessToken)
	return tokens, nil
}

// Close terminates the event stream and releases client resources.
func (s *VaultSDK) Close() {
	if s.Events != nil {
		s.Events.Close()
	}
}
