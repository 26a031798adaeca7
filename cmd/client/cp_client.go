package main

import (
	"fmt"
	"time"

	"github.com/imroc/req/v3"
	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

// newControlPlaneClient builds an http client for the local daemon from the
// resolved config. client_url and client_token also bind to the
// PARTVAULT_CLIENT_URL and PARTVAULT_CLIENT_TOKEN environment variables.
func newControlPlaneClient(cmd *cobra.Command) (*req.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.ClientURL == "" {
		return nil, fmt.Errorf("client control plane not configured; set client_url in the config or PARTVAULT_CLIENT_URL")
	}

	c := req.C().
		SetBaseURL(cfg.ClientURL).
		SetTimeout(30 * time.Second).
		SetCommonErrorResult(&handlers.ControlPlaneError{})

	if cfg.ClientToken != "" {
		c.SetCommonBearerAuthToken(cfg.ClientToken)
	}

	return c, nil
}

// cpError collapses transport and daemon-reported failures into one error.
func cpError(resp *req.Response, err error) error {
	if err != nil {
		return fmt.Errorf("daemon unreachable, is 'partvault daemon' running? (%w)", err)
	}
	if resp.IsErrorState() {
		if cpErr, ok := resp.ErrorResult().(*handlers.ControlPlaneError); ok && cpErr.ErrorCode != "" {
			return fmt.Errorf("%s: %s", cpErr.ErrorCode, cpErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return nil
}
