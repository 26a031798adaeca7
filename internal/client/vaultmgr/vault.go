// Package vaultmgr owns the lifecycle of the local vault: construction from
// config, auth refresh, the sync stack, and the background jobs (heartbeat,
// scheduled verification) that keep it healthy.
package vaultmgr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/partvault/partvault/internal/client/config"
	"github.com/partvault/partvault/internal/client/sync"
	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/vaultsdk"
)

const (
	heartbeatInterval = 30 * time.Second

	// tokenRefreshWindow forces a refresh when the access token expires
	// this close to startup, so a long daemon run starts with a fresh one.
	tokenRefreshWindow = 1 * time.Hour
)

// Vault is one provisioned vault checkout: the workspace on disk, the server
// SDK and the sync stack, plus the heartbeat and scheduled-verify jobs.
type Vault struct {
	config    *config.Config
	sdk       *vaultsdk.VaultSDK
	workspace *workspace.Workspace
	sync      *sync.Manager
	cron      *cron.Cron

	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

func New(cfg *config.Config) (*Vault, error) {
	ws, err := workspace.NewWorkspace(cfg.VaultDir, cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	sdk, err := vaultsdk.New(&vaultsdk.Config{
		BaseURL:      cfg.ServerURL,
		User:         cfg.Email,
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("create sdk: %w", err)
	}

	syncMgr, err := sync.NewManager(ws, sdk, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("create sync manager: %w", err)
	}

	return &Vault{
		config:    cfg,
		sdk:       sdk,
		workspace: ws,
		sync:      syncMgr,
		cron:      cron.New(),
	}, nil
}

func (v *Vault) Start(ctx context.Context) error {
	slog.Info("vault start", "root", v.config.VaultDir, "email", v.config.Email, "server", v.config.ServerURL)

	if err := v.workspace.Setup(); err != nil {
		return fmt.Errorf("setup workspace: %w", err)
	}

	if err := v.refreshAuth(ctx); err != nil {
		return fmt.Errorf("refresh auth: %w", err)
	}

	if err := v.sync.Start(ctx); err != nil {
		return fmt.Errorf("start sync manager: %w", err)
	}

	v.startHeartbeat(ctx)
	v.scheduleVerify()

	return nil
}

func (v *Vault) Stop() {
	v.cron.Stop()
	if v.hbCancel != nil {
		v.hbCancel()
		<-v.hbDone
	}
	v.sync.Stop()
	v.sdk.Close()
	if err := v.workspace.Unlock(); err != nil {
		slog.Error("unlock workspace", "error", err)
	}
}

func (v *Vault) Config() *config.Config          { return v.config }
func (v *Vault) SDK() *vaultsdk.VaultSDK         { return v.sdk }
func (v *Vault) Workspace() *workspace.Workspace { return v.workspace }
func (v *Vault) Sync() *sync.Manager             { return v.sync }

// refreshAuth exchanges the refresh token for a new token pair when the
// access token is missing or close to expiry, and persists the rotated
// refresh token so the next start does not reuse a consumed one.
func (v *Vault) refreshAuth(ctx context.Context) error {
	if v.config.RefreshToken == "" {
		return vaultsdk.ErrNoRefreshToken
	}

	if v.config.AccessToken != "" && !vaultsdk.TokenExpiresWithin(v.config.AccessToken, tokenRefreshWindow) {
		return nil
	}

	tokens, err := v.sdk.RefreshAuth(ctx, v.config.RefreshToken)
	if err != nil {
		return err
	}

	v.config.AccessToken = tokens.AccessToken
	v.config.RefreshToken = tokens.RefreshToken
	if err := v.config.Save(); err != nil {
		slog.Error("persist rotated tokens", "error", err)
	}

	return nil
}

func (v *Vault) startHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	v.hbCancel = cancel
	v.hbDone = make(chan struct{})

	go func() {
		defer close(v.hbDone)

		if err := v.sdk.Machines.Heartbeat(hbCtx); err != nil {
			slog.Warn("heartbeat", "error", err)
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := v.sdk.Machines.Heartbeat(hbCtx); err != nil {
					slog.Warn("heartbeat", "error", err)
				}
			}
		}
	}()
}

func (v *Vault) scheduleVerify() {
	if v.config.VerifyCron == "" {
		return
	}

	_, err := v.cron.AddFunc(v.config.VerifyCron, v.runScheduledVerify)
	if err != nil {
		slog.Error("schedule verify", "cron", v.config.VerifyCron, "error", err)
		return
	}

	v.cron.Start()
	slog.Info("verify scheduled", "cron", v.config.VerifyCron)
}

func (v *Vault) runScheduledVerify() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := v.sync.Reconciler().Verify(ctx, nil)
	if err != nil {
		slog.Error("scheduled verify", "error", err)
		return
	}

	slog.Info("scheduled verify done",
		"total", report.Total,
		"synced", report.SyncedCount,
		"needsReupload", len(report.NeedsReupload),
		"outdated", len(report.Outdated),
		"missingLocally", len(report.MissingLocally),
		"versionRegressions", len(report.VersionRegressions),
	)
}
