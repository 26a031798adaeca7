package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/partvault/partvault/internal/client/vaultmgr"
)

// Daemon runs the vault manager and the control plane as one process with
// a single-instance lock held by the workspace.
type Daemon struct {
	mgr *vaultmgr.VaultManager
	cps *ControlPlaneServer
}

type DaemonOpts struct {
	ControlPlane *ControlPlaneConfig
	ConfigPath   string
}

func NewDaemon(opts *DaemonOpts) (*Daemon, error) {
	mgr := vaultmgr.NewManager()
	if opts.ConfigPath != "" {
		mgr.SetConfigPath(opts.ConfigPath)
	}
	mgr.SetRuntimeConfig(&vaultmgr.RuntimeConfig{
		ClientURL:   fmt.Sprintf("http://%s", opts.ControlPlane.Addr),
		ClientToken: opts.ControlPlane.AuthToken,
	})

	cps, err := NewControlPlaneServer(opts.ControlPlane, mgr)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		mgr: mgr,
		cps: cps,
	}, nil
}

func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("daemon start")

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start vault manager: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		if err := d.cps.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

func (d *Daemon) Stop(ctx context.Context) error {
	d.mgr.Stop()
	if err := d.cps.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop control plane: %w", err)
	}
	return nil
}

// VaultManager exposes the manager for in-process callers (the CLI's
// embedded daemon mode).
func (d *Daemon) VaultManager() *vaultmgr.VaultManager {
	return d.mgr
}
