package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/partvault/partvault/internal/client"
	"github.com/partvault/partvault/internal/version"
	"github.com/spf13/cobra"
)

const defaultHTTPAddr = "localhost:7938"

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	var addr string
	var authToken string

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the PartVault client daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			slog.Info("partvault", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

			configPath := resolveConfigPath(cmd)
			slog.Info("daemon using config", "path", configPath)

			daemon, err := client.NewDaemon(&client.DaemonOpts{
				ControlPlane: &client.ControlPlaneConfig{
					Addr:      addr,
					AuthToken: authToken,
				},
				ConfigPath: configPath,
			})
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("daemon start", "error", err)
				return err
			}
			return nil
		},
	}

	daemonCmd.Flags().StringVarP(&addr, "http-addr", "a", defaultHTTPAddr, "Address to bind the local http server")
	daemonCmd.Flags().StringVarP(&authToken, "http-token", "t", "", "Access token for the local http server")

	return daemonCmd
}
