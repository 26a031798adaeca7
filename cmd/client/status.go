package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	var watch bool
	var interval time.Duration
	var raw bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and vault status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			fetch := func() error {
				var status handlers.StatusResponse
				resp, err := cp.R().
					SetContext(cmd.Context()).
					SetSuccessResult(&status).
					Get("/v1/status")
				if err := cpError(resp, err); err != nil {
					return err
				}

				if raw {
					pretty, _ := json.MarshalIndent(status, "", "  ")
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", pretty)
					return nil
				}

				printStatus(cmd, &status)
				return nil
			}

			if !watch {
				return fetch()
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				if err := fetch(); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), red.Render(err.Error()))
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll continuously")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw json")

	return cmd
}

func printStatus(cmd *cobra.Command, s *handlers.StatusResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s%s (%s)\n", gray.Render("Daemon  "), green.Render(s.Status), s.Version)
	if s.Vault == nil {
		fmt.Fprintf(out, "%s%s\n", gray.Render("Vault   "), yellow.Render("not provisioned"))
		return
	}

	vaultLine := s.Vault.Status
	switch s.Vault.Status {
	case "PROVISIONED":
		vaultLine = green.Render(vaultLine)
	case "ERROR":
		vaultLine = red.Render(vaultLine)
	default:
		vaultLine = yellow.Render(vaultLine)
	}
	fmt.Fprintf(out, "%s%s\n", gray.Render("Vault   "), vaultLine)
	if s.Vault.Root != "" {
		fmt.Fprintf(out, "%s%s\n", gray.Render("Root    "), cyan.Render(s.Vault.Root))
	}
	if s.Vault.Email != "" {
		fmt.Fprintf(out, "%s%s\n", gray.Render("Email   "), cyan.Render(s.Vault.Email))
	}
	if s.Vault.Error != "" {
		fmt.Fprintf(out, "%s%s\n", gray.Render("Error   "), red.Render(s.Vault.Error))
	}
}
