package main

import (
	"fmt"

	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a sync pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			resp, err := cp.R().
				SetContext(cmd.Context()).
				Post("/v1/sync/now")
			if err := cpError(resp, err); err != nil {
				return err
			}

			fmt.Println(green.Render("sync triggered"))
			return nil
		},
	}
	cmd.AddCommand(newSyncStatusCmd())
	return cmd
}

func newSyncStatusCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-file sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			var result handlers.SyncStatusResponse
			resp, err := cp.R().
				SetContext(cmd.Context()).
				SetSuccessResult(&result).
				Get("/v1/sync/status")
			if err := cpError(resp, err); err != nil {
				return err
			}

			s := result.Summary
			fmt.Printf("%s%d in sync, %d added, %d mine, %d locked elsewhere, %d outdated, %d staged, %d errors\n",
				gray.Render("Summary "),
				s.Unmodified, s.Added, s.CheckedOutByMe, s.CheckedOutOther, s.OutdatedLocal, s.Staged, s.Errors)

			for _, f := range result.Files {
				if !verbose && f.Error == "" && f.Activity == "" {
					continue
				}
				line := fmt.Sprintf("%s %s", cyan.Render(f.Status), f.Path)
				if f.Activity != "" {
					line += gray.Render(fmt.Sprintf(" (%s %.0f%%)", f.Activity, f.Progress*100))
				}
				if f.Error != "" {
					line += " " + red.Render(f.Error)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every tracked file")
	return cmd
}
