package main

import (
	"fmt"

	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCheckoutCmd())
	rootCmd.AddCommand(newCheckinCmd())
	rootCmd.AddCommand(newReleaseCmd())
	rootCmd.AddCommand(newForceReleaseCmd())
}

// forEachPath runs op per path and keeps going on per-path failures, so one
// locked file never aborts the rest of the batch.
func forEachPath(paths []string, op func(path string) error) error {
	var failed int
	for _, p := range paths {
		if err := op(p); err != nil {
			failed++
			fmt.Printf("%s %s: %s\n", red.Render("failed"), p, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d failed", failed, len(paths))
	}
	return nil
}

func newCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <path>...",
		Short: "Lock files for editing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			return forEachPath(args, func(path string) error {
				var result handlers.CheckoutResponse
				resp, err := cp.R().
					SetContext(cmd.Context()).
					SetBody(&handlers.CheckoutRequest{Path: path}).
					SetSuccessResult(&result).
					Post("/v1/checkout")
				if err := cpError(resp, err); err != nil {
					return err
				}

				fmt.Printf("%s %s (v%d)\n", green.Render("checked out"), result.Record.Path, result.Record.Version)
				return nil
			})
		},
	}
}

func newCheckinCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "checkin <path>...",
		Short: "Upload new versions and release the locks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			return forEachPath(args, func(path string) error {
				var result handlers.CheckinResponse
				resp, err := cp.R().
					SetContext(cmd.Context()).
					SetBody(&handlers.CheckinRequest{Path: path, Force: force}).
					SetSuccessResult(&result).
					Post("/v1/checkin")
				if err := cpError(resp, err); err != nil {
					return err
				}

				if result.Staged {
					fmt.Printf("%s %s\n", yellow.Render("staged offline, will replay when the server is reachable:"), path)
					return nil
				}
				fmt.Printf("%s %s (v%d)\n", green.Render("checked in"), result.Record.Path, result.Record.Version)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "check in even if the server copy moved ahead")
	return cmd
}

func newReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <path>...",
		Short: "Discard local edits and release the locks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			return forEachPath(args, func(path string) error {
				resp, err := cp.R().
					SetContext(cmd.Context()).
					SetBody(&handlers.ReleaseRequest{Path: path}).
					Post("/v1/checkout/release")
				if err := cpError(resp, err); err != nil {
					return err
				}

				fmt.Printf("%s %s\n", green.Render("released"), path)
				return nil
			})
		},
	}
}

func newForceReleaseCmd() *cobra.Command {
	var confirm int

	cmd := &cobra.Command{
		Use:   "force-release <path>...",
		Short: "Break locks held by another user or machine",
		Long:  "Break locks held by another user or machine. Pass --confirm with the exact number of paths to acknowledge that unsaved work on the other machine may be lost.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			if confirm != len(args) {
				return fmt.Errorf("refusing to break %d lock(s): pass --confirm %d to proceed", len(args), len(args))
			}

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			var result handlers.ForceReleaseResponse
			resp, err := cp.R().
				SetContext(cmd.Context()).
				SetBody(&handlers.ForceReleaseRequest{Paths: args, Confirm: confirm}).
				SetSuccessResult(&result).
				Post("/v1/checkout/force-release")
			if err := cpError(resp, err); err != nil {
				return err
			}

			for _, p := range result.Released {
				fmt.Printf("%s %s\n", green.Render("force released"), p)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&confirm, "confirm", 0, "number of locks you intend to break")
	return cmd
}
