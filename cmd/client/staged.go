package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStagedCmd())
}

func newStagedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staged",
		Short: "Inspect and replay operations staged while offline",
	}
	cmd.AddCommand(newStagedListCmd())
	cmd.AddCommand(newStagedReplayCmd())
	cmd.AddCommand(newStagedDiscardCmd())
	return cmd
}

func newStagedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staged operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			var result handlers.StagedListResponse
			resp, err := cp.R().
				SetContext(cmd.Context()).
				SetSuccessResult(&result).
				Get("/v1/staged")
			if err := cpError(resp, err); err != nil {
				return err
			}

			if len(result.Operations) == 0 {
				fmt.Println(green.Render("nothing staged"))
				return nil
			}

			for _, op := range result.Operations {
				line := fmt.Sprintf("%s %s (%s, base v%d)", cyan.Render(op.Op.String()), op.Path, humanize.Bytes(uint64(op.Size)), op.BaseVersion)
				fmt.Println(line)
				fmt.Printf("  %s%s\n", gray.Render("id "), lightGray.Render(op.ID))
				if op.LastError != "" {
					fmt.Printf("  %s%s (%d attempts)\n", gray.Render("err "), red.Render(op.LastError), op.Attempts)
				}
			}
			return nil
		},
	}
}

func newStagedReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Replay staged operations against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			var result handlers.StagedReplayResponse
			resp, err := cp.R().
				SetContext(cmd.Context()).
				SetSuccessResult(&result).
				Post("/v1/staged/replay")
			if err := cpError(resp, err); err != nil {
				return err
			}

			fmt.Printf("%s %d replayed, %d conflicts, %d failed\n",
				green.Render("replay done:"), result.Replayed, result.Conflicts, result.Failed)
			return nil
		},
	}
}

func newStagedDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Discard a staged operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			resp, err := cp.R().
				SetContext(cmd.Context()).
				Delete("/v1/staged/" + args[0])
			if err := cpError(resp, err); err != nil {
				return err
			}

			fmt.Printf("%s %s\n", yellow.Render("discarded"), args[0])
			return nil
		},
	}
}
