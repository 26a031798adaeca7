package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConflictsCmd())
	rootCmd.AddCommand(newResolveCmd())
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflict and rejected copies in the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			var result handlers.ConflictListResponse
			resp, err := cp.R().
				SetContext(cmd.Context()).
				SetSuccessResult(&result).
				Get("/v1/conflicts")
			if err := cpError(resp, err); err != nil {
				return err
			}

			if len(result.Conflicts) == 0 {
				fmt.Println(green.Render("no conflicts"))
				return nil
			}

			for _, c := range result.Conflicts {
				marker := yellow.Render(c.Marker)
				if c.Marker == "rejected" {
					marker = red.Render(c.Marker)
				}
				fmt.Printf("%s %s (%s)\n", marker, c.Path, humanize.Bytes(uint64(c.Size)))
				fmt.Printf("  %s%s\n", gray.Render("shadows "), lightGray.Render(c.OriginalPath))
			}
			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "resolve [path]",
		Short: "Resolve conflict copies",
		Long:  "Resolve conflict copies. Policy 'overwrite' promotes the conflict copy over the working copy, 'rename' keeps both, 'skip' discards the conflict copy. Without --policy, the policies configured in vault.yaml apply. With no path, walks every conflict interactively.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cp, err := newControlPlaneClient(cmd)
			if err != nil {
				return err
			}

			resolveOne := func(path, pol string) (string, bool, error) {
				var result handlers.ResolveConflictResponse
				resp, err := cp.R().
					SetContext(cmd.Context()).
					SetBody(&handlers.ResolveConflictRequest{Path: path, Policy: pol}).
					SetSuccessResult(&result).
					Post("/v1/conflicts/resolve")
				if err := cpError(resp, err); err != nil {
					return "", false, err
				}
				return result.ResolvedPath, result.Discarded, nil
			}

			if len(args) == 1 {
				resolvedPath, discarded, err := resolveOne(args[0], policy)
				if err != nil {
					return err
				}
				if discarded {
					fmt.Printf("%s %s\n", yellow.Render("discarded"), args[0])
					return nil
				}
				fmt.Printf("%s %s\n", green.Render("resolved to"), resolvedPath)
				return nil
			}

			var list handlers.ConflictListResponse
			resp, err := cp.R().
				SetContext(cmd.Context()).
				SetSuccessResult(&list).
				Get("/v1/conflicts")
			if err := cpError(resp, err); err != nil {
				return err
			}

			return RunResolveTUI(ResolveTUIOpts{
				Conflicts: list.Conflicts,
				Resolver:  resolveOne,
			})
		},
	}

	cmd.Flags().StringVarP(&policy, "policy", "p", "", "resolution policy (overwrite|rename|skip), default from vault.yaml")
	return cmd
}
