package main

import (
	"context"
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/partvault/partvault/internal/client/sync"
	"github.com/partvault/partvault/internal/client/vaultmgr"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVaultCmd())
}

// The vault subcommands open the workspace directly instead of going through
// the daemon, so they keep working when the daemon is wedged or stopped. The
// workspace lock serializes them against a running daemon.
func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Offline vault repair tools",
	}
	cmd.AddCommand(newVaultVerifyCmd())
	cmd.AddCommand(newVaultResyncCmd())
	return cmd
}

func openVault(cmd *cobra.Command) (*vaultmgr.Vault, error) {
	cfg, err := readValidConfig(resolveConfigPath(cmd), true)
	if err != nil {
		return nil, fmt.Errorf("not logged in: %w", err)
	}

	v, err := vaultmgr.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := v.Start(cmd.Context()); err != nil {
		return nil, fmt.Errorf("vault open (stop the daemon first if it is running): %w", err)
	}
	return v, nil
}

func newVaultVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Scan the vault and report files that are out of sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			v, err := openVault(cmd)
			if err != nil {
				return err
			}
			defer v.Stop()

			var bar *pb.ProgressBar
			report, err := v.Sync().Reconciler().Verify(cmd.Context(), func(p sync.ScanProgress) {
				if bar == nil && p.Total > 0 {
					bar = pb.StartNew(p.Total)
				}
				if bar != nil {
					bar.SetCurrent(int64(p.Current))
				}
			})
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			printVerifyReport(report)
			return nil
		},
	}
}

func newVaultResyncCmd() *cobra.Command {
	var verifyOnly bool

	cmd := &cobra.Command{
		Use:   "resync [path]...",
		Short: "Re-upload files the server lost or never received",
		Long:  "Re-upload files the server lost or never received. With no paths, runs a verify first and repairs everything it flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			v, err := openVault(cmd)
			if err != nil {
				return err
			}
			defer v.Stop()

			reconciler := v.Sync().Reconciler()

			// Outdated and missing-local files are repaired by download;
			// uploading them would push stale content over a newer server
			// version. Only reupload candidates go up.
			uploads := args
			var pulls []string
			if len(uploads) == 0 || verifyOnly {
				report, err := reconciler.Verify(cmd.Context(), nil)
				if err != nil {
					return err
				}
				if verifyOnly {
					printVerifyReport(report)
					return nil
				}
				uploads = report.NeedsReupload
				pulls = append(pulls, report.Outdated...)
				pulls = append(pulls, report.MissingLocally...)
			}
			if len(uploads)+len(pulls) == 0 {
				fmt.Println(green.Render("vault is in sync, nothing to repair"))
				return nil
			}

			total := &sync.ResyncResult{}
			runBatch := func(label string, paths []string, batch func(context.Context, []string, sync.ResyncProgressFunc) (*sync.ResyncResult, error)) {
				if len(paths) == 0 {
					return
				}
				fmt.Println(gray.Render(label))
				bar := pb.StartNew(len(paths))
				result, _ := batch(cmd.Context(), paths, func(p sync.ResyncProgress) {
					bar.SetCurrent(int64(p.Current))
				})
				bar.Finish()
				if result != nil {
					total.Succeeded += result.Succeeded
					total.Failed += result.Failed
					total.Failures = append(total.Failures, result.Failures...)
				}
			}

			runBatch("uploading", uploads, reconciler.ResyncFiles)
			runBatch("downloading", pulls, reconciler.PullFiles)

			fmt.Printf("%s %d repaired, %d failed\n", green.Render("resync done:"), total.Succeeded, total.Failed)
			for _, f := range total.Failures {
				fmt.Printf("  %s %s: %s\n", red.Render("failed"), f.Path, f.Error)
			}
			if total.Failed > 0 {
				return fmt.Errorf("%d of %d files failed to repair", total.Failed, total.Succeeded+total.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "report what a resync would repair without uploading")
	return cmd
}

func printVerifyReport(r *sync.VerifyReport) {
	fmt.Printf("%s%d files, %d in sync\n", gray.Render("Scanned "), r.Total, r.SyncedCount)

	section := func(label string, paths []string) {
		if len(paths) == 0 {
			return
		}
		fmt.Printf("%s (%d)\n", yellow.Render(label), len(paths))
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
	}

	section("needs re-upload", r.NeedsReupload)
	section("outdated locally", r.Outdated)
	section("missing locally", r.MissingLocally)
	section("deleted on server", r.DeletedRemote)
	section("checked out", r.CheckedOut)
	section("staged offline", r.Staged)
	section("version regressions", r.VersionRegressions)

	if r.Total == r.SyncedCount {
		fmt.Println(green.Render("vault is fully in sync"))
	}
}
