package main

import (
	"fmt"
	"os"

	"github.com/partvault/partvault/internal/client/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

// newInitCmd is the non-interactive counterpart of login, for scripts and
// provisioning tools that already hold a refresh token.
func newInitCmd() *cobra.Command {
	var email string
	var vaultDir string
	var serverURL string
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the PartVault client without the login flow",
		Run: func(cmd *cobra.Command, args []string) {
			configPath := resolveConfigPath(cmd)

			if cfg, err := readValidConfig(configPath, false); err == nil {
				fmt.Println("PartVault client already initialized")
				logConfig(cfg)
				os.Exit(0)
			}

			if email == "" {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), "email is required")
				os.Exit(1)
			}

			cfg := &config.Config{
				Email:        email,
				VaultDir:     vaultDir,
				ServerURL:    serverURL,
				ClientURL:    config.DefaultClientURL,
				RefreshToken: refreshToken,
				Path:         configPath,
			}

			if err := cfg.Validate(); err != nil {
				printError(err)
				os.Exit(1)
			}

			if err := cfg.Save(); err != nil {
				printError(err)
				os.Exit(1)
			}

			fmt.Println("PartVault client initialized")
			logConfig(cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&vaultDir, "vaultdir", "d", config.DefaultVaultDir, "vault directory")
	cmd.Flags().StringVarP(&serverURL, "server", "s", config.DefaultServerURL, "server URL")
	cmd.Flags().StringVarP(&refreshToken, "refresh-token", "r", "", "refresh token issued by the server")

	return cmd
}
