package main

import (
	"fmt"
	"os"
	"time"

	"github.com/partvault/partvault/internal/client/config"
	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/vaultsdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLoginCmd())
}

func newLoginCmd() *cobra.Command {
	var vaultDir string
	var serverURL string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to the PartVault server",
		Run: func(cmd *cobra.Command, args []string) {
			var authToken *vaultsdk.AuthTokenResponse
			var email string

			// fetched from main/rootCmd/persistentFlags
			configPath := cmd.Flag("config").Value.String()

			if cfg, err := readValidConfig(configPath, true); err == nil {
				if !quiet {
					fmt.Println(green.Render("**Already logged in**"))
					logConfig(cfg)
				}
				os.Exit(0)
			}

			onEmailSubmit := func(emailInput string) error {
				return vaultsdk.RequestOTP(cmd.Context(), serverURL, emailInput)
			}

			onOTPSubmit := func(emailInput, otpInput string) error {
				token, err := vaultsdk.VerifyOTP(cmd.Context(), serverURL, &vaultsdk.OTPVerifyRequest{
					Email: emailInput,
					Code:  otpInput,
				})
				if err != nil {
					return err
				}
				email = emailInput
				authToken = token

				time.Sleep(500 * time.Millisecond)
				return nil
			}

			resolvedVaultDir, err := utils.ResolvePath(vaultDir)
			if err != nil {
				printError(err)
				os.Exit(1)
			}

			resolvedConfigPath, err := utils.ResolvePath(configPath)
			if err != nil {
				printError(err)
				os.Exit(1)
			}

			if err := RunLoginTUI(LoginTUIOpts{
				Email:              email,
				ServerURL:          serverURL,
				VaultDir:           resolvedVaultDir,
				ConfigPath:         resolvedConfigPath,
				EmailSubmitHandler: onEmailSubmit,
				OTPSubmitHandler:   onOTPSubmit,
				EmailValidator:     utils.IsValidEmail,
				OTPValidator:       vaultsdk.IsValidOTP,
			}); err != nil {
				printError(err)
				os.Exit(1)
			}

			if authToken == nil {
				fmt.Printf("%s: %s\n", red.Render("ERROR"), "no auth token found")
				os.Exit(1)
			}

			cfg := &config.Config{
				Email:        email,
				VaultDir:     vaultDir,
				ServerURL:    serverURL,
				ClientURL:    config.DefaultClientURL,
				RefreshToken: authToken.RefreshToken,
				AccessToken:  authToken.AccessToken, // not serialized
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

			if !quiet {
				fmt.Println(green.Render("PartVault client initialized"))
				logConfig(cfg)
			}
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&vaultDir, "vaultdir", "d", config.DefaultVaultDir, "directory where the vault working copy is stored")
	cmd.Flags().StringVarP(&serverURL, "server", "s", config.DefaultServerURL, "url of the PartVault server")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable output")

	return cmd
}
