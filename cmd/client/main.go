package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/partvault/partvault/internal/client"
	"github.com/partvault/partvault/internal/client/config"
	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var rootCmd = &cobra.Command{
	Use:     "partvault",
	Short:   "PartVault CLI",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configPath := resolveConfigPath(cmd)
		if !utils.FileExists(configPath) {
			return fmt.Errorf("no config at %s, run 'partvault login' first", configPath)
		}

		showPartVaultHeader()

		daemon, err := client.NewDaemon(&client.DaemonOpts{
			ControlPlane: &client.ControlPlaneConfig{
				Addr: defaultHTTPAddr,
			},
			ConfigPath: configPath,
		})
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "PartVault config file")
}

func main() {
	// side effects only, a missing .env is fine
	_ = godotenv.Load()

	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	logFile := config.DefaultLogFilePath
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    16, // MB
		MaxBackups: 4,
		MaxAge:     30, // days
		Compress:   true,
	}
	fileHandler := slog.NewTextHandler(rotator, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
	slog.SetDefault(logger)
}

// loadConfig merges the config file, PARTVAULT_* environment variables and
// flags into a client config. The file may be absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		v.SetConfigFile(cfgFlag.Value.String())
	} else if envPath := os.Getenv("PARTVAULT_CONFIG_PATH"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".partvault"))
		v.AddConfigPath(filepath.Join(home, ".config", "partvault"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("PARTVAULT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &config.Config{
		Path:         v.ConfigFileUsed(),
		Email:        v.GetString("email"),
		VaultDir:     v.GetString("vault_dir"),
		ServerURL:    v.GetString("server_url"),
		ClientURL:    v.GetString("client_url"),
		ClientToken:  v.GetString("client_token"),
		RefreshToken: v.GetString("refresh_token"),
		AccessToken:  v.GetString("access_token"),
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = config.DefaultServerURL
	}
	if cfg.ClientURL == "" {
		cfg.ClientURL = config.DefaultClientURL
	}
	if envPath := os.Getenv("PARTVAULT_CONFIG_PATH"); envPath != "" && cfg.Path == "" {
		cfg.Path = envPath
	}

	return cfg, nil
}

func showPartVaultHeader() {
	fmt.Println(titleStyle.Render(utils.PartVaultArt))
}
