// ABOUTME: Entry point for fdc3-gateway, the FDC3 desktop agent
// ABOUTME: Cobra root command with serve, init and HTTP API inspection subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/fdc3-gateway/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "fdc3-gateway",
	Short: "FDC3 desktop agent",
	Long: `fdc3-gateway routes FDC3 messages between connected apps: context
broadcast on channels, intent resolution and open forwarding.

Apps connect over WebSocket (/fdc3) or gRPC. The HTTP API exposes channels,
connected apps and the event ledger.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(envFile)
	},
}

// getConfigPath returns the path to the gateway config file.
// Priority: --config > FDC3_CONFIG env var > XDG_CONFIG_HOME/fdc3/gateway.yaml > ~/.config/fdc3/gateway.yaml
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if envPath := os.Getenv("FDC3_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "fdc3", "gateway.yaml")
}

// getDataPath returns the fdc3 data directory.
// Priority: XDG_DATA_HOME/fdc3 > ~/.local/share/fdc3
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "fdc3")
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist and no path was given explicitly.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if cfgFile == "" && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.Finalize(); err != nil {
			return nil, "", err
		}
		return cfg, "(defaults)", nil
	}
	return nil, "", fmt.Errorf("loading config: %w", err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: $FDC3_CONFIG or ~/.config/fdc3/gateway.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before the config is expanded")

	rootCmd.AddCommand(serveCmd, initCmd, healthCmd, channelsCmd, clientsCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
