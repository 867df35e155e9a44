// ABOUTME: serve subcommand: prints the banner, builds the logger and runs the gateway
// ABOUTME: Blocks until SIGINT or SIGTERM, then shuts down gracefully

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/fdc3-gateway/internal/gateway"
)

const banner = `
  __    _      _____                 _
 / _|__| |___ |___ /   __ _  __ _ __| |_ ___ __ ____ _ _  _
|  _/ _' / __|  |_ \  / _' |/ _' |_   _/ -_)\ V  V / _' | || |
|_| \__,_\___| |___/  \__, |\__,_| |_| \___| \_/\_/\__,_|\_, |
                      |___/                              |__/
`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the desktop agent",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s (apps at ws://%s%s)\n", cfg.Server.HTTPAddr, cfg.Server.HTTPAddr, gateway.WebSocketPath)
	green.Print("    ▶ ")
	if cfg.Server.GRPCAddr != "" {
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	} else {
		gray.Println("gRPC:      disabled")
	}
	green.Print("    ▶ ")
	switch {
	case cfg.Directory.URL != "":
		fmt.Printf("Directory: %s\n", cfg.Directory.URL)
	case cfg.Directory.File != "":
		fmt.Printf("Directory: %s\n", cfg.Directory.File)
	default:
		gray.Println("Directory: none")
	}
	green.Print("    ▶ ")
	fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting fdc3-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"intent_resolution", cfg.Agent.IntentResolution,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(cmd.Context())
}
