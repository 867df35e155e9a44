// ABOUTME: init subcommand: interactively writes a gateway config file
// ABOUTME: Every prompt defaults to the built-in configuration

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/fdc3-gateway/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new config file interactively",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runInit(bufio.NewReader(cmd.InOrStdin()))
	},
}

func runInit(reader *bufio.Reader) error {
	fmt.Println("fdc3-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	cfg := config.Default()
	defaultDBPath := filepath.Join(getDataPath(), "ledger.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	cfg.Server.HTTPAddr = prompt(reader, "HTTP address", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = prompt(reader, "gRPC address (\"off\" disables)", cfg.Server.GRPCAddr)
	if cfg.Server.GRPCAddr == "off" {
		cfg.Server.GRPCAddr = ""
	}
	if origins := prompt(reader, "Allowed WebSocket origins (comma separated, * for all)", "*"); origins != "*" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}

	fmt.Println("\n--- App Directory ---")
	cfg.Directory.URL = prompt(reader, "Directory URL (empty for none)", "")
	if cfg.Directory.URL == "" {
		cfg.Directory.File = prompt(reader, "Directory file (empty for none)", "")
	}

	fmt.Println("\n--- Ledger ---")
	cfg.Database.Path = prompt(reader, "SQLite database path (:memory: keeps nothing)", defaultDBPath)

	fmt.Println("\n--- Intents ---")
	cfg.Agent.IntentResolution = prompt(reader, "Resolution policy (first/round_robin)", cfg.Agent.IntentResolution)

	fmt.Println("\n--- Logging ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", cfg.Logging.Format)

	if err := cfg.Finalize(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.Write(outputFile, cfg); err != nil {
		return err
	}
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the agent:")
	fmt.Printf("  fdc3-gateway serve --config %s\n", outputFile)
	return nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	if input = strings.TrimSpace(input); input == "" {
		return defaultVal
	}
	return input
}
