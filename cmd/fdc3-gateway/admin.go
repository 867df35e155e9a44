// ABOUTME: Subcommands that inspect a running gateway through its HTTP API
// ABOUTME: health checks liveness; channels and clients print tables of live state

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/fdc3-gateway/internal/agent"
	"github.com/2389/fdc3-gateway/internal/channels"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body, err := apiGet(cmd.Context(), "/health/ready")
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		color.Green("healthy: %s", strings.TrimSpace(string(body)))
		return nil
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels with their members and context types",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var infos []channels.Info
		if err := apiGetJSON(cmd.Context(), "/api/channels", &infos); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tMEMBERS\tCONTEXT TYPES")
		for _, ch := range infos {
			types := strings.Join(ch.ContextTypes, ",")
			if types == "" {
				types = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", ch.ID, ch.Type, len(ch.Members), types)
		}
		return tw.Flush()
	},
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List connected apps",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var infos []*agent.Info
		if err := apiGetJSON(cmd.Context(), "/api/clients", &infos); err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no apps connected")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tAPP\tTAB\tTRANSPORT\tCONNECTED")
		for _, c := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				c.ID, c.AppName, c.TabID, c.Transport, c.ConnectedAt.Format("15:04:05"))
		}
		return tw.Flush()
	},
}

// apiGet fetches path from the gateway named by the loaded config.
func apiGet(ctx context.Context, path string) ([]byte, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func apiGetJSON(ctx context.Context, path string, out any) error {
	body, err := apiGet(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
