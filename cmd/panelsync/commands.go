package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/panelsync/pkg/client"
	"github.com/cuemby/panelsync/pkg/live"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the mirror against the panel now",
	Long: `Ask the daemon to reconcile its mirror against the panel.

Examples:
  # Sync the configured panel
  panelsync sync

  # Sync a different panel
  panelsync sync --panel-url https://panel.example.com --api-key ptla_xxx

  # Load the built-in demo directory (never deletes)
  panelsync sync --demo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		panelURL, _ := cmd.Flags().GetString("panel-url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		demoMode, _ := cmd.Flags().GetBool("demo")

		result, err := apiClient(cmd).Sync(cmd.Context(), client.SyncOptions{
			PanelURL: panelURL,
			APIKey:   apiKey,
			Demo:     demoMode,
		})
		if err != nil {
			return err
		}
		printSyncResult(os.Stdout, result)
		return nil
	},
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Inspect mirrored servers",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		servers, err := apiClient(cmd).ListServers(cmd.Context())
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Println("No servers mirrored yet. Run 'panelsync sync' first.")
			return nil
		}

		rows := make([][]string, 0, len(servers))
		for _, srv := range servers {
			rows = append(rows, []string{
				srv.Identifier,
				srv.Name,
				string(srv.Status),
				limitMB(srv.Limits.Memory),
				limitMB(srv.Limits.Disk),
				srv.PanelURL,
				humanize.Time(srv.LastSyncAt),
			})
		}
		return renderTable(os.Stdout, []any{"IDENTIFIER", "NAME", "STATUS", "MEMORY", "DISK", "PANEL", "LAST SYNC"}, rows)
	},
}

var serversGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one mirrored server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := apiClient(cmd).GetServer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printServer(os.Stdout, srv)
		return nil
	},
}

var powerCmd = &cobra.Command{
	Use:   "power ID ACTION",
	Short: "Send a power signal (start, stop, restart, kill)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, ok := types.ParsePowerAction(args[1])
		if !ok {
			return fmt.Errorf("unknown action %q, expected start, stop, restart or kill", args[1])
		}
		if err := apiClient(cmd).Power(cmd.Context(), args[0], string(action)); err != nil {
			return err
		}
		fmt.Printf("✓ Sent %s to %s\n", action, args[0])
		return nil
	},
}

var liveCmd = &cobra.Command{
	Use:   "live [ID]",
	Short: "Show uptime and resource usage of running servers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)

		var snaps []live.Snapshot
		if len(args) == 1 {
			snap, running, err := c.ServerLive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !running {
				fmt.Printf("%s is not running\n", args[0])
				return nil
			}
			snaps = append(snaps, *snap)
		} else {
			var err error
			if snaps, err = c.Live(cmd.Context()); err != nil {
				return err
			}
		}
		if len(snaps) == 0 {
			fmt.Println("No running servers.")
			return nil
		}

		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			rows = append(rows, []string{
				s.Identifier,
				s.Uptime,
				fmt.Sprintf("%.1f%%", s.CPUPercent),
				usage(s.MemoryBytes, s.MemoryLimitBytes),
				usage(s.DiskBytes, s.DiskLimitBytes),
				humanize.IBytes(uint64(s.NetworkRxBytes)),
				humanize.IBytes(uint64(s.NetworkTxBytes)),
			})
		}
		return renderTable(os.Stdout, []any{"IDENTIFIER", "UPTIME", "CPU", "MEMORY", "DISK", "NET RX", "NET TX"}, rows)
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Probe every connection strategy against the configured panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := apiClient(cmd).Diagnose(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Panel: %s\n\n", d.PanelURL)
		var rows [][]string
		var guidance []string
		for _, r := range d.Strategies {
			result := "ok"
			if !r.Success {
				result = string(r.Kind)
			}
			status := "-"
			if r.Status != 0 {
				status = strconv.Itoa(r.Status)
			}
			rows = append(rows, []string{string(r.Method), result, status, fmt.Sprintf("%dms", r.LatencyMS), r.Error})
			if r.Guidance != "" && !slices.Contains(guidance, r.Guidance) {
				guidance = append(guidance, r.Guidance)
			}
		}
		if err := renderTable(os.Stdout, []any{"STRATEGY", "RESULT", "HTTP", "LATENCY", "ERROR"}, rows); err != nil {
			return err
		}
		for _, g := range guidance {
			fmt.Printf("\nhint: %s\n", g)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().String("panel-url", "", "Panel base URL (default: the daemon's configured panel)")
	syncCmd.Flags().String("api-key", "", "Panel application API key")
	syncCmd.Flags().Bool("demo", false, "Load the built-in demo directory instead of a panel")

	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversGetCmd)
}

func printSyncResult(w io.Writer, r *types.SyncResult) {
	source := r.PanelURL
	if r.Demo {
		source = "demo directory"
	}
	fmt.Fprintf(w, "✓ Synced %d servers from %s in %s\n", r.TotalSynced, source, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  Created: %d %s\n", r.Created, idList(r.CreatedIDs))
	fmt.Fprintf(w, "  Updated: %d %s\n", r.Updated, idList(r.UpdatedIDs))
	fmt.Fprintf(w, "  Deleted: %d %s\n", r.Deleted, idList(r.DeletedIDs))
}

func printServer(w io.Writer, s *types.MirroredServer) {
	fmt.Fprintf(w, "Identifier:   %s\n", s.Identifier)
	fmt.Fprintf(w, "Name:         %s\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(w, "Description:  %s\n", s.Description)
	}
	fmt.Fprintf(w, "Status:       %s (panel: %s)\n", s.Status, orDash(s.UpstreamStatus))
	fmt.Fprintf(w, "Suspended:    %t\n", s.Suspended)
	fmt.Fprintf(w, "Panel:        %s (id %d, uuid %s)\n", s.PanelURL, s.PanelID, orDash(s.UUID))
	fmt.Fprintf(w, "Node/Nest/Egg: %d/%d/%d\n", s.NodeID, s.NestID, s.EggID)
	fmt.Fprintf(w, "Limits:       memory %s, swap %s, disk %s, cpu %d%%, io %d\n",
		limitMB(s.Limits.Memory), limitMB(s.Limits.Swap), limitMB(s.Limits.Disk), s.Limits.CPU, s.Limits.IO)
	fmt.Fprintf(w, "Features:     %d allocations, %d backups, %d databases\n",
		s.FeatureLimits.Allocations, s.FeatureLimits.Backups, s.FeatureLimits.Databases)
	if s.Container.Image != "" {
		fmt.Fprintf(w, "Image:        %s\n", s.Container.Image)
	}
	fmt.Fprintf(w, "Last sync:    %s\n", humanize.Time(s.LastSyncAt))
}

// limitMB formats a panel limit given in MB; 0 means unlimited
func limitMB(mb int) string {
	if mb <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(mb) * 1024 * 1024)
}

func usage(used, limit int64) string {
	if used < 0 {
		used = 0
	}
	if limit <= 0 {
		return humanize.IBytes(uint64(used))
	}
	return humanize.IBytes(uint64(used)) + " / " + humanize.IBytes(uint64(limit))
}

func idList(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return "[" + strings.Join(ids, ", ") + "]"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderTable(w io.Writer, header []any, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(header...)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
