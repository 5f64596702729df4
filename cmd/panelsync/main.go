package main

import (
	"fmt"
	"os"

	"github.com/cuemby/panelsync/pkg/client"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "panelsync",
	Short: "panelsync - mirror a game server panel into a local store",
	Long: `panelsync keeps a local mirror of the servers managed by a remote
game server panel, reaches the panel through a chain of connection
strategies when an edge firewall is in the way, and tracks live uptime
and resource usage of running servers.

Run "panelsync serve" to start the daemon; the other commands talk to it
over its HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("panelsync version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"panelsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Config file (default panelsync.yaml in . or /etc/panelsync)")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "panelsync API address for client commands")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(powerCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(diagnoseCmd)
}

// apiClient builds a client for the --server flag
func apiClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.NewClient(server)
}
