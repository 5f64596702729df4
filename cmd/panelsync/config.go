package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect daemon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the daemon would run with, after merging
defaults, the config file, PANELSYNC_* environment variables and flags.
Credentials are masked.

Examples:
  # Show the configuration from ./panelsync.yaml
  panelsync config show

  # Check a file before deploying it
  panelsync config show --config /etc/panelsync/panelsync.yaml`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
