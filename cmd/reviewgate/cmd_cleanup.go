package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reviewgate/pkg/client"
	"reviewgate/pkg/config"
	"reviewgate/pkg/protocol"
)

// newCleanupCmd creates the "reviewgate cleanup" subcommand.
func newCleanupCmd() *cobra.Command {
	var (
		configPath string
		dir        string
		maxAge     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale exchange files from the gate directory",
		Long: `Removes all trigger files and any acknowledgment, response, or
progress file older than --max-age. The freshness marker is never touched.

Safe to run anytime.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Dir = dir
			}
			gateDir := cfg.Dir
			if gateDir == "" {
				gateDir = protocol.GateDir()
			}

			c := client.New(client.Config{Dir: gateDir})
			removed, err := c.Cleanup(maxAge)
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to clean")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale file(s) from %s\n", removed, gateDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&dir, "dir", "", "gate directory (overrides config)")
	cmd.Flags().DurationVar(&maxAge, "max-age", 5*time.Minute, "age beyond which acks and responses are removed")

	return cmd
}
