package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reviewgate/internal/version"
)

// newRootCmd creates the root reviewgate command with all subcommands
// attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reviewgate",
		Short:         "File-based review exchange between agent and reviewer",
		Long:          "reviewgate runs both legs of the review exchange.\nThe serve side watches for trigger files and collects reviewer responses;\nthe ask side sends a trigger and waits for the answer.",
		Version:       fmt.Sprintf("reviewgate %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newCleanupCmd(),
	)

	return cmd
}
