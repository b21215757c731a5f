package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"reviewgate/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail      int
	follow    bool
	eventType string
}

// newLogsCmd creates the "reviewgate logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs [trigger-id]",
		Short: "Query and tail exchange event history",
		Long:  "Displays events from the exchange event log.\nOptionally filter by trigger-id or event type and follow new events.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var triggerID string
			if len(args) == 1 {
				triggerID = args[0]
			}

			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			log, err := eventlog.Open(paths.EventDBPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer func() { _ = log.Close() }()

			w := cmd.OutOrStdout()
			if cfg.follow {
				return followLogs(cmd.Context(), log, w, triggerID, cfg)
			}
			return printLogs(cmd.Context(), log, w, triggerID, cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "filter by event type (detected, dispatched, responded, ...)")

	return cmd
}

// printLogs queries and displays the last N events.
func printLogs(ctx context.Context, log *eventlog.Log, w io.Writer, triggerID string, cfg logsConfig) error {
	events, err := log.Query(ctx, eventlog.QueryOpts{
		TriggerID: triggerID,
		EventType: cfg.eventType,
		Limit:     cfg.tail,
	})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	for _, evt := range events {
		formatEvent(w, &evt)
	}
	return nil
}

// followLogs prints the initial batch, then polls for newer events until
// ctx is cancelled.
func followLogs(ctx context.Context, log *eventlog.Log, w io.Writer, triggerID string, cfg logsConfig) error {
	events, err := log.Query(ctx, eventlog.QueryOpts{
		TriggerID: triggerID,
		EventType: cfg.eventType,
		Limit:     cfg.tail,
	})
	if err != nil {
		return err
	}

	// Track the last printed row id; created_at only has second resolution,
	// so filtering on it would skip rows written in the same second.
	var lastID int64
	for _, evt := range events {
		formatEvent(w, &evt)
		lastID = evt.ID
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		events, err := log.Query(ctx, eventlog.QueryOpts{
			TriggerID: triggerID,
			EventType: cfg.eventType,
			AfterID:   lastID,
		})
		if err != nil {
			return err
		}
		for _, evt := range events {
			formatEvent(w, &evt)
			lastID = evt.ID
		}
	}
}

// formatEvent writes one event line.
func formatEvent(w io.Writer, evt *eventlog.Event) {
	line := fmt.Sprintf("%s  %-10s", evt.CreatedAt.Format("2006-01-02 15:04:05"), evt.Type)
	if evt.TriggerID != "" {
		line += "  " + evt.TriggerID
	}
	if evt.Tool != "" {
		line += "  [" + evt.Tool + "]"
	}
	if evt.Detail != "" {
		line += "  " + evt.Detail
	}
	fmt.Fprintln(w, line)
}
