package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"reviewgate/internal/logging"
	"reviewgate/pkg/client"
	"reviewgate/pkg/config"
	"reviewgate/pkg/monitor"
	"reviewgate/pkg/protocol"
)

// askConfig holds flags for the ask command.
type askConfig struct {
	configPath string
	dir        string
	tool       string
	message    string
	timeout    time.Duration
	skipCheck  bool
}

// newAskCmd creates the "reviewgate ask" subcommand.
func newAskCmd() *cobra.Command {
	var cfg askConfig

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a trigger and wait for the reviewer's response",
		Long: `Runs the agent side of the exchange: checks that a reviewer is
connected, writes a trigger file, waits for the acknowledgment, then waits
for the reviewer's response and prints it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.message = args[0]
			}
			if cfg.message == "" {
				return fmt.Errorf("a message is required")
			}
			return runAsk(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&cfg.dir, "dir", "", "gate directory (overrides config)")
	cmd.Flags().StringVar(&cfg.tool, "tool", "review_gate_chat", "tool name stamped on the trigger")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 0, "bound the ack and response waits (overrides config)")
	cmd.Flags().BoolVar(&cfg.skipCheck, "skip-check", false, "send even when no reviewer appears connected")

	return cmd
}

func runAsk(cmd *cobra.Command, ac askConfig) error {
	cfg, err := config.Load(ac.configPath)
	if err != nil {
		return err
	}
	if ac.dir != "" {
		cfg.Dir = ac.dir
	}
	gateDir := cfg.Dir
	if gateDir == "" {
		gateDir = protocol.GateDir()
	}
	responseTimeout := cfg.Client.ResponseTimeout.Std()
	ackTimeout := cfg.Client.AckTimeout.Std()
	if ac.timeout > 0 {
		responseTimeout = ac.timeout
		if ac.timeout < ackTimeout {
			ackTimeout = ac.timeout
		}
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	w := cmd.OutOrStdout()

	if !ac.skipCheck {
		mon := monitor.New(monitor.Config{
			MarkerPath:      filepath.Join(gateDir, protocol.MarkerFileName),
			ActiveThreshold: cfg.Monitor.ActiveThreshold.Std(),
			CacheTTL:        cfg.Monitor.CacheTTL.Std(),
			Logger:          logger,
		})
		if status := mon.Refresh(); !status.Healthy() {
			fmt.Fprintf(w, "warning: reviewer looks %s; the response may never arrive\n", status)
		}
	}

	c := client.New(client.Config{
		Dir:             gateDir,
		Retry:           retryPolicy(cfg.Retry),
		AckTimeout:      ackTimeout,
		ResponseTimeout: responseTimeout,
		Logger:          logger,
	})

	trig := &protocol.TriggerEnvelope{
		Tool:      ac.tool,
		TriggerID: client.NewTriggerID(),
		Extra: map[string]json.RawMessage{
			"message": mustJSONString(ac.message),
		},
	}

	resp, err := c.Ask(cmd.Context(), trig)
	if err != nil {
		return err
	}
	printResponse(w, resp)
	return nil
}

func printResponse(w io.Writer, resp *protocol.ResponseEnvelope) {
	fmt.Fprintln(w, resp.Text())
	for _, a := range resp.Attachments {
		fmt.Fprintf(w, "attachment: %s (%s)\n", a.FileName, a.MimeType)
	}
}

// mustJSONString encodes s as a JSON string. Marshal of a string cannot
// fail.
func mustJSONString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
