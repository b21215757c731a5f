package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reviewgate/internal/logging"
	"reviewgate/pkg/config"
	"reviewgate/pkg/detect"
	"reviewgate/pkg/eventlog"
	"reviewgate/pkg/gate"
	"reviewgate/pkg/protocol"
	"reviewgate/pkg/retry"
)

// serveConfig holds flags for the serve command.
type serveConfig struct {
	configPath  string
	dir         string
	response    string
	noHeartbeat bool
}

// newServeCmd creates the "reviewgate serve" subcommand.
func newServeCmd() *cobra.Command {
	var cfg serveConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch for triggers and collect reviewer responses",
		Long: `Runs the reviewer side of the exchange: watches the gate directory
for trigger files, acknowledges them, prompts for a response (or answers
with a fixed --response), and writes the response files the agent reads.

Keeps the freshness marker alive so peers see the reviewer as connected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.response == "" && !isStdinTTY() {
				return fmt.Errorf("interactive serve requires a terminal; use --response for unattended mode")
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&cfg.configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&cfg.dir, "dir", "", "gate directory (overrides config)")
	cmd.Flags().StringVar(&cfg.response, "response", "", "answer every trigger with this fixed text instead of prompting")
	cmd.Flags().BoolVar(&cfg.noHeartbeat, "no-heartbeat", false, "do not refresh the freshness marker")

	return cmd
}

func runServe(ctx context.Context, sc serveConfig, out io.Writer, in io.Reader) error {
	cfg, err := config.Load(sc.configPath)
	if err != nil {
		return err
	}
	if sc.dir != "" {
		cfg.Dir = sc.dir
	}
	gateDir := cfg.Dir
	if gateDir == "" {
		gateDir = protocol.GateDir()
	}
	if err := os.MkdirAll(gateDir, 0o755); err != nil {
		return fmt.Errorf("create gate dir: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	paths, err := ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	if err := os.MkdirAll(paths.Home, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	events, err := eventlog.Open(paths.EventDBPath)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = events.Close() }()

	det, err := detect.New(detect.Config{
		Dir:          gateDir,
		Basenames:    protocol.TriggerCandidates(),
		Debounce:     cfg.Detector.Debounce.Std(),
		PollInterval: cfg.Detector.PollInterval.Std(),
		Mode:         detect.Mode(cfg.Detector.Mode),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("start detector: %w", err)
	}

	var dispatcher gate.Dispatcher
	if sc.response != "" {
		dispatcher = staticDispatcher(sc.response)
	} else {
		dispatcher = &promptDispatcher{in: bufio.NewScanner(in), out: out}
	}

	g := gate.New(gate.Config{
		Dir:       gateDir,
		Retry:     retryPolicy(cfg.Retry),
		DedupeTTL: cfg.DedupeTTL.Std(),
		Rescan:    cfg.Rescan.Std(),
		Logger:    logger,
	}, dispatcher, events)

	logger.Info("serving",
		zap.String("dir", gateDir),
		zap.String("detector", string(det.Mode())),
		zap.String("db", paths.EventDBPath))
	fmt.Fprintf(out, "watching %s (%s mode)\n", gateDir, det.Mode())

	errCh := make(chan error, 3)
	go func() { errCh <- det.Run(ctx) }()
	go func() { errCh <- g.Run(ctx, det.Events()) }()
	if !sc.noHeartbeat {
		go func() { errCh <- g.Heartbeat(ctx, cfg.Client.HeartbeatInterval.Std()) }()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// retryPolicy converts the config section to a retry.Policy.
func retryPolicy(r config.Retry) retry.Policy {
	return retry.Policy{
		Attempts:   r.Attempts,
		Delay:      r.Delay.Std(),
		Multiplier: r.Multiplier,
		MaxDelay:   r.MaxDelay.Std(),
	}
}

// staticDispatcher answers every trigger with fixed text.
func staticDispatcher(text string) gate.DispatcherFunc {
	return func(_ context.Context, trig *protocol.TriggerEnvelope) (*protocol.ResponseEnvelope, error) {
		return protocol.NewResponse(trig.TriggerID, text, nil), nil
	}
}

// promptDispatcher asks the reviewer at the terminal. Prompts are
// serialized so concurrent triggers do not interleave on the console.
type promptDispatcher struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

func (p *promptDispatcher) Dispatch(_ context.Context, trig *protocol.TriggerEnvelope) (*protocol.ResponseEnvelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg := trig.StringField("message"); msg != "" {
		fmt.Fprintf(p.out, "\n%s\n", msg)
	}
	fmt.Fprintf(p.out, "[%s %s]> ", trig.Tool, trig.TriggerID)

	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("input closed before a response was given")
	}
	text := strings.TrimSpace(p.in.Text())
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}
	return protocol.NewResponse(trig.TriggerID, text, nil), nil
}

// isStdinTTY reports whether stdin is attached to a terminal.
func isStdinTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
