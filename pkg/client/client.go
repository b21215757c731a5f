// Package client implements the agent-side leg of the exchange: it writes
// trigger files into the gate directory, waits for the front-end's
// acknowledgment and response, keeps the freshness marker alive with a
// heartbeat, and cleans up stale artifacts. It is the peer the gate
// package serves.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reviewgate/pkg/protocol"
	"reviewgate/pkg/retry"
)

// Config holds client configuration.
type Config struct {
	Dir               string        // Gate directory (default protocol.GateDir()).
	System            string        // Origin tag stamped on triggers (default protocol.SystemTag).
	Editor            string        // Origin tag stamped on triggers (default protocol.EditorTag).
	Retry             retry.Policy  // Policy for file writes.
	AckTimeout        time.Duration // How long to wait for the ack (default 30s).
	ResponseTimeout   time.Duration // How long to wait for the response (default 5m).
	PollInterval      time.Duration // Ack/response poll cadence (default 100ms).
	HeartbeatInterval time.Duration // Marker refresh cadence (default 10s).
	Logger            *zap.Logger   // Optional; nil disables logging.
}

func (c Config) withDefaults() Config {
	out := c
	if out.Dir == "" {
		out.Dir = protocol.GateDir()
	}
	if out.System == "" {
		out.System = protocol.SystemTag
	}
	if out.Editor == "" {
		out.Editor = protocol.EditorTag
	}
	if out.AckTimeout <= 0 {
		out.AckTimeout = 30 * time.Second
	}
	if out.ResponseTimeout <= 0 {
		out.ResponseTimeout = 5 * time.Minute
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 100 * time.Millisecond
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// ErrResponseTimeout is returned when no response arrives in time. The
// reader's timeout is the only thing that resolves a trigger nobody
// answers.
var ErrResponseTimeout = errors.New("timed out waiting for response")

// Client is the agent-side sender/reader.
type Client struct {
	cfg Config
}

// New creates a client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// NewTriggerID returns a fresh unique trigger correlation ID.
func NewTriggerID() string {
	return "review_" + uuid.New().String()
}

// SendTrigger stamps origin tags and a timestamp onto trig and writes it
// under the canonical trigger name plus every numbered backup copy, each
// atomically. Missing Tool or TriggerID is the caller's bug and an error
// here, not something the peer should silently eat.
func (c *Client) SendTrigger(ctx context.Context, trig *protocol.TriggerEnvelope) error {
	if !trig.Valid() {
		return fmt.Errorf("send trigger: tool and trigger_id are required")
	}
	if trig.System == "" {
		trig.System = c.cfg.System
	}
	if trig.Editor == "" {
		trig.Editor = c.cfg.Editor
	}
	if trig.Timestamp == "" {
		trig.Timestamp = time.Now().Format(time.RFC3339)
	}

	data, err := protocol.EncodeTrigger(trig)
	if err != nil {
		return err
	}

	names := protocol.TriggerCandidates()
	for _, base := range names {
		path := filepath.Join(c.cfg.Dir, base)
		if err := retry.Do(ctx, c.cfg.Retry, func() error {
			return protocol.AtomicWriteFile(path, data)
		}); err != nil {
			return fmt.Errorf("write trigger %s: %w", base, err)
		}
	}
	c.cfg.Logger.Info("trigger sent",
		zap.String("trigger_id", trig.TriggerID), zap.String("tool", trig.Tool))
	return nil
}

// AwaitAck polls for the acknowledgment file and consumes it. It returns
// false when the front-end never acknowledged within the timeout; that is
// advisory, not fatal, since the response may still arrive.
func (c *Client) AwaitAck(ctx context.Context, triggerID string) (bool, error) {
	path := filepath.Join(c.cfg.Dir, protocol.AckFileName(triggerID))
	deadline := time.Now().Add(c.cfg.AckTimeout)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		ack, err := protocol.DecodeAck(data)
		if err != nil {
			if protocol.IsTruncated(err) {
				continue // caught mid-write, next poll gets the rest
			}
			_ = os.Remove(path)
			return false, err
		}
		_ = os.Remove(path)
		return ack.Acknowledged, nil
	}
	c.cfg.Logger.Warn("no acknowledgment received", zap.String("trigger_id", triggerID))
	return false, nil
}

// AwaitResponse polls every response naming pattern for triggerID,
// consuming and returning the first match. Files carrying a different
// trigger_id are left alone; a payload that is not JSON is taken as plain
// text, which older front-ends produce.
func (c *Client) AwaitResponse(ctx context.Context, triggerID string) (*protocol.ResponseEnvelope, error) {
	patterns := protocol.ResponsePatterns(triggerID)
	deadline := time.Now().Add(c.cfg.ResponseTimeout)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		for _, base := range patterns {
			path := filepath.Join(c.cfg.Dir, base)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}

			resp, err := protocol.DecodeResponse(data)
			switch {
			case err == nil:
				if resp.TriggerID != "" && resp.TriggerID != triggerID {
					continue // someone else's response
				}
			case protocol.IsTruncated(err):
				continue
			default:
				// Plain-text compatibility: the whole file is the payload.
				text := strings.TrimSpace(string(data))
				if text == "" || strings.HasPrefix(text, "{") {
					continue
				}
				resp = protocol.NewResponse(triggerID, text, nil)
			}

			if resp.Text() == "" {
				continue
			}
			_ = os.Remove(path)
			c.cfg.Logger.Info("response received", zap.String("trigger_id", triggerID))
			return resp, nil
		}
	}
	return nil, fmt.Errorf("%w: trigger %s", ErrResponseTimeout, triggerID)
}

// Ask performs a whole exchange: send the trigger, wait for the ack, wait
// for the response.
func (c *Client) Ask(ctx context.Context, trig *protocol.TriggerEnvelope) (*protocol.ResponseEnvelope, error) {
	if trig.TriggerID == "" {
		trig.TriggerID = NewTriggerID()
	}
	if err := c.SendTrigger(ctx, trig); err != nil {
		return nil, err
	}
	if _, err := c.AwaitAck(ctx, trig.TriggerID); err != nil {
		return nil, err
	}
	return c.AwaitResponse(ctx, trig.TriggerID)
}

// Heartbeat appends to the freshness marker on every interval so the peer
// observes a recent mtime, until ctx is cancelled. The first beat is
// written immediately.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.beat(); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.beat(); err != nil {
				c.cfg.Logger.Warn("heartbeat write failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) beat() error {
	path := filepath.Join(c.cfg.Dir, protocol.MarkerFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open marker: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "heartbeat %s\n", time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("append marker: %w", err)
	}
	return nil
}

// WriteProgress publishes a transient progress update for the front-end.
func (c *Client) WriteProgress(u protocol.ProgressUpdate) error {
	data, err := json.MarshalIndent(protocol.NewProgress(u), "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return protocol.AtomicWriteFile(filepath.Join(c.cfg.Dir, protocol.ProgressFileName), data)
}

// ClearProgress removes the progress file if present.
func (c *Client) ClearProgress() error {
	err := os.Remove(filepath.Join(c.cfg.Dir, protocol.ProgressFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleanup removes trigger files unconditionally and any gate artifact
// (acks, responses, progress) older than maxAge. It returns how many
// files were removed.
func (c *Client) Cleanup(maxAge time.Duration) (int, error) {
	removed := 0

	for _, base := range protocol.TriggerCandidates() {
		if err := os.Remove(filepath.Join(c.cfg.Dir, base)); err == nil {
			removed++
		}
	}

	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return removed, fmt.Errorf("read gate dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		name := e.Name()
		if !staleCandidate(name) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.cfg.Dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// staleCandidate reports whether name is a gate artifact eligible for
// age-based cleanup. The freshness marker is excluded: deleting it would
// flip the peer's status.
func staleCandidate(name string) bool {
	if name == protocol.ProgressFileName {
		return true
	}
	if strings.HasPrefix(name, "review_gate_ack_") && strings.HasSuffix(name, ".json") {
		return true
	}
	if strings.HasPrefix(name, "review_gate_response") && strings.HasSuffix(name, ".json") {
		return true
	}
	if strings.HasPrefix(name, "mcp_response") && strings.HasSuffix(name, ".json") {
		return true
	}
	return false
}
