// Package gate implements the front-end side of the exchange: it consumes
// trigger files the agent process drops into the gate directory, validates
// and de-duplicates them, acknowledges receipt, hands the envelope to the
// dispatch collaborator, and writes the response files the agent reads
// back. Each trigger moves through detected, validating, dispatched or
// discarded, acknowledged, and cleaned up.
package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"reviewgate/pkg/cache"
	"reviewgate/pkg/eventlog"
	"reviewgate/pkg/pool"
	"reviewgate/pkg/protocol"
	"reviewgate/pkg/retry"
)

// Dispatcher is the consuming logic behind the gate (in production, the
// interactive popup). It receives a validated trigger and eventually
// produces the response text and attachments. What it does in between is
// not the gate's business.
type Dispatcher interface {
	Dispatch(ctx context.Context, trig *protocol.TriggerEnvelope) (*protocol.ResponseEnvelope, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, trig *protocol.TriggerEnvelope) (*protocol.ResponseEnvelope, error)

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, trig *protocol.TriggerEnvelope) (*protocol.ResponseEnvelope, error) {
	return f(ctx, trig)
}

// Config holds gate configuration.
type Config struct {
	Dir       string        // Gate directory (default protocol.GateDir()).
	System    string        // Expected system origin tag (default protocol.SystemTag).
	Editor    string        // Expected editor origin tag (default protocol.EditorTag).
	Retry     retry.Policy  // Policy for acks, dispatch, and response writes.
	DedupeTTL time.Duration // How long a trigger_id stays in the seen set (default 10m).
	Rescan    time.Duration // Fallback scan interval when no signals arrive (default 5s).
	Logger    *zap.Logger   // Optional; nil disables logging.
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
	if out.DedupeTTL <= 0 {
		out.DedupeTTL = 10 * time.Minute
	}
	if out.Rescan <= 0 {
		out.Rescan = 5 * time.Second
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// Gate is the trigger processor.
type Gate struct {
	cfg        Config
	dispatcher Dispatcher
	pool       *pool.Pool
	seen       *cache.Cache // trigger_id -> struct{}; dedupe across naming patterns
	events     *eventlog.Log

	wg sync.WaitGroup
}

// New creates a Gate. events may be nil to disable persistence of the
// exchange history.
func New(cfg Config, dispatcher Dispatcher, events *eventlog.Log) *Gate {
	return &Gate{
		cfg:        cfg.withDefaults(),
		dispatcher: dispatcher,
		pool:       pool.New(),
		seen:       cache.New(),
		events:     events,
	}
}

// Pool exposes the connection pool for diagnostics.
func (g *Gate) Pool() *pool.Pool { return g.pool }

// Run processes triggers until ctx is cancelled, scanning on each detector
// signal and on a fallback tick. In-flight dispatches are waited for on
// shutdown.
func (g *Gate) Run(ctx context.Context, signals <-chan struct{}) error {
	ticker := time.NewTicker(g.cfg.Rescan)
	defer ticker.Stop()

	// Catch anything written before the detector came up.
	g.ScanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			g.wg.Wait()
			return nil
		case _, ok := <-signals:
			if !ok {
				g.wg.Wait()
				return nil
			}
			g.ScanOnce(ctx)
		case <-ticker.C:
			g.ScanOnce(ctx)
		}
	}
}

// Heartbeat keeps the freshness marker's mtime recent until ctx is
// cancelled, so peers checking connection health see us as alive. The
// first beat is written immediately.
func (g *Gate) Heartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if err := g.touchMarker(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := g.touchMarker(); err != nil {
				g.cfg.Logger.Warn("marker heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (g *Gate) touchMarker() error {
	path := filepath.Join(g.cfg.Dir, protocol.MarkerFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open marker: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "alive %s\n", time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("append marker: %w", err)
	}
	return nil
}

// ScanOnce examines every trigger candidate file currently present.
func (g *Gate) ScanOnce(ctx context.Context) {
	for _, base := range protocol.TriggerCandidates() {
		path := filepath.Join(g.cfg.Dir, base)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		g.processFile(ctx, path)
	}
}

// processFile runs one candidate file through the validation pipeline.
func (g *Gate) processFile(ctx context.Context, path string) {
	trig, ok := g.validate(ctx, path)
	if !ok {
		return
	}

	// De-duplicate by trigger_id: several physical files may carry the
	// same logical trigger, and detection order across them is not
	// guaranteed. First one in wins; the rest only lose their file.
	if _, dup := g.seen.Get(trig.TriggerID); dup {
		g.removeTriggerFile(path)
		return
	}
	g.seen.Set(trig.TriggerID, struct{}{}, g.cfg.DedupeTTL)

	g.record(ctx, eventlog.TypeDetected, trig.TriggerID, trig.Tool, filepath.Base(path))
	g.cfg.Logger.Info("trigger detected",
		zap.String("trigger_id", trig.TriggerID), zap.String("tool", trig.Tool))

	connID := g.pool.Acquire(trig.TriggerID)

	// Acknowledge before the (potentially slow, human-paced) dispatch so
	// the agent can tell "received" from "still waiting".
	if err := g.writeAck(ctx, trig); err != nil {
		g.cfg.Logger.Error("ack write failed", zap.String("trigger_id", trig.TriggerID), zap.Error(err))
		g.record(ctx, eventlog.TypeError, trig.TriggerID, trig.Tool, "ack: "+err.Error())
	} else {
		g.record(ctx, eventlog.TypeAcked, trig.TriggerID, trig.Tool, "")
	}

	// The trigger is consumed exactly once: its files go away now, even
	// if dispatch later fails. Failure travels on the response channel.
	g.removeLogicalTrigger(trig.TriggerID, path)
	g.record(ctx, eventlog.TypeCleaned, trig.TriggerID, trig.Tool, "")

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.dispatchAndRespond(ctx, trig, connID)
	}()
}

// validate reads and decodes the file. It returns ok=false when the file
// should not be dispatched; malformed and foreign envelopes are removed so
// they cannot loop, while partially-written files are left for the next
// scan.
func (g *Gate) validate(ctx context.Context, path string) (*protocol.TriggerEnvelope, bool) {
	trig, err := retry.DoValue(ctx, g.cfg.Retry, func() (*protocol.TriggerEnvelope, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		t, err := protocol.DecodeTrigger(data)
		if err != nil && !protocol.IsTruncated(err) {
			// Structurally invalid content will not improve with time.
			return nil, &retry.Permanent{Err: err}
		}
		return t, err
	})
	if err != nil {
		if protocol.IsTruncated(err) {
			// Still being written; a later signal will retry it.
			g.cfg.Logger.Debug("trigger file still truncated", zap.String("path", path))
			return nil, false
		}
		if errors.Is(err, os.ErrNotExist) {
			// Consumed by a concurrent scan.
			return nil, false
		}
		g.discard(ctx, path, "undecodable: "+err.Error())
		return nil, false
	}

	if !trig.Valid() {
		g.discard(ctx, path, "missing tool or trigger_id")
		return nil, false
	}
	if !trig.MatchesOrigin(g.cfg.System, g.cfg.Editor) {
		g.discard(ctx, path, "foreign origin tags")
		return nil, false
	}
	return trig, true
}

// discard silently drops a malformed or foreign file. Not a fault: the
// file is removed so it cannot be reprocessed, and only the event log
// remembers it existed.
func (g *Gate) discard(ctx context.Context, path, reason string) {
	g.removeTriggerFile(path)
	g.record(ctx, eventlog.TypeDiscarded, "", "", reason)
	g.cfg.Logger.Debug("trigger discarded", zap.String("path", path), zap.String("reason", reason))
}

// dispatchAndRespond hands the trigger to the consuming logic and writes
// the response files. A dispatch failure becomes a failure response so the
// exchange always completes.
func (g *Gate) dispatchAndRespond(ctx context.Context, trig *protocol.TriggerEnvelope, connID string) {
	g.record(ctx, eventlog.TypeDispatched, trig.TriggerID, trig.Tool, "")

	resp, err := retry.DoValue(ctx, g.cfg.Retry, func() (*protocol.ResponseEnvelope, error) {
		r, err := g.dispatcher.Dispatch(ctx, trig)
		if err != nil {
			g.pool.RecordRetry(connID)
		}
		return r, err
	})
	if err != nil {
		g.cfg.Logger.Warn("dispatch failed",
			zap.String("trigger_id", trig.TriggerID), zap.Error(err))
		resp = protocol.NewFailureResponse(trig.TriggerID, err)
	}
	if resp.TriggerID == "" {
		resp.TriggerID = trig.TriggerID
	}

	if err := g.writeResponse(ctx, resp); err != nil {
		g.cfg.Logger.Error("response write failed",
			zap.String("trigger_id", trig.TriggerID), zap.Error(err))
		g.record(ctx, eventlog.TypeError, trig.TriggerID, trig.Tool, "response: "+err.Error())
	} else {
		g.record(ctx, eventlog.TypeResponded, trig.TriggerID, trig.Tool, "")
	}

	if err := g.pool.Release(connID); err != nil {
		g.cfg.Logger.Warn("pool release", zap.Error(err))
	}
	g.pool.Prune(g.cfg.DedupeTTL)
}

// writeAck writes the acknowledgment file, retried because the peer may be
// mid-rotation of the directory or the file may be transiently locked.
func (g *Gate) writeAck(ctx context.Context, trig *protocol.TriggerEnvelope) error {
	data, err := protocol.EncodeAck(protocol.NewAck(trig.TriggerID, trig.Tool))
	if err != nil {
		return err
	}
	path := filepath.Join(g.cfg.Dir, protocol.AckFileName(trig.TriggerID))
	return retry.Do(ctx, g.cfg.Retry, func() error {
		return protocol.AtomicWriteFile(path, data)
	})
}

// writeResponse writes the identical encoded payload under every
// compatibility naming pattern, each atomically. Readers scanning any
// pattern see either nothing or the full payload.
func (g *Gate) writeResponse(ctx context.Context, resp *protocol.ResponseEnvelope) error {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	for _, base := range protocol.ResponsePatterns(resp.TriggerID) {
		path := filepath.Join(g.cfg.Dir, base)
		if err := retry.Do(ctx, g.cfg.Retry, func() error {
			return protocol.AtomicWriteFile(path, data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// removeLogicalTrigger unlinks the processed file and any other candidate
// file carrying the same trigger_id (the numbered copies of one logical
// event). Candidate files holding a different trigger_id are left alone so
// distinct concurrent triggers are not lost.
func (g *Gate) removeLogicalTrigger(triggerID, processedPath string) {
	for _, base := range protocol.TriggerCandidates() {
		path := filepath.Join(g.cfg.Dir, base)
		if path == processedPath {
			g.removeTriggerFile(path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		dup, err := protocol.DecodeTrigger(data)
		if err == nil && dup.TriggerID == triggerID {
			g.removeTriggerFile(path)
		}
	}
}

func (g *Gate) removeTriggerFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.cfg.Logger.Warn("remove trigger file", zap.String("path", path), zap.Error(err))
	}
}

// record appends to the event log when one is attached.
func (g *Gate) record(ctx context.Context, evType, triggerID, tool, detail string) {
	if g.events == nil {
		return
	}
	if err := g.events.Record(ctx, evType, triggerID, tool, detail); err != nil {
		g.cfg.Logger.Warn("event log", zap.Error(err))
	}
}
