package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"reviewgate/pkg/eventlog"
	"reviewgate/pkg/monitor"
	"reviewgate/pkg/protocol"
)

// connState is the connection status plus marker age for display.
type connState struct {
	Status    protocol.Status
	MarkerAge time.Duration // zero when the marker is missing
}

// readState reports the shared monitor's view of the connection plus the
// marker's current age. The monitor's own state machine persists across
// reads; this never resets it.
func readState(mon *monitor.Monitor, markerPath string) connState {
	state := connState{Status: mon.Check()}
	if info, err := os.Stat(markerPath); err == nil {
		state.MarkerAge = time.Since(info.ModTime())
	}
	return state
}

// fetchEvents reads the most recent events from the exchange history.
// A missing or unreadable database yields an empty slice; the dashboard
// renders what it can.
func fetchEvents(ctx context.Context, dbPath string, limit int) []eventlog.Event {
	log, err := eventlog.Open(dbPath)
	if err != nil {
		return nil
	}
	defer func() { _ = log.Close() }()

	events, err := log.Query(ctx, eventlog.QueryOpts{Limit: limit})
	if err != nil {
		return nil
	}
	return events
}

// defaultDBPath returns the event database path from env or default.
func defaultDBPath() string {
	if v := os.Getenv("REVIEW_GATE_DB_PATH"); v != "" {
		return v
	}
	base := os.Getenv("REVIEW_GATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".reviewgate")
	}
	return filepath.Join(base, "events.db")
}
