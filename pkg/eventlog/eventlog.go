// Package eventlog persists the exchange history (trigger detected,
// dispatched, acknowledged, discarded, status transitions) to a SQLite
// database so the logs command and the dashboard can inspect it without
// talking to the running daemon.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Event types recorded by the daemon.
const (
	TypeDetected   = "detected"
	TypeDispatched = "dispatched"
	TypeAcked      = "acked"
	TypeDiscarded  = "discarded"
	TypeResponded  = "responded"
	TypeCleaned    = "cleaned"
	TypeStatus     = "status"
	TypeError      = "error"
)

// schemaDDL creates the events table. WAL keeps the reader side (logs,
// dash) from blocking the writer.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	trigger_id TEXT NOT NULL DEFAULT '',
	tool TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_trigger ON events(trigger_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`

// Event is one row of the exchange history.
type Event struct {
	ID        int64
	Type      string
	TriggerID string
	Tool      string
	Detail    string
	CreatedAt time.Time
}

// Log is a read/write handle on the event database.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the event database at dbPath in WAL mode.
func Open(dbPath string) (*Log, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping event db: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the database handle. Safe to call more than once.
func (l *Log) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Record appends one event. Recording is best-effort from the caller's
// point of view; the error is returned so callers can log it, but the
// exchange itself never depends on it.
func (l *Log) Record(ctx context.Context, evType, triggerID, tool, detail string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (type, trigger_id, tool, detail) VALUES (?, ?, ?, ?)`,
		evType, triggerID, tool, detail)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// QueryOpts filters a Query.
type QueryOpts struct {
	TriggerID string     // Restrict to one trigger.
	EventType string     // Restrict to one event type.
	After     *time.Time // Events created at or after this time.
	AfterID   int64      // Events with a row id strictly greater than this.
	Limit     int        // Most recent N (0 = no limit).
}

// Query returns matching events in chronological order.
func (l *Log) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.TriggerID, &e.Tool, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt, err = parseSQLiteTime(createdAt)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// The tail query selects newest-first; flip back to chronological.
	if opts.Limit > 0 {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

func buildQuery(opts QueryOpts) (string, []any) {
	var conds []string
	var args []any

	if opts.TriggerID != "" {
		conds = append(conds, "trigger_id = ?")
		args = append(args, opts.TriggerID)
	}
	if opts.EventType != "" {
		conds = append(conds, "type = ?")
		args = append(args, opts.EventType)
	}
	if opts.After != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, opts.After.UTC().Format("2006-01-02 15:04:05"))
	}
	if opts.AfterID > 0 {
		conds = append(conds, "id > ?")
		args = append(args, opts.AfterID)
	}

	query := "SELECT id, type, trigger_id, tool, detail, created_at FROM events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if opts.Limit > 0 {
		query += " ORDER BY id DESC LIMIT ?"
		args = append(args, opts.Limit)
	} else {
		query += " ORDER BY id ASC"
	}
	return query, args
}

// parseSQLiteTime handles both SQLite's datetime('now') format and RFC3339.
func parseSQLiteTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return ts, nil
}
