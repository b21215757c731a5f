// Package monitor derives the connection status of the peer process from
// the age of its freshness marker file. The peer appends a heartbeat to the
// marker while alive; the monitor stats it and maps the result onto the
// protocol status state machine, broadcasting a transition event only when
// the value actually changes.
package monitor

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"reviewgate/pkg/cache"
	"reviewgate/pkg/protocol"
)

// statusCacheKey is the single cache slot holding the last computed status.
const statusCacheKey = "connection_status"

// Config holds monitor configuration.
type Config struct {
	MarkerPath      string        // Freshness marker file.
	ActiveThreshold time.Duration // Marker age below which the peer is alive (default 30s).
	CacheTTL        time.Duration // How long a computed status satisfies repeat checks (default 1.5s).
	Tick            time.Duration // Fallback re-check interval (default 5s).
	Logger          *zap.Logger   // Optional; nil disables logging.
}

func (c Config) withDefaults() Config {
	out := c
	if out.ActiveThreshold <= 0 {
		out.ActiveThreshold = 30 * time.Second
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = 1500 * time.Millisecond
	}
	if out.Tick <= 0 {
		out.Tick = 5 * time.Second
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// Listener receives status transitions. It is called synchronously from
// the transition; keep it cheap.
type Listener func(old, new protocol.Status)

// Monitor owns the current connection status. Nothing else mutates it.
type Monitor struct {
	cfg   Config
	cache *cache.Cache

	mu        sync.Mutex
	status    protocol.Status
	listeners []Listener

	// nowFunc and statFunc allow tests to control time and inject faults.
	nowFunc  func() time.Time
	statFunc func(string) (os.FileInfo, error)
}

// New creates a monitor in the DISCONNECTED state. No check runs until
// Check, Refresh, or Run is called.
func New(cfg Config) *Monitor {
	return &Monitor{
		cfg:      cfg.withDefaults(),
		cache:    cache.New(),
		status:   protocol.StatusDisconnected,
		nowFunc:  time.Now,
		statFunc: os.Stat,
	}
}

// SetNowFunc overrides the clock, including the one the status cache uses
// for expiry (for testing).
func (m *Monitor) SetNowFunc(f func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = f
	m.cache.SetNowFunc(f)
}

// SetStatFunc overrides the stat call (for fault injection in tests).
func (m *Monitor) SetStatFunc(f func(string) (os.FileInfo, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statFunc = f
}

// Subscribe registers a transition listener.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Status returns the current status without performing a check.
func (m *Monitor) Status() protocol.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Check returns the connection status, reusing the last computed value
// while it is fresh. A cache hit never causes a transition by itself.
func (m *Monitor) Check() protocol.Status {
	if v, ok := m.cache.Get(statusCacheKey); ok {
		return v.(protocol.Status)
	}
	return m.Refresh()
}

// Refresh recomputes the status from the marker file, bypassing the cache,
// and applies the transition if the value changed.
func (m *Monitor) Refresh() protocol.Status {
	next := m.probe()
	m.cache.Set(statusCacheKey, next, m.cfg.CacheTTL)
	m.transition(next)
	return next
}

// probe maps the marker file state onto a status: absent or stale means
// the peer is gone, a recent mtime means it is alive, and any other stat
// fault is a structural error.
func (m *Monitor) probe() protocol.Status {
	m.mu.Lock()
	stat := m.statFunc
	now := m.nowFunc()
	m.mu.Unlock()

	info, err := stat(m.cfg.MarkerPath)
	switch {
	case os.IsNotExist(err):
		return protocol.StatusDisconnected
	case err != nil:
		m.cfg.Logger.Error("marker check failed", zap.String("marker", m.cfg.MarkerPath), zap.Error(err))
		return protocol.StatusError
	case now.Sub(info.ModTime()) < m.cfg.ActiveThreshold:
		return protocol.StatusConnected
	default:
		return protocol.StatusDisconnected
	}
}

// MarkConnecting flags that the first probe is underway. Used at startup
// before any check has completed; the next check overrides it.
func (m *Monitor) MarkConnecting() {
	m.transition(protocol.StatusConnecting)
}

// MarkReconnecting flags that the link was lost and a re-probe is pending.
// The next check overrides it.
func (m *Monitor) MarkReconnecting() {
	m.transition(protocol.StatusReconnecting)
}

// transition swaps the status and notifies listeners, but only when the
// value actually changes. Steady states produce no events.
func (m *Monitor) transition(next protocol.Status) {
	m.mu.Lock()
	if m.status == next {
		m.mu.Unlock()
		return
	}
	old := m.status
	m.status = next
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.cfg.Logger.Info("connection status changed",
		zap.String("from", string(old)), zap.String("to", string(next)))
	for _, l := range listeners {
		l(old, next)
	}
}

// Run drives checks from the detector's debounced signals plus a periodic
// fallback tick, so the status cannot go stale when no filesystem events
// fire. A check failure gets exactly one RECONNECTING re-probe; if that
// fails too, the monitor holds ERROR silently until the condition changes.
// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, signals <-chan struct{}) error {
	m.MarkConnecting()
	m.Refresh()

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	retried := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			// Something touched the marker: recompute now rather than
			// serving a stale cached answer.
			if m.Refresh() != protocol.StatusError {
				retried = false
			}
		case <-ticker.C:
			if m.Status() == protocol.StatusError && !retried {
				m.MarkReconnecting()
				retried = true
			}
			if m.Refresh() != protocol.StatusError {
				retried = false
			}
		}
	}
}
