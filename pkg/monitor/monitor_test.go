package monitor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reviewgate/pkg/monitor"
	"reviewgate/pkg/protocol"
)

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// transitionRecorder collects status transition events.
type transitionRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *transitionRecorder) listen(old, next protocol.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(old)+"->"+string(next))
}

func (r *transitionRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func newTestMonitor(t *testing.T, marker string) (*monitor.Monitor, *transitionRecorder) {
	t.Helper()
	m := monitor.New(monitor.Config{
		MarkerPath:      marker,
		ActiveThreshold: 30 * time.Second,
		CacheTTL:        1500 * time.Millisecond,
	})
	rec := &transitionRecorder{}
	m.Subscribe(rec.listen)
	return m, rec
}

func TestInitialStateIsDisconnected(t *testing.T) {
	t.Parallel()

	m, rec := newTestMonitor(t, filepath.Join(t.TempDir(), "review_gate_v2.log"))
	if m.Status() != protocol.StatusDisconnected {
		t.Fatalf("initial status = %s", m.Status())
	}

	// Marker absent: check confirms DISCONNECTED without any event.
	if got := m.Check(); got != protocol.StatusDisconnected {
		t.Fatalf("Check = %s, want DISCONNECTED", got)
	}
	if events := rec.all(); len(events) != 0 {
		t.Fatalf("steady state must not fire events, got %v", events)
	}
}

func TestFreshMarkerMeansConnected(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "review_gate_v2.log")
	if err := os.WriteFile(marker, []byte("heartbeat\n"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	m, rec := newTestMonitor(t, marker)
	if got := m.Check(); got != protocol.StatusConnected {
		t.Fatalf("Check = %s, want CONNECTED", got)
	}
	events := rec.all()
	if len(events) != 1 || events[0] != "DISCONNECTED->CONNECTED" {
		t.Fatalf("events = %v", events)
	}
}

func TestStaleMarkerTransitionsOnceToDisconnected(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "review_gate_v2.log")
	if err := os.WriteFile(marker, []byte("heartbeat\n"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	m, rec := newTestMonitor(t, marker)
	if got := m.Refresh(); got != protocol.StatusConnected {
		t.Fatalf("Refresh = %s, want CONNECTED", got)
	}

	// Age the marker past the threshold.
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(marker, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if got := m.Refresh(); got != protocol.StatusDisconnected {
		t.Fatalf("Refresh = %s, want DISCONNECTED", got)
	}
	// Repeat checks in the same state fire nothing further.
	m.Refresh()
	m.Refresh()

	events := rec.all()
	want := []string{"DISCONNECTED->CONNECTED", "CONNECTED->DISCONNECTED"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestStatFaultMeansError(t *testing.T) {
	t.Parallel()

	m, rec := newTestMonitor(t, filepath.Join(t.TempDir(), "review_gate_v2.log"))
	m.SetStatFunc(func(string) (os.FileInfo, error) {
		return nil, errors.New("permission denied")
	})

	if got := m.Refresh(); got != protocol.StatusError {
		t.Fatalf("Refresh = %s, want ERROR", got)
	}
	events := rec.all()
	if len(events) != 1 || events[0] != "DISCONNECTED->ERROR" {
		t.Fatalf("events = %v", events)
	}
}

func TestCheckIsCached(t *testing.T) {
	t.Parallel()

	m, _ := newTestMonitor(t, filepath.Join(t.TempDir(), "review_gate_v2.log"))

	stats := 0
	m.SetStatFunc(func(string) (os.FileInfo, error) {
		stats++
		return nil, os.ErrNotExist
	})

	for i := 0; i < 10; i++ {
		m.Check()
	}
	if stats != 1 {
		t.Fatalf("stat calls = %d, want 1 (cached)", stats)
	}

	// Refresh bypasses the cache.
	m.Refresh()
	if stats != 2 {
		t.Fatalf("stat calls after Refresh = %d, want 2", stats)
	}
}

func TestCacheHitDoesNotMaskFreshProbeAfterTTL(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "review_gate_v2.log")
	m, _ := newTestMonitor(t, marker)

	now := time.Now()
	m.SetNowFunc(func() time.Time { return now })

	if got := m.Check(); got != protocol.StatusDisconnected {
		t.Fatalf("Check = %s", got)
	}

	if err := os.WriteFile(marker, []byte("heartbeat\n"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	// Within the TTL the cached DISCONNECTED still answers.
	if got := m.Check(); got != protocol.StatusDisconnected {
		t.Fatalf("cached Check = %s, want DISCONNECTED", got)
	}

	// Past the TTL the probe runs again and sees the marker. The marker
	// was just written, so its age is near zero regardless of the fake
	// clock used for cache expiry; pin the clock to the file's mtime.
	info, err := os.Stat(marker)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	now = info.ModTime().Add(2 * time.Second)
	if got := m.Check(); got != protocol.StatusConnected {
		t.Fatalf("Check after TTL = %s, want CONNECTED", got)
	}
}

func TestMarkConnectingAndReconnecting(t *testing.T) {
	t.Parallel()

	m, rec := newTestMonitor(t, filepath.Join(t.TempDir(), "review_gate_v2.log"))

	m.MarkConnecting()
	if m.Status() != protocol.StatusConnecting {
		t.Fatalf("status = %s", m.Status())
	}
	// Re-marking the same state is a no-op.
	m.MarkConnecting()

	m.MarkReconnecting()
	if m.Status() != protocol.StatusReconnecting {
		t.Fatalf("status = %s", m.Status())
	}

	events := rec.all()
	want := []string{"DISCONNECTED->CONNECTING", "CONNECTING->RECONNECTING"}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestRunRefreshesOnSignal(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "review_gate_v2.log")
	m := monitor.New(monitor.Config{MarkerPath: marker, Tick: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx, signals)
	}()

	// Marker absent: the startup refresh lands on DISCONNECTED.
	waitFor(t, func() bool { return m.Status() == protocol.StatusDisconnected }, time.Second)

	if err := os.WriteFile(marker, []byte("heartbeat\n"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	signals <- struct{}{}
	waitFor(t, func() bool { return m.Status() == protocol.StatusConnected }, time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestRunHoldsErrorWithoutEventStorm(t *testing.T) {
	t.Parallel()

	m := monitor.New(monitor.Config{
		MarkerPath: filepath.Join(t.TempDir(), "review_gate_v2.log"),
		Tick:       20 * time.Millisecond,
	})
	m.SetStatFunc(func(string) (os.FileInfo, error) {
		return nil, errors.New("disk gone")
	})
	rec := &transitionRecorder{}
	m.Subscribe(rec.listen)

	// Many ticks elapse while the fault persists; the monitor must settle
	// after a single reconnect attempt instead of flapping on every tick.
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := rec.all()
	want := []string{
		"DISCONNECTED->CONNECTING",
		"CONNECTING->ERROR",
		"ERROR->RECONNECTING",
		"RECONNECTING->ERROR",
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestRunRetriesAgainAfterRecovery(t *testing.T) {
	t.Parallel()

	var failing atomic.Bool
	failing.Store(true)

	m := monitor.New(monitor.Config{
		MarkerPath: filepath.Join(t.TempDir(), "review_gate_v2.log"),
		Tick:       15 * time.Millisecond,
	})
	m.SetStatFunc(func(string) (os.FileInfo, error) {
		if failing.Load() {
			return nil, errors.New("io fault")
		}
		return nil, os.ErrNotExist
	})
	rec := &transitionRecorder{}
	m.Subscribe(rec.listen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx, signals)
	}()

	countReconnects := func() int {
		n := 0
		for _, e := range rec.all() {
			if e == "ERROR->RECONNECTING" {
				n++
			}
		}
		return n
	}

	// First fault episode settles after exactly one reconnect attempt.
	waitFor(t, func() bool { return countReconnects() == 1 }, time.Second)

	// Fault clears; the next signal brings the monitor out of ERROR.
	failing.Store(false)
	signals <- struct{}{}
	waitFor(t, func() bool { return m.Status() == protocol.StatusDisconnected }, time.Second)

	// A fresh fault episode earns a fresh reconnect attempt.
	failing.Store(true)
	waitFor(t, func() bool { return countReconnects() == 2 }, time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
