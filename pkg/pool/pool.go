// Package pool tracks logical in-flight triggers for concurrency accounting.
// Entries are not network resources: the pool exists so diagnostics can
// report how many exchanges are live and how often each one retried.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is one logical connection, created when a trigger begins processing.
// Release marks it inactive instead of deleting it so lastUsed and the
// retry count stay inspectable for reuse heuristics.
type Conn struct {
	ID         string
	TriggerID  string
	LastUsed   time.Time
	Active     bool
	RetryCount int
}

// Pool is an in-memory registry of logical connections.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*Conn

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		conns:   make(map[string]*Conn),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock (for testing).
func (p *Pool) SetNowFunc(f func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = f
}

// Acquire registers a new active connection for triggerID and returns its
// connection ID.
func (p *Pool) Acquire(triggerID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.New().String()
	p.conns[id] = &Conn{
		ID:        id,
		TriggerID: triggerID,
		LastUsed:  p.nowFunc(),
		Active:    true,
	}
	return id
}

// Release marks the connection inactive. The entry is kept; only its
// Active flag flips. Releasing an unknown ID is an error so accounting
// bugs surface instead of silently balancing.
func (p *Pool) Release(connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[connID]
	if !ok {
		return fmt.Errorf("release: unknown connection %s", connID)
	}
	c.Active = false
	c.LastUsed = p.nowFunc()
	return nil
}

// RecordRetry bumps the retry counter for the connection, if it exists.
func (p *Pool) RecordRetry(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[connID]; ok {
		c.RetryCount++
		c.LastUsed = p.nowFunc()
	}
}

// ActiveCount returns the number of active connections.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.conns {
		if c.Active {
			n++
		}
	}
	return n
}

// Get returns a copy of the connection entry, if known.
func (p *Pool) Get(connID string) (Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.conns[connID]
	if !ok {
		return Conn{}, false
	}
	return *c, true
}

// Snapshot returns copies of every entry, active and inactive.
func (p *Pool) Snapshot() []Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Conn, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, *c)
	}
	return out
}

// Prune drops inactive entries whose LastUsed is older than maxIdle, and
// returns how many were removed. Active entries are never dropped.
func (p *Pool) Prune(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	removed := 0
	for id, c := range p.conns {
		if !c.Active && now.Sub(c.LastUsed) > maxIdle {
			delete(p.conns, id)
			removed++
		}
	}
	return removed
}
