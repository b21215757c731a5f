// Package detect produces debounced "something changed" signals for a set
// of files inside one directory. Two interchangeable strategies exist: an
// fsnotify subscription and a metadata-diffing poller. Both honor the same
// guarantee: at least one signal within the debounce window of any write,
// rename, or delete of a watched path, with a burst of changes inside the
// window coalesced into a single signal.
package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Mode selects the detection strategy.
type Mode string

// Detection modes. ModeAuto probes fsnotify and downgrades to polling when
// the subscription cannot be established.
const (
	ModeAuto  Mode = "auto"
	ModeWatch Mode = "watch"
	ModePoll  Mode = "poll"
)

// Config holds detector configuration.
type Config struct {
	Dir          string        // Directory containing the watched files.
	Basenames    []string      // Basenames of interest; empty means every file in Dir.
	Debounce     time.Duration // Coalescing window (default 100ms).
	PollInterval time.Duration // Poller tick (default 500ms).
	Mode         Mode          // Strategy (default ModeAuto).
	Logger       *zap.Logger   // Optional; nil disables logging.
}

func (c Config) withDefaults() Config {
	out := c
	if out.Debounce <= 0 {
		out.Debounce = 100 * time.Millisecond
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 500 * time.Millisecond
	}
	if out.Mode == "" {
		out.Mode = ModeAuto
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return out
}

// Detector emits debounced change signals until its context is cancelled.
type Detector interface {
	// Run blocks, feeding Events until ctx is cancelled.
	Run(ctx context.Context) error

	// Events is the debounced signal channel. It has capacity 1; a signal
	// arriving while the previous one is unconsumed coalesces into it.
	Events() <-chan struct{}

	// Mode reports the strategy actually in use.
	Mode() Mode
}

// ErrWatchUnavailable is returned when ModeWatch is forced but the
// subscription cannot be established.
var ErrWatchUnavailable = errors.New("filesystem watch unavailable")

// New builds a detector for cfg. In ModeAuto a failed fsnotify setup is a
// recoverable condition: it logs once and returns a poller instead.
func New(cfg Config) (Detector, error) {
	cfg = cfg.withDefaults()

	switch cfg.Mode {
	case ModePoll:
		return newPoller(cfg), nil
	case ModeWatch:
		w, err := newWatcher(cfg)
		if err != nil {
			return nil, errors.Join(ErrWatchUnavailable, err)
		}
		return w, nil
	default:
		w, err := newWatcher(cfg)
		if err != nil {
			cfg.Logger.Warn("filesystem watch unavailable, falling back to polling",
				zap.String("dir", cfg.Dir), zap.Error(err))
			return newPoller(cfg), nil
		}
		return w, nil
	}
}

// watched reports whether base is one of the configured basenames.
func (c Config) watched(base string) bool {
	if len(c.Basenames) == 0 {
		return true
	}
	for _, b := range c.Basenames {
		if b == base {
			return true
		}
	}
	return false
}

// emit delivers a signal without blocking; a pending undelivered signal
// absorbs it.
func emit(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// --- fsnotify strategy ---

type watcher struct {
	cfg Config
	fsw *fsnotify.Watcher
	ch  chan struct{}
}

func newWatcher(cfg Config) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &watcher{cfg: cfg, fsw: fsw, ch: make(chan struct{}, 1)}, nil
}

func (w *watcher) Events() <-chan struct{} { return w.ch }
func (w *watcher) Mode() Mode              { return ModeWatch }

// Run forwards matching directory events through the debouncer. The timer
// is armed by the first event of a burst and not reset by followers, so a
// continuous stream of writes still signals once per window rather than
// starving the consumer.
func (w *watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	debounce := newStoppedTimer()
	defer debounce.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.cfg.watched(filepath.Base(ev.Name)) {
				continue
			}
			if !armed {
				debounce.Reset(w.cfg.Debounce)
				armed = true
			}
		case <-debounce.C:
			armed = false
			emit(w.ch)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.cfg.Logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

// newStoppedTimer returns a timer that will not fire until Reset.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

// --- polling strategy ---

// fileState is the metadata compared between polls.
type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

type poller struct {
	cfg  Config
	ch   chan struct{}
	last map[string]fileState
}

func newPoller(cfg Config) *poller {
	return &poller{cfg: cfg, ch: make(chan struct{}, 1)}
}

func (p *poller) Events() <-chan struct{} { return p.ch }
func (p *poller) Mode() Mode              { return ModePoll }

// Run diffs file metadata on a fixed interval. The baseline is taken at
// start so pre-existing files do not fire a spurious signal.
func (p *poller) Run(ctx context.Context) error {
	p.last = p.snapshot()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur := p.snapshot()
			if changed(p.last, cur) {
				emit(p.ch)
			}
			p.last = cur
		}
	}
}

// snapshot stats every watched basename. With no basename filter it lists
// the directory instead.
func (p *poller) snapshot() map[string]fileState {
	out := make(map[string]fileState)

	names := p.cfg.Basenames
	if len(names) == 0 {
		entries, err := os.ReadDir(p.cfg.Dir)
		if err != nil {
			return out
		}
		for _, e := range entries {
			names = append(names, e.Name())
		}
	}

	for _, name := range names {
		info, err := os.Stat(filepath.Join(p.cfg.Dir, name))
		if err != nil {
			out[name] = fileState{}
			continue
		}
		out[name] = fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
	}
	return out
}

func changed(prev, cur map[string]fileState) bool {
	if len(prev) != len(cur) {
		return true
	}
	for name, c := range cur {
		p, ok := prev[name]
		if !ok || p != c {
			return true
		}
	}
	return false
}
