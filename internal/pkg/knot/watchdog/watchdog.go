// Package watchdog sweeps the trust store for provisional sessions a
// node never finished provisioning — register succeeded but no schema
// ever arrived — and rolls them back with the cloud so an abandoned
// connection doesn't leave an orphaned node record behind.
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/knot-edge/gateway/internal/pkg/knot/cloud"
	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
)

// DefaultPollInterval is how often the sweeper scans the trust store.
const DefaultPollInterval = 60 * time.Second

// DefaultRollbackDeadline is how long a trust may stay in its
// provisional (Rollback == true) state before the sweeper reclaims it.
const DefaultRollbackDeadline = 20 * time.Second

// Clock abstracts the passage of time so tests don't need to sleep
// through real deadlines.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Observer is notified when the sweeper reclaims an abandoned
// provisional session. A nil Observer is valid; Watchdog never calls a
// nil one.
type Observer interface {
	RolledBack(ctx context.Context, handle, deviceID uint64, uuid string)
}

// Watchdog periodically reclaims trusts stuck in the provisional state.
type Watchdog struct {
	store    *trust.Store
	cloud    cloud.Adapter
	logger   *slog.Logger
	clock    Clock
	observer Observer
	interval time.Duration
	deadline time.Duration

	// since tracks when each handle was first observed provisional, since
	// Trust carries no timestamp of its own.
	mu    sync.Mutex
	since map[uint64]time.Time

	stop chan struct{}
	done chan struct{}
}

// Option configures a Watchdog at construction time.
type Option func(*Watchdog)

// WithInterval overrides DefaultPollInterval.
func WithInterval(d time.Duration) Option { return func(w *Watchdog) { w.interval = d } }

// WithDeadline overrides DefaultRollbackDeadline.
func WithDeadline(d time.Duration) Option { return func(w *Watchdog) { w.deadline = d } }

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(c Clock) Option { return func(w *Watchdog) { w.clock = c } }

// WithObserver attaches an Observer notified on every reclaimed session.
func WithObserver(o Observer) Option { return func(w *Watchdog) { w.observer = o } }

// New builds a Watchdog over store, reclaiming through adapter.
func New(store *trust.Store, adapter cloud.Adapter, logger *slog.Logger, opts ...Option) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watchdog{
		store:    store,
		cloud:    adapter,
		logger:   logger,
		clock:    realClock{},
		interval: DefaultPollInterval,
		deadline: DefaultRollbackDeadline,
		since:    make(map[uint64]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the sweep loop in a background goroutine until Stop is
// called.
func (w *Watchdog) Start() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run()
}

// Stop halts the background goroutine and waits for it to exit.
func (w *Watchdog) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.Sweep(context.Background())
		}
	}
}

// Sweep performs one pass over the trust store, rolling back any
// provisional trust older than the configured deadline. It is exported
// so callers (and tests) can drive a deterministic sweep without waiting
// on the ticker.
func (w *Watchdog) Sweep(ctx context.Context) {
	now := w.clock.Now()

	for _, handle := range w.store.Handles() {
		t, ok := w.store.Lookup(handle)
		if !ok {
			continue
		}

		if !t.Rollback {
			w.store.Release(t)
			w.forget(handle)
			continue
		}

		first := w.observe(handle, now)
		if now.Sub(first) < w.deadline {
			w.store.Release(t)
			continue
		}

		uuid, token, deviceID := t.UUID, t.Token, t.DeviceID
		w.store.Release(t)

		result := w.cloud.RmNode(ctx, uuid, token)
		if result != cloud.ResultSuccess {
			w.logger.WarnContext(ctx, "rollback sweep: cloud rmnode failed, will retry", "handle", handle, "result", result)
			continue
		}

		if removed, ok := w.store.Remove(handle); ok {
			w.store.Release(removed)
		}
		w.forget(handle)
		w.logger.InfoContext(ctx, "rollback sweep reclaimed abandoned session", "handle", handle)
		if w.observer != nil {
			w.observer.RolledBack(ctx, handle, deviceID, uuid)
		}
	}
}

func (w *Watchdog) observe(handle uint64, now time.Time) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	first, ok := w.since[handle]
	if !ok {
		w.since[handle] = now
		return now
	}
	return first
}

func (w *Watchdog) forget(handle uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.since, handle)
}
