// Package gateway wires the KNOT core components — trust store,
// dispatcher, and the ambient sweeper — into the single entry point a
// transport calls per inbound PDU.
package gateway

import (
	"context"
	"log/slog"

	"github.com/knot-edge/gateway/internal/pkg/knot/audit"
	"github.com/knot-edge/gateway/internal/pkg/knot/bus"
	"github.com/knot-edge/gateway/internal/pkg/knot/cloud"
	"github.com/knot-edge/gateway/internal/pkg/knot/dispatcher"
	"github.com/knot-edge/gateway/internal/pkg/knot/events"
	"github.com/knot-edge/gateway/internal/pkg/knot/schema"
	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
	"github.com/knot-edge/gateway/internal/pkg/knot/watchdog"
)

// Gateway is the transport-facing surface of the KNOT core: one call per
// inbound PDU, plus lifecycle management for the background rollback
// sweeper.
type Gateway struct {
	store      *trust.Store
	dispatcher *dispatcher.Dispatcher
	watchdog   *watchdog.Watchdog
}

// Config collects the collaborators Gateway needs to wire itself
// together.
type Config struct {
	Cloud  cloud.Adapter
	Compat schema.CompatTable
	Peers  dispatcher.PeerResolver
	Logger *slog.Logger

	// Audit, Events, and Bus are optional ambient sinks. When any is set,
	// Gateway wires a Recorder into both the dispatcher and the watchdog
	// so every session lifecycle transition is observed consistently.
	Audit  *audit.Log
	Events events.Notifier
	Bus    *bus.Relay

	WatchdogOptions []watchdog.Option
}

// New builds a Gateway ready to serve Handle calls.
func New(cfg Config) *Gateway {
	store := trust.NewStore()
	d := dispatcher.New(store, cfg.Cloud, cfg.Compat, cfg.Peers, cfg.Logger)

	if cfg.Audit != nil || cfg.Events != nil || cfg.Bus != nil {
		rec := &Recorder{Audit: cfg.Audit, Events: cfg.Events, Bus: cfg.Bus, Logger: cfg.Logger}
		d.Observer = rec
		cfg.WatchdogOptions = append(cfg.WatchdogOptions, watchdog.WithObserver(rec))
	}

	w := watchdog.New(store, cfg.Cloud, cfg.Logger, cfg.WatchdogOptions...)

	return &Gateway{store: store, dispatcher: d, watchdog: w}
}

// Handle processes one inbound PDU for handle, matching the dispatcher's
// reply contract exactly: a positive byte count to transmit, zero to
// send nothing, or a negative value for a structural input error.
func (g *Gateway) Handle(ctx context.Context, handle uint64, in, out []byte) (int, error) {
	return g.dispatcher.Handle(ctx, handle, in, out)
}

// Start launches the background rollback sweeper.
func (g *Gateway) Start() {
	g.watchdog.Start()
}

// Stop halts the background rollback sweeper and waits for it to exit.
func (g *Gateway) Stop() {
	g.watchdog.Stop()
}

// Disconnect removes and releases the trust bound to handle, if any. When
// that trust is still provisional (Rollback), it also calls cloud RmNode
// so a dropped connection doesn't leave an orphaned node behind; an
// active session's cloud node is left in place. Transports call this on
// connection teardown; it is distinct
// from an explicit UNREGISTER_REQ, which the dispatcher already handles.
func (g *Gateway) Disconnect(ctx context.Context, handle uint64) {
	t, ok := g.store.Remove(handle)
	if !ok {
		return
	}
	defer g.store.Release(t)

	if t.Rollback {
		g.dispatcher.Cloud.RmNode(ctx, t.UUID, t.Token)
	}
}

// Handles exposes the set of live connection handles for introspection.
// The admin API's trust list uses TrustSummaries instead.
func (g *Gateway) Handles() []uint64 {
	return g.store.Handles()
}

// TrustSummaries exposes a read-only, per-handle summary of every live
// session for bulk introspection (the admin API's trust list): device
// ID, rollback flag, and schema/config entry counts. It never exposes
// uuid/token.
func (g *Gateway) TrustSummaries() []trust.Summary {
	return g.store.Summaries()
}

// Lookup exposes read-only trust inspection for the admin API. Callers
// must Release the returned trust.
func (g *Gateway) Lookup(handle uint64) (*trust.Trust, bool) {
	return g.store.Lookup(handle)
}

// Release returns a trust acquired through Lookup.
func (g *Gateway) Release(t *trust.Trust) {
	g.store.Release(t)
}
