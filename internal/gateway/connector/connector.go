// Package connector is the process-global coordinator (spec.md §4.4):
// it builds one adapter per configured broker (keeping one per source
// kind), registers each with the distributor, keeps upstream subscriptions in sync with what clients
// actually want, and owns the WebSocket/HTTP surface clients connect
// to. Grounded on original_source/qamdgateway-ctp/src/actors/md_connector.rs's
// check_connections (60s restart tick) and sync_subscriptions (30s
// reconcile) intervals, translated from actix message-passing into the
// same mailbox-actor idiom used by internal/gateway/adapter and
// internal/gateway/distributor.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawpanic/qamdgateway/internal/audit"
	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/gateway/adapter"
	"github.com/sawpanic/qamdgateway/internal/gateway/distributor"
	"github.com/sawpanic/qamdgateway/internal/gateway/session"
	"github.com/sawpanic/qamdgateway/internal/gwcache"
	"github.com/sawpanic/qamdgateway/internal/gwmetrics"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

const (
	reconcileInterval = 30 * time.Second
	restartInterval   = 60 * time.Second

	// systemClientID is the synthetic distributor client that keeps
	// GatewayConfig.DefaultInstruments subscribed even with no WebSocket
	// client connected, so the reconcile loop keeps upstream adapters
	// subscribed to them (spec.md §6).
	systemClientID = "__default_instruments__"
)

// discardSink implements distributor.ClientSink by dropping every
// snapshot. It backs the synthetic default-instruments client, which
// exists only to hold subscriptions open, never to receive data.
type discardSink struct{}

func (discardSink) Send(snapshot.Snapshot) {}

// FeedFactories supplies the native feed constructor for each source
// kind a configured broker might name. Native bindings themselves are
// out of scope; this package only wires whatever is supplied, so tests
// can substitute fakes for every broker.
type FeedFactories map[config.SourceKind]adapter.FeedFactory

// Connector owns every upstream adapter, the shared distributor, and
// the HTTP/WebSocket surface. One process builds exactly one.
type Connector struct {
	cfg      *config.GatewayConfig
	dist     *distributor.Distributor
	adapters map[config.SourceKind]*adapter.Adapter
	log      zerolog.Logger
	metr     *gwmetrics.Registry

	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Connector from cfg: one Adapter per enabled broker
// (skipped with a warning if no feed factory is supplied for its
// source kind), registered with a fresh Distributor, routed behind a
// gorilla/mux router. Adapters are held and registered by source kind,
// so at most one adapter per kind is kept: a later enabled broker of the
// same kind replaces an earlier one, which is then never started.
func New(cfg *config.GatewayConfig, feeds FeedFactories, log zerolog.Logger) *Connector {
	metr := gwmetrics.New()
	cache := gwcache.NewAuto(cfg.Persistence.RedisAddr)

	var auditSink audit.Sink = audit.NoopSink{}
	if cfg.Persistence.PostgresDSN != "" {
		sink, err := audit.NewPostgresSink(cfg.Persistence.PostgresDSN, 2*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("postgres audit sink unavailable, falling back to no-op")
		} else {
			auditSink = sink
		}
	}

	dist := distributor.New(cache, auditSink, metr, log)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connector{
		cfg:      cfg,
		dist:     dist,
		adapters: make(map[config.SourceKind]*adapter.Adapter),
		log:      log,
		metr:     metr,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	for _, broker := range cfg.EnabledBrokers() {
		newFeed, ok := feeds[broker.Source]
		if !ok {
			log.Warn().Str("broker", broker.Name).Str("source", string(broker.Source)).
				Msg("no native feed factory configured for source, skipping broker")
			continue
		}
		a := adapter.New(adapter.Config{
			Broker:    broker.Name,
			Kind:      broker.Source,
			FrontAddr: broker.FrontAddr,
			Login: adapter.LoginRequest{
				BrokerID: broker.BrokerID,
				UserID:   broker.UserID,
				Password: broker.Password,
			},
			NewFeed:   newFeed,
			Normalize: adapter.NormalizeFor(broker.Source),
		}, dist, log, metr)

		c.adapters[broker.Source] = a
		dist.RegisterAdapter(broker.Source, a)
	}

	c.setupRoutes()
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	c.httpServer = &http.Server{
		Addr:         addr,
		Handler:      c.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	return c
}

// Start brings the distributor and every adapter up, then starts the
// reconciliation and restart-tick background loops. It does not block;
// call ListenAndServe separately to serve HTTP.
func (c *Connector) Start() {
	c.dist.Start()
	for _, a := range c.adapters {
		a.Start(c.ctx)
	}
	if len(c.cfg.DefaultInstruments) > 0 {
		c.dist.Register(systemClientID, discardSink{}, c.cfg.DefaultInstruments, "")
	}
	go c.reconcileLoop()
	go c.restartLoop()
}

// ListenAndServe blocks serving HTTP/WebSocket until Shutdown is called.
func (c *Connector) ListenAndServe() error {
	err := c.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the background loops, every adapter, the distributor,
// and the HTTP server, in that order.
func (c *Connector) Shutdown(ctx context.Context) error {
	c.cancel()
	for _, a := range c.adapters {
		a.Stop()
	}
	c.dist.Stop()
	return c.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (c *Connector) Addr() string {
	return c.httpServer.Addr
}

func (c *Connector) reconcileLoop() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.reconcileOnce()
		}
	}
}

func (c *Connector) restartLoop() {
	ticker := time.NewTicker(restartInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			for broker, a := range c.adapters {
				c.log.Debug().Str("broker", string(broker)).Msg("restart tick")
				a.RestartTick()
			}
		}
	}
}

// reconcileOnce asks the distributor for every instrument with at least
// one subscriber, then reconciles each adapter's own subscription set
// against that same set: subscribing what is missing, unsubscribing
// what is no longer wanted. Every adapter is reconciled against the
// same global set rather than a per-source subset, matching
// sync_subscriptions in the original connector.
func (c *Connector) reconcileOnce() {
	wantedList := c.dist.GetAllSubscriptions()
	wanted := make(map[string]struct{}, len(wantedList))
	for _, id := range wantedList {
		wanted[id] = struct{}{}
	}

	for broker, a := range c.adapters {
		missing, extra := diffSubscriptions(wanted, a.Subscriptions())

		if len(missing) > 0 {
			c.log.Info().Str("broker", string(broker)).Int("count", len(missing)).Msg("reconcile: subscribing missing instruments")
			a.Subscribe(missing)
		}
		if len(extra) > 0 {
			c.log.Info().Str("broker", string(broker)).Int("count", len(extra)).Msg("reconcile: unsubscribing stale instruments")
			a.Unsubscribe(extra)
		}
	}
}

// diffSubscriptions compares an adapter's current subscription set
// against the wanted set and returns the ids to subscribe (in wanted,
// not in current) and to unsubscribe (in current, not in wanted).
func diffSubscriptions(wanted map[string]struct{}, current []string) (missing, extra []string) {
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	for id := range wanted {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range have {
		if _, ok := wanted[id]; !ok {
			extra = append(extra, id)
		}
	}
	return missing, extra
}

// newSession upgrades an HTTP request to a WebSocket and runs a session
// against the shared distributor. Wired as a route handler in http.go.
// The optional ?source=qq|sina|ctp query parameter (spec.md §6) names the
// adapter pool this connection prefers for instruments it subscribes to
// that have no source recorded yet; it never overrides an instrument's
// already-established source.
func (c *Connector) newSession(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	preferred := parsePreferredSource(r.URL.Query().Get("source"))
	s := session.New(conn, c.dist, c.log, c.metr, preferred)
	s.Run()
}

// parsePreferredSource validates the raw ?source= value against the
// known adapter kinds, returning "" (no preference) for anything else.
func parsePreferredSource(raw string) config.SourceKind {
	switch config.SourceKind(raw) {
	case config.SourceCTP, config.SourceQQ, config.SourceSina:
		return config.SourceKind(raw)
	default:
		return ""
	}
}
