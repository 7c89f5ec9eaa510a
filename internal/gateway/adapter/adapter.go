// Package adapter implements the single parameterized upstream adapter
// that stands in for three near-identical ones (CTP futures, QQ equity,
// Sina equity). One Adapter instance owns exactly one broker connection
// and is driven entirely through its mailbox channel, matching the
// teacher's WebSocketClient goroutine shape in
// internal/providers/kraken/websocket.go, generalized from a single
// read/ping loop pair to a six-event native callback surface.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/qamdgateway/internal/breaker"
	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/gwmetrics"
)

// State is the adapter's connection lifecycle (spec.md §4.1).
type State int

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateLoggedIn
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged_in"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	reconnectInterval = 30 * time.Second
	restartInterval   = 60 * time.Second
	loginBufLen       = 16 // mirrors CTP's TThostFtdcBrokerIDType-class fixed buffers
	mailboxCapacity   = 256
)

// Config parameterizes one Adapter: which broker, which native feed
// factory, which normalization rule. This single type replaces three
// near-duplicate adapters (spec.md §4.1 design note).
type Config struct {
	Broker    string
	Kind      config.SourceKind
	FrontAddr string
	Login     LoginRequest
	NewFeed   FeedFactory
	Normalize NormalizeFunc
}

// Adapter is the per-broker actor. All exported methods are
// fire-and-forget (or reply-via-channel) sends onto cmds; state is only
// ever mutated inside run, which is the sole reader of cmds.
type Adapter struct {
	cfg    Config
	sink   DistributorSink
	log    zerolog.Logger
	metr   *gwmetrics.Registry
	cb     *breaker.Breaker
	lim    *rate.Limiter
	cmds   chan command
	done   chan struct{}

	state   State
	feed    NativeFeed
	desired map[string]struct{}
	acked   map[string]struct{}
}

// New builds an Adapter. The adapter does not start any goroutine or
// dial anything until Start is called.
func New(cfg Config, sink DistributorSink, log zerolog.Logger, metr *gwmetrics.Registry) *Adapter {
	if cfg.Normalize == nil {
		cfg.Normalize = NormalizeFor(cfg.Kind)
	}
	return &Adapter{
		cfg:     cfg,
		sink:    sink,
		log:     log.With().Str("broker", cfg.Broker).Logger(),
		metr:    metr,
		cb:      breaker.New(cfg.Broker),
		lim:     rate.NewLimiter(rate.Every(reconnectInterval), 1),
		cmds:    make(chan command, mailboxCapacity),
		done:    make(chan struct{}),
		state:   StateInit,
		desired: make(map[string]struct{}),
		acked:   make(map[string]struct{}),
	}
}

// Start launches the adapter's mailbox goroutine and kicks off the
// initial connect. Safe to call exactly once.
func (a *Adapter) Start(ctx context.Context) {
	go a.run(ctx)
	a.cmds <- command{kind: cmdStart}
}

// Stop tears the adapter down; it blocks until the mailbox goroutine
// has exited.
func (a *Adapter) Stop() {
	select {
	case a.cmds <- command{kind: cmdStop}:
	default:
	}
	<-a.done
}

// Subscribe adds ids to the desired set. Already-desired ids are a
// no-op (idempotent), matching the session's duplicate-subscribe
// boundary behavior one layer down (spec.md §8).
func (a *Adapter) Subscribe(ids []string) {
	a.cmds <- command{kind: cmdSubscribe, ids: ids}
}

// Unsubscribe removes ids from the desired set.
func (a *Adapter) Unsubscribe(ids []string) {
	a.cmds <- command{kind: cmdUnsubscribe, ids: ids}
}

// Subscriptions returns the adapter's current desired set, used by the
// connector's reconciliation loop.
func (a *Adapter) Subscriptions() []string {
	reply := make(chan []string, 1)
	a.cmds <- command{kind: cmdGetSubscriptions, reply: reply}
	return <-reply
}

// RestartTick is called by the connector every restartInterval; it is a
// no-op unless the adapter is not fully connected, matching
// md_actor.rs's Handler<RestartActor> ("only restarts if
// !is_connected || !is_logged_in").
func (a *Adapter) RestartTick() {
	select {
	case a.cmds <- command{kind: cmdRestartTick}:
	default:
	}
}

// Callbacks returns the native-feed callback set wired to this
// adapter's mailbox. Every function here only enqueues; none may touch
// Adapter state directly (spec.md §5 MPSC boundary).
func (a *Adapter) Callbacks() Callbacks {
	return Callbacks{
		OnFrontConnected: func() {
			a.cmds <- command{kind: cmdFrontConnected}
		},
		OnFrontDisconnected: func(reason string) {
			a.cmds <- command{kind: cmdFrontDisconnected, reason: reason}
		},
		OnRspUserLogin: func(ok bool, err error) {
			reason := ""
			if err != nil {
				reason = err.Error()
			}
			a.cmds <- command{kind: cmdLoginResult, ok: ok, reason: reason}
		},
		OnRspSubMarketData: func(instrumentID string, ok bool, reason string) {
			a.cmds <- command{kind: cmdSubAck, ids: []string{instrumentID}, ok: ok, reason: reason}
		},
		OnRspUnSubMarketData: func(instrumentID string, ok bool) {
			a.cmds <- command{kind: cmdUnsubAck, ids: []string{instrumentID}, ok: ok}
		},
		OnRtnDepthMarketData: func(raw RawMarketData) {
			a.cmds <- command{kind: cmdMarketData, raw: raw}
		},
	}
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.teardown()
			return
		case cmd := <-a.cmds:
			if a.handle(ctx, cmd) {
				a.teardown()
				return
			}
		}
	}
}

// handle processes one command against the actor's private state.
// Returns true when the adapter should stop.
func (a *Adapter) handle(ctx context.Context, cmd command) bool {
	switch cmd.kind {
	case cmdStop:
		return true

	case cmdStart:
		a.connect(ctx)

	case cmdSubscribe:
		for _, id := range cmd.ids {
			a.desired[id] = struct{}{}
		}
		a.flushSubscriptions()

	case cmdUnsubscribe:
		native := make([]string, 0, len(cmd.ids))
		for _, id := range cmd.ids {
			delete(a.desired, id)
			nid := a.cfg.Normalize(id)
			delete(a.acked, nid)
			native = append(native, nid)
		}
		if a.state == StateLoggedIn && len(native) > 0 && a.feed != nil {
			_ = a.feed.Unsubscribe(native)
		}

	case cmdGetSubscriptions:
		ids := make([]string, 0, len(a.desired))
		for id := range a.desired {
			ids = append(ids, id)
		}
		cmd.reply <- ids

	case cmdReconcileTick:
		a.flushSubscriptions()

	case cmdRestartTick:
		if a.state != StateLoggedIn {
			a.connect(ctx)
		}

	case cmdFrontConnected:
		a.state = StateConnected
		a.event("front_connected")
		a.sink.OnConnected(a.cfg.Broker)
		if a.feed != nil {
			login := a.cfg.Login
			login.BrokerID = Truncate(login.BrokerID, loginBufLen)
			login.UserID = Truncate(login.UserID, loginBufLen)
			login.Password = Truncate(login.Password, loginBufLen)
			if err := a.cb.Execute(func() error { return a.feed.Login(login) }); err != nil {
				a.log.Warn().Err(err).Msg("login request failed")
			}
		}

	case cmdFrontDisconnected:
		a.state = StateDisconnected
		a.acked = make(map[string]struct{})
		a.event("front_disconnected")
		a.sink.OnDisconnected(a.cfg.Broker, cmd.reason)
		a.scheduleReconnect(ctx)

	case cmdLoginResult:
		if cmd.ok {
			a.state = StateLoggedIn
			a.event("logged_in")
			a.sink.OnLoggedIn(a.cfg.Broker)
			a.flushSubscriptions()
		} else {
			a.log.Warn().Str("reason", cmd.reason).Msg("login rejected")
			a.event("login_rejected")
			a.scheduleReconnect(ctx)
		}

	case cmdSubAck:
		id := cmd.ids[0]
		if cmd.ok {
			a.acked[id] = struct{}{}
			a.sink.OnSubAck(a.cfg.Broker, id)
		} else {
			a.sink.OnSubNack(a.cfg.Broker, id, cmd.reason)
		}

	case cmdUnsubAck:
		if cmd.ok {
			a.sink.OnUnsubAck(a.cfg.Broker, cmd.ids[0])
		}

	case cmdMarketData:
		snap, err := Convert(cmd.raw, a.cfg.Normalize)
		if err != nil {
			a.log.Warn().Err(err).Msg("dropping unconvertible market data frame")
			a.event("conversion_error")
			return false
		}
		a.sink.OnSnapshot(a.cfg.Broker, a.cfg.Kind, snap)
	}
	return false
}

// connect dials the native feed via the circuit breaker, replaying the
// desired set is deferred until login succeeds (handled in
// cmdLoginResult), so the "desired survives disconnect" property holds
// without any extra bookkeeping: desired is never cleared here.
func (a *Adapter) connect(ctx context.Context) {
	if a.cfg.NewFeed == nil {
		a.log.Error().Msg("no native feed factory configured")
		return
	}
	a.state = StateConnecting
	a.event("connecting")

	err := a.cb.Execute(func() error {
		feed := a.cfg.NewFeed(a.cfg.FrontAddr, a.Callbacks())
		if err := feed.Init(); err != nil {
			return fmt.Errorf("adapter: init failed: %w", err)
		}
		a.feed = feed
		return nil
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("connect failed")
		if err == gobreaker.ErrOpenState {
			a.event("breaker_open")
		}
		a.state = StateDisconnected
		a.scheduleReconnect(ctx)
	}
}

// scheduleReconnect arranges a single reconnect attempt after
// reconnectInterval, rate limited so a flapping upstream cannot spin the
// breaker open/closed faster than once per interval.
func (a *Adapter) scheduleReconnect(ctx context.Context) {
	if !a.lim.Allow() {
		return
	}
	go func() {
		select {
		case <-time.After(reconnectInterval):
		case <-ctx.Done():
			return
		}
		select {
		case a.cmds <- command{kind: cmdStart}:
		case <-ctx.Done():
		}
	}()
}

// flushSubscriptions issues Subscribe for every desired id not yet
// acked, batched into one call, matching md_actor.rs's
// subscribe_instruments behavior of sending the whole desired list at
// once after (re)login. Ids are normalized before they reach the native
// feed; desired keeps the ids as callers gave them.
func (a *Adapter) flushSubscriptions() {
	if a.state != StateLoggedIn || a.feed == nil {
		return
	}
	var pending []string
	seen := make(map[string]struct{}, len(a.desired))
	for id := range a.desired {
		nid := a.cfg.Normalize(id)
		if _, dup := seen[nid]; dup {
			continue
		}
		seen[nid] = struct{}{}
		if _, ok := a.acked[nid]; !ok {
			pending = append(pending, nid)
		}
	}
	if len(pending) == 0 {
		return
	}
	if err := a.cb.Execute(func() error { return a.feed.Subscribe(pending) }); err != nil {
		a.log.Warn().Err(err).Strs("ids", pending).Msg("subscribe request failed")
	}
}

func (a *Adapter) teardown() {
	if a.feed != nil {
		_ = a.feed.Close()
		a.feed = nil
	}
	a.state = StateInit
}

func (a *Adapter) event(kind string) {
	if a.metr != nil {
		a.metr.AdapterEvents.WithLabelValues(a.cfg.Broker, kind).Inc()
	}
}
