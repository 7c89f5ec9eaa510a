// Package distributor implements the central fan-out actor (spec.md
// §4.2): it owns the two reciprocal subscription maps, the
// last-snapshot cache, and the source map, and is the sole authority
// that issues upstream (un)subscribe calls. Like internal/gateway/
// adapter, state is private to a single goroutine draining a command
// channel; there are no mutexes here, matching the teacher's preference
// for channel-owned state over lock-guarded state wherever the pack
// shows a mailbox pattern.
package distributor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/qamdgateway/internal/audit"
	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/gwcache"
	"github.com/sawpanic/qamdgateway/internal/gwmetrics"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

// cacheTTL bounds how long a write-through cache entry survives in the
// optional Redis-backed store; the in-process lastSnapshot map (the
// correctness-critical copy used for live replay) has no TTL.
const cacheTTL = 24 * time.Hour

// ClientSink is how the distributor pushes snapshots and replies to one
// registered client. Implementations (the session actor) must return
// from Send immediately; the distributor never waits on a slow client
// (spec.md §4.2 "delivery... is non-blocking").
type ClientSink interface {
	Send(snap snapshot.Snapshot)
}

// UpstreamAdapter is the subset of adapter.Adapter the distributor
// needs, kept as a local interface so this package never imports
// internal/gateway/adapter (the dependency runs the other way: adapter
// imports nothing from distributor, distributor depends on adapter only
// by interface shape).
type UpstreamAdapter interface {
	Subscribe(ids []string)
	Unsubscribe(ids []string)
	Subscriptions() []string
}

// selectionOrder is the default adapter-kind preference when an
// instrument has no recorded source (spec.md §4.2 routing policy):
// futures, then the QQ equity feed, then the Sina equity feed. The order
// is fixed here and does not follow config declaration order.
var selectionOrder = []config.SourceKind{config.SourceCTP, config.SourceQQ, config.SourceSina}

type clientState struct {
	sink ClientSink
	subs map[string]struct{}

	// preferredSource is the adapter kind this client's connection asked
	// for via ?source= (spec.md §6). It only ever steers routing for
	// instruments with no existing sourceMap entry; an instrument already
	// routed to a source is never re-routed (source-map permanence).
	preferredSource config.SourceKind
}

// Distributor is the fan-out actor. Build with New, then Start before
// sending any command.
type Distributor struct {
	cmds chan command
	done chan struct{}

	cache gwcache.Cache
	audit audit.Sink
	metr  *gwmetrics.Registry
	log   zerolog.Logger

	clients      map[string]*clientState
	subscribers  map[string]map[string]struct{} // instrument id -> client ids
	sourceMap    map[string]config.SourceKind
	adapters     map[config.SourceKind]UpstreamAdapter
	lastSnapshot map[string]snapshot.Snapshot
}

// New builds a Distributor. cache and auditSink may be nil-interface
// substitutes (gwcache.New(), audit.NoopSink{}) when persistence is not
// configured.
func New(cache gwcache.Cache, auditSink audit.Sink, metr *gwmetrics.Registry, log zerolog.Logger) *Distributor {
	return &Distributor{
		cmds:         make(chan command, 1024),
		done:         make(chan struct{}),
		cache:        cache,
		audit:        auditSink,
		metr:         metr,
		log:          log,
		clients:      make(map[string]*clientState),
		subscribers:  make(map[string]map[string]struct{}),
		sourceMap:    make(map[string]config.SourceKind),
		adapters:     make(map[config.SourceKind]UpstreamAdapter),
		lastSnapshot: make(map[string]snapshot.Snapshot),
	}
}

// Start launches the mailbox goroutine.
func (d *Distributor) Start() { go d.run() }

// Stop drains and exits the mailbox goroutine.
func (d *Distributor) Stop() {
	d.cmds <- command{kind: cmdStop}
	<-d.done
}

func (d *Distributor) run() {
	defer close(d.done)
	for cmd := range d.cmds {
		if cmd.kind == cmdStop {
			return
		}
		d.handle(cmd)
	}
}

// RegisterAdapter records an upstream adapter under kind, so later
// routing (findAdapterFor) and reconciliation can reach it. The adapter
// itself is constructed with this Distributor (or a thin wrapper) as
// its DistributorSink, which is the other half of the bidirectional
// reference spec.md §4.2 calls for.
func (d *Distributor) RegisterAdapter(kind config.SourceKind, upstream UpstreamAdapter) {
	d.cmds <- command{kind: cmdRegisterAdapter, sourceKind: kind, adapter: upstream}
}

// Register adds a new client with an initial subscription set, sending
// a replay of any cached snapshots for ids already in cache (spec.md
// §8 invariant 6). preferredSource is the adapter kind requested via the
// connection's ?source= query parameter (spec.md §6); pass "" when the
// client expressed no preference.
func (d *Distributor) Register(clientID string, sink ClientSink, initialIDs []string, preferredSource config.SourceKind) {
	d.cmds <- command{kind: cmdRegister, clientID: clientID, sink: sink, ids: initialIDs, sourceKind: preferredSource}
}

// Unregister removes a client and its subscriptions, issuing Unsubscribe
// to the source adapter of every instrument whose subscriber set
// becomes empty.
func (d *Distributor) Unregister(clientID string) {
	d.cmds <- command{kind: cmdUnregister, clientID: clientID}
}

// UpdateSubscription replaces a client's subscription set with ids.
func (d *Distributor) UpdateSubscription(clientID string, ids []string) {
	d.cmds <- command{kind: cmdUpdateSub, clientID: clientID, ids: ids}
}

// AddSubscription adds ids to a client's subscription set.
func (d *Distributor) AddSubscription(clientID string, ids []string) {
	d.cmds <- command{kind: cmdAddSub, clientID: clientID, ids: ids}
}

// RemoveSubscription removes ids from a client's subscription set.
func (d *Distributor) RemoveSubscription(clientID string, ids []string) {
	d.cmds <- command{kind: cmdRemoveSub, clientID: clientID, ids: ids}
}

// GetAllSubscriptions returns the union of every subscribed instrument
// id, used by the connector's reconciliation loop.
func (d *Distributor) GetAllSubscriptions() []string {
	reply := make(chan []string, 1)
	d.cmds <- command{kind: cmdGetAllSubs, reply: reply}
	return <-reply
}

// QuerySubscription returns one client's current subscription set.
func (d *Distributor) QuerySubscription(clientID string) []string {
	reply := make(chan []string, 1)
	d.cmds <- command{kind: cmdQuerySub, clientID: clientID, reply: reply}
	return <-reply
}

// OnConnected implements adapter.DistributorSink.
func (d *Distributor) OnConnected(broker string) {
	d.log.Info().Str("broker", broker).Msg("adapter connected")
}

// OnDisconnected implements adapter.DistributorSink.
func (d *Distributor) OnDisconnected(broker, reason string) {
	d.log.Warn().Str("broker", broker).Str("reason", reason).Msg("adapter disconnected")
}

// OnLoggedIn implements adapter.DistributorSink.
func (d *Distributor) OnLoggedIn(broker string) {
	d.log.Info().Str("broker", broker).Msg("adapter logged in")
}

// OnSnapshot implements adapter.DistributorSink. The snapshot is handed
// to the distributor's own mailbox rather than processed inline, since
// this method runs on the adapter's goroutine, not the distributor's
// (spec.md §5: no actor touches another actor's state directly).
func (d *Distributor) OnSnapshot(broker string, kind config.SourceKind, snap snapshot.Snapshot) {
	d.cmds <- command{kind: cmdSnapshotIn, snap: snap, broker: broker, sourceKind: kind}
}

// OnSubAck implements adapter.DistributorSink.
func (d *Distributor) OnSubAck(broker, instrumentID string) {
	d.log.Debug().Str("broker", broker).Str("instrument", instrumentID).Msg("subscribe acked")
}

// OnSubNack implements adapter.DistributorSink.
func (d *Distributor) OnSubNack(broker, instrumentID, reason string) {
	d.log.Warn().Str("broker", broker).Str("instrument", instrumentID).Str("reason", reason).Msg("subscribe nacked")
}

// OnUnsubAck implements adapter.DistributorSink.
func (d *Distributor) OnUnsubAck(broker, instrumentID string) {
	d.log.Debug().Str("broker", broker).Str("instrument", instrumentID).Msg("unsubscribe acked")
}

func (d *Distributor) handle(cmd command) {
	switch cmd.kind {
	case cmdRegisterAdapter:
		d.adapters[cmd.sourceKind] = cmd.adapter

	case cmdRegister:
		d.doRegister(cmd.clientID, cmd.sink, cmd.ids, cmd.sourceKind)

	case cmdUnregister:
		d.doUnregister(cmd.clientID)

	case cmdUpdateSub:
		d.doUpdateSubscription(cmd.clientID, cmd.ids)

	case cmdAddSub:
		d.doAddSubscription(cmd.clientID, cmd.ids)

	case cmdRemoveSub:
		d.doRemoveSubscription(cmd.clientID, cmd.ids)

	case cmdSnapshotIn:
		d.doSnapshot(cmd.snap, cmd.broker, cmd.sourceKind)

	case cmdGetAllSubs:
		ids := make([]string, 0, len(d.subscribers))
		for id := range d.subscribers {
			ids = append(ids, id)
		}
		cmd.reply <- ids

	case cmdQuerySub:
		cl, ok := d.clients[cmd.clientID]
		if !ok {
			cmd.reply <- nil
			return
		}
		ids := make([]string, 0, len(cl.subs))
		for id := range cl.subs {
			ids = append(ids, id)
		}
		cmd.reply <- ids
	}
}

func (d *Distributor) doRegister(clientID string, sink ClientSink, initialIDs []string, preferredSource config.SourceKind) {
	cl := &clientState{sink: sink, subs: make(map[string]struct{}), preferredSource: preferredSource}
	d.clients[clientID] = cl
	d.setGauges()
	d.doAddSubscription(clientID, initialIDs)
}

func (d *Distributor) doUnregister(clientID string) {
	cl, ok := d.clients[clientID]
	if !ok {
		return
	}
	ids := make([]string, 0, len(cl.subs))
	for id := range cl.subs {
		ids = append(ids, id)
	}
	d.doRemoveSubscription(clientID, ids)
	delete(d.clients, clientID)
	d.setGauges()
}

func (d *Distributor) doUpdateSubscription(clientID string, desired []string) {
	cl, ok := d.clients[clientID]
	if !ok {
		return
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	var toAdd, toRemove []string
	for id := range desiredSet {
		if _, have := cl.subs[id]; !have {
			toAdd = append(toAdd, id)
		}
	}
	for id := range cl.subs {
		if _, want := desiredSet[id]; !want {
			toRemove = append(toRemove, id)
		}
	}

	d.doRemoveSubscription(clientID, toRemove)
	d.doAddSubscription(clientID, toAdd)
}

func (d *Distributor) doAddSubscription(clientID string, ids []string) {
	cl, ok := d.clients[clientID]
	if !ok {
		return
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, already := cl.subs[id]; already {
			continue
		}
		cl.subs[id] = struct{}{}

		subs, exists := d.subscribers[id]
		wasEmpty := !exists || len(subs) == 0
		if !exists {
			subs = make(map[string]struct{})
			d.subscribers[id] = subs
		}
		subs[clientID] = struct{}{}

		if wasEmpty {
			if adapter := d.findAdapterFor(id, cl.preferredSource); adapter != nil {
				adapter.Subscribe([]string{id})
			}
		}

		d.recordAudit(audit.Event{
			Kind:         "subscribe",
			InstrumentID: id,
			ClientID:     clientID,
			At:           time.Now().UTC(),
		})

		if snap, ok := d.lastSnapshot[id]; ok {
			cl.sink.Send(snap)
		} else if d.cache != nil {
			if b, ok := d.cache.Get(cacheKey(id)); ok {
				var snap snapshot.Snapshot
				if err := json.Unmarshal(b, &snap); err == nil {
					cl.sink.Send(snap)
				}
			}
		}
	}
	d.setGauges()
}

func (d *Distributor) doRemoveSubscription(clientID string, ids []string) {
	cl, ok := d.clients[clientID]
	if !ok {
		return
	}
	for _, id := range ids {
		if _, had := cl.subs[id]; !had {
			continue
		}
		delete(cl.subs, id)

		subs, exists := d.subscribers[id]
		if !exists {
			continue
		}
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(d.subscribers, id)
			if adapter := d.findAdapterFor(id, ""); adapter != nil {
				adapter.Unsubscribe([]string{id})
			}
		}

		d.recordAudit(audit.Event{
			Kind:         "unsubscribe",
			InstrumentID: id,
			ClientID:     clientID,
			At:           time.Now().UTC(),
		})
	}
	d.setGauges()
}

func (d *Distributor) doSnapshot(snap snapshot.Snapshot, broker string, kind config.SourceKind) {
	if _, known := d.sourceMap[snap.InstrumentID]; !known {
		d.sourceMap[snap.InstrumentID] = kind
	}
	d.lastSnapshot[snap.InstrumentID] = snap

	if d.cache != nil {
		if b, err := json.Marshal(snap); err == nil {
			d.cache.Set(cacheKey(snap.InstrumentID), b, cacheTTL)
		}
	}
	if d.metr != nil {
		d.metr.DistributorSnapshots.WithLabelValues(broker).Inc()
	}

	if subs, ok := d.subscribers[snap.InstrumentID]; ok {
		for clientID := range subs {
			if cl, ok := d.clients[clientID]; ok {
				cl.sink.Send(snap)
			}
		}
	}

	d.recordAudit(audit.Event{
		Kind:         "snapshot",
		InstrumentID: snap.InstrumentID,
		Broker:       broker,
		Snapshot:     &snap,
		At:           time.Now().UTC(),
	})
}

// recordAudit appends ev to the audit sink off the caller's goroutine, so a
// slow or unreachable sink (PostgresSink blocks on a real DB round trip)
// never adds backpressure to live delivery. Fire-and-forget: failures are
// logged, never surfaced to the mailbox loop.
func (d *Distributor) recordAudit(ev audit.Event) {
	if d.audit == nil {
		return
	}
	go func() {
		if err := d.audit.Record(context.Background(), ev); err != nil {
			d.log.Warn().Err(err).Str("instrument", ev.InstrumentID).Str("kind", ev.Kind).Msg("audit record failed")
		}
	}()
}

// findAdapterFor implements the routing policy of spec.md §4.2: use the
// recorded source if known, otherwise the subscribing connection's
// preferred source (spec.md §6 ?source=), otherwise the first enabled
// adapter in selectionOrder. It does not itself update sourceMap;
// sourceMap is only ever set from an observed Snapshot (doSnapshot),
// matching "first snapshot from an adapter sets source_map[i]
// permanently" — preferredSource never overrides an instrument that
// already has a recorded source.
func (d *Distributor) findAdapterFor(instrumentID string, preferredSource config.SourceKind) UpstreamAdapter {
	if kind, ok := d.sourceMap[instrumentID]; ok {
		if a, ok := d.adapters[kind]; ok {
			return a
		}
	}
	if preferredSource != "" {
		if a, ok := d.adapters[preferredSource]; ok {
			return a
		}
	}
	for _, kind := range selectionOrder {
		if a, ok := d.adapters[kind]; ok {
			return a
		}
	}
	return nil
}

func (d *Distributor) setGauges() {
	if d.metr == nil {
		return
	}
	d.metr.DistributorSubscribers.Set(float64(len(d.clients)))
	d.metr.DistributorTrackedInstruments.Set(float64(len(d.subscribers)))
}

func cacheKey(instrumentID string) string {
	return "snapshot:" + instrumentID
}
