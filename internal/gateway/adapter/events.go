package adapter

import (
	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

// DistributorSink is the adapter's only outward dependency. The
// distributor implements it; the adapter package never imports the
// distributor package, avoiding a cycle (spec.md §4.1/§4.2 boundary).
// OnSnapshot carries the adapter's Kind so the distributor can set
// source_map without guessing a source from the free-form broker name.
type DistributorSink interface {
	OnConnected(broker string)
	OnDisconnected(broker string, reason string)
	OnLoggedIn(broker string)
	OnSnapshot(broker string, kind config.SourceKind, snap snapshot.Snapshot)
	OnSubAck(broker, instrumentID string)
	OnSubNack(broker, instrumentID, reason string)
	OnUnsubAck(broker, instrumentID string)
}

// command is the adapter mailbox's message type. Every exported Adapter
// method just builds one of these and sends it, so the adapter's own
// state is only ever touched by the single goroutine draining the
// mailbox (spec.md §5).
type command struct {
	kind commandKind

	ids   []string
	reply chan []string

	ok     bool
	reason string

	raw RawMarketData
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdSubscribe
	cmdUnsubscribe
	cmdGetSubscriptions
	cmdReconcileTick
	cmdRestartTick

	cmdFrontConnected
	cmdFrontDisconnected
	cmdLoginResult
	cmdSubAck
	cmdUnsubAck
	cmdMarketData
)
