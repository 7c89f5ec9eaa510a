package distributor

import (
	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

type commandKind int

const (
	cmdStop commandKind = iota
	cmdRegisterAdapter
	cmdRegister
	cmdUnregister
	cmdUpdateSub
	cmdAddSub
	cmdRemoveSub
	cmdSnapshotIn
	cmdGetAllSubs
	cmdQuerySub
)

// command is the distributor mailbox's single message type. Every
// exported Distributor method builds one of these and sends it, so
// state is only ever mutated inside run/handle.
type command struct {
	kind commandKind

	clientID string
	sink     ClientSink
	ids      []string
	reply    chan []string

	sourceKind config.SourceKind
	adapter    UpstreamAdapter

	snap   snapshot.Snapshot
	broker string
}
