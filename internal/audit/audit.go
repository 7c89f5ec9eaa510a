// Package audit provides an optional durable sink for snapshots and
// subscription transitions. It exists to exercise the teacher's
// sqlx/lib-pq persistence stack on a domain the gateway actually has —
// it is not part of the core delivery path and a slow or unreachable
// sink must never add backpressure to live fan-out (spec.md §4.2).
package audit

import (
	"context"
	"time"

	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

// Event is one durable record: either a snapshot observation or a
// subscription transition, distinguished by Kind.
type Event struct {
	Kind         string // "snapshot", "subscribe", "unsubscribe"
	InstrumentID string
	ClientID     string
	Broker       string
	Snapshot     *snapshot.Snapshot
	At           time.Time
}

// Sink persists Events. Implementations must not block the caller for
// longer than their own internal timeout; callers run this off the
// distributor's mailbox goroutine.
type Sink interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// NoopSink discards everything. Used when no persistence DSN is
// configured.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Event) error { return nil }
func (NoopSink) Close() error                         { return nil }
