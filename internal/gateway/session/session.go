// Package session implements the per-WebSocket actor (spec.md §4.3):
// dialect parsing, heartbeat, per-client subscription set, outbound
// encoding in both dialects. Grounded on the teacher's
// internal/providers/kraken/websocket.go goroutine shape (separate
// read/ping loops, a close channel) turned inside-out: the teacher
// drives an outbound client connection, this drives an inbound server
// connection, but the two-goroutine-plus-close-channel structure is the
// same idiom.
package session

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/gateway/distributor"
	"github.com/sawpanic/qamdgateway/internal/gwmetrics"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

const (
	pingInterval   = 10 * time.Second
	idleTimeout    = 30 * time.Second
	outboxCapacity = 1024
)

// Registrar is the subset of *distributor.Distributor a session needs.
// Kept as a local interface so this package is testable without a real
// Distributor.
type Registrar interface {
	Register(clientID string, sink distributor.ClientSink, initialIDs []string, preferredSource config.SourceKind)
	Unregister(clientID string)
	UpdateSubscription(clientID string, ids []string)
	AddSubscription(clientID string, ids []string)
	RemoveSubscription(clientID string, ids []string)
	QuerySubscription(clientID string) []string
}

// Conn is the subset of *websocket.Conn a session drives, so tests can
// substitute a fake transport.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session owns one WebSocket connection end to end: registration,
// dialect dispatch, heartbeat, and dual-dialect outbound encoding.
type Session struct {
	id              string
	conn            Conn
	reg             Registrar
	log             zerolog.Logger
	metr            *gwmetrics.Registry
	preferredSource config.SourceKind

	outbox    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

// New builds a Session with a freshly assigned client id. preferredSource
// is the adapter kind requested via the connection's ?source= query
// parameter (spec.md §6); pass "" when the connection expressed none.
func New(conn Conn, reg Registrar, log zerolog.Logger, metr *gwmetrics.Registry, preferredSource config.SourceKind) *Session {
	id := uuid.New().String()
	return &Session{
		id:              id,
		conn:            conn,
		reg:             reg,
		log:             log.With().Str("client_id", id).Logger(),
		metr:            metr,
		preferredSource: preferredSource,
		outbox:          make(chan []byte, outboxCapacity),
		closeCh:         make(chan struct{}),
	}
}

// ID returns the session's client id.
func (s *Session) ID() string { return s.id }

// Send implements distributor.ClientSink. It must never block: a full
// outbox drops the oldest pending frame (spec.md §4.2/§4.3).
func (s *Session) Send(snap snapshot.Snapshot) {
	s.enqueue(marketDataEnvelope(snap))
	s.enqueue(rtnDataFrame(snap))
}

// Run registers the session, starts its write loop, and blocks in the
// read loop until the connection closes. Callers run this on its own
// goroutine per accepted WebSocket.
func (s *Session) Run() {
	defer s.recoverPanic("run")

	s.reg.Register(s.id, s, nil, s.preferredSource)
	if s.metr != nil {
		s.metr.SessionsActive.Inc()
	}
	defer func() {
		s.reg.Unregister(s.id)
		if s.metr != nil {
			s.metr.SessionsActive.Dec()
		}
		_ = s.conn.Close()
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	s.enqueue(systemEnvelope("connected"))

	go s.writeLoop()
	s.readLoop()
	s.close()
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closeCh) })
}

func (s *Session) readLoop() {
	defer s.recoverPanic("read loop")
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Msg("read loop exiting")
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		s.handleInbound(data)
	}
}

func (s *Session) writeLoop() {
	defer s.recoverPanic("write loop")
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case frame := <-s.outbox:
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.close()
				return
			}
			if s.metr != nil {
				s.metr.SessionFramesSent.WithLabelValues(frameDialect(frame)).Inc()
			}
		}
	}
}

func (s *Session) handleInbound(data []byte) {
	msg := parseInbound(data)
	switch msg.kind {
	case inSubscribeQuote:
		s.reg.UpdateSubscription(s.id, msg.instruments)
		s.enqueue(rspSubscribeQuote(s.reg.QuerySubscription(s.id)))

	case inPeekMessage:
		s.enqueue(rspPeekMessage(s.reg.QuerySubscription(s.id)))

	case inLegacySubscribe:
		s.reg.AddSubscription(s.id, msg.instruments)
		s.enqueue(systemEnvelope("subscribed"))

	case inLegacyUnsubscribe:
		s.reg.RemoveSubscription(s.id, msg.instruments)
		s.enqueue(systemEnvelope("unsubscribed"))

	case inLegacySubscriptions:
		s.enqueue(subscriptionsEnvelope(s.reg.QuerySubscription(s.id)))

	case inLegacyPing:
		s.enqueue(pongEnvelope())

	case inLegacyAuth:
		s.enqueue(systemEnvelope("Authentication not required"))

	default:
		s.enqueue(errorEnvelope("unrecognized message"))
	}
}

// enqueue pushes frame onto the bounded outbox, dropping the oldest
// pending frame when full (spec.md §4.3 backpressure policy).
func (s *Session) enqueue(frame []byte) {
	select {
	case s.outbox <- frame:
		return
	default:
	}
	select {
	case <-s.outbox:
	default:
	}
	if s.metr != nil {
		s.metr.SessionFramesDropped.WithLabelValues("outbox_full").Inc()
	}
	select {
	case s.outbox <- frame:
	default:
	}
}

func (s *Session) recoverPanic(where string) {
	if r := recover(); r != nil {
		s.log.Error().Interface("panic", r).Str("where", where).Msg("recovered from panic")
		_ = s.conn.Close()
	}
}

// frameDialect labels an outbound frame for metrics: the platform
// dialect is the only one ever tagged with "aid".
func frameDialect(frame []byte) string {
	if bytes.Contains(frame, []byte(`"aid"`)) {
		return "platform"
	}
	return "legacy"
}
