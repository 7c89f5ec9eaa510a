package adapter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

type fakeFeed struct {
	mu             sync.Mutex
	cb             Callbacks
	loginReq       LoginRequest
	subscribeCalls [][]string
	closed         bool
}

func (f *fakeFeed) Init() error {
	f.cb.OnFrontConnected()
	return nil
}

func (f *fakeFeed) Login(req LoginRequest) error {
	f.mu.Lock()
	f.loginReq = req
	f.mu.Unlock()
	f.cb.OnRspUserLogin(true, nil)
	return nil
}

func (f *fakeFeed) Subscribe(ids []string) error {
	f.mu.Lock()
	f.subscribeCalls = append(f.subscribeCalls, ids)
	f.mu.Unlock()
	for _, id := range ids {
		f.cb.OnRspSubMarketData(id, true, "")
	}
	return nil
}

func (f *fakeFeed) Unsubscribe(ids []string) error {
	for _, id := range ids {
		f.cb.OnRspUnSubMarketData(id, true)
	}
	return nil
}

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeSink struct {
	connected    chan string
	disconnected chan string
	loggedIn     chan string
	subAcked     chan string
	snapshots    chan snapshot.Snapshot
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		connected:    make(chan string, 8),
		disconnected: make(chan string, 8),
		loggedIn:     make(chan string, 8),
		subAcked:     make(chan string, 8),
		snapshots:    make(chan snapshot.Snapshot, 8),
	}
}

func (s *fakeSink) OnConnected(broker string)                   { s.connected <- broker }
func (s *fakeSink) OnDisconnected(broker string, reason string) { s.disconnected <- broker }
func (s *fakeSink) OnLoggedIn(broker string)                    { s.loggedIn <- broker }
func (s *fakeSink) OnSnapshot(broker string, kind config.SourceKind, snap snapshot.Snapshot) {
	s.snapshots <- snap
}
func (s *fakeSink) OnSubAck(broker, instrumentID string)          { s.subAcked <- instrumentID }
func (s *fakeSink) OnSubNack(broker, instrumentID, reason string) {}
func (s *fakeSink) OnUnsubAck(broker, instrumentID string)        {}

func newTestAdapter(t *testing.T, login LoginRequest) (*Adapter, *fakeSink, func() *fakeFeed) {
	t.Helper()
	var mu sync.Mutex
	var feeds []*fakeFeed
	factory := FeedFactory(func(frontAddr string, cb Callbacks) NativeFeed {
		f := &fakeFeed{cb: cb}
		mu.Lock()
		feeds = append(feeds, f)
		mu.Unlock()
		return f
	})
	sink := newFakeSink()
	a := New(Config{
		Broker:    "test",
		Kind:      config.SourceCTP,
		FrontAddr: "tcp://127.0.0.1:0",
		Login:     login,
		NewFeed:   factory,
	}, sink, zerolog.Nop(), nil)

	latest := func() *fakeFeed {
		mu.Lock()
		defer mu.Unlock()
		if len(feeds) == 0 {
			return nil
		}
		return feeds[len(feeds)-1]
	}
	return a, sink, latest
}

func TestAdapterConnectLoginSubscribeFlow(t *testing.T) {
	a, sink, latestFeed := newTestAdapter(t, LoginRequest{BrokerID: "b", UserID: "u", Password: "p"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	select {
	case b := <-sink.connected:
		if b != "test" {
			t.Fatalf("OnConnected broker = %q, want test", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnConnected")
	}

	select {
	case <-sink.loggedIn:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnLoggedIn")
	}

	a.Subscribe([]string{"SHFE.au2512"})

	select {
	case id := <-sink.subAcked:
		if id != "au2512" {
			t.Fatalf("subscribed id = %q, want au2512 (futures adapter must not pad)", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sub ack")
	}

	if f := latestFeed(); f == nil || len(f.subscribeCalls) != 1 {
		t.Fatalf("expected exactly one batched Subscribe call, got %+v", f)
	}

	a.Stop()
}

func TestAdapterDesiredSurvivesDisconnect(t *testing.T) {
	a, sink, latestFeed := newTestAdapter(t, LoginRequest{BrokerID: "b", UserID: "u", Password: "p"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	<-sink.connected
	<-sink.loggedIn

	a.Subscribe([]string{"600000"})
	<-sink.subAcked

	f := latestFeed()
	f.cb.OnFrontDisconnected("connection reset")

	select {
	case <-sink.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnDisconnected")
	}

	subs := a.Subscriptions()
	found := false
	for _, id := range subs {
		if id == "600000" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected desired set to survive disconnect, got %v", subs)
	}

	a.Stop()
}

func TestAdapterLoginFieldsTruncatedToBufferBound(t *testing.T) {
	long := strings.Repeat("x", 20)
	a, sink, latestFeed := newTestAdapter(t, LoginRequest{BrokerID: long, UserID: long, Password: long})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	<-sink.connected
	<-sink.loggedIn

	f := latestFeed()
	f.mu.Lock()
	got := f.loginReq.BrokerID
	f.mu.Unlock()

	if len(got) != loginBufLen-1 {
		t.Fatalf("login field length = %d, want %d (bufLen-1)", len(got), loginBufLen-1)
	}

	a.Stop()
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 16); got != "short" {
		t.Fatalf("Truncate should not cut strings under the bound, got %q", got)
	}
	if got := Truncate(strings.Repeat("a", 20), 16); len(got) != 15 {
		t.Fatalf("Truncate(20 chars, bufLen 16) length = %d, want 15", len(got))
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Fatalf("Truncate with bufLen<=0 should be a no-op, got %q", got)
	}
}
