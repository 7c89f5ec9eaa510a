package distributor

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/qamdgateway/internal/audit"
	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/gwcache"
	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

type recordingSink struct {
	mu   sync.Mutex
	recv []snapshot.Snapshot
}

func (s *recordingSink) Send(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = append(s.recv, snap)
}

func (s *recordingSink) all() []snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]snapshot.Snapshot, len(s.recv))
	copy(out, s.recv)
	return out
}

type fakeAdapter struct {
	mu          sync.Mutex
	subscribed  []string
	unsubscribed []string
}

func (f *fakeAdapter) Subscribe(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, ids...)
}

func (f *fakeAdapter) Unsubscribe(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, ids...)
}

func (f *fakeAdapter) Subscriptions() []string { return nil }

func (f *fakeAdapter) counts() (sub, unsub int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed), len(f.unsubscribed)
}

func newTestDistributor() *Distributor {
	d := New(gwcache.New(), audit.NoopSink{}, nil, zerolog.Nop())
	d.Start()
	return d
}

func waitForLen(t *testing.T, get func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if get() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for length %d, got %d", want, get())
}

func TestReciprocalMapInvariantAfterRegisterAndUnregister(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	sink := &recordingSink{}
	d.Register("c1", sink, []string{"au2212"}, "")
	waitForLen(t, func() int { return len(d.QuerySubscription("c1")) }, 1)

	if subs := d.GetAllSubscriptions(); len(subs) != 1 || subs[0] != "au2212" {
		t.Fatalf("GetAllSubscriptions = %v, want [au2212]", subs)
	}

	d.Unregister("c1")
	waitForLen(t, func() int { return len(d.GetAllSubscriptions()) }, 0)

	if subs := d.QuerySubscription("c1"); subs != nil {
		t.Fatalf("expected nil subscriptions after unregister, got %v", subs)
	}
}

func TestUpdateSubscriptionReplacesSet(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	sink := &recordingSink{}
	d.Register("c1", sink, []string{"a", "b"}, "")
	waitForLen(t, func() int { return len(d.QuerySubscription("c1")) }, 2)

	d.UpdateSubscription("c1", []string{"b", "c"})
	waitForLen(t, func() int { return len(d.QuerySubscription("c1")) }, 2)

	got := map[string]bool{}
	for _, id := range d.QuerySubscription("c1") {
		got[id] = true
	}
	if !got["b"] || !got["c"] || got["a"] {
		t.Fatalf("subs after update = %v, want {b,c}", got)
	}
}

func TestUnsubscribeIssuedWhenSubscriberSetEmpties(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	adapter := &fakeAdapter{}
	d.RegisterAdapter(config.SourceCTP, adapter)

	sink := &recordingSink{}
	d.Register("c1", sink, []string{"au2212"}, "")
	waitForLen(t, func() int { s, _ := adapter.counts(); return s }, 1)

	d.UpdateSubscription("c1", nil)
	waitForLen(t, func() int { _, u := adapter.counts(); return u }, 1)
}

func TestLateSubscriberReplay(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	adapter := &fakeAdapter{}
	d.RegisterAdapter(config.SourceCTP, adapter)

	first := &recordingSink{}
	d.Register("c1", first, []string{"au2212"}, "")
	waitForLen(t, func() int { s, _ := adapter.counts(); return s }, 1)

	d.OnSnapshot("front-1", config.SourceCTP, snapshot.Snapshot{
		InstrumentID: "au2212",
		LastPrice:    378.40,
	})
	waitForLen(t, func() int { return len(first.all()) }, 1)

	late := &recordingSink{}
	d.Register("c2", late, []string{"au2212"}, "")
	waitForLen(t, func() int { return len(late.all()) }, 1)

	got := late.all()
	if got[0].LastPrice != 378.40 {
		t.Fatalf("late subscriber replay last_price = %v, want 378.40", got[0].LastPrice)
	}
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	adapter := &fakeAdapter{}
	d.RegisterAdapter(config.SourceCTP, adapter)

	a := &recordingSink{}
	b := &recordingSink{}
	d.Register("c1", a, []string{"au2212"}, "")
	d.Register("c2", b, []string{"au2212"}, "")
	waitForLen(t, func() int { s, _ := adapter.counts(); return s }, 1)

	d.OnSnapshot("front-1", config.SourceCTP, snapshot.Snapshot{InstrumentID: "au2212", LastPrice: 10})
	waitForLen(t, func() int { return len(a.all()) }, 1)
	waitForLen(t, func() int { return len(b.all()) }, 1)
}

func TestSubscribeUnsubscribeResubscribeRoutesAgainAndLeavesSingleSubscriber(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	adapter := &fakeAdapter{}
	d.RegisterAdapter(config.SourceCTP, adapter)

	sink := &recordingSink{}
	d.Register("c1", sink, nil, "")

	d.AddSubscription("c1", []string{"au2212"})
	waitForLen(t, func() int { s, _ := adapter.counts(); return s }, 1)

	d.RemoveSubscription("c1", []string{"au2212"})
	waitForLen(t, func() int { _, u := adapter.counts(); return u }, 1)

	d.AddSubscription("c1", []string{"au2212"})
	waitForLen(t, func() int { s, _ := adapter.counts(); return s }, 2)

	subs := d.QuerySubscription("c1")
	if len(subs) != 1 || subs[0] != "au2212" {
		t.Fatalf("subscriptions after resubscribe = %v, want [au2212]", subs)
	}
}

func TestDuplicateSubscribeIsIdempotent(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	adapter := &fakeAdapter{}
	d.RegisterAdapter(config.SourceCTP, adapter)

	sink := &recordingSink{}
	d.Register("c1", sink, []string{"au2212"}, "")
	waitForLen(t, func() int { s, _ := adapter.counts(); return s }, 1)

	d.AddSubscription("c1", []string{"au2212"})
	time.Sleep(50 * time.Millisecond)

	sub, _ := adapter.counts()
	if sub != 1 {
		t.Fatalf("duplicate subscribe issued %d upstream calls, want 1", sub)
	}
	if subs := d.QuerySubscription("c1"); len(subs) != 1 {
		t.Fatalf("subscriptions after duplicate add = %v, want exactly one entry", subs)
	}
}

func TestSourceMapPersistsAfterFullUnsubscribe(t *testing.T) {
	d := newTestDistributor()
	defer d.Stop()

	ctp := &fakeAdapter{}
	d.RegisterAdapter(config.SourceCTP, ctp)

	sink := &recordingSink{}
	d.Register("c1", sink, []string{"au2212"}, "")
	waitForLen(t, func() int { s, _ := ctp.counts(); return s }, 1)

	d.OnSnapshot("front-1", config.SourceCTP, snapshot.Snapshot{InstrumentID: "au2212", LastPrice: 1})
	waitForLen(t, func() int { return len(sink.all()) }, 1)

	d.Unregister("c1")
	waitForLen(t, func() int { _, u := ctp.counts(); return u }, 1)

	qq := &fakeAdapter{}
	d.RegisterAdapter(config.SourceQQ, qq)

	other := &recordingSink{}
	d.Register("c2", other, []string{"au2212"}, "")
	waitForLen(t, func() int { s, _ := ctp.counts(); return s }, 2)

	if s, _ := qq.counts(); s != 0 {
		t.Fatalf("expected re-subscription to route back to the original CTP source, qq got %d calls", s)
	}
}
