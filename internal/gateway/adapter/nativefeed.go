package adapter

import (
	"fmt"
	"time"

	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

// NativeFeed is the out-of-scope native feed client library's request
// surface (spec.md §1, §6): one handle per broker/front, blocking calls
// for init/login/(un)subscribe. The gateway only consumes this
// interface; it does not implement a real CTP/QQ/Sina binding.
type NativeFeed interface {
	Init() error
	Login(req LoginRequest) error
	Subscribe(ids []string) error
	Unsubscribe(ids []string) error
	Close() error
}

// LoginRequest carries the fixed-size-buffer login fields. The adapter's
// loginBufLen constant models the native ABI's fixed byte buffer length,
// and the adapter applies Truncate with it to enforce the
// buffer-bounded string copy contract (spec.md §4.1) even though Go
// itself has no fixed buffers here.
type LoginRequest struct {
	BrokerID string
	UserID   string
	Password string
}

// Truncate returns s cut to at most bufLen-1 bytes, mirroring the native
// ABI's "copy what fits, leave room for the null terminator" contract.
// bufLen <= 0 is treated as "no limit" since it denotes a binding this
// gateway does not itself enforce a buffer size for.
func Truncate(s string, bufLen int) string {
	if bufLen <= 0 || len(s) < bufLen {
		return s
	}
	return s[:bufLen-1]
}

// FeedFactory builds a NativeFeed bound to one front address, wired to
// deliver callbacks through cb. The adapter's connect calls this once
// per connect attempt: the initial Start, each scheduled reconnect, and
// each restart tick that finds the adapter not logged in.
type FeedFactory func(frontAddr string, cb Callbacks) NativeFeed

// Callbacks is the set of events the native feed invokes, potentially
// from its own I/O threads. Every implementation must do no work beyond
// packaging arguments and enqueuing them on the adapter's mailbox; none
// of these functions may touch adapter state directly (spec.md §5).
type Callbacks struct {
	OnFrontConnected    func()
	OnFrontDisconnected func(reason string)
	OnRspUserLogin      func(ok bool, err error)
	OnRspSubMarketData  func(instrumentID string, ok bool, reason string)
	OnRspUnSubMarketData func(instrumentID string, ok bool)
	OnRtnDepthMarketData func(raw RawMarketData)
}

// RawMarketData is the native depth-market-data frame, shaped like the
// upstream ABI's fields (spec.md §3, §6) before conversion to
// snapshot.Snapshot. It is intentionally a plain value type: the real
// native struct (e.g. CThostFtdcDepthMarketDataField) is out of scope,
// but its field shape is not, since the core must convert it faithfully.
type RawMarketData struct {
	InstrumentID string

	// Timestamp is the upstream server's own timestamp for this frame
	// (spec.md §3, §6), not the time the gateway observed it. The zero
	// value means the native binding supplied none; Convert falls back
	// to the conversion-time wall clock so Snapshot.Timestamp is never
	// the Go zero time.
	Timestamp time.Time

	LastPrice, Volume, Amount                       float64
	Open, Highest, Lowest, Close                    float64
	PreClose, Average                               float64
	UpperLimit, LowerLimit                           float64
	BidPrice, BidVolume, AskPrice, AskVolume         [5]float64

	OpenInterest    RawOptional
	PreOpenInterest RawOptional
	Settlement      RawOptional
	PreSettlement   RawOptional
	IOPV            RawOptional
}

// RawOptionalKind mirrors snapshot.Optional's three states at the native
// boundary, before the adapter's Convert function builds the real
// snapshot.Optional.
type RawOptionalKind int

const (
	RawAbsent RawOptionalKind = iota
	RawNumber
	RawSentinel
)

// RawOptional is the native-side tri-valued field.
type RawOptional struct {
	Kind     RawOptionalKind
	Number   float64
	Sentinel string
}

func (r RawOptional) toOptional() *snapshot.Optional {
	switch r.Kind {
	case RawNumber:
		v := snapshot.OptionalNumber(r.Number)
		return &v
	case RawSentinel:
		v := snapshot.OptionalSentinel(r.Sentinel)
		return &v
	default:
		return nil
	}
}

// Convert maps a native depth-market-data frame into an immutable
// Snapshot, applying the adapter's normalization rule to the instrument
// id. It returns an error (never panics) when the frame is too
// malformed to become a Snapshot at all, per the Conversion error policy
// in spec.md §7: the caller drops the update and logs, the adapter
// itself is not killed.
func Convert(raw RawMarketData, normalize NormalizeFunc) (snapshot.Snapshot, error) {
	if raw.InstrumentID == "" {
		return snapshot.Snapshot{}, fmt.Errorf("adapter: market data frame missing instrument id")
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return snapshot.Snapshot{
		InstrumentID: normalize(raw.InstrumentID),
		Timestamp:    ts,
		LastPrice:    raw.LastPrice,
		Volume:       raw.Volume,
		Amount:       raw.Amount,
		Open:         raw.Open,
		Highest:      raw.Highest,
		Lowest:       raw.Lowest,
		Close:        raw.Close,
		PreClose:     raw.PreClose,
		Average:      raw.Average,
		UpperLimit:   raw.UpperLimit,
		LowerLimit:   raw.LowerLimit,
		BidPrice:     raw.BidPrice,
		BidVolume:    raw.BidVolume,
		AskPrice:     raw.AskPrice,
		AskVolume:    raw.AskVolume,

		OpenInterest:    raw.OpenInterest.toOptional(),
		PreOpenInterest: raw.PreOpenInterest.toOptional(),
		Settlement:      raw.Settlement.toOptional(),
		PreSettlement:   raw.PreSettlement.toOptional(),
		IOPV:            raw.IOPV.toOptional(),
	}, nil
}
