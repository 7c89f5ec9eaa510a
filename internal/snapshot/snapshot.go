// Package snapshot defines the immutable quote record that flows from
// upstream adapters through the distributor to WebSocket sessions.
package snapshot

import (
	"encoding/json"
	"time"
)

// Exchange prefix constants carried over from the upstream feeds this
// gateway normalizes instrument ids from. They document the known
// prefixes only; nothing in this module references them, and the
// adapter strips whatever prefix precedes the first '.'.
const (
	ExchangeSSE   = "SSE"
	ExchangeSZSE  = "SZSE"
	ExchangeCFFEX = "CFFEX"
	ExchangeSHFE  = "SHFE"
	ExchangeDCE   = "DCE"
	ExchangeCZCE  = "CZCE"
	ExchangeHKEX  = "HKEX"
	ExchangeIB    = "IB"
)

// PriceLevel is one side of one depth level: a price paired with the
// volume resting at that price.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// Snapshot is an immutable market-data observation for one instrument at
// one server timestamp. It is created once on adapter ingress and never
// mutated; the distributor only ever replaces a cache entry with a newer
// Snapshot, it never edits one in place.
type Snapshot struct {
	InstrumentID string    `json:"instrument_id"`
	Timestamp    time.Time `json:"datetime"`

	LastPrice float64 `json:"last_price"`
	Volume    float64 `json:"volume"`
	Amount    float64 `json:"amount"`

	Open    float64 `json:"open"`
	Highest float64 `json:"highest"`
	Lowest  float64 `json:"lowest"`
	Close   float64 `json:"close"`

	PreClose float64 `json:"pre_close"`
	Average  float64 `json:"average"`

	UpperLimit float64 `json:"upper_limit"`
	LowerLimit float64 `json:"lower_limit"`

	BidPrice  [5]float64 `json:"-"`
	BidVolume [5]float64 `json:"-"`
	AskPrice  [5]float64 `json:"-"`
	AskVolume [5]float64 `json:"-"`

	// Tri-valued fields: numeric, the "-" sentinel, or absent. A nil
	// pointer is an absent field and is dropped from the JSON object by
	// encoding/json's omitempty; a non-nil pointer renders through
	// Optional's own MarshalJSON.
	OpenInterest    *Optional `json:"open_interest,omitempty"`
	PreOpenInterest *Optional `json:"pre_open_interest,omitempty"`
	Settlement      *Optional `json:"settlement,omitempty"`
	PreSettlement   *Optional `json:"pre_settlement,omitempty"`
	IOPV            *Optional `json:"iopv,omitempty"`
}

// wireSnapshot is Snapshot with the five bid/ask price-volume pairs
// flattened into the numbered field names the legacy wire dialect uses
// (bid_price1..5, bid_volume1..5, ask_price1..5, ask_volume1..5).
type wireSnapshot struct {
	InstrumentID string    `json:"instrument_id"`
	Timestamp    time.Time `json:"datetime"`

	LastPrice float64 `json:"last_price"`
	Volume    float64 `json:"volume"`
	Amount    float64 `json:"amount"`

	Open    float64 `json:"open"`
	Highest float64 `json:"highest"`
	Lowest  float64 `json:"lowest"`
	Close   float64 `json:"close"`

	PreClose float64 `json:"pre_close"`
	Average  float64 `json:"average"`

	UpperLimit float64 `json:"upper_limit"`
	LowerLimit float64 `json:"lower_limit"`

	BidPrice1 float64 `json:"bid_price1"`
	BidPrice2 float64 `json:"bid_price2"`
	BidPrice3 float64 `json:"bid_price3"`
	BidPrice4 float64 `json:"bid_price4"`
	BidPrice5 float64 `json:"bid_price5"`

	BidVolume1 float64 `json:"bid_volume1"`
	BidVolume2 float64 `json:"bid_volume2"`
	BidVolume3 float64 `json:"bid_volume3"`
	BidVolume4 float64 `json:"bid_volume4"`
	BidVolume5 float64 `json:"bid_volume5"`

	AskPrice1 float64 `json:"ask_price1"`
	AskPrice2 float64 `json:"ask_price2"`
	AskPrice3 float64 `json:"ask_price3"`
	AskPrice4 float64 `json:"ask_price4"`
	AskPrice5 float64 `json:"ask_price5"`

	AskVolume1 float64 `json:"ask_volume1"`
	AskVolume2 float64 `json:"ask_volume2"`
	AskVolume3 float64 `json:"ask_volume3"`
	AskVolume4 float64 `json:"ask_volume4"`
	AskVolume5 float64 `json:"ask_volume5"`

	OpenInterest    *Optional `json:"open_interest,omitempty"`
	PreOpenInterest *Optional `json:"pre_open_interest,omitempty"`
	Settlement      *Optional `json:"settlement,omitempty"`
	PreSettlement   *Optional `json:"pre_settlement,omitempty"`
	IOPV            *Optional `json:"iopv,omitempty"`
}

func (s Snapshot) toWire() wireSnapshot {
	return wireSnapshot{
		InstrumentID: s.InstrumentID,
		Timestamp:    s.Timestamp,
		LastPrice:    s.LastPrice,
		Volume:       s.Volume,
		Amount:       s.Amount,
		Open:         s.Open,
		Highest:      s.Highest,
		Lowest:       s.Lowest,
		Close:        s.Close,
		PreClose:     s.PreClose,
		Average:      s.Average,
		UpperLimit:   s.UpperLimit,
		LowerLimit:   s.LowerLimit,

		BidPrice1: s.BidPrice[0], BidPrice2: s.BidPrice[1], BidPrice3: s.BidPrice[2], BidPrice4: s.BidPrice[3], BidPrice5: s.BidPrice[4],
		BidVolume1: s.BidVolume[0], BidVolume2: s.BidVolume[1], BidVolume3: s.BidVolume[2], BidVolume4: s.BidVolume[3], BidVolume5: s.BidVolume[4],
		AskPrice1: s.AskPrice[0], AskPrice2: s.AskPrice[1], AskPrice3: s.AskPrice[2], AskPrice4: s.AskPrice[3], AskPrice5: s.AskPrice[4],
		AskVolume1: s.AskVolume[0], AskVolume2: s.AskVolume[1], AskVolume3: s.AskVolume[2], AskVolume4: s.AskVolume[3], AskVolume5: s.AskVolume[4],

		OpenInterest:    s.OpenInterest,
		PreOpenInterest: s.PreOpenInterest,
		Settlement:      s.Settlement,
		PreSettlement:   s.PreSettlement,
		IOPV:            s.IOPV,
	}
}

func (w wireSnapshot) toSnapshot() Snapshot {
	return Snapshot{
		InstrumentID: w.InstrumentID,
		Timestamp:    w.Timestamp,
		LastPrice:    w.LastPrice,
		Volume:       w.Volume,
		Amount:       w.Amount,
		Open:         w.Open,
		Highest:      w.Highest,
		Lowest:       w.Lowest,
		Close:        w.Close,
		PreClose:     w.PreClose,
		Average:      w.Average,
		UpperLimit:   w.UpperLimit,
		LowerLimit:   w.LowerLimit,

		BidPrice:  [5]float64{w.BidPrice1, w.BidPrice2, w.BidPrice3, w.BidPrice4, w.BidPrice5},
		BidVolume: [5]float64{w.BidVolume1, w.BidVolume2, w.BidVolume3, w.BidVolume4, w.BidVolume5},
		AskPrice:  [5]float64{w.AskPrice1, w.AskPrice2, w.AskPrice3, w.AskPrice4, w.AskPrice5},
		AskVolume: [5]float64{w.AskVolume1, w.AskVolume2, w.AskVolume3, w.AskVolume4, w.AskVolume5},

		OpenInterest:    w.OpenInterest,
		PreOpenInterest: w.PreOpenInterest,
		Settlement:      w.Settlement,
		PreSettlement:   w.PreSettlement,
		IOPV:            w.IOPV,
	}
}

// MarshalJSON flattens the depth-level arrays into the numbered
// bid_price1..5/ask_price1..5 field names the wire contract uses.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

// UnmarshalJSON reverses MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = w.toSnapshot()
	return nil
}
