package session

import (
	"encoding/json"
	"time"

	"github.com/sawpanic/qamdgateway/internal/snapshot"
)

type legacyEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type dataPayload struct {
	Data interface{} `json:"data"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type instrumentsPayloadOut struct {
	Instruments []string `json:"instruments"`
}

func systemEnvelope(message string) []byte {
	return mustMarshal(legacyEnvelope{Type: "system", Payload: messagePayload{Message: message}})
}

func errorEnvelope(message string) []byte {
	return mustMarshal(legacyEnvelope{Type: "error", Payload: messagePayload{Message: message}})
}

func subscriptionsEnvelope(ids []string) []byte {
	return mustMarshal(legacyEnvelope{Type: "subscriptions", Payload: instrumentsPayloadOut{Instruments: ids}})
}

func pongEnvelope() []byte {
	return mustMarshal(legacyEnvelope{Type: "pong"})
}

// marketDataEnvelope is the legacy dialect outbound frame: the snapshot
// serialized field-for-field, preserving the tri-valued fields via
// Snapshot's own MarshalJSON.
func marketDataEnvelope(snap snapshot.Snapshot) []byte {
	return mustMarshal(legacyEnvelope{Type: "market_data", Payload: dataPayload{Data: snap}})
}

type platformQuote struct {
	LastPrice    float64 `json:"last_price"`
	Volume       float64 `json:"volume"`
	Amount       float64 `json:"amount"`
	Open         float64 `json:"open"`
	Highest      float64 `json:"highest"`
	Lowest       float64 `json:"lowest"`
	Close        float64 `json:"close"`
	PreClose     float64 `json:"pre_close"`
	Average      float64 `json:"average"`
	UpperLimit   float64 `json:"upper_limit"`
	LowerLimit   float64 `json:"lower_limit"`
	BidPrice1    float64 `json:"bid_price1"`
	BidVolume1   float64 `json:"bid_volume1"`
	AskPrice1    float64 `json:"ask_price1"`
	AskVolume1   float64 `json:"ask_volume1"`
	OpenInterest float64 `json:"open_interest"`
	Settlement   float64 `json:"settlement"`
	Datetime     string  `json:"datetime"`
}

type rtnDataItem struct {
	Quotes map[string]platformQuote `json:"quotes"`
}

type rtnDataEnvelope struct {
	Aid  string        `json:"aid"`
	Data []rtnDataItem `json:"data"`
}

// rtnDataFrame is the platform dialect outbound frame: the snapshot
// mapped into a flat named-field object, with tri-valued fields
// defaulted to zero since this dialect has no sentinel representation
// (spec.md §4.3).
func rtnDataFrame(snap snapshot.Snapshot) []byte {
	q := platformQuote{
		LastPrice:    snap.LastPrice,
		Volume:       snap.Volume,
		Amount:       snap.Amount,
		Open:         snap.Open,
		Highest:      snap.Highest,
		Lowest:       snap.Lowest,
		Close:        snap.Close,
		PreClose:     snap.PreClose,
		Average:      snap.Average,
		UpperLimit:   snap.UpperLimit,
		LowerLimit:   snap.LowerLimit,
		BidPrice1:    snap.BidPrice[0],
		BidVolume1:   snap.BidVolume[0],
		AskPrice1:    snap.AskPrice[0],
		AskVolume1:   snap.AskVolume[0],
		OpenInterest: optionalFloat(snap.OpenInterest),
		Settlement:   optionalFloat(snap.Settlement),
		Datetime:     snap.Timestamp.UTC().Format(time.RFC3339),
	}
	return mustMarshal(rtnDataEnvelope{
		Aid: "rtn_data",
		Data: []rtnDataItem{{
			Quotes: map[string]platformQuote{snap.InstrumentID: q},
		}},
	})
}

func rspSubscribeQuote(ids []string) []byte {
	return mustMarshal(struct {
		Aid     string `json:"aid"`
		InsList string `json:"ins_list"`
	}{Aid: "rsp_subscribe_quote", InsList: joinInsList(ids)})
}

func rspPeekMessage(ids []string) []byte {
	return mustMarshal(struct {
		Aid     string `json:"aid"`
		InsList string `json:"ins_list"`
	}{Aid: "rsp_peek_message", InsList: joinInsList(ids)})
}

func optionalFloat(o *snapshot.Optional) float64 {
	if o == nil {
		return 0
	}
	v, ok := o.Float()
	if !ok {
		return 0
	}
	return v
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","payload":{"message":"internal encoding error"}}`)
	}
	return b
}
