package session

import (
	"encoding/json"
	"strings"
)

// inboundKind classifies a parsed inbound frame into one of the three
// shapes spec.md §4.3 accepts on one socket, plus the error case for
// anything that parses as JSON but matches neither shape.
type inboundKind int

const (
	inUnknown inboundKind = iota
	inSubscribeQuote
	inPeekMessage
	inLegacySubscribe
	inLegacyUnsubscribe
	inLegacySubscriptions
	inLegacyPing
	inLegacyAuth
)

type inboundMessage struct {
	kind        inboundKind
	instruments []string
}

type rawEnvelope struct {
	Aid     string          `json:"aid"`
	InsList string          `json:"ins_list"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type instrumentsPayload struct {
	Instruments []string `json:"instruments"`
}

// parseInbound decodes one text frame. A malformed JSON body or an
// unrecognized aid/type both resolve to inUnknown; the caller always
// answers with an error envelope rather than closing the connection
// (spec.md §8 boundary behavior).
func parseInbound(data []byte) inboundMessage {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return inboundMessage{kind: inUnknown}
	}

	if env.Aid != "" {
		switch env.Aid {
		case "subscribe_quote":
			return inboundMessage{kind: inSubscribeQuote, instruments: splitInsList(env.InsList)}
		case "peek_message":
			return inboundMessage{kind: inPeekMessage}
		default:
			return inboundMessage{kind: inUnknown}
		}
	}

	switch env.Type {
	case "subscribe":
		var p instrumentsPayload
		_ = json.Unmarshal(env.Payload, &p)
		return inboundMessage{kind: inLegacySubscribe, instruments: p.Instruments}
	case "unsubscribe":
		var p instrumentsPayload
		_ = json.Unmarshal(env.Payload, &p)
		return inboundMessage{kind: inLegacyUnsubscribe, instruments: p.Instruments}
	case "subscriptions":
		return inboundMessage{kind: inLegacySubscriptions}
	case "ping":
		return inboundMessage{kind: inLegacyPing}
	case "auth":
		return inboundMessage{kind: inLegacyAuth}
	default:
		return inboundMessage{kind: inUnknown}
	}
}

// splitInsList splits a comma-joined instrument list. An empty string
// yields an empty (non-nil) slice, the clear-all signal.
func splitInsList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinInsList(ids []string) string {
	return strings.Join(ids, ",")
}
