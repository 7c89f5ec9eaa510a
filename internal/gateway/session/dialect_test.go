package session

import "testing"

func TestParseInboundPlatformSubscribe(t *testing.T) {
	msg := parseInbound([]byte(`{"aid":"subscribe_quote","ins_list":"A,B,C"}`))
	if msg.kind != inSubscribeQuote {
		t.Fatalf("kind = %v, want inSubscribeQuote", msg.kind)
	}
	if len(msg.instruments) != 3 {
		t.Fatalf("instruments = %v, want 3 entries", msg.instruments)
	}
}

func TestParseInboundEmptyInsListIsClearAllNotError(t *testing.T) {
	msg := parseInbound([]byte(`{"aid":"subscribe_quote","ins_list":""}`))
	if msg.kind != inSubscribeQuote {
		t.Fatalf("kind = %v, want inSubscribeQuote", msg.kind)
	}
	if msg.instruments == nil || len(msg.instruments) != 0 {
		t.Fatalf("instruments = %v, want empty non-nil slice", msg.instruments)
	}
}

func TestParseInboundPeekMessage(t *testing.T) {
	msg := parseInbound([]byte(`{"aid":"peek_message"}`))
	if msg.kind != inPeekMessage {
		t.Fatalf("kind = %v, want inPeekMessage", msg.kind)
	}
}

func TestParseInboundUnknownAid(t *testing.T) {
	msg := parseInbound([]byte(`{"aid":"do_something_weird"}`))
	if msg.kind != inUnknown {
		t.Fatalf("kind = %v, want inUnknown", msg.kind)
	}
}

func TestParseInboundLegacyShapes(t *testing.T) {
	cases := map[string]inboundKind{
		`{"type":"subscribe","payload":{"instruments":["a","b"]}}`:   inLegacySubscribe,
		`{"type":"unsubscribe","payload":{"instruments":["a"]}}`:     inLegacyUnsubscribe,
		`{"type":"subscriptions"}`:                                   inLegacySubscriptions,
		`{"type":"ping"}`:                                            inLegacyPing,
		`{"type":"auth","payload":{"token":"x"}}`:                    inLegacyAuth,
		`{"type":"not_a_real_command"}`:                              inUnknown,
	}
	for in, want := range cases {
		if got := parseInbound([]byte(in)).kind; got != want {
			t.Errorf("parseInbound(%s).kind = %v, want %v", in, got, want)
		}
	}
}

func TestParseInboundMalformedJSON(t *testing.T) {
	msg := parseInbound([]byte(`{not json`))
	if msg.kind != inUnknown {
		t.Fatalf("kind = %v, want inUnknown for malformed JSON", msg.kind)
	}
}

func TestSplitInsList(t *testing.T) {
	got := splitInsList("a, b ,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitInsList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitInsList = %v, want %v", got, want)
		}
	}
}
