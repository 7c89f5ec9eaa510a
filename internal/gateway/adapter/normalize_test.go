package adapter

import "testing"

func TestStripExchangePrefix(t *testing.T) {
	cases := map[string]string{
		"SHFE.au2512": "au2512",
		"au2512":      "au2512",
		"SSE.600000":  "600000",
	}
	for in, want := range cases {
		if got := stripExchangePrefix(in); got != want {
			t.Errorf("stripExchangePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeFuturesDoesNotPad(t *testing.T) {
	if got := NormalizeFutures("SHFE.au2512"); got != "au2512" {
		t.Errorf("NormalizeFutures = %q, want au2512", got)
	}
	if got := NormalizeFutures("SHFE.100"); got != "100" {
		t.Errorf("NormalizeFutures must not zero-pad, got %q", got)
	}
}

func TestNormalizeEquityPadsShortNumericCodes(t *testing.T) {
	cases := map[string]string{
		"SSE.600000": "600000",
		"600":        "000600",
		"6":          "000006",
		"SZSE.1":     "000001",
	}
	for in, want := range cases {
		if got := NormalizeEquity(in); got != want {
			t.Errorf("NormalizeEquity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeEquityTreatsPrefixedAndPlainAsSameID(t *testing.T) {
	a := NormalizeEquity("SSE.600000")
	b := NormalizeEquity("600000")
	if a != b {
		t.Errorf("expected prefixed and plain ids to normalize equal, got %q vs %q", a, b)
	}
}

func TestNormalizeEquityLeavesNonNumericUnchanged(t *testing.T) {
	// "00700" is numeric once the prefix is stripped, so it is padded;
	// only the non-numeric "AAPL" below passes through unchanged.
	if got := NormalizeEquity("HK.00700"); got != "000700" {
		t.Errorf("NormalizeEquity(HK.00700) = %q, want 000700", got)
	}
	if got := NormalizeEquity("NASDAQ.AAPL"); got != "AAPL" {
		t.Errorf("NormalizeEquity(NASDAQ.AAPL) = %q, want AAPL", got)
	}
}
