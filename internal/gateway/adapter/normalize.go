package adapter

import (
	"strings"

	"github.com/sawpanic/qamdgateway/internal/config"
)

// NormalizeFunc maps a client-facing instrument id (possibly carrying an
// exchange prefix, e.g. "SHFE.au2512") to the id the native feed expects.
type NormalizeFunc func(id string) string

// stripExchangePrefix removes everything up to and including the first
// '.', e.g. "SHFE.au2512" -> "au2512". An id with no '.' is returned
// unchanged.
func stripExchangePrefix(id string) string {
	if idx := strings.IndexByte(id, '.'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// NormalizeFutures implements the futures adapter's rule: strip the
// exchange prefix, no padding.
func NormalizeFutures(id string) string {
	return stripExchangePrefix(id)
}

// NormalizeEquity implements the equity adapters' rule: strip the
// exchange prefix, then zero-pad a purely numeric code of 6 digits or
// fewer out to exactly 6 characters (so "SSE.600000" and "600000" both
// normalize to "600000", and "6000" to "006000"; this gateway pads "600"
// the same way QQ/Sina's native libraries expect). A code containing
// non-digit characters is returned unchanged after prefix stripping.
func NormalizeEquity(id string) string {
	code := stripExchangePrefix(id)
	if len(code) == 0 || len(code) > 6 {
		return code
	}
	if !isAllDigits(code) {
		return code
	}
	return strings.Repeat("0", 6-len(code)) + code
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeFor returns the normalization rule for an adapter kind.
func NormalizeFor(kind config.SourceKind) NormalizeFunc {
	switch kind {
	case config.SourceCTP:
		return NormalizeFutures
	case config.SourceQQ, config.SourceSina:
		return NormalizeEquity
	default:
		return NormalizeFutures
	}
}
