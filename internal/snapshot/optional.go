package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MissingValue is the sentinel string upstream feeds use in place of a
// numeric field whose exchange does not publish it (e.g. open interest
// on an equity instrument).
const MissingValue = "-"

// Optional represents a field that may be numeric, the sentinel string
// "-", or absent entirely. All three states round-trip through JSON as
// themselves: a number stays a number, "-" stays the string "-", and an
// absent field is omitted from the object rather than coerced to null
// or zero.
type Optional struct {
	kind  optionalKind
	value float64
	str   string
}

type optionalKind int

const (
	optionalAbsent optionalKind = iota
	optionalNumber
	optionalString
)

// OptionalNumber builds a present, numeric Optional.
func OptionalNumber(v float64) Optional {
	return Optional{kind: optionalNumber, value: v}
}

// OptionalSentinel builds an Optional holding the "-" sentinel (or any
// other non-numeric string the wire format sends).
func OptionalSentinel(s string) Optional {
	return Optional{kind: optionalString, str: s}
}

// OptionalAbsent builds an absent Optional.
func OptionalAbsent() Optional {
	return Optional{kind: optionalAbsent}
}

// IsAbsent reports whether the field was never present on the wire.
func (o Optional) IsAbsent() bool { return o.kind == optionalAbsent }

// IsSentinel reports whether the field held a non-numeric sentinel string.
func (o Optional) IsSentinel() bool { return o.kind == optionalString }

// Float returns the numeric value and true if the field is numeric.
func (o Optional) Float() (float64, bool) {
	if o.kind != optionalNumber {
		return 0, false
	}
	return o.value, true
}

// Sentinel returns the sentinel string and true if the field is a string.
func (o Optional) Sentinel() (string, bool) {
	if o.kind != optionalString {
		return "", false
	}
	return o.str, true
}

var jsonNull = []byte("null")

// MarshalJSON renders numeric as a bare number, sentinel as a quoted
// string, and absent as JSON null. Absent fields destined for an
// "omitempty" struct field are instead dropped entirely by
// Snapshot.MarshalJSON; this method's null rendering only applies when
// an Optional is marshaled directly (e.g. inside a map).
func (o Optional) MarshalJSON() ([]byte, error) {
	switch o.kind {
	case optionalNumber:
		return json.Marshal(o.value)
	case optionalString:
		return json.Marshal(o.str)
	default:
		return jsonNull, nil
	}
}

// UnmarshalJSON accepts a number, a string, or null/absent.
func (o *Optional) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		*o = OptionalAbsent()
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("optional: bad string: %w", err)
		}
		*o = OptionalSentinel(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return fmt.Errorf("optional: bad number: %w", err)
	}
	*o = OptionalNumber(f)
	return nil
}

// IsZero reports whether the Optional is absent (the same test as
// IsAbsent). Snapshot's omitempty fields are dropped because they are nil
// pointers; encoding/json's omitempty does not call this method.
func (o Optional) IsZero() bool { return o.kind == optionalAbsent }
