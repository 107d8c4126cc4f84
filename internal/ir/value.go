package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is an arbitrary JSON value held by an entry or carried by a command.
//
// A nil Value means "absent" (e.g. a condition without an expected value).
// JSON null is the non-nil Value `null`. Values are immutable once built;
// callers must not modify the underlying bytes.
type Value json.RawMessage

// Null is the JSON null value.
var Null = Value("null")

// NewValue encodes a Go value as a Value.
// Uses json.Marshal semantics with HTML escaping disabled.
func NewValue(v any) (Value, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return Value(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// MustValue is like NewValue but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValue(v any) Value {
	val, err := NewValue(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ParseValue validates raw JSON bytes and returns them as a Value.
func ParseValue(data []byte) (Value, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON value: %q", data)
	}
	return Value(bytes.Clone(bytes.TrimSpace(data))), nil
}

// IsAbsent reports whether the value was never set.
func (v Value) IsAbsent() bool {
	return v == nil
}

// IsNull reports whether the value is absent or JSON null.
func (v Value) IsNull() bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), Null)
}

// Decode unmarshals the value into out.
func (v Value) Decode(out any) error {
	if len(v) == 0 {
		return json.Unmarshal(Null, out)
	}
	return json.Unmarshal(v, out)
}

// Equal reports whether two values are the same JSON value.
// Comparison uses canonical form, so key order and insignificant
// whitespace do not matter. An absent value equals only another absent value.
func (v Value) Equal(other Value) bool {
	if v == nil || other == nil {
		return v == nil && other == nil
	}
	a, errA := Canonicalize(v)
	b, errB := Canonicalize(other)
	if errA != nil || errB != nil {
		return bytes.Equal(v, other)
	}
	return bytes.Equal(a, b)
}

// String returns the JSON text of the value ("null" when absent).
func (v Value) String() string {
	if len(v) == 0 {
		return "null"
	}
	return string(v)
}

// MarshalJSON implements json.Marshaler. Absent values encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return Null, nil
	}
	return v, nil
}

// UnmarshalJSON implements json.Unmarshaler. JSON null becomes Null, not nil.
func (v *Value) UnmarshalJSON(data []byte) error {
	if v == nil {
		return fmt.Errorf("ir.Value: UnmarshalJSON on nil pointer")
	}
	*v = Value(bytes.Clone(data))
	return nil
}
