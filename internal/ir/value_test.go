package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Value
		equal bool
	}{
		{"same string", Value(`"x"`), Value(`"x"`), true},
		{"different string", Value(`"x"`), Value(`"y"`), false},
		{"key order", Value(`{"a":1,"b":2}`), Value(`{"b":2,"a":1}`), true},
		{"whitespace", Value(`[1, 2]`), Value(`[1,2]`), true},
		{"int vs float", Value(`1`), Value(`1.0`), true},
		{"null vs null", Null, Value(`null`), true},
		{"absent vs null", nil, Null, false},
		{"absent vs absent", nil, nil, true},
		{"string vs number", Value(`"1"`), Value(`1`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
			assert.Equal(t, tt.equal, tt.b.Equal(tt.a))
		})
	}
}

func TestNewValue(t *testing.T) {
	v, err := NewValue(map[string]any{"head": nil, "tail": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"head":null,"tail":"x"}`, v.String())

	v, err = NewValue("<b>")
	require.NoError(t, err)
	assert.Equal(t, `"<b>"`, v.String(), "HTML must not be escaped")
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue([]byte(" [1,2] "))
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", v.String())

	_, err = ParseValue([]byte("{nope"))
	assert.Error(t, err)
}

func TestValueNullness(t *testing.T) {
	var absent Value
	assert.True(t, absent.IsAbsent())
	assert.True(t, absent.IsNull())
	assert.False(t, Null.IsAbsent())
	assert.True(t, Null.IsNull())
	assert.False(t, Value(`0`).IsNull())
	assert.Equal(t, "null", absent.String())
}

func TestValueJSONRoundTrip(t *testing.T) {
	type holder struct {
		V Value `json:"v"`
	}

	var h holder
	require.NoError(t, json.Unmarshal([]byte(`{"v":{"k":[true]}}`), &h))
	assert.Equal(t, `{"k":[true]}`, h.V.String())

	out, err := json.Marshal(holder{})
	require.NoError(t, err)
	assert.Equal(t, `{"v":null}`, string(out), "absent value encodes as null")
}

func TestValueDecode(t *testing.T) {
	var s string
	require.NoError(t, Value(`"hi"`).Decode(&s))
	assert.Equal(t, "hi", s)

	var p *string
	require.NoError(t, Value(nil).Decode(&p))
	assert.Nil(t, p)
}
