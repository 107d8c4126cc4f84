package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"empty string", `""`, `""`},
		{"int", `42`, "42"},
		{"negative int", `-100`, "-100"},
		{"max int64", `9223372036854775807`, "9223372036854775807"},
		{"float", `1.5`, "1.5"},
		{"integral float", `2.0`, "2"},
		{"exponent", `1e3`, "1000"},
		{"bool", `true`, "true"},
		{"null", `null`, "null"},
		{"empty array", `[ ]`, "[]"},
		{"empty object", `{ }`, "{}"},
		{"whitespace", `{ "a" : [1, 2] }`, `{"a":[1,2]}`},
		{"html not escaped", `"<a&b>"`, `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Canonicalize(Value(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalizeSortedKeys(t *testing.T) {
	result, err := Canonicalize(Value(`{"zebra":1,"alpha":2,"beta":{"b":1,"a":2}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"a":2,"b":1},"zebra":1}`, string(result))
}

func TestCanonicalizeUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000 - UTF-16 order differs from UTF-8.
	obj := map[string]int{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)

	// UTF-16: 0xD800 (surrogate) < 0xE000, so U+10000 sorts first.
	expected := `{"` + "\U00010000" + `":2,"` + "\uE000" + `":1}`
	assert.Equal(t, expected, string(result))
}

func TestCanonicalizeNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to precomposed U+00E9.
	decomposed := Value(`"e` + "\u0301" + `"`)
	result, err := Canonicalize(decomposed)
	require.NoError(t, err)
	assert.Equal(t, `"`+"\u00e9"+`"`, string(result))
}

func TestCanonicalizeLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	// An escaped backslash followed by "u2028" text stays escaped.
	result, err = Canonicalize(Value(`"\\u2028"`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestCanonicalizeInvalid(t *testing.T) {
	_, err := Canonicalize(Value(`{"a":`))
	assert.Error(t, err)
}

func TestCanonicalizeAbsent(t *testing.T) {
	result, err := Canonicalize(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(result))
}
