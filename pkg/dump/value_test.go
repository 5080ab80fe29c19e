package dump

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLiteralRoundTrip checks the round-trip law: parsing a formatted value
// yields the original value exactly.
func TestLiteralRoundTrip(t *testing.T) {
	values := []Value{
		{Kind: Null},
		{Kind: Integer, Int: 0},
		{Kind: Integer, Int: -1},
		{Kind: Integer, Int: math.MaxInt64},
		{Kind: Integer, Int: math.MinInt64},
		{Kind: Real, Float: 0},
		{Kind: Real, Float: -0.5},
		{Kind: Real, Float: 1.5},
		{Kind: Real, Float: 3.141592653589793},
		{Kind: Real, Float: 1e16},
		{Kind: Real, Float: -2.2250738585072014e-308},
		{Kind: Real, Float: math.MaxFloat64},
		{Kind: Text, Str: ""},
		{Kind: Text, Str: "plain"},
		{Kind: Text, Str: "it's a 'quoted' thing"},
		{Kind: Text, Str: "''"},
		{Kind: Text, Str: "multi\nline\ttext"},
		{Kind: Blob, Bytes: []byte{}},
		{Kind: Blob, Bytes: []byte{0x00}},
		{Kind: Blob, Bytes: []byte{0xde, 0xad, 0xbe, 0xef}},
	}

	for _, v := range values {
		lit := v.Literal()
		parsed, err := ParseLiteral(lit)
		require.NoError(t, err, "literal %s", lit)
		assert.True(t, v.Equal(parsed), "round trip of %s: got %+v want %+v", lit, parsed, v)
	}
}

// TestLiteralForms pins the exact literal text for each storage class.
func TestLiteralForms(t *testing.T) {
	cases := []struct {
		value Value
		want  string
	}{
		{Value{Kind: Null}, "NULL"},
		{Value{Kind: Integer, Int: 42}, "42"},
		{Value{Kind: Integer, Int: -42}, "-42"},
		{Value{Kind: Real, Float: 1.5}, "1.5"},
		{Value{Kind: Real, Float: 2}, "2.0"},
		{Value{Kind: Real, Float: 1e16}, "1e+16"},
		{Value{Kind: Real, Float: math.Inf(1)}, "9.0e+999"},
		{Value{Kind: Real, Float: math.Inf(-1)}, "-9.0e+999"},
		{Value{Kind: Text, Str: "alice"}, "'alice'"},
		{Value{Kind: Text, Str: "it's"}, "'it''s'"},
		{Value{Kind: Text, Str: ""}, "''"},
		{Value{Kind: Blob, Bytes: []byte{0xca, 0xfe}}, "X'cafe'"},
		{Value{Kind: Blob, Bytes: nil}, "X''"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.value.Literal())
	}
}

// TestParseLiteralInfinity verifies the shell's overflow literal parses back
// to an infinity instead of failing.
func TestParseLiteralInfinity(t *testing.T) {
	v, err := ParseLiteral("9.0e+999")
	require.NoError(t, err)
	assert.Equal(t, Real, v.Kind)
	assert.True(t, math.IsInf(v.Float, 1))

	v, err = ParseLiteral("-9.0e+999")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.Float, -1))
}

// TestParseLiteralErrors verifies malformed literals are rejected.
func TestParseLiteralErrors(t *testing.T) {
	for _, lit := range []string{"", "'unterminated", "'bad'quote'", "X'zz'", "X'abc", "not-a-literal"} {
		_, err := ParseLiteral(lit)
		assert.Error(t, err, "literal %q", lit)
	}
}

// TestFromSQL verifies driver type mapping, including the rejection of
// unrecognized types.
func TestFromSQL(t *testing.T) {
	v, err := FromSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, Null, v.Kind)

	v, err = FromSQL(int64(7))
	require.NoError(t, err)
	assert.Equal(t, Integer, v.Kind)
	assert.Equal(t, int64(7), v.Int)

	v, err = FromSQL(2.75)
	require.NoError(t, err)
	assert.Equal(t, Real, v.Kind)

	v, err = FromSQL("text")
	require.NoError(t, err)
	assert.Equal(t, Text, v.Kind)

	v, err = FromSQL([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, Blob, v.Kind)

	_, err = FromSQL(true)
	assert.Error(t, err)
	_, err = FromSQL(int32(1))
	assert.Error(t, err)
}

// TestQuoteIdent verifies identifiers are quoted only when necessary.
func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "users", quoteIdent("users"))
	assert.Equal(t, "_tmp2", quoteIdent("_tmp2"))
	assert.Equal(t, `"order items"`, quoteIdent("order items"))
	assert.Equal(t, `"2fast"`, quoteIdent("2fast"))
	assert.Equal(t, `"say ""hi"""`, quoteIdent(`say "hi"`))
}
