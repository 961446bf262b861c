package codec

import (
	"testing"
	"time"

	"github.com/helixdb/helixdb/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		val  Value
	}{
		{"null", Null()},
		{"string", String("hello")},
		{"empty string", String("")},
		{"bool true", Bool(true)},
		{"bool false", Bool(false)},
		{"i8", I8(-12)},
		{"i64", I64(-9223372036854775807)},
		{"u64", U64(18446744073709551615)},
		{"f32", F32(3.5)},
		{"f64", F64(-2.71828)},
		{"uuid", UUID(id.New())},
		{"date", Date(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))},
		{"array", Array([]Value{I32(1), I32(2), String("three")})},
		{"object", Object(map[string]Value{"a": I32(1), "b": String("x")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(nil, tt.val)
			decoded, rest, err := Decode(encoded)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.val.Kind, decoded.Kind)
			assert.Equal(t, tt.val.ToAny(), decoded.ToAny())
		})
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny("hi")
	require.NoError(t, err)
	assert.Equal(t, KindString, v.Kind)

	v, err = FromAny(float64(42))
	require.NoError(t, err)
	assert.Equal(t, KindF64, v.Kind)

	v, err = FromAny(true)
	require.NoError(t, err)
	assert.Equal(t, KindBool, v.Kind)

	v, err = FromAny(nil)
	require.NoError(t, err)
	assert.Equal(t, KindNull, v.Kind)
}

func TestCoerceStringToInt(t *testing.T) {
	v, err := Coerce(String("42"), KindI32)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.I64)
}

func TestCoerceIntToFloat(t *testing.T) {
	v, err := Coerce(I32(7), KindF64)
	require.NoError(t, err)
	assert.Equal(t, float64(7), v.F64)
}

func TestCoerceUnsupported(t *testing.T) {
	_, err := Coerce(Array(nil), KindI32)
	require.Error(t, err)
}
