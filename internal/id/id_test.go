package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMonotonic(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a, b)
	assert.True(t, a.Less(b) || a == b)
}

func TestStringParseRoundTrip(t *testing.T) {
	a := New()
	s := a.String()
	b, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBytesFromBytesRoundTrip(t *testing.T) {
	a := New()
	b, ok := FromBytes(a.Bytes())
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestFromBytesWrongLength(t *testing.T) {
	_, ok := FromBytes([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestNilIsNil(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.False(t, New().IsNil())
}

func TestLabelHashStable(t *testing.T) {
	a := LabelHash("Person")
	b := LabelHash("Person")
	c := LabelHash("Company")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
