package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{120000.0, "120000"},
		{-3.0, "-3"},
		{0.1, "0.1"},
		{76250.125, "76250.125"},
		{nil, "NaN"},
		{true, "True"},
		{false, "False"},
		{"Sales", "Sales"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%v)", tt.in)
	}
}

func TestParseCell(t *testing.T) {
	assert.Nil(t, ParseCell(""))
	assert.Nil(t, ParseCell("  "))
	assert.Nil(t, ParseCell("NaN"))
	assert.Equal(t, 42.0, ParseCell("42"))
	assert.Equal(t, 3.5, ParseCell(" 3.5 "))
	assert.Equal(t, true, ParseCell("TRUE"))
	assert.Equal(t, false, ParseCell("false"))
	assert.Equal(t, "Inf", ParseCell("Inf"))
	assert.Equal(t, "1,000", ParseCell("1,000"))
	assert.Equal(t, "E1000", ParseCell("E1000"))
}

func TestCompare(t *testing.T) {
	c, ok := Compare(1.0, 2.0)
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(1.0, "1")
	assert.False(t, ok)
	_, ok = Compare(nil, nil)
	assert.False(t, ok)
	assert.False(t, Equal(nil, nil))
	assert.True(t, Equal("a", "a"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 3.0, Normalize(3))
	assert.Equal(t, 3.0, Normalize(int64(3)))
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, "x", Normalize("x"))
}
