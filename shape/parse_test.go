package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plugcfg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr string
		want string
		kind Kind
	}{
		{expr: "bool", want: "bool", kind: KindScalar},
		{expr: "Integer", want: "int", kind: KindScalar},
		{expr: "number", want: "float", kind: KindScalar},
		{expr: "str", want: "string", kind: KindScalar},
		{expr: "string?", want: "optional[string]", kind: KindOptional},
		{expr: "optional[int]", want: "optional[int]", kind: KindOptional},
		{expr: "list[string]", want: "list[string]", kind: KindSequence},
		{expr: "seq[list[int]]", want: "list[list[int]]", kind: KindSequence},
		{expr: "map[ float ]", want: "map[float]", kind: KindMapping},
		{expr: "tuple[int, string]", want: "tuple[int, string]", kind: KindTuple},
		{expr: "tuple[int, ...]", want: "tuple[int, ...]", kind: KindTuple},
		{expr: "enum[a|b|c]", want: "enum[a|b|c]", kind: KindEnum},
		{expr: "enum[fast, slow]", want: "enum[fast|slow]", kind: KindEnum},
		{expr: "list[enum[x|y]]?", want: "optional[list[enum[x|y]]]", kind: KindOptional},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
			assert.Equal(t, tt.kind, s.Kind())
		})
	}
}

func TestParseRoundTripsString(t *testing.T) {
	for _, expr := range []string{"tuple[map[int], optional[bool]]", "list[tuple[string, ...]]", "enum[on-call|off.duty]"} {
		s := MustParse(expr)
		again, err := Parse(s.String())
		require.NoError(t, err)
		assert.Equal(t, s.String(), again.String())
	}
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"widget",
		"list[",
		"list[int",
		"list[int]]",
		"tuple[int, string, ...]",
		"tuple[]",
		"enum[]",
		"enum[a b]",
		"record",
		"union",
		"map[int] extra",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidShape), "got %v", err)
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}
