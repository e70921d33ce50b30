package shape

import (
	"math"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plugcfg/errors"
)

func TestDecodeBool(t *testing.T) {
	tests := []struct {
		raw     any
		want    bool
		wantErr bool
	}{
		{raw: true, want: true},
		{raw: false, want: false},
		{raw: "TRUE", want: true},
		{raw: "Yes", want: true},
		{raw: "on", want: true},
		{raw: "1", want: true},
		{raw: "false", want: false},
		{raw: "NO", want: false},
		{raw: " off ", want: false},
		{raw: "0", want: false},
		{raw: "maybe", wantErr: true},
		{raw: int64(1), wantErr: true},
		{raw: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(describe(tt.raw), func(t *testing.T) {
			got, err := DecodeBool(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrInvalidScalar), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInt(t *testing.T) {
	lo, hi := int64(1), int64(10)
	narrow := &Scalar{Type: TypeInt, Min: &lo, Max: &hi}

	tests := []struct {
		name    string
		raw     any
		s       *Scalar
		want    int64
		wantErr bool
	}{
		{name: "int", raw: 42, want: 42},
		{name: "int64", raw: int64(-7), want: -7},
		{name: "uint8", raw: uint8(200), want: 200},
		{name: "exact float", raw: 3.0, want: 3},
		{name: "non integral float", raw: 3.5, wantErr: true},
		{name: "NaN", raw: math.NaN(), wantErr: true},
		{name: "huge float", raw: 1e19, wantErr: true},
		{name: "integer string", raw: " 12 ", want: 12},
		{name: "negative string", raw: "-9223372036854775808", want: math.MinInt64},
		{name: "overflow string", raw: "9223372036854775808", wantErr: true},
		{name: "float string", raw: "1.5", wantErr: true},
		{name: "uint64 overflow", raw: uint64(math.MaxUint64), wantErr: true},
		{name: "bool", raw: true, wantErr: true},
		{name: "within bounds", raw: 10, s: narrow, want: 10},
		{name: "below minimum", raw: 0, s: narrow, wantErr: true},
		{name: "above maximum", raw: "11", s: narrow, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInt(tt.raw, tt.s)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrInvalidScalar), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeIntOutOfRangeMessage(t *testing.T) {
	_, err := DecodeInt("99999999999999999999", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestDecodeFloat(t *testing.T) {
	got, err := DecodeFloat(int64(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = DecodeFloat("0.25", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.25, got)

	_, err = DecodeFloat(math.Inf(1), Float())
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar))

	_, err = DecodeFloat("NaN", Float())
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar))

	got, err = DecodeFloat("inf", &Scalar{Type: TypeFloat, AllowNonFinite: true})
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, 1))

	_, err = DecodeFloat("abc", nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar))
}

func TestDecodeString(t *testing.T) {
	got, err := DecodeString("hi", false)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = DecodeString(int64(5), false)
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar))

	got, err = DecodeString(int64(5), true)
	require.NoError(t, err)
	assert.Equal(t, "5", got)

	got, err = DecodeString(2.5, true)
	require.NoError(t, err)
	assert.Equal(t, "2.5", got)

	_, err = DecodeString(true, true)
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar), "bools are never coerced")
}

func TestDecodeScalarHonorsShapeCoerce(t *testing.T) {
	got, err := DecodeScalar(&Scalar{Type: TypeString, Coerce: true}, 7, false)
	require.NoError(t, err)
	assert.Equal(t, "7", got)
}

func TestEncodeScalar(t *testing.T) {
	v, err := EncodeScalar(Int(), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = EncodeScalar(Int(), "3")
	assert.True(t, errors.Is(err, errors.ErrInvalidShape))
}

func TestDecodeEnum(t *testing.T) {
	e := EnumOf("a", "b", "c")

	got, err := DecodeEnum(e, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = DecodeEnum(e, "B")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar))
	assert.Contains(t, err.Error(), "a, b, c")

	_, err = DecodeEnum(e, int64(1))
	assert.True(t, errors.Is(err, errors.ErrInvalidScalar))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil, false))
	assert.False(t, IsNull("", false))
	assert.True(t, IsNull("", true))
	assert.True(t, IsNull("null", true))
	assert.False(t, IsNull("none", true))
}

func TestDescribeTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 50)
	got := Describe(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strconv.Quote(strings.Repeat("é", 37)+"..."), got)

	assert.Equal(t, `"short"`, Describe("short"))
}
