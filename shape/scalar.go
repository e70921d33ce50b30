package shape

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/teranos/plugcfg/errors"
)

func invalid(format string, args ...any) error {
	return errors.Wrapf(errors.ErrInvalidScalar, format, args...)
}

// Describe renders a raw value for diagnostics without dumping large inputs.
func Describe(raw any) string { return describe(raw) }

func describe(raw any) string {
	switch t := raw.(type) {
	case nil:
		return "null"
	case string:
		if utf8.RuneCountInString(t) > 40 {
			t = string([]rune(t)[:37]) + "..."
		}
		return strconv.Quote(t)
	case []any:
		return fmt.Sprintf("a sequence of %d", len(t))
	case *Map, []Pair, map[string]any:
		return "a mapping"
	}
	return fmt.Sprintf("%v (%T)", raw, raw)
}

// DecodeBool accepts a bool or, case-insensitively, the tokens
// true/false/yes/no/on/off/1/0.
func DecodeBool(raw any) (bool, error) {
	switch t := raw.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
	}
	return false, invalid("expected bool, got %s", describe(raw))
}

// DecodeInt accepts integral numbers and integer-shaped strings within the
// int64 range, narrowed by s.Min and s.Max when set.
func DecodeInt(raw any, s *Scalar) (int64, error) {
	var n int64
	switch t := raw.(type) {
	case int:
		n = int64(t)
	case int8:
		n = int64(t)
	case int16:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, invalid("%d out of range", t)
		}
		n = int64(t)
	case uint8:
		n = int64(t)
	case uint16:
		n = int64(t)
	case uint32:
		n = int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return 0, invalid("%d out of range", t)
		}
		n = int64(t)
	case float32:
		return DecodeInt(float64(t), s)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return 0, invalid("expected int, got non-integral %v", t)
		}
		// 2^63 is exactly representable; anything at or beyond it overflows.
		if t < -9.223372036854775808e18 || t >= 9.223372036854775808e18 {
			return 0, invalid("%v out of range", t)
		}
		n = int64(t)
	case string:
		v, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, invalid("%s out of range", describe(raw))
			}
			return 0, invalid("expected int, got %s", describe(raw))
		}
		n = v
	default:
		return 0, invalid("expected int, got %s", describe(raw))
	}
	if s != nil {
		if s.Min != nil && n < *s.Min {
			return 0, invalid("%d below minimum %d", n, *s.Min)
		}
		if s.Max != nil && n > *s.Max {
			return 0, invalid("%d above maximum %d", n, *s.Max)
		}
	}
	return n, nil
}

// DecodeFloat accepts any number or numeric string. NaN and infinities are
// rejected unless s.AllowNonFinite is set.
func DecodeFloat(raw any, s *Scalar) (float64, error) {
	var f float64
	switch t := raw.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := DecodeInt(raw, nil)
		if err != nil {
			return 0, err
		}
		f = float64(n)
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, invalid("expected float, got %s", describe(raw))
		}
		f = v
	default:
		return 0, invalid("expected float, got %s", describe(raw))
	}
	if (math.IsNaN(f) || math.IsInf(f, 0)) && (s == nil || !s.AllowNonFinite) {
		return 0, invalid("non-finite float %v not allowed", f)
	}
	return f, nil
}

// DecodeString accepts strings. With coerce, ints and floats are accepted
// through their textual form; bools never are.
func DecodeString(raw any, coerce bool) (string, error) {
	switch t := raw.(type) {
	case string:
		return t, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		if coerce {
			return fmt.Sprintf("%d", t), nil
		}
	case float32:
		if coerce {
			return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
		}
	case float64:
		if coerce {
			return strconv.FormatFloat(t, 'g', -1, 64), nil
		}
	}
	return "", invalid("expected string, got %s", describe(raw))
}

// DecodeScalar dispatches on s.Type. coerce is OR-ed with s.Coerce.
func DecodeScalar(s *Scalar, raw any, coerce bool) (any, error) {
	switch s.Type {
	case TypeBool:
		return DecodeBool(raw)
	case TypeInt:
		return DecodeInt(raw, s)
	case TypeFloat:
		return DecodeFloat(raw, s)
	case TypeString:
		return DecodeString(raw, coerce || s.Coerce)
	}
	return nil, errors.Wrapf(errors.ErrInvalidShape, "unknown scalar type %v", s.Type)
}

// EncodeScalar checks that v is a value DecodeScalar produces for s.
func EncodeScalar(s *Scalar, v any) (any, error) {
	ok := false
	switch s.Type {
	case TypeBool:
		_, ok = v.(bool)
	case TypeInt:
		_, ok = v.(int64)
	case TypeFloat:
		_, ok = v.(float64)
	case TypeString:
		_, ok = v.(string)
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidShape, "cannot encode %s as %s", describe(v), s.Type)
	}
	return v, nil
}

// DecodeEnum accepts exactly one of e's member names. Matching is exact;
// no case folding is applied.
func DecodeEnum(e *Enum, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok || !e.Has(s) {
		return "", invalid("%s is not one of %s", describe(raw), strings.Join(e.Members, ", "))
	}
	return s, nil
}

// IsNull reports whether raw is null-shaped. With coerce, the empty string
// and the literal "null" also count, since environment values are always
// strings.
func IsNull(raw any, coerce bool) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok && coerce {
		return s == "" || s == "null"
	}
	return false
}
