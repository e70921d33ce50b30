package shape

import (
	"math"

	"github.com/teranos/plugcfg/secret"
)

// Equal reports structural equality of two values. Mapping order is
// ignored; sequence order is not. Integers compare across Go int kinds.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, ok := toInt64(a); ok {
		bi, ok := toInt64(b)
		return ok && ai == bi
	}
	switch at := a.(type) {
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case float64:
		bt, ok := b.(float64)
		return ok && (at == bt || (math.IsNaN(at) && math.IsNaN(bt)))
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case secret.Handle:
		bt, ok := b.(secret.Handle)
		return ok && at == bt
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case *Object:
		bt, ok := b.(*Object)
		if !ok || len(at.names) != len(bt.names) {
			return false
		}
		for _, n := range at.names {
			bv, ok := bt.values[n]
			if !ok || !Equal(at.values[n], bv) {
				return false
			}
		}
		return equalEntries(at.extra, bt.extra)
	case *Tagged:
		bt, ok := b.(*Tagged)
		return ok && at.Tag == bt.Tag && Equal(at.Value, bt.Value)
	}
	if _, ok := Entries(a); ok {
		return equalEntries(a, b)
	}
	return false
}

func equalEntries(a, b any) bool {
	ap, aok := Entries(a)
	bp, bok := Entries(b)
	if a == nil || isNilMap(a) {
		ap, aok = nil, true
	}
	if b == nil || isNilMap(b) {
		bp, bok = nil, true
	}
	if !aok || !bok || len(ap) != len(bp) {
		return false
	}
	index := make(map[string]any, len(bp))
	for _, p := range bp {
		index[p.Key] = p.Value
	}
	for _, p := range ap {
		v, ok := index[p.Key]
		if !ok || !Equal(p.Value, v) {
			return false
		}
	}
	return true
}

func isNilMap(v any) bool {
	m, ok := v.(*Map)
	return ok && m == nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	}
	return 0, false
}

// Clone deep-copies a value so the copy shares no mutable state with v.
func Clone(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case []Pair:
		out := make([]Pair, len(t))
		for i, p := range t {
			out[i] = Pair{Key: p.Key, Value: Clone(p.Value)}
		}
		return out
	case *Map:
		if t == nil {
			return t
		}
		out := NewMap()
		for _, p := range t.Pairs() {
			out.Set(p.Key, Clone(p.Value))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case *Object:
		if t == nil {
			return t
		}
		values := make(map[string]any, len(t.values))
		for k, e := range t.values {
			values[k] = Clone(e)
		}
		var extra *Map
		if t.extra != nil {
			extra = Clone(t.extra).(*Map)
		}
		return &Object{names: append([]string(nil), t.names...), values: values, extra: extra}
	case *Tagged:
		if t == nil {
			return t
		}
		return &Tagged{Tag: t.Tag, Value: Clone(t.Value).(*Object)}
	}
	return v
}
