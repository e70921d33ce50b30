package shape

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/teranos/plugcfg/errors"
)

// Pair is one key/value entry of an ordered mapping.
type Pair struct {
	Key   string
	Value any
}

// Map is a string-keyed mapping that remembers insertion order. Order is
// irrelevant for Equal but preserved when serializing.
type Map struct {
	keys []string
	vals map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{vals: make(map[string]any)}
}

// MapOf builds a Map from pairs, failing on a repeated key.
func MapOf(pairs ...Pair) (*Map, error) {
	m := NewMap()
	for _, p := range pairs {
		if _, dup := m.vals[p.Key]; dup {
			return nil, errors.Wrapf(errors.ErrDuplicateKey, "%q", p.Key)
		}
		m.Set(p.Key, p.Value)
	}
	return m, nil
}

// Set stores v under k. An existing key keeps its position.
func (m *Map) Set(k string, v any) {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

// Get returns the value stored under k.
func (m *Map) Get(k string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.vals[k]
	return v, ok
}

// Delete removes k, keeping the order of the remaining keys.
func (m *Map) Delete(k string) {
	if _, ok := m.vals[k]; !ok {
		return
	}
	delete(m.vals, k)
	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Pairs returns the entries in order.
func (m *Map) Pairs() []Pair {
	if m == nil {
		return nil
	}
	out := make([]Pair, len(m.keys))
	for i, k := range m.keys {
		out[i] = Pair{Key: k, Value: m.vals[k]}
	}
	return out
}

// Plain converts the Map, recursively, into built-in Go maps and slices.
// Order is lost; use it only for encoders that cannot honor MarshalYAML or
// MarshalJSON.
func (m *Map) Plain() map[string]any {
	out := make(map[string]any, m.Len())
	for _, p := range m.Pairs() {
		out[p.Key] = plain(p.Value)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *Map:
		return t.Plain()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	}
	return v
}

// MarshalJSON writes the entries in order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m.Pairs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "key %q", p.Key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Entries views a raw mapping input as ordered pairs. It accepts *Map,
// []Pair (which may repeat keys) and map[string]any, whose keys are taken
// in sorted order.
func Entries(raw any) ([]Pair, bool) {
	switch t := raw.(type) {
	case *Map:
		return t.Pairs(), true
	case []Pair:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Pair, len(keys))
		for i, k := range keys {
			out[i] = Pair{Key: k, Value: t[k]}
		}
		return out, true
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Pair, len(keys))
		for i, k := range keys {
			out[i] = Pair{Key: k, Value: t[k]}
		}
		return out, true
	}
	return nil, false
}

// Object is a decoded record: its declared fields in declaration order
// (absent fields hold nil) plus any unknown fields retained from the input.
type Object struct {
	names  []string
	values map[string]any
	extra  *Map
}

// NewObject builds an Object. names fixes field order; values missing from
// the map are absent. extra may be nil.
func NewObject(names []string, values map[string]any, extra *Map) *Object {
	o := &Object{
		names:  append([]string(nil), names...),
		values: make(map[string]any, len(names)),
		extra:  extra,
	}
	for _, n := range names {
		o.values[n] = values[n]
	}
	return o
}

// Get returns a declared field's value; ok is false for undeclared names.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Names returns the declared field names in order.
func (o *Object) Names() []string { return append([]string(nil), o.names...) }

// Len returns the number of declared fields.
func (o *Object) Len() int { return len(o.names) }

// Items returns the declared fields in order.
func (o *Object) Items() []Pair {
	out := make([]Pair, len(o.names))
	for i, n := range o.names {
		out[i] = Pair{Key: n, Value: o.values[n]}
	}
	return out
}

// Extra returns the retained unknown fields, or nil.
func (o *Object) Extra() *Map { return o.extra }

// With returns a copy of o with name set to v. o is unchanged.
func (o *Object) With(name string, v any) *Object {
	c := Clone(o).(*Object)
	if _, ok := c.values[name]; !ok {
		c.names = append(c.names, name)
	}
	c.values[name] = v
	return c
}

// Tagged is a decoded union value.
type Tagged struct {
	Tag   string
	Value *Object
}
