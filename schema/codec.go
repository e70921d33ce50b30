package schema

import (
	"sort"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/shape"
)

// Input is one option's raw value as chosen from the layers.
type Input struct {
	Value any
	// Coerce applies the lenient scalar rules used for environment values.
	Coerce bool
	// Origin names the layer the value came from; informational only.
	Origin string
}

// Codec is a compiled record: a decoder and encoder pair over one shape.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	rec *recordNode
}

// Compile validates rec and builds its codec. Invalid shapes fail with
// ErrInvalidShape; a default that does not decode under its own field's
// shape is invalid too.
func Compile(rec *shape.Record) (*Codec, error) {
	r, err := compileRecord(rec)
	if err != nil {
		if !errors.Is(err, errors.ErrInvalidShape) {
			err = errors.Mark(err, errors.ErrInvalidShape)
		}
		name := "record"
		if rec != nil && rec.Name != "" {
			name = rec.Name
		}
		return nil, errors.Wrapf(err, "failed to compile %s", name)
	}
	return &Codec{rec: r}, nil
}

// Record returns the shape the codec was compiled from.
func (c *Codec) Record() *shape.Record { return c.rec.rec }

// Field returns the declared field name.
func (c *Codec) Field(name string) (shape.Field, bool) {
	f, ok := c.rec.index[name]
	if !ok {
		return shape.Field{}, false
	}
	return f.field, true
}

// Default returns the decoded default of a field.
func (c *Codec) Default(name string) (any, bool) {
	f, ok := c.rec.index[name]
	if !ok || !f.hasDef {
		return nil, false
	}
	return shape.Clone(f.def), true
}

// Decode resolves one record from per-field inputs. Keys that are not
// declared fields are retained as extras, in sorted order, with a warning.
// path prefixes every diagnostic, normally the plugin id.
func (c *Codec) Decode(path string, in map[string]Input) (*shape.Object, []shape.Warning, error) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]entry, len(keys))
	for i, k := range keys {
		entries[i] = entry{key: k, value: in[k].Value, coerce: in[k].Coerce}
	}
	var warnings []shape.Warning
	obj, err := c.rec.decode(state{warnings: &warnings}, path, entries)
	if err != nil {
		return nil, warnings, err
	}
	return obj, warnings, nil
}

// DecodeValue resolves one record from a raw mapping, keeping its key order
// for retained extras.
func (c *Codec) DecodeValue(path string, raw any, coerce bool) (*shape.Object, []shape.Warning, error) {
	var warnings []shape.Warning
	v, err := c.rec.node().decode(state{coerce: coerce, warnings: &warnings}, path, raw)
	if err != nil {
		return nil, warnings, err
	}
	return v.(*shape.Object), warnings, nil
}

// DecodeField decodes a single option value as it would be decoded inside
// the record. A null raw value decodes to absent unless the field is
// required.
func (c *Codec) DecodeField(path, name string, raw any, coerce bool) (any, []shape.Warning, error) {
	f, ok := c.rec.index[name]
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrUnknownOption, "%q", name)
	}
	var warnings []shape.Warning
	if shape.IsNull(raw, coerce) {
		if f.field.Required {
			return nil, nil, errors.NewFieldError(path, errors.ErrMissingRequired)
		}
		return nil, nil, nil
	}
	v, err := f.decodeValue(state{coerce: coerce, warnings: &warnings}, path, raw)
	if err != nil {
		return nil, warnings, err
	}
	return v, warnings, nil
}

// Encode converts a decoded record back into a plain ordered mapping.
// Secret handles are emitted in marker form.
func (c *Codec) Encode(o *shape.Object) (*shape.Map, error) {
	return c.rec.encodeObject(o)
}

// EncodeField encodes a single decoded option value.
func (c *Codec) EncodeField(name string, v any) (any, error) {
	f, ok := c.rec.index[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownOption, "%q", name)
	}
	return f.encodeValue(v)
}
