// Package schema compiles record shapes into decoders and encoders.
//
// Compilation walks a *shape.Record once, validates it, and produces a tree
// of closures. Decoding a layered input then never re-inspects the shape:
//
//	codec, err := schema.Compile(rec)
//	obj, warnings, err := codec.Decode("db", inputs)
//	plain, err := codec.Encode(obj)
//
// Decode failures are *errors.FieldError values carrying the option path of
// the offending value, collected into errors.FieldErrors when a record has
// more than one bad field.
package schema

import (
	"strings"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/secret"
	"github.com/teranos/plugcfg/shape"
)

// state is threaded through one decode. coerce is fixed per top-level input;
// warnings are shared by the whole call.
type state struct {
	coerce   bool
	warnings *[]shape.Warning
}

func (st state) warn(path, msg string) {
	if st.warnings != nil {
		*st.warnings = append(*st.warnings, shape.Warning{Path: path, Message: msg})
	}
}

type decodeFunc func(st state, path string, raw any) (any, error)

type encodeFunc func(v any) (any, error)

type node struct {
	decode decodeFunc
	encode encodeFunc
}

// at attaches path to err unless a deeper decoder already did.
func at(path string, err error) error {
	var fe *errors.FieldError
	var list errors.FieldErrors
	if errors.As(err, &fe) || errors.As(err, &list) {
		return err
	}
	return errors.NewFieldError(path, err)
}

// collect flattens child errors; one error stays a *FieldError.
func collect(errs []error) error {
	var out errors.FieldErrors
	for _, err := range errs {
		out = append(out, errors.AsFieldErrors(err)...)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func invalidShape(format string, args ...any) error {
	return errors.Wrapf(errors.ErrInvalidShape, format, args...)
}

func compileShape(s shape.Shape) (*node, error) {
	switch t := s.(type) {
	case nil:
		return nil, invalidShape("missing shape")
	case *shape.Scalar:
		return compileScalar(t)
	case *shape.Optional:
		return compileOptional(t)
	case *shape.Sequence:
		return compileSequence(t)
	case *shape.Mapping:
		return compileMapping(t)
	case *shape.Tuple:
		return compileTuple(t)
	case *shape.Enum:
		return compileEnum(t)
	case *shape.Record:
		r, err := compileRecord(t)
		if err != nil {
			return nil, err
		}
		return r.node(), nil
	case *shape.Union:
		return compileUnion(t)
	}
	return nil, invalidShape("unsupported shape %T", s)
}

func compileScalar(s *shape.Scalar) (*node, error) {
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		return nil, invalidShape("minimum %d exceeds maximum %d", *s.Min, *s.Max)
	}
	if (s.Min != nil || s.Max != nil) && s.Type != shape.TypeInt {
		return nil, invalidShape("bounds only apply to int, not %s", s.Type)
	}
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			v, err := shape.DecodeScalar(s, raw, st.coerce)
			if err != nil {
				return nil, at(path, err)
			}
			return v, nil
		},
		encode: func(v any) (any, error) { return shape.EncodeScalar(s, v) },
	}, nil
}

func compileOptional(s *shape.Optional) (*node, error) {
	inner, err := compileShape(s.Inner)
	if err != nil {
		return nil, err
	}
	return optionalNode(inner), nil
}

func optionalNode(inner *node) *node {
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			if shape.IsNull(raw, st.coerce) {
				return nil, nil
			}
			return inner.decode(st, path, raw)
		},
		encode: func(v any) (any, error) {
			if v == nil {
				return nil, nil
			}
			return inner.encode(v)
		},
	}
}

// flow parses a string as YAML flow text when coercion is on, so that an
// environment value like "[a, b]" can feed a compound shape.
func flow(st state, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok || !st.coerce {
		return raw, nil
	}
	v, err := shape.ParseYAML([]byte(s))
	if err != nil {
		return nil, invalidShape("cannot parse %s: %v", shape.Describe(s), errors.UnwrapAll(err))
	}
	return v, nil
}

func sequenceInput(st state, raw any) ([]any, error) {
	raw, err := flow(st, raw)
	if err != nil {
		return nil, err
	}
	switch t := raw.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	}
	return nil, invalidShape("expected a sequence, got %s", shape.Describe(raw))
}

func mappingInput(st state, raw any) ([]shape.Pair, error) {
	raw, err := flow(st, raw)
	if err != nil {
		return nil, err
	}
	pairs, ok := shape.Entries(raw)
	if !ok {
		return nil, invalidShape("expected a mapping, got %s", shape.Describe(raw))
	}
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, dup := seen[p.Key]; dup {
			return nil, errors.Wrapf(errors.ErrDuplicateKey, "%q", p.Key)
		}
		seen[p.Key] = struct{}{}
	}
	return pairs, nil
}

func compileSequence(s *shape.Sequence) (*node, error) {
	if s.MinSize < 0 {
		return nil, invalidShape("negative minimum size %d", s.MinSize)
	}
	item, err := compileShape(s.Item)
	if err != nil {
		return nil, errors.Wrap(err, "sequence item")
	}
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			items, err := sequenceInput(st, raw)
			if err != nil {
				return nil, at(path, err)
			}
			if len(items) < s.MinSize {
				return nil, at(path, invalidShape("expected at least %d item(s), got %d", s.MinSize, len(items)))
			}
			out := make([]any, len(items))
			var errs []error
			for i, it := range items {
				v, err := item.decode(st, shape.IndexPath(path, i), it)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				out[i] = v
			}
			if err := collect(errs); err != nil {
				return nil, err
			}
			return out, nil
		},
		encode: func(v any) (any, error) { return encodeItems(v, func(int) *node { return item }) },
	}, nil
}

func encodeItems(v any, itemAt func(int) *node) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, invalidShape("cannot encode %s as a sequence", shape.Describe(v))
	}
	out := make([]any, len(items))
	for i, it := range items {
		enc, err := itemAt(i).encode(it)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		out[i] = enc
	}
	return out, nil
}

func compileMapping(s *shape.Mapping) (*node, error) {
	value, err := compileShape(s.Value)
	if err != nil {
		return nil, errors.Wrap(err, "mapping value")
	}
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			pairs, err := mappingInput(st, raw)
			if err != nil {
				return nil, at(path, err)
			}
			out := shape.NewMap()
			var errs []error
			for _, p := range pairs {
				v, err := value.decode(st, shape.JoinPath(path, p.Key), p.Value)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				out.Set(p.Key, v)
			}
			if err := collect(errs); err != nil {
				return nil, err
			}
			return out, nil
		},
		encode: func(v any) (any, error) {
			m, ok := v.(*shape.Map)
			if !ok {
				return nil, invalidShape("cannot encode %s as a mapping", shape.Describe(v))
			}
			out := shape.NewMap()
			for _, p := range m.Pairs() {
				enc, err := value.encode(p.Value)
				if err != nil {
					return nil, errors.Wrapf(err, "key %q", p.Key)
				}
				out.Set(p.Key, enc)
			}
			return out, nil
		},
	}, nil
}

func compileTuple(s *shape.Tuple) (*node, error) {
	if len(s.Items) == 0 {
		return nil, invalidShape("tuple without item types")
	}
	if s.Variadic && len(s.Items) != 1 {
		return nil, invalidShape("variadic tuple takes exactly one item type, got %d", len(s.Items))
	}
	items := make([]*node, len(s.Items))
	for i, it := range s.Items {
		n, err := compileShape(it)
		if err != nil {
			return nil, errors.Wrapf(err, "tuple item %d", i)
		}
		items[i] = n
	}
	itemAt := func(i int) *node {
		if s.Variadic {
			return items[0]
		}
		return items[i]
	}
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			in, err := sequenceInput(st, raw)
			if err != nil {
				return nil, at(path, err)
			}
			if !s.Variadic && len(in) != len(items) {
				return nil, at(path, invalidShape("expected %d item(s), got %d", len(items), len(in)))
			}
			out := make([]any, len(in))
			var errs []error
			for i, it := range in {
				v, err := itemAt(i).decode(st, shape.IndexPath(path, i), it)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				out[i] = v
			}
			if err := collect(errs); err != nil {
				return nil, err
			}
			return out, nil
		},
		encode: func(v any) (any, error) {
			if vs, ok := v.([]any); ok && !s.Variadic && len(vs) != len(items) {
				return nil, invalidShape("cannot encode %d item(s) as %s", len(vs), s)
			}
			return encodeItems(v, itemAt)
		},
	}, nil
}

func compileEnum(s *shape.Enum) (*node, error) {
	if len(s.Members) == 0 {
		return nil, invalidShape("enum without members")
	}
	seen := make(map[string]struct{}, len(s.Members))
	for _, m := range s.Members {
		if m == "" {
			return nil, invalidShape("empty enum member")
		}
		if _, dup := seen[m]; dup {
			return nil, invalidShape("duplicate enum member %q", m)
		}
		seen[m] = struct{}{}
	}
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			v, err := shape.DecodeEnum(s, raw)
			if err != nil {
				return nil, at(path, err)
			}
			return v, nil
		},
		encode: func(v any) (any, error) {
			m, ok := v.(string)
			if !ok || !s.Has(m) {
				return nil, invalidShape("cannot encode %s as %s", shape.Describe(v), s)
			}
			return m, nil
		},
	}, nil
}

func compileUnion(s *shape.Union) (*node, error) {
	if len(s.Variants) == 0 {
		return nil, invalidShape("union without variants")
	}
	disc := s.DiscriminatorName()
	variants := make(map[string]*recordNode, len(s.Variants))
	for _, v := range s.Variants {
		if v.Tag == "" {
			return nil, invalidShape("union variant without tag")
		}
		if _, dup := variants[v.Tag]; dup {
			return nil, invalidShape("duplicate union variant %q", v.Tag)
		}
		if v.Record == nil {
			return nil, invalidShape("union variant %q without record", v.Tag)
		}
		if _, shadow := v.Record.Field(disc); shadow {
			return nil, invalidShape("union variant %q declares the discriminator %q as a field", v.Tag, disc)
		}
		r, err := compileRecord(v.Record)
		if err != nil {
			return nil, errors.Wrapf(err, "union variant %q", v.Tag)
		}
		variants[v.Tag] = r
	}
	known := strings.Join(s.Tags(), ", ")

	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			pairs, err := mappingInput(st, raw)
			if err != nil {
				return nil, at(path, err)
			}
			var (
				tagRaw any
				found  bool
				rest   = make([]entry, 0, len(pairs))
			)
			for _, p := range pairs {
				if p.Key == disc {
					tagRaw, found = p.Value, true
					continue
				}
				rest = append(rest, entry{key: p.Key, value: p.Value, coerce: st.coerce})
			}
			if !found || shape.IsNull(tagRaw, st.coerce) {
				return nil, at(shape.JoinPath(path, disc), errors.Wrapf(errors.ErrUnionDiscriminatorMissing, "expected one of: %s", known))
			}
			tag, _ := tagRaw.(string)
			variant, ok := variants[tag]
			if !ok {
				return nil, at(shape.JoinPath(path, disc), errors.Wrapf(errors.ErrUnionVariantUnknown, "%s is not one of: %s", shape.Describe(tagRaw), known))
			}
			obj, err := variant.decode(st, path, rest)
			if err != nil {
				return nil, err
			}
			return &shape.Tagged{Tag: tag, Value: obj}, nil
		},
		encode: func(v any) (any, error) {
			t, ok := v.(*shape.Tagged)
			if !ok {
				return nil, invalidShape("cannot encode %s as a union", shape.Describe(v))
			}
			variant, ok := variants[t.Tag]
			if !ok {
				return nil, errors.Wrapf(errors.ErrUnionVariantUnknown, "%q is not one of: %s", t.Tag, known)
			}
			body, err := variant.encodeObject(t.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "variant %q", t.Tag)
			}
			out := shape.NewMap()
			out.Set(disc, t.Tag)
			for _, p := range body.Pairs() {
				out.Set(p.Key, p.Value)
			}
			return out, nil
		},
	}, nil
}

// fieldNode is a compiled record field. decode already accounts for the
// Optional wrapping of defaulted, non-required fields.
type fieldNode struct {
	field  shape.Field
	node   *node
	def    any
	hasDef bool
}

func (f *fieldNode) decodeValue(st state, path string, raw any) (any, error) {
	if f.field.Secret {
		if s, ok := raw.(string); ok {
			if h, ok := secret.Parse(s); ok {
				return h, nil
			}
			st.warn(path, "plaintext value in secret field; use "+secret.Marker+"<ref>")
		}
	}
	return f.node.decode(st, path, raw)
}

func (f *fieldNode) encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if h, ok := v.(secret.Handle); ok {
		return h.String(), nil
	}
	return f.node.encode(v)
}

// entry is one keyed input of a record decode.
type entry struct {
	key    string
	value  any
	coerce bool
}

type recordNode struct {
	rec    *shape.Record
	fields []*fieldNode
	index  map[string]*fieldNode
}

func compileRecord(rec *shape.Record) (*recordNode, error) {
	if rec == nil {
		return nil, invalidShape("missing record")
	}
	r := &recordNode{rec: rec, index: make(map[string]*fieldNode, len(rec.Fields))}
	for _, f := range rec.Fields {
		if f.Name == "" {
			return nil, invalidShape("field without name")
		}
		if _, dup := r.index[f.Name]; dup {
			return nil, invalidShape("duplicate field %q", f.Name)
		}
		n, err := compileShape(f.Shape)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", f.Name)
		}
		if f.HasDefault && !f.Required && f.Shape.Kind() != shape.KindOptional {
			n = optionalNode(n)
		}
		fn := &fieldNode{field: f, node: n}
		if f.HasDefault && f.Default != nil {
			var ws []shape.Warning
			v, err := fn.decodeValue(state{warnings: &ws}, f.Name, f.Default)
			if err != nil {
				return nil, errors.Wrapf(errors.Mark(err, errors.ErrInvalidShape), "default for field %q", f.Name)
			}
			fn.def, fn.hasDef = v, true
		} else if f.HasDefault {
			fn.hasDef = true
		}
		r.fields = append(r.fields, fn)
		r.index[f.Name] = fn
	}
	return r, nil
}

func (r *recordNode) node() *node {
	return &node{
		decode: func(st state, path string, raw any) (any, error) {
			pairs, err := mappingInput(st, raw)
			if err != nil {
				return nil, at(path, err)
			}
			in := make([]entry, len(pairs))
			for i, p := range pairs {
				in[i] = entry{key: p.Key, value: p.Value, coerce: st.coerce}
			}
			obj, err := r.decode(st, path, in)
			if err != nil {
				return nil, err
			}
			return obj, nil
		},
		encode: func(v any) (any, error) {
			o, ok := v.(*shape.Object)
			if !ok {
				return nil, invalidShape("cannot encode %s as a record", shape.Describe(v))
			}
			return r.encodeObject(o)
		},
	}
}

// decode applies the record field rules: a missing key takes the default,
// then fails if required; an explicit null is absent unless required;
// unknown keys are retained as extras with a warning.
func (r *recordNode) decode(st state, path string, in []entry) (*shape.Object, error) {
	given := make(map[string]entry, len(in))
	var extra *shape.Map
	for _, e := range in {
		if _, ok := r.index[e.key]; ok {
			given[e.key] = e
			continue
		}
		if extra == nil {
			extra = shape.NewMap()
		}
		extra.Set(e.key, shape.Clone(e.value))
		st.warn(shape.JoinPath(path, e.key), "unknown field retained")
	}

	values := make(map[string]any, len(r.fields))
	var errs []error
	for _, f := range r.fields {
		fpath := shape.JoinPath(path, f.field.Name)
		e, ok := given[f.field.Name]
		if !ok {
			switch {
			case f.hasDef:
				values[f.field.Name] = shape.Clone(f.def)
			case f.field.Required:
				errs = append(errs, errors.NewFieldError(fpath, errors.ErrMissingRequired))
			}
			continue
		}
		fst := state{coerce: e.coerce, warnings: st.warnings}
		if shape.IsNull(e.value, e.coerce) {
			if f.field.Required {
				errs = append(errs, errors.NewFieldError(fpath, errors.ErrMissingRequired))
			}
			continue
		}
		v, err := f.decodeValue(fst, fpath, e.value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[f.field.Name] = v
	}
	if err := collect(errs); err != nil {
		return nil, err
	}
	return shape.NewObject(r.rec.FieldNames(), values, extra), nil
}

// encodeObject emits declared fields in order, absent ones as null, followed
// by retained extras.
func (r *recordNode) encodeObject(o *shape.Object) (*shape.Map, error) {
	if o == nil {
		return nil, invalidShape("cannot encode a nil record")
	}
	out := shape.NewMap()
	for _, f := range r.fields {
		v, _ := o.Get(f.field.Name)
		enc, err := f.encodeValue(v)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", f.field.Name)
		}
		out.Set(f.field.Name, enc)
	}
	for _, p := range o.Extra().Pairs() {
		if _, clash := out.Get(p.Key); clash {
			continue
		}
		out.Set(p.Key, shape.Clone(p.Value))
	}
	return out, nil
}
