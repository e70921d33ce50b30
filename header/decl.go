package header

import (
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/shape"
)

// declKeys are the keys an option declaration may carry.
var declKeys = map[string]bool{
	"name": true, "type": true, "value": true, "description": true, "select": true, "hidden": true,
	"required": true, "secret": true, "coerce": true, "min": true, "max": true, "min_size": true,
	"allow_nan": true, "fields": true, "variants": true, "discriminator": true,
}

// parseDepends splits a depends value with shell quoting rules, so specs
// containing ">=" can be quoted.
func parseDepends(value string) ([]plugin.Dependency, error) {
	tokens, err := shellquote.Split(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split depends")
	}
	deps := make([]plugin.Dependency, 0, len(tokens))
	for _, tok := range tokens {
		d, err := plugin.ParseDependency(tok)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// parseConfig reads the config value: a YAML sequence of option
// declarations, in flow or block style.
func (r *Reader) parseConfig(value string) ([]plugin.OptionSpec, error) {
	raw, err := shape.ParseYAML([]byte(value))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, errors.Newf("config must be a sequence of option declarations, got %s", shape.Describe(raw))
	}
	opts := make([]plugin.OptionSpec, 0, len(items))
	for i, item := range items {
		o, err := r.parseOption(item)
		if err != nil {
			return nil, errors.Wrapf(err, "config[%d]", i)
		}
		opts = append(opts, o)
	}
	return opts, nil
}

// decl is one option or field declaration.
type decl struct {
	m *shape.Map
}

func (d decl) str(key string) (string, error) {
	v, ok := d.m.Get(key)
	if !ok || v == nil {
		return "", nil
	}
	return shape.DecodeString(v, true)
}

func (d decl) flag(key string) (bool, error) {
	v, ok := d.m.Get(key)
	if !ok || v == nil {
		return false, nil
	}
	b, err := shape.DecodeBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "%s", key)
	}
	return b, nil
}

func (d decl) integer(key string) (*int64, error) {
	v, ok := d.m.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	n, err := shape.DecodeInt(v, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", key)
	}
	return &n, nil
}

func (r *Reader) toDecl(item any) (decl, error) {
	m, ok := item.(*shape.Map)
	if !ok {
		return decl{}, errors.Newf("expected a mapping, got %s", shape.Describe(item))
	}
	for _, k := range m.Keys() {
		if declKeys[k] {
			continue
		}
		if r.strict {
			return decl{}, errors.Newf("unknown declaration key %q", k)
		}
		r.logger.Warnw("Unknown option declaration key ignored", logger.FieldOption, k)
	}
	return decl{m: m}, nil
}

func (r *Reader) parseOption(item any) (plugin.OptionSpec, error) {
	f, choices, err := r.parseField(item)
	if err != nil {
		return plugin.OptionSpec{}, err
	}
	return plugin.OptionSpec{
		Name:        f.Name,
		Shape:       f.Shape,
		Description: f.Description,
		Default:     f.Default,
		HasDefault:  f.HasDefault,
		Required:    f.Required,
		Secret:      f.Secret,
		Choices:     choices,
		Hidden:      f.Hidden,
	}, nil
}

// parseField turns one declaration into a record field and its choices.
func (r *Reader) parseField(item any) (shape.Field, []string, error) {
	d, err := r.toDecl(item)
	if err != nil {
		return shape.Field{}, nil, err
	}
	var f shape.Field
	if f.Name, err = d.str("name"); err != nil {
		return f, nil, errors.Wrap(err, "name")
	}
	if f.Name == "" {
		return f, nil, errors.New("declaration without name")
	}
	fail := func(err error) (shape.Field, []string, error) {
		return shape.Field{}, nil, errors.Wrapf(err, "option %q", f.Name)
	}

	if f.Description, err = d.str("description"); err != nil {
		return fail(err)
	}
	for key, dst := range map[string]*bool{"hidden": &f.Hidden, "required": &f.Required, "secret": &f.Secret} {
		if *dst, err = d.flag(key); err != nil {
			return fail(err)
		}
	}
	if v, ok := d.m.Get("value"); ok && v != nil {
		f.Default, f.HasDefault = v, true
	}

	choices, err := selectMembers(d)
	if err != nil {
		return fail(err)
	}
	if f.Shape, err = r.declShape(d, f.Default, choices); err != nil {
		return fail(err)
	}
	if err := constrain(d, f.Shape); err != nil {
		return fail(err)
	}
	return f, choices, nil
}

func selectMembers(d decl) ([]string, error) {
	v, ok := d.m.Get("select")
	if !ok || v == nil {
		return nil, nil
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		for _, s := range strings.Split(t, "|") {
			items = append(items, strings.TrimSpace(s))
		}
	default:
		return nil, errors.Newf("select must be a list, got %s", shape.Describe(v))
	}
	members := make([]string, len(items))
	for i, it := range items {
		s, err := shape.DecodeString(it, true)
		if err != nil {
			return nil, errors.Wrap(err, "select")
		}
		members[i] = s
	}
	return members, nil
}

// declShape determines the declared shape: an explicit type expression or
// structural record/union, else an enum from select, else inferred from the
// default value.
func (r *Reader) declShape(d decl, def any, choices []string) (shape.Shape, error) {
	typ, err := d.str("type")
	if err != nil {
		return nil, errors.Wrap(err, "type")
	}
	base := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(typ)), "?")
	optional := strings.HasSuffix(strings.TrimSpace(typ), "?")

	var s shape.Shape
	switch {
	case base == "record":
		s, err = r.declRecord(d)
	case base == "union":
		s, err = r.declUnion(d)
	case typ != "":
		s, err = shape.Parse(typ)
		optional = false
	case len(choices) > 0:
		s = shape.EnumOf(choices...)
	default:
		s = infer(def)
	}
	if err != nil {
		return nil, err
	}
	if len(choices) > 0 && typ != "" {
		if s, err = applyChoices(s, choices); err != nil {
			return nil, err
		}
	}
	if optional {
		s = shape.OptionalOf(s)
	}
	return s, nil
}

// applyChoices narrows a string or enum shape to the selected members.
func applyChoices(s shape.Shape, choices []string) (shape.Shape, error) {
	switch t := s.(type) {
	case *shape.Optional:
		inner, err := applyChoices(t.Inner, choices)
		if err != nil {
			return nil, err
		}
		return shape.OptionalOf(inner), nil
	case *shape.Scalar:
		if t.Type == shape.TypeString {
			return shape.EnumOf(choices...), nil
		}
	case *shape.Enum:
		return shape.EnumOf(choices...), nil
	}
	return nil, errors.Newf("select requires a string or enum type, not %s", s)
}

func infer(def any) shape.Shape {
	switch t := def.(type) {
	case bool:
		return shape.Bool()
	case int64:
		return shape.Int()
	case float64:
		return shape.Float()
	case []any:
		if len(t) > 0 {
			return shape.SequenceOf(infer(t[0]))
		}
		return shape.SequenceOf(shape.String())
	case *shape.Map:
		for _, p := range t.Pairs() {
			return shape.MappingOf(infer(p.Value))
		}
		return shape.MappingOf(shape.String())
	}
	return shape.String()
}

func (r *Reader) declFields(v any) ([]shape.Field, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errors.Newf("fields must be a list, got %s", shape.Describe(v))
	}
	fields := make([]shape.Field, 0, len(items))
	for i, it := range items {
		f, _, err := r.parseField(it)
		if err != nil {
			return nil, errors.Wrapf(err, "fields[%d]", i)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (r *Reader) declRecord(d decl) (*shape.Record, error) {
	name, _ := d.str("name")
	v, _ := d.m.Get("fields")
	fields, err := r.declFields(v)
	if err != nil {
		return nil, err
	}
	return shape.RecordOf(name, fields...), nil
}

// declUnion reads variants as a mapping from tag to field list.
func (r *Reader) declUnion(d decl) (*shape.Union, error) {
	disc, err := d.str("discriminator")
	if err != nil {
		return nil, errors.Wrap(err, "discriminator")
	}
	v, _ := d.m.Get("variants")
	m, ok := v.(*shape.Map)
	if !ok {
		return nil, errors.Newf("variants must map tags to field lists, got %s", shape.Describe(v))
	}
	variants := make([]shape.Variant, 0, m.Len())
	for _, p := range m.Pairs() {
		fields, err := r.declFields(p.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %q", p.Key)
		}
		variants = append(variants, shape.Variant{Tag: p.Key, Record: shape.RecordOf(p.Key, fields...)})
	}
	return shape.UnionOf(disc, variants...), nil
}

// constrain applies min, max, coerce, allow_nan and min_size to the
// innermost matching shape.
func constrain(d decl, s shape.Shape) error {
	if o, ok := s.(*shape.Optional); ok {
		return constrain(d, o.Inner)
	}
	min, err := d.integer("min")
	if err != nil {
		return err
	}
	max, err := d.integer("max")
	if err != nil {
		return err
	}
	coerce, err := d.flag("coerce")
	if err != nil {
		return err
	}
	allowNaN, err := d.flag("allow_nan")
	if err != nil {
		return err
	}
	minSize, err := d.integer("min_size")
	if err != nil {
		return err
	}

	switch t := s.(type) {
	case *shape.Scalar:
		if (min != nil || max != nil) && t.Type != shape.TypeInt {
			return errors.Newf("min/max apply to int options, not %s", t)
		}
		t.Min, t.Max = min, max
		if coerce && t.Type != shape.TypeString {
			return errors.Newf("coerce applies to string options, not %s", t)
		}
		t.Coerce = coerce
		if allowNaN && t.Type != shape.TypeFloat {
			return errors.Newf("allow_nan applies to float options, not %s", t)
		}
		t.AllowNonFinite = allowNaN
	case *shape.Sequence:
		if min != nil || max != nil || coerce || allowNaN {
			return errors.Newf("only min_size applies to %s", s)
		}
		if minSize != nil {
			if *minSize < 0 {
				return errors.Newf("negative min_size %d", *minSize)
			}
			t.MinSize = int(*minSize)
		}
		return nil
	default:
		if min != nil || max != nil || coerce || allowNaN {
			return errors.Newf("constraints do not apply to %s", s)
		}
	}
	if minSize != nil {
		return errors.Newf("min_size applies to list options, not %s", s)
	}
	return nil
}
