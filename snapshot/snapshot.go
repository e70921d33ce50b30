// Package snapshot is the immutable, fully resolved configuration handed to
// application code.
//
// A Snapshot maps plugin ids to decoded option records. It is never
// modified: With returns a new Snapshot and leaves the receiver unchanged,
// so a Snapshot may be shared freely between goroutines. Secret options hold
// secret.Handle values; plaintext is produced only by Reveal and is never
// stored.
package snapshot

import (
	"context"

	"github.com/google/uuid"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/schema"
	"github.com/teranos/plugcfg/secret"
	"github.com/teranos/plugcfg/shape"
)

// DeclaredDefault names the provenance of values taken from an option's
// declared default rather than from a layer.
const DeclaredDefault = "declared default"

// Provenance records where a resolved value came from.
type Provenance struct {
	Origin   layer.Origin
	Layer    string
	Priority int
}

// Plugin is the resolved configuration of one plugin, as handed to New.
type Plugin struct {
	ID      string
	Codec   *schema.Codec
	Value   *shape.Object
	Origins map[string]Provenance
}

// Snapshot is an immutable resolved configuration.
type Snapshot struct {
	id       string
	order    []string
	plugins  map[string]*Plugin
	warnings []shape.Warning
	secrets  secret.Provider
}

// Option configures a Snapshot.
type Option func(*Snapshot)

// WithSecrets sets the provider Reveal uses.
func WithSecrets(p secret.Provider) Option {
	return func(s *Snapshot) { s.secrets = p }
}

// New freezes resolved plugins into a Snapshot. Values are deep-copied so
// the snapshot shares nothing with the caller.
func New(plugins []Plugin, warnings []shape.Warning, opts ...Option) *Snapshot {
	s := &Snapshot{
		id:       uuid.NewString(),
		plugins:  make(map[string]*Plugin, len(plugins)),
		warnings: append([]shape.Warning(nil), warnings...),
	}
	for _, p := range plugins {
		origins := make(map[string]Provenance, len(p.Origins))
		for k, v := range p.Origins {
			origins[k] = v
		}
		value, _ := shape.Clone(p.Value).(*shape.Object)
		s.order = append(s.order, p.ID)
		s.plugins[p.ID] = &Plugin{ID: p.ID, Codec: p.Codec, Value: value, Origins: origins}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies this snapshot in logs. It plays no part in Equal.
func (s *Snapshot) ID() string { return s.id }

// Plugins lists plugin ids in registration order.
func (s *Snapshot) Plugins() []string { return append([]string(nil), s.order...) }

// Warnings returns the non-fatal findings of the resolve that produced s.
func (s *Snapshot) Warnings() []shape.Warning { return append([]shape.Warning(nil), s.warnings...) }

func (s *Snapshot) plugin(id string) (*Plugin, error) {
	p, ok := s.plugins[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownPlugin, "%q", id)
	}
	return p, nil
}

func (s *Snapshot) option(id, name string) (*Plugin, any, error) {
	p, err := s.plugin(id)
	if err != nil {
		return nil, nil, err
	}
	v, ok := p.Value.Get(name)
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrUnknownOption, "%s.%s", id, name)
	}
	return p, v, nil
}

// Get returns a copy of an option's value. Secret options yield their
// secret.Handle; absent optional values are nil.
func (s *Snapshot) Get(id, name string) (any, error) {
	_, v, err := s.option(id, name)
	if err != nil {
		return nil, err
	}
	return shape.Clone(v), nil
}

// Reveal is Get with every secret handle in the value replaced by its
// plaintext. The provider is asked on each call; nothing is cached.
func (s *Snapshot) Reveal(ctx context.Context, id, name string) (any, error) {
	_, v, err := s.option(id, name)
	if err != nil {
		return nil, err
	}
	return s.reveal(ctx, shape.JoinPath(id, name), shape.Clone(v))
}

func (s *Snapshot) reveal(ctx context.Context, path string, v any) (any, error) {
	switch t := v.(type) {
	case secret.Handle:
		if s.secrets == nil {
			return nil, errors.WithHint(
				errors.Wrapf(errors.ErrSecretUnavailable, "%s: no secrets provider", path),
				"configure secrets.env_prefix or secrets.dir")
		}
		plain, err := s.secrets.Resolve(ctx, t)
		if err != nil {
			return nil, errors.NewFieldError(path, errors.Mark(err, errors.ErrSecretUnavailable))
		}
		return plain, nil
	case []any:
		for i, e := range t {
			r, err := s.reveal(ctx, shape.IndexPath(path, i), e)
			if err != nil {
				return nil, err
			}
			t[i] = r
		}
		return t, nil
	case *shape.Map:
		for _, p := range t.Pairs() {
			r, err := s.reveal(ctx, shape.JoinPath(path, p.Key), p.Value)
			if err != nil {
				return nil, err
			}
			t.Set(p.Key, r)
		}
		return t, nil
	case *shape.Object:
		out := t
		for _, p := range t.Items() {
			r, err := s.reveal(ctx, shape.JoinPath(path, p.Key), p.Value)
			if err != nil {
				return nil, err
			}
			out = out.With(p.Key, r)
		}
		return out, nil
	case *shape.Tagged:
		body, err := s.reveal(ctx, path, t.Value)
		if err != nil {
			return nil, err
		}
		return &shape.Tagged{Tag: t.Tag, Value: body.(*shape.Object)}, nil
	}
	return v, nil
}

// Items returns a plugin's options in declaration order.
func (s *Snapshot) Items(id string) ([]shape.Pair, error) {
	p, err := s.plugin(id)
	if err != nil {
		return nil, err
	}
	items := p.Value.Items()
	for i := range items {
		items[i].Value = shape.Clone(items[i].Value)
	}
	return items, nil
}

// Object returns a copy of a plugin's resolved record, including retained
// unknown options.
func (s *Snapshot) Object(id string) (*shape.Object, error) {
	p, err := s.plugin(id)
	if err != nil {
		return nil, err
	}
	return shape.Clone(p.Value).(*shape.Object), nil
}

// Origin reports where an option's value came from. ok is false for options
// that no layer set and that have no declared default.
func (s *Snapshot) Origin(id, name string) (Provenance, bool) {
	p, ok := s.plugins[id]
	if !ok {
		return Provenance{}, false
	}
	prov, ok := p.Origins[name]
	return prov, ok
}

// Equal reports whether both snapshots hold the same plugins with
// structurally equal values. Ids, provenance and warnings are ignored.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if other == nil || len(s.plugins) != len(other.plugins) {
		return false
	}
	for id, p := range s.plugins {
		q, ok := other.plugins[id]
		if !ok || !shape.Equal(p.Value, q.Value) {
			return false
		}
	}
	return true
}

// With returns a new Snapshot in which id.name is raw decoded under the
// option's shape. s is unchanged.
func (s *Snapshot) With(id, name string, raw any) (*Snapshot, error) {
	p, err := s.plugin(id)
	if err != nil {
		return nil, err
	}
	path := shape.JoinPath(id, name)
	v, warnings, err := p.Codec.DecodeField(path, name, raw, false)
	if err != nil {
		return nil, err
	}

	next := &Snapshot{
		id:       uuid.NewString(),
		order:    s.order,
		plugins:  make(map[string]*Plugin, len(s.plugins)),
		warnings: append(s.Warnings(), warnings...),
		secrets:  s.secrets,
	}
	for k, q := range s.plugins {
		next.plugins[k] = q
	}
	origins := make(map[string]Provenance, len(p.Origins)+1)
	for k, o := range p.Origins {
		origins[k] = o
	}
	origins[name] = Provenance{Origin: layer.OriginOverride, Layer: "snapshot", Priority: layer.PriorityOverride}
	next.plugins[id] = &Plugin{ID: id, Codec: p.Codec, Value: p.Value.With(name, v), Origins: origins}
	return next, nil
}

// WithSecrets returns a copy of s that reveals through provider.
func (s *Snapshot) WithSecrets(provider secret.Provider) *Snapshot {
	next := *s
	next.secrets = provider
	return &next
}

// Encode renders every plugin's record in its plain serializable form,
// keyed by plugin id in registration order. Secrets stay in marker form.
func (s *Snapshot) Encode() (*shape.Map, error) {
	out := shape.NewMap()
	for _, id := range s.order {
		m, err := s.EncodePlugin(id)
		if err != nil {
			return nil, err
		}
		out.Set(id, m)
	}
	return out, nil
}

// EncodePlugin renders one plugin's record.
func (s *Snapshot) EncodePlugin(id string) (*shape.Map, error) {
	p, err := s.plugin(id)
	if err != nil {
		return nil, err
	}
	m, err := p.Codec.Encode(p.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", id)
	}
	return m, nil
}
