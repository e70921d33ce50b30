// Package resolve merges layered raw values into a Snapshot.
//
// For every registered plugin, in registration order, each declared option
// takes its raw value from the highest-priority layer that defines its path;
// options no layer defines fall back to their declared default. Values from
// the environment decode with coercion. All decode failures of one call are
// collected, and any failure means no Snapshot is produced.
package resolve

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/schema"
	"github.com/teranos/plugcfg/secret"
	"github.com/teranos/plugcfg/shape"
	"github.com/teranos/plugcfg/snapshot"
)

// Resolver produces snapshots. It holds no state between calls.
type Resolver struct {
	secrets secret.Provider
	logger  *zap.SugaredLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithSecrets sets the provider the produced snapshots reveal through.
func WithSecrets(p secret.Provider) Option {
	return func(r *Resolver) { r.secrets = p }
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{logger: logger.ComponentLogger("resolve")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve merges stack into a Snapshot of every plugin in reg. On failure
// the error is a *errors.ResolveError listing every diagnostic.
func (r *Resolver) Resolve(reg *plugin.Registry, stack *layer.Stack) (*snapshot.Snapshot, error) {
	var (
		plugins  []snapshot.Plugin
		warnings []shape.Warning
		diags    errors.FieldErrors
	)

	byPlugin := groupPaths(stack)
	for _, d := range reg.List() {
		codec, err := reg.Codec(d.ID)
		if err != nil {
			diags = append(diags, errors.NewFieldError(d.ID, err))
			continue
		}
		p, ws, err := r.resolvePlugin(d, codec, stack, byPlugin[d.ID])
		warnings = append(warnings, ws...)
		delete(byPlugin, d.ID)
		if err != nil {
			diags = append(diags, errors.AsFieldErrors(err)...)
			continue
		}
		plugins = append(plugins, p)
	}

	unknown := make([]string, 0, len(byPlugin))
	for id := range byPlugin {
		unknown = append(unknown, id)
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		for _, path := range byPlugin[id] {
			warnings = append(warnings, shape.Warning{Path: path, Message: "unknown plugin " + id})
		}
	}

	for _, w := range warnings {
		r.logger.Warnw("Resolve warning", logger.FieldPath, w.Path, "warning", w.Message)
	}
	if len(diags) > 0 {
		r.logger.Infow("Resolve failed", logger.FieldCount, len(diags))
		return nil, &errors.ResolveError{Diagnostics: diags}
	}

	snap := snapshot.New(plugins, warnings, snapshot.WithSecrets(r.secrets))
	r.logger.Debugw("Resolved snapshot",
		logger.FieldSnapshot, snap.ID(),
		logger.FieldCount, len(plugins),
		"layers", stack.Len())
	return snap, nil
}

func (r *Resolver) resolvePlugin(d *plugin.Descriptor, codec *schema.Codec, stack *layer.Stack, paths []string) (snapshot.Plugin, []shape.Warning, error) {
	inputs := make(map[string]schema.Input)
	origins := make(map[string]snapshot.Provenance)

	take := func(name, path string) {
		v, l, ok := stack.Lookup(path)
		if !ok {
			return
		}
		inputs[name] = schema.Input{
			Value:  v,
			Coerce: l.Origin() == layer.OriginEnv,
			Origin: l.Name(),
		}
		origins[name] = snapshot.Provenance{Origin: l.Origin(), Layer: l.Name(), Priority: l.Priority()}
	}

	for _, o := range d.Options {
		take(o.Name, shape.JoinPath(d.ID, o.Name))
		if _, set := inputs[o.Name]; !set {
			if _, ok := codec.Default(o.Name); ok {
				origins[o.Name] = snapshot.Provenance{Origin: layer.OriginDefault, Layer: snapshot.DeclaredDefault}
			}
		}
	}
	// paths the descriptor does not declare are retained as extras
	for _, path := range paths {
		_, name, _ := shape.SplitPath(path)
		if _, declared := d.Option(name); !declared {
			take(name, path)
		}
	}

	obj, warnings, err := codec.Decode(d.ID, inputs)
	if err != nil {
		return snapshot.Plugin{}, warnings, err
	}
	return snapshot.Plugin{ID: d.ID, Codec: codec, Value: obj, Origins: origins}, warnings, nil
}

// groupPaths lists every defined path by plugin id.
func groupPaths(stack *layer.Stack) map[string][]string {
	out := make(map[string][]string)
	for _, path := range stack.Paths() {
		id, _, ok := shape.SplitPath(path)
		if !ok {
			continue
		}
		out[id] = append(out[id], path)
	}
	return out
}

// Paths lists the option paths of every registered plugin, for binding
// environment variables.
func Paths(reg *plugin.Registry) []string {
	var paths []string
	for _, d := range reg.List() {
		for _, o := range d.Options {
			paths = append(paths, shape.JoinPath(d.ID, o.Name))
		}
	}
	return paths
}

// Describe renders a resolve failure as "<path>: <cause>" lines, one per
// diagnostic. Other errors render as a single line.
func Describe(err error) string {
	var re *errors.ResolveError
	if errors.As(err, &re) {
		return strings.Join(re.Lines(), "\n")
	}
	return err.Error()
}
