// Package layer holds the ordered sources of raw option values that the
// resolver merges: builtin defaults, configuration files, the environment
// and caller overrides.
//
// A Layer maps option paths ("<plugin-id>.<option-name>") to raw values.
// A Stack orders layers by priority; the highest priority that defines a
// path supplies its value.
package layer

import (
	"sort"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/shape"
)

// Origin says where a layer's values came from.
type Origin string

const (
	OriginDefault  Origin = "builtin-default"
	OriginFile     Origin = "file"
	OriginEnv      Origin = "environment"
	OriginOverride Origin = "caller-override"
)

// Conventional priorities. Several file layers may sit between
// PriorityFile and PriorityEnv.
const (
	PriorityDefault  = 0
	PriorityFile     = 100
	PriorityEnv      = 200
	PriorityOverride = 300
)

// Entry is one path and its raw value.
type Entry struct {
	Path  string
	Value any
}

// Layer is an immutable set of raw values from one source.
type Layer struct {
	origin   Origin
	priority int
	name     string
	entries  []Entry
	index    map[string]int
}

// New builds a layer. Paths must have the form "<plugin-id>.<option-name>"
// and be unique within the layer.
func New(origin Origin, priority int, name string, entries []Entry) (*Layer, error) {
	l := &Layer{
		origin:   origin,
		priority: priority,
		name:     name,
		entries:  make([]Entry, 0, len(entries)),
		index:    make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, _, ok := shape.SplitPath(e.Path); !ok {
			return nil, errors.WithHint(
				errors.Newf("layer %s: invalid option path %q", name, e.Path),
				"option paths have the form <plugin-id>.<option-name>")
		}
		if _, dup := l.index[e.Path]; dup {
			return nil, errors.Wrapf(errors.ErrDuplicatePathInLayer, "layer %s: %s", name, e.Path)
		}
		l.index[e.Path] = len(l.entries)
		l.entries = append(l.entries, Entry{Path: e.Path, Value: shape.Clone(e.Value)})
	}
	return l, nil
}

func (l *Layer) Origin() Origin { return l.origin }
func (l *Layer) Priority() int  { return l.priority }
func (l *Layer) Name() string   { return l.name }
func (l *Layer) Len() int       { return len(l.entries) }

// Lookup returns the raw value stored for path. The value is shared with
// the layer and must not be modified.
func (l *Layer) Lookup(path string) (any, bool) {
	i, ok := l.index[path]
	if !ok {
		return nil, false
	}
	return l.entries[i].Value, true
}

// Entries returns the entries in the order they were given.
func (l *Layer) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Paths returns the defined paths in entry order.
func (l *Layer) Paths() []string {
	paths := make([]string, len(l.entries))
	for i, e := range l.entries {
		paths[i] = e.Path
	}
	return paths
}

// Stack is a priority-ordered list of layers with exactly one builtin-default
// layer at the bottom.
type Stack struct {
	layers []*Layer // ascending priority
}

// NewStack orders layers by priority. Duplicate priorities fail with
// ErrDuplicatePriority. An empty builtin-default layer is added when none is
// given; a given one must be unique and lowest.
func NewStack(layers ...*Layer) (*Stack, error) {
	var (
		sorted   []*Layer
		defaults int
	)
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.origin == OriginDefault {
			defaults++
		}
		sorted = append(sorted, l)
	}
	if defaults > 1 {
		return nil, errors.Newf("%d builtin-default layers given, want at most one", defaults)
	}
	if defaults == 0 {
		def, _ := New(OriginDefault, PriorityDefault, "defaults", nil)
		sorted = append(sorted, def)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].priority == sorted[i-1].priority {
			return nil, errors.Wrapf(errors.ErrDuplicatePriority, "layers %s and %s share priority %d",
				sorted[i-1].name, sorted[i].name, sorted[i].priority)
		}
	}
	if sorted[0].origin != OriginDefault {
		return nil, errors.Newf("layer %s (priority %d) is below the builtin-default layer", sorted[0].name, sorted[0].priority)
	}
	return &Stack{layers: sorted}, nil
}

// Layers returns the layers in ascending priority.
func (s *Stack) Layers() []*Layer {
	return append([]*Layer(nil), s.layers...)
}

// Len counts layers, including the builtin-default layer.
func (s *Stack) Len() int { return len(s.layers) }

// Lookup scans from the highest priority down and returns the first value
// defined for path together with the layer that defined it.
func (s *Stack) Lookup(path string) (any, *Layer, bool) {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v, ok := s.layers[i].Lookup(path); ok {
			return v, s.layers[i], true
		}
	}
	return nil, nil, false
}

// Paths returns every path defined by any layer, sorted.
func (s *Stack) Paths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, l := range s.layers {
		for _, e := range l.entries {
			if _, ok := seen[e.Path]; ok {
				continue
			}
			seen[e.Path] = struct{}{}
			paths = append(paths, e.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

// With returns a new stack with l added.
func (s *Stack) With(l *Layer) (*Stack, error) {
	return NewStack(append(s.Layers(), l)...)
}
