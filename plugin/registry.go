package plugin

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/schema"
)

// Registry owns plugin descriptors in insertion order together with their
// lazily compiled codecs.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]*Descriptor
	codecs map[string]*schema.Codec
	logger *zap.SugaredLogger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *zap.SugaredLogger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:   make(map[string]*Descriptor),
		codecs: make(map[string]*schema.Codec),
		logger: logger.ComponentLogger("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a copy of d.
// Returns ErrDuplicateID if the id is taken; on any error the registry is unchanged.
func (r *Registry) Add(d *Descriptor) error {
	if d == nil {
		return errors.New("nil descriptor")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return errors.Wrapf(errors.ErrDuplicateID, "%q", d.ID)
	}
	r.byID[d.ID] = d.Clone()
	r.order = append(r.order, d.ID)

	r.logger.Debugw("Registered plugin",
		logger.FieldPlugin, d.ID,
		logger.FieldVersion, d.Version,
		logger.FieldCount, len(d.Options))
	return nil
}

// Get returns a copy of the descriptor registered under id
func (r *Registry) Get(id string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownID, "%q", id)
	}
	return d.Clone(), nil
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// List returns copies of all descriptors in insertion order
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id].Clone()
	}
	return out
}

// IDs returns all registered ids in insertion order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered descriptors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Remove deletes the descriptor and its cached codec
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return errors.Wrapf(errors.ErrUnknownID, "%q", id)
	}
	delete(r.byID, id)
	delete(r.codecs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Debugw("Removed plugin", logger.FieldPlugin, id)
	return nil
}

// Codec returns the compiled codec for id, compiling it on first use.
// Compilation failures are not cached.
func (r *Registry) Codec(id string) (*schema.Codec, error) {
	r.mu.RLock()
	c, ok := r.codecs[id]
	d := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if d == nil {
		return nil, errors.Wrapf(errors.ErrUnknownID, "%q", id)
	}

	c, err := schema.Compile(d.Record())
	if err != nil {
		return nil, errors.Wrapf(err, "plugin %q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// The descriptor may have been removed or replaced while compiling.
	if r.byID[id] != d {
		return nil, errors.Wrapf(errors.ErrUnknownID, "%q", id)
	}
	if existing, ok := r.codecs[id]; ok {
		return existing, nil
	}
	r.codecs[id] = c
	r.logger.Debugw("Compiled plugin schema", logger.FieldPlugin, id)
	return c, nil
}
