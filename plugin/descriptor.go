// Package plugin holds plugin descriptors and the registry that owns them.
//
// A Descriptor is the structured form of a plugin's metadata header: its
// identity, dependency specs and the ordered options it declares. The
// Registry keeps descriptors in insertion order and compiles each one's
// option record into a schema.Codec on first use.
//
// Dependency specs are stored verbatim. DependencyChecker verifies them
// against a registry without mutating it.
package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/shape"
)

var (
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	optionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// Priority says how strongly a host should want a plugin enabled.
type Priority string

const (
	PriorityRequired    Priority = "required"
	PriorityRecommended Priority = "recommended"
	PriorityOptional    Priority = "optional"
)

// ParsePriority accepts the three priority names case-insensitively. The
// empty string means optional.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityOptional, nil
	case PriorityRequired, PriorityRecommended, PriorityOptional:
		return p, nil
	}
	return "", errors.Newf("unknown priority %q (want required, recommended or optional)", s)
}

// Dependency is one "name" or "name>=version" requirement.
type Dependency struct {
	Name       string
	MinVersion string
}

// ParseDependency parses a single dependency token.
func ParseDependency(token string) (Dependency, error) {
	name, min, hasMin := strings.Cut(token, ">=")
	name = strings.TrimSpace(name)
	if !idPattern.MatchString(name) {
		return Dependency{}, errors.Newf("invalid dependency name in %q", token)
	}
	d := Dependency{Name: name}
	if hasMin {
		d.MinVersion = strings.TrimSpace(min)
		if !ValidVersion(d.MinVersion) {
			return Dependency{}, errors.Newf("invalid version in dependency %q", token)
		}
	}
	return d, nil
}

func (d Dependency) String() string {
	if d.MinVersion == "" {
		return d.Name
	}
	return d.Name + ">=" + d.MinVersion
}

// OptionSpec declares one configuration option of a plugin.
type OptionSpec struct {
	Name        string
	Shape       shape.Shape
	Description string
	Default     any
	HasDefault  bool
	Required    bool
	Secret      bool
	Choices     []string
	Hidden      bool
}

// Field converts the option into a record field.
func (o OptionSpec) Field() shape.Field {
	return shape.Field{
		Name:        o.Name,
		Shape:       o.Shape,
		Description: o.Description,
		Default:     o.Default,
		HasDefault:  o.HasDefault,
		Required:    o.Required,
		Secret:      o.Secret,
		Hidden:      o.Hidden,
	}
}

// Descriptor describes one plugin.
type Descriptor struct {
	ID       string
	Title    string
	Version  string
	Category string
	Type     string
	API      string
	Priority Priority
	Depends  []Dependency
	Options  []OptionSpec
	Doc      string

	// Extra holds header keys the reader did not recognize.
	Extra map[string]string

	// Source is the file the descriptor was read from, if any.
	Source string
}

// Option looks up an option by name.
func (d *Descriptor) Option(name string) (OptionSpec, bool) {
	for _, o := range d.Options {
		if o.Name == name {
			return o, true
		}
	}
	return OptionSpec{}, false
}

// OptionNames lists option names in declaration order.
func (d *Descriptor) OptionNames() []string {
	names := make([]string, len(d.Options))
	for i, o := range d.Options {
		names[i] = o.Name
	}
	return names
}

// Record builds the record shape whose fields are the declared options.
func (d *Descriptor) Record() *shape.Record {
	fields := make([]shape.Field, len(d.Options))
	for i, o := range d.Options {
		fields[i] = o.Field()
	}
	return shape.RecordOf(d.ID, fields...)
}

// Validate checks the structural invariants of a descriptor: a well-formed
// id and version, unique conventional option names, and defaults that lie
// within their declared choices. Shape validity is checked by compilation.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return errors.Wrap(errors.ErrMetadataMalformed, "empty id")
	}
	if !idPattern.MatchString(d.ID) {
		return errors.Wrapf(errors.ErrMetadataMalformed, "invalid id %q", d.ID)
	}
	if d.Version != "" && !ValidVersion(d.Version) {
		return errors.Wrapf(errors.ErrMetadataMalformed, "%s: version %q is not dotted numeric", d.ID, d.Version)
	}
	seen := make(map[string]struct{}, len(d.Options))
	for _, o := range d.Options {
		if !optionPattern.MatchString(o.Name) {
			return errors.Wrapf(errors.ErrMetadataMalformed, "%s: invalid option name %q", d.ID, o.Name)
		}
		if _, dup := seen[o.Name]; dup {
			return errors.Wrapf(errors.ErrMetadataMalformed, "%s: duplicate option %q", d.ID, o.Name)
		}
		seen[o.Name] = struct{}{}
		if o.Shape == nil {
			return errors.Wrapf(errors.ErrMetadataMalformed, "%s.%s: missing type", d.ID, o.Name)
		}
		if len(o.Choices) > 0 && o.HasDefault && o.Default != nil && !inChoices(o.Default, o.Choices) {
			return errors.Wrapf(errors.ErrMetadataMalformed, "%s.%s: default %v is not one of %s",
				d.ID, o.Name, o.Default, strings.Join(o.Choices, ", "))
		}
	}
	return nil
}

func inChoices(v any, choices []string) bool {
	s := fmt.Sprint(v)
	for _, c := range choices {
		if c == s {
			return true
		}
	}
	return false
}

// Clone deep-copies d. Shapes are shared; they are never mutated after
// construction.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Depends = append([]Dependency(nil), d.Depends...)
	c.Options = make([]OptionSpec, len(d.Options))
	for i, o := range d.Options {
		o.Default = shape.Clone(o.Default)
		o.Choices = append([]string(nil), o.Choices...)
		c.Options[i] = o
	}
	if d.Extra != nil {
		c.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}
