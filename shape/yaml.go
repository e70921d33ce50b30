package shape

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/plugcfg/errors"
)

// ParseYAML parses YAML (and therefore JSON) text into raw values: nil,
// bool, int64, float64, string, []any and *Map. Mapping order is kept and
// repeated keys fail with ErrDuplicateKey. An empty document yields nil.
func ParseYAML(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	return FromNode(&doc)
}

// FromNode converts a decoded YAML node tree into raw values.
func FromNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return FromNode(n.Content[0])
	case yaml.AliasNode:
		return FromNode(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, errors.Newf("line %d: mapping keys must be scalars", k.Line)
			}
			if _, dup := m.Get(k.Value); dup {
				return nil, errors.Wrapf(errors.ErrDuplicateKey, "line %d: %q", k.Line, k.Value)
			}
			val, err := FromNode(v)
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, val)
		}
		return m, nil
	case yaml.ScalarNode:
		return scalarFromNode(n), nil
	}
	return nil, errors.Newf("line %d: unsupported YAML node", n.Line)
}

func scalarFromNode(n *yaml.Node) any {
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i
		}
	case "!!float":
		if integral(n.Value) {
			break
		}
		var f float64
		if err := n.Decode(&f); err == nil {
			return f
		}
	}
	// Overflowing ints and other tags stay textual; the decoder reports them.
	return n.Value
}

// integral reports digit-only text, which YAML resolves to a float once it
// no longer fits an int.
func integral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MarshalYAML emits the entries in order.
func (m *Map) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range m.Pairs() {
		var k, v yaml.Node
		if err := k.Encode(p.Key); err != nil {
			return nil, err
		}
		if err := v.Encode(p.Value); err != nil {
			return nil, errors.Wrapf(err, "key %q", p.Key)
		}
		node.Content = append(node.Content, &k, &v)
	}
	return node, nil
}
