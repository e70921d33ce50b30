package layer

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	tomlw "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/shape"
)

// SchemaVersion is the file layout version written by Store. Files declaring
// a newer version are rejected.
const SchemaVersion = 1

// SchemaVersionKey is the reserved top-level key carrying the layout version.
const SchemaVersionKey = "schema_version"

// Format is a configuration file serialization.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension. Unknown extensions are
// read as TOML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return FormatTOML
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTOML, FormatYAML, FormatJSON:
		return f, nil
	}
	return "", errors.Newf("unknown format %q (want toml, yaml or json)", s)
}

// LoadFile reads a configuration file into a file-origin layer. A missing
// file is an error; use Store.Layer for optional files.
func LoadFile(path string, priority int) (*Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	doc, err := ParseDocument(FormatOf(path), data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	l, err := FromDocument(OriginFile, priority, path, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return l, nil
}

// FromDocument flattens a "plugin id -> option -> value" document into a
// layer, checking schema_version.
func FromDocument(origin Origin, priority int, name string, doc *shape.Map) (*Layer, error) {
	entries, err := DocumentEntries(doc)
	if err != nil {
		return nil, err
	}
	return New(origin, priority, name, entries)
}

// DocumentEntries lists the option values of a document in document order.
func DocumentEntries(doc *shape.Map) ([]Entry, error) {
	var entries []Entry
	for _, p := range doc.Pairs() {
		if p.Key == SchemaVersionKey {
			v, err := shape.DecodeInt(p.Value, nil)
			if err != nil {
				return nil, errors.Wrap(err, SchemaVersionKey)
			}
			if v > SchemaVersion {
				return nil, errors.WithHintf(
					errors.Newf("%s %d is newer than supported version %d", SchemaVersionKey, v, SchemaVersion),
					"upgrade plugcfg to read this file")
			}
			continue
		}
		if p.Value == nil {
			continue
		}
		options, ok := p.Value.(*shape.Map)
		if !ok {
			return nil, errors.Newf("%s: expected a table of options, got %s", p.Key, shape.Describe(p.Value))
		}
		for _, o := range options.Pairs() {
			entries = append(entries, Entry{Path: p.Key + "." + o.Key, Value: o.Value})
		}
	}
	return entries, nil
}

// ParseDocument parses file contents into an ordered document. Empty input
// yields an empty document.
func ParseDocument(format Format, data []byte) (*shape.Map, error) {
	var (
		raw any
		err error
	)
	switch format {
	case FormatTOML:
		raw, err = parseTOML(data)
	default:
		raw, err = shape.ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	switch t := raw.(type) {
	case nil:
		return shape.NewMap(), nil
	case *shape.Map:
		return t, nil
	}
	return nil, errors.Newf("expected a mapping at the top level, got %s", shape.Describe(raw))
}

// MarshalDocument serializes a document. TOML output is written by go-toml,
// which orders keys alphabetically; YAML and JSON keep document order.
func MarshalDocument(format Format, doc *shape.Map) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, errors.Wrap(err, "failed to marshal YAML")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to marshal YAML")
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal JSON")
		}
		return append(data, '\n'), nil
	}
	data, err := tomlw.Marshal(withoutNulls(doc.Plain()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal TOML")
	}
	return data, nil
}

// withoutNulls drops null mapping values, which TOML cannot represent.
func withoutNulls(m map[string]any) map[string]any {
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			withoutNulls(t)
		case []any:
			for _, e := range t {
				if em, ok := e.(map[string]any); ok {
					withoutNulls(em)
				}
			}
		}
	}
	return m
}

// parseTOML decodes TOML, recovering key order from the decoder metadata.
func parseTOML(data []byte) (any, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse TOML")
	}

	order := make(map[string][]string)
	seen := make(map[string]bool)
	for _, k := range md.Keys() {
		parent := strings.Join(k[:len(k)-1], "\x00")
		full := strings.Join(k, "\x00")
		if seen[full] {
			continue
		}
		seen[full] = true
		order[parent] = append(order[parent], k[len(k)-1])
	}
	return fromTOML(raw, "", order), nil
}

func fromTOML(v any, key string, order map[string][]string) any {
	switch t := v.(type) {
	case map[string]any:
		m := shape.NewMap()
		for _, k := range orderedKeys(t, order[key]) {
			m.Set(k, fromTOML(t[k], childKey(key, k), order))
		}
		return m
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromTOML(e, key, order)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromTOML(e, key, order)
		}
		return out
	case time.Time:
		return t.Format(time.RFC3339Nano)
	}
	return v
}

func childKey(parent, k string) string {
	if parent == "" {
		return k
	}
	return parent + "\x00" + k
}

// orderedKeys lists m's keys in recorded order, then any others sorted.
func orderedKeys(m map[string]any, recorded []string) []string {
	keys := make([]string, 0, len(m))
	used := make(map[string]bool, len(m))
	for _, k := range recorded {
		if _, ok := m[k]; ok && !used[k] {
			keys = append(keys, k)
			used[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
