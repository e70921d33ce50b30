package layer

import (
	"strings"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/shape"
)

// ParseAssignment splits "path=value" and reads value as a YAML scalar or
// flow collection. Text that is not valid YAML is kept as a string.
func ParseAssignment(s string) (Entry, error) {
	path, text, ok := strings.Cut(s, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return Entry{}, errors.WithHint(
			errors.Newf("invalid assignment %q", s),
			"assignments have the form <plugin-id>.<option-name>=<value>")
	}
	return Entry{Path: path, Value: ParseValue(text)}, nil
}

// ParseValue reads command-line text as YAML: "3" is an int, "[a, b]" a
// list, "'3'" the string "3". Unparsable text stays as given.
func ParseValue(text string) any {
	v, err := shape.ParseYAML([]byte(text))
	if err != nil {
		return text
	}
	return v
}

// FromOverrides builds the caller-override layer from "path=value"
// assignments.
func FromOverrides(assignments []string) (*Layer, error) {
	entries := make([]Entry, 0, len(assignments))
	for _, a := range assignments {
		e, err := ParseAssignment(a)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return New(OriginOverride, PriorityOverride, "overrides", entries)
}
