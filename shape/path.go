package shape

import (
	"fmt"
	"strings"
)

// JoinPath appends a field or key to an option path.
func JoinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// IndexPath appends a sequence index to an option path.
func IndexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

// SplitPath splits "<plugin-id>.<option-name>" at the first dot.
func SplitPath(path string) (plugin, option string, ok bool) {
	plugin, option, ok = strings.Cut(path, ".")
	if !ok || plugin == "" || option == "" {
		return "", "", false
	}
	return plugin, option, true
}

// Warning is a non-fatal decode finding, such as a retained unknown field.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return w.Path + ": " + w.Message
}
