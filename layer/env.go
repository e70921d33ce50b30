package layer

import (
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/plugcfg/errors"
)

var envReplacer = strings.NewReplacer(".", "_", "-", "_")

// EnvName spells the environment variable for an option path: the prefix,
// then the path uppercased with separators replaced by underscores.
// EnvName("", "greeter.who") is "GREETER_WHO".
func EnvName(prefix, path string) string {
	name := strings.ToUpper(envReplacer.Replace(path))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(envReplacer.Replace(prefix)) + "_" + name
}

// FromEnv reads the variables for paths from the process environment.
// Values stay strings; the resolver decodes this origin with coercion.
// Empty variables count as unset.
func FromEnv(paths []string, prefix string) (*Layer, error) {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(envReplacer)

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var entries []Entry
	for i, path := range sorted {
		if i > 0 && path == sorted[i-1] {
			continue
		}
		if err := v.BindEnv(path, EnvName(prefix, path)); err != nil {
			return nil, errors.Wrapf(err, "failed to bind %s", path)
		}
		if !v.IsSet(path) {
			continue
		}
		entries = append(entries, Entry{Path: path, Value: v.GetString(path)})
	}
	return New(OriginEnv, PriorityEnv, "environment", entries)
}
