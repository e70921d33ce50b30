package am

import (
	"sort"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/plugcfg/am.toml
	SourceUser        ConfigSource = "user"        // ~/.plugcfg/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found upward from cwd
	SourceExplicit    ConfigSource = "explicit"    // --config
	SourceEnvironment ConfigSource = "environment" // PLUGCFG_* env vars
)

// SourceOrder lists sources lowest precedence first.
var SourceOrder = []ConfigSource{
	SourceDefault,
	SourceSystem,
	SourceUser,
	SourceProject,
	SourceExplicit,
	SourceEnvironment,
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource // The type of config source
	Path   string       // File path or environment variable name
}

// CheckedFile is one cascade file and whether it was found.
type CheckedFile struct {
	Source ConfigSource `json:"source"`
	Path   string       `json:"path"`
	Loaded bool         `json:"loaded"`
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// Introspection describes the active configuration
type Introspection struct {
	Files    []CheckedFile `json:"files"`
	Settings []SettingInfo `json:"settings"` // All settings with sources, sorted by key
}

// Introspect reports every effective setting with its source, using the
// sources recorded by the loader's last Load. It loads first if needed.
func (l *Loader) Introspect() (*Introspection, error) {
	if l.v == nil {
		if _, err := l.Load(); err != nil {
			return nil, err
		}
	}

	intro := &Introspection{Files: append([]CheckedFile(nil), l.checked...)}
	keys := l.v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		info, ok := l.sources[key]
		if !ok {
			info = SourceInfo{Source: SourceDefault, Path: ""}
		}
		intro.Settings = append(intro.Settings, SettingInfo{
			Key:        key,
			Value:      l.v.Get(key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return intro, nil
}

// Source returns where key came from after Load.
func (l *Loader) Source(key string) SourceInfo {
	if info, ok := l.sources[key]; ok {
		return info
	}
	return SourceInfo{Source: SourceDefault}
}

// BySource groups settings by source.
func (i *Introspection) BySource() map[ConfigSource][]SettingInfo {
	out := make(map[ConfigSource][]SettingInfo)
	for _, s := range i.Settings {
		out[s.Source] = append(out[s.Source], s)
	}
	return out
}
