package am

import (
	"fmt"

	"github.com/teranos/plugcfg/secret"
)

// Config represents plugcfg's own settings ("I am"), as opposed to the
// plugin configuration it resolves.
type Config struct {
	Plugins PluginsConfig `mapstructure:"plugins"`
	Store   StoreConfig   `mapstructure:"store"`
	Env     EnvConfig     `mapstructure:"env"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Log     LogConfig     `mapstructure:"log"`
}

// PluginsConfig configures plugin discovery
type PluginsConfig struct {
	Paths       []string `mapstructure:"paths"`         // Directories scanned for plugin headers
	Extensions  []string `mapstructure:"extensions"`    // File extensions to read (empty = all files)
	Enabled     []string `mapstructure:"enabled"`       // Whitelist of plugin ids (empty = all)
	StrictKeys  bool     `mapstructure:"strict_keys"`   // Unknown header keys are errors
	MaxHeaderKB int      `mapstructure:"max_header_kb"` // Bytes read per file looking for a header
}

// StoreConfig configures the file layers
type StoreConfig struct {
	Path     string   `mapstructure:"path"`     // File written by set/reset
	Readonly []string `mapstructure:"readonly"` // Lower-priority files, lowest first
}

// EnvConfig configures the environment layer
type EnvConfig struct {
	Prefix string `mapstructure:"prefix"` // e.g. "APP" reads APP_GREETER_WHO
}

// SecretsConfig configures where secret handles are resolved
type SecretsConfig struct {
	EnvPrefix string `mapstructure:"env_prefix"` // Variable prefix for secret refs
	Dir       string `mapstructure:"dir"`        // Directory of secret files (optional)
}

// LogConfig configures logging
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// Default values
const (
	DefaultStorePath       = "plugcfg.toml"
	DefaultPluginDir       = "plugins"
	DefaultMaxHeaderKB     = 64
	DefaultSecretEnvPrefix = "PLUGCFG_SECRET_"
	EnvPrefix              = "PLUGCFG"
)

// HeaderBytes returns the header prefix bound in bytes.
func (c *Config) HeaderBytes() int {
	if c.Plugins.MaxHeaderKB <= 0 {
		return DefaultMaxHeaderKB * 1024
	}
	return c.Plugins.MaxHeaderKB * 1024
}

// SecretProvider builds the provider chain for secret handles: the
// environment first, then the secrets directory when one is configured.
func (c *Config) SecretProvider() secret.Provider {
	chain := secret.Chain{secret.EnvProvider{Prefix: c.Secrets.EnvPrefix}}
	if c.Secrets.Dir != "" {
		chain = append(chain, secret.DirProvider{Dir: c.Secrets.Dir})
	}
	return chain
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Plugins: %v, Store: %s, Env: {Prefix: %q}}",
		c.Plugins.Paths, c.Store.Path, c.Env.Prefix)
}
