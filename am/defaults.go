package am

import (
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Plugin discovery
	v.SetDefault("plugins.paths", []string{DefaultPluginDir})
	v.SetDefault("plugins.extensions", []string{})
	v.SetDefault("plugins.enabled", []string{})
	v.SetDefault("plugins.strict_keys", false)
	v.SetDefault("plugins.max_header_kb", DefaultMaxHeaderKB)

	// File layers
	v.SetDefault("store.path", DefaultStorePath)
	v.SetDefault("store.readonly", []string{})

	// Environment layer
	v.SetDefault("env.prefix", "")

	// Secrets
	v.SetDefault("secrets.env_prefix", DefaultSecretEnvPrefix)
	v.SetDefault("secrets.dir", "")

	v.SetDefault("log.json", false)
}

// BindEnvVars maps every known key to its PLUGCFG_* variable, e.g.
// store.path -> PLUGCFG_STORE_PATH. List values are comma separated.
func BindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// EnvVarName returns the variable that overrides key.
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
