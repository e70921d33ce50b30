package am

import (
	"strings"

	"github.com/teranos/plugcfg/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Header bound: 0 = use default, negative = invalid
	if c.Plugins.MaxHeaderKB < 0 {
		return errors.Newf("plugins.max_header_kb must be >= 0, got %d", c.Plugins.MaxHeaderKB)
	}

	for i, p := range c.Plugins.Paths {
		if strings.TrimSpace(p) == "" {
			return errors.Newf("plugins.paths[%d] cannot be empty", i)
		}
	}

	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.WithHint(
			errors.New("store.path cannot be empty"),
			"omit store.path to use "+DefaultStorePath)
	}
	for i, p := range c.Store.Readonly {
		if strings.TrimSpace(p) == "" {
			return errors.Newf("store.readonly[%d] cannot be empty", i)
		}
		if p == c.Store.Path {
			return errors.Newf("store.readonly[%d] repeats store.path %s", i, p)
		}
	}

	// Prefixes become part of variable names
	if strings.ContainsAny(c.Env.Prefix, " =") {
		return errors.Newf("env.prefix contains invalid characters: %q", c.Env.Prefix)
	}
	if strings.ContainsAny(c.Secrets.EnvPrefix, " =") {
		return errors.Newf("secrets.env_prefix contains invalid characters: %q", c.Secrets.EnvPrefix)
	}

	return nil
}
