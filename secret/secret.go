// Package secret holds opaque handles for sensitive option values and the
// providers that turn them into plaintext on demand.
//
// A handle is what a configuration layer stores in place of a secret:
//
//	password = "secret=db-prod-password"
//
// Plaintext is only produced by a Provider at access time and is never kept
// inside a snapshot.
package secret

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/plugcfg/errors"
)

// Marker prefixes the serialized form of a handle.
const Marker = "secret="

// Handle is an opaque token standing in for a sensitive value.
type Handle struct {
	Ref string
}

// String returns the marker form; it never contains plaintext.
func (h Handle) String() string { return Marker + h.Ref }

// Parse reports whether s is in marker form and returns its handle.
func Parse(s string) (Handle, bool) {
	if !strings.HasPrefix(s, Marker) {
		return Handle{}, false
	}
	return Handle{Ref: strings.TrimPrefix(s, Marker)}, true
}

// Provider resolves handles to plaintext. Implementations may block.
type Provider interface {
	Resolve(ctx context.Context, h Handle) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, h Handle) (string, error)

// Resolve calls f.
func (f ProviderFunc) Resolve(ctx context.Context, h Handle) (string, error) { return f(ctx, h) }

// MapProvider serves handles from an in-memory map.
type MapProvider map[string]string

// Resolve looks h.Ref up in the map.
func (m MapProvider) Resolve(_ context.Context, h Handle) (string, error) {
	v, ok := m[h.Ref]
	if !ok {
		return "", errors.Wrapf(errors.ErrSecretUnavailable, "%s", h)
	}
	return v, nil
}

// EnvProvider resolves a handle from the environment variable Prefix+REF,
// with the ref uppercased and '-' / '.' replaced by '_'.
type EnvProvider struct {
	Prefix string
}

// VarName returns the environment variable consulted for h.
func (p EnvProvider) VarName(h Handle) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.Prefix + strings.ToUpper(r.Replace(h.Ref))
}

// Resolve reads the variable named by VarName.
func (p EnvProvider) Resolve(ctx context.Context, h Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, ok := os.LookupEnv(p.VarName(h))
	if !ok {
		return "", errors.Wrapf(errors.ErrSecretUnavailable, "%s (variable %s not set)", h, p.VarName(h))
	}
	return v, nil
}

// DirProvider resolves a handle from the file Dir/<ref>, trimming one
// trailing newline. This is the layout of mounted secret volumes.
type DirProvider struct {
	Dir string
}

// Resolve reads the secret file for h.
func (p DirProvider) Resolve(ctx context.Context, h Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if h.Ref == "" || strings.ContainsAny(h.Ref, `/\`) || h.Ref == "." || h.Ref == ".." {
		return "", errors.Wrapf(errors.ErrSecretUnavailable, "%s: invalid reference", h)
	}
	data, err := os.ReadFile(filepath.Join(p.Dir, h.Ref))
	if err != nil {
		return "", errors.Wrapf(errors.Mark(err, errors.ErrSecretUnavailable), "%s", h)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// Chain tries providers in order and returns the first success. The error
// of the last provider is returned when none succeeds.
type Chain []Provider

// Resolve walks the chain.
func (c Chain) Resolve(ctx context.Context, h Handle) (string, error) {
	err := errors.Wrapf(errors.ErrSecretUnavailable, "%s: no providers configured", h)
	for _, p := range c {
		v, perr := p.Resolve(ctx, h)
		if perr == nil {
			return v, nil
		}
		err = perr
	}
	return "", err
}
