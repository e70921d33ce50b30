package header

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/shape"
)

// =============================================================================
// Fixtures
// =============================================================================

type memFiles map[string]string

func (m memFiles) ReadPrefix(path string, n int) ([]byte, error) {
	s, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	if len(s) > n {
		s = s[:n]
	}
	return []byte(s), nil
}

const greeterSource = `#!/usr/bin/env python3
# -*- coding: utf-8 -*-
# id: greeter
# title: Greeter
# version: 1.2
# priority: recommended
# depends: base "logging>=1.0"
# config:
#   - {name: who, type: string, value: world, description: Whom to greet}
#   - {name: mode, select: [loud, quiet], value: quiet}
#   - {name: retries, value: 3}
#   - {name: token, type: string?, secret: true, hidden: true}
#
# Greets whoever is configured.

import sys
`

func parse(t *testing.T, src string, opts ...Option) (*plugin.Descriptor, error) {
	t.Helper()
	return NewReader(opts...).Parse([]byte(src), false)
}

// =============================================================================
// Read Tests
// =============================================================================

func TestReadGreeter(t *testing.T) {
	r := NewReader(WithFileReader(memFiles{"plugins/greeter.py": greeterSource}))

	d, err := r.Read("plugins/greeter.py")
	require.NoError(t, err)

	assert.Equal(t, "greeter", d.ID)
	assert.Equal(t, "Greeter", d.Title)
	assert.Equal(t, "1.2", d.Version)
	assert.Equal(t, plugin.PriorityRecommended, d.Priority)
	assert.Equal(t, "plugins/greeter.py", d.Source)
	assert.Equal(t, "Greets whoever is configured.", d.Doc)
	assert.Equal(t, []plugin.Dependency{
		{Name: "base"},
		{Name: "logging", MinVersion: "1.0"},
	}, d.Depends)
	assert.Equal(t, []string{"who", "mode", "retries", "token"}, d.OptionNames())

	who, _ := d.Option("who")
	assert.Equal(t, "string", who.Shape.String())
	assert.Equal(t, "world", who.Default)
	assert.Equal(t, "Whom to greet", who.Description)

	mode, _ := d.Option("mode")
	assert.Equal(t, "enum[loud|quiet]", mode.Shape.String())
	assert.Equal(t, []string{"loud", "quiet"}, mode.Choices)

	retries, _ := d.Option("retries")
	assert.Equal(t, "int", retries.Shape.String())
	assert.Equal(t, int64(3), retries.Default)

	token, _ := d.Option("token")
	assert.Equal(t, "optional[string]", token.Shape.String())
	assert.True(t, token.Secret)
	assert.True(t, token.Hidden)
	assert.False(t, token.HasDefault)
}

func TestReadMissingFile(t *testing.T) {
	_, err := NewReader(WithFileReader(memFiles{})).Read("nope.py")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.py")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeter.py")
	require.NoError(t, os.WriteFile(path, []byte(greeterSource), 0o644))

	d, err := NewReader().Read(path)
	require.NoError(t, err)
	assert.Equal(t, "greeter", d.ID)
	assert.Equal(t, path, d.Source)
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParseSlashMarker(t *testing.T) {
	d, err := parse(t, "//go:build ignore\n\n// id: tool\n// version: 2\n// Builds things.\npackage main\n")
	require.Error(t, err, "a blank line ends the header")
	assert.True(t, errors.Is(err, errors.ErrMetadataMissing))
	assert.Nil(t, d)

	d, err = parse(t, "//go:build ignore\n// id: tool\n// version: 2\n// Builds things.\npackage main\n")
	require.NoError(t, err)
	assert.Equal(t, "tool", d.ID)
	assert.Equal(t, "2", d.Version)
	assert.Equal(t, "Builds things.", d.Doc)
	assert.Equal(t, plugin.PriorityOptional, d.Priority)
}

func TestParseBlockConfig(t *testing.T) {
	d, err := parse(t, "# id: greeter\n# config:\n#   - {name: who, type: string, value: world}\n#   - {name: retries, value: 3}\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"who", "retries"}, d.OptionNames())

	d, err = parse(t, "# id: nested\n# config:\n#     - name: db\n#       type: record\n#       fields:\n#         - {name: host, value: localhost}\n#     - {name: debug, value: false}\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "debug"}, d.OptionNames())
}

func TestHeaderValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "  greeter ", want: "greeter"},
		{raw: "\n  - a\n  - b", want: "- a\n- b"},
		{raw: "\n    - name: x\n      value: 1\n    - y", want: "- name: x\n  value: 1\n- y"},
		{raw: " [a,\n   b]", want: "[a,\nb]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, headerValue(tt.raw), "%q", tt.raw)
	}
}

func TestParseMarkerIsFixedByFirstLine(t *testing.T) {
	d, err := parse(t, "# id: py\n// title: ignored\n# title: Py\n")
	require.NoError(t, err)
	assert.Equal(t, "py", d.ID)
	assert.Empty(t, d.Title)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		target error
		msg    string
	}{
		{name: "no header", src: "package main\n", target: errors.ErrMetadataMissing},
		{name: "doc only", src: "# Just a comment.\n", target: errors.ErrMetadataMissing},
		{name: "empty", src: "", target: errors.ErrMetadataMissing},
		{name: "missing id", src: "# title: X\n", target: errors.ErrMetadataMalformed, msg: "missing id"},
		{name: "duplicate key", src: "# id: a\n# id: b\n", target: errors.ErrMetadataMalformed, msg: "duplicate header key"},
		{name: "bad version", src: "# id: a\n# version: 1.x\n", target: errors.ErrMetadataMalformed, msg: "version"},
		{name: "bad priority", src: "# id: a\n# priority: urgent\n", target: errors.ErrMetadataMalformed, msg: "priority"},
		{name: "bad id", src: "# id: a.b\n", target: errors.ErrMetadataMalformed, msg: "invalid id"},
		{name: "bad depends quoting", src: "# id: a\n# depends: \"base\n", target: errors.ErrMetadataMalformed, msg: "depends"},
		{name: "config not a list", src: "# id: a\n# config: {name: x}\n", target: errors.ErrMetadataMalformed, msg: "sequence"},
		{name: "option without name", src: "# id: a\n# config: [{type: int}]\n", target: errors.ErrMetadataMalformed, msg: "without name"},
		{name: "unknown type", src: "# id: a\n# config: [{name: x, type: complex}]\n", target: errors.ErrMetadataMalformed},
		{name: "default outside select", src: "# id: a\n# config: [{name: x, select: [a, b], value: c}]\n", target: errors.ErrMetadataMalformed, msg: "not one of"},
		{name: "default wrong type", src: "# id: a\n# config: [{name: x, type: int, value: many}]\n", target: errors.ErrMetadataMalformed, msg: "default"},
		{name: "min on string", src: "# id: a\n# config: [{name: x, type: string, min: 1}]\n", target: errors.ErrMetadataMalformed, msg: "min/max"},
		{name: "select on int", src: "# id: a\n# config: [{name: x, type: int, select: [1, 2]}]\n", target: errors.ErrMetadataMalformed, msg: "select"},
		{name: "duplicate option", src: "# id: a\n# config: [{name: x}, {name: x}]\n", target: errors.ErrMetadataMalformed, msg: "duplicate option"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestParseUnknownKeys(t *testing.T) {
	src := "# id: a\n# owner: someone\n# config: [{name: x, value: 1, unit: ms}]\n"

	d, err := parse(t, src)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "someone"}, d.Extra)
	assert.Equal(t, []string{"x"}, d.OptionNames())

	_, err = parse(t, src, WithStrictKeys(true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMetadataMalformed))
	assert.Contains(t, err.Error(), "owner")

	_, err = parse(t, "# id: a\n# config: [{name: x, value: 1, unit: ms}]\n", WithStrictKeys(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit")
}

func TestParseKeysAreCaseInsensitive(t *testing.T) {
	d, err := parse(t, "# ID: a\n# Title: A\n")
	require.NoError(t, err)
	assert.Equal(t, "a", d.ID)
	assert.Equal(t, "A", d.Title)
}

func TestParseTruncated(t *testing.T) {
	src := "# id: trunc\n# title: A rather long title\n"
	cut := len("# id: trunc\n# title: A rat")

	r := NewReader(WithFileReader(memFiles{"p.py": src}), WithMaxBytes(cut))
	d, err := r.Read("p.py")
	require.NoError(t, err)
	assert.Equal(t, "trunc", d.ID)
	assert.Empty(t, d.Title, "partial final line is dropped")
}

func TestParseCRLF(t *testing.T) {
	d, err := parse(t, "# id: win\r\n# title: Windows\r\n")
	require.NoError(t, err)
	assert.Equal(t, "win", d.ID)
	assert.Equal(t, "Windows", d.Title)
}

func TestParseSelectString(t *testing.T) {
	d, err := parse(t, "# id: a\n# config: [{name: level, select: \"debug | info | warn\", value: info}]\n")
	require.NoError(t, err)
	o, _ := d.Option("level")
	assert.Equal(t, []string{"debug", "info", "warn"}, o.Choices)
	assert.Equal(t, "enum[debug|info|warn]", o.Shape.String())
}

func TestParseInferredShapes(t *testing.T) {
	src := `# id: infer
# config:
#   - {name: enabled, value: true}
#   - {name: ratio, value: 0.5}
#   - {name: tags, value: [a, b]}
#   - {name: ports, value: {http: 80}}
#   - {name: plain}
#   - {name: limit, type: "int?", min: 0, max: 10}
#   - {name: hosts, type: "list[string]", min_size: 1}
#   - {name: label, type: string, coerce: true}
#   - {name: gain, type: float, allow_nan: true}
`
	d, err := parse(t, src)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, o := range d.Options {
		got[o.Name] = o.Shape.String()
	}
	assert.Equal(t, map[string]string{
		"enabled": "bool",
		"ratio": "float",
		"tags":  "list[string]",
		"ports": "map[int]",
		"plain": "string",
		"limit": "optional[int]",
		"hosts": "list[string]",
		"label": "string",
		"gain":  "float",
	}, got)

	limit, _ := d.Option("limit")
	inner := limit.Shape.(*shape.Optional).Inner.(*shape.Scalar)
	require.NotNil(t, inner.Min)
	require.NotNil(t, inner.Max)
	assert.Equal(t, int64(0), *inner.Min)
	assert.Equal(t, int64(10), *inner.Max)

	hosts, _ := d.Option("hosts")
	assert.Equal(t, 1, hosts.Shape.(*shape.Sequence).MinSize)

	label, _ := d.Option("label")
	assert.True(t, label.Shape.(*shape.Scalar).Coerce)

	gain, _ := d.Option("gain")
	assert.True(t, gain.Shape.(*shape.Scalar).AllowNonFinite)
}

func TestParseStructuralDeclarations(t *testing.T) {
	src := `# id: store
# config:
#   - name: backend
#     type: union
#     discriminator: kind
#     variants:
#       file:
#         - {name: path, type: string, required: true}
#       s3:
#         - {name: bucket, type: string}
#         - {name: region, value: us-east-1}
#   - name: limits
#     type: record?
#     fields:
#       - {name: max, type: int, min: 1, value: 5}
`
	d, err := parse(t, src)
	require.NoError(t, err)

	backend, _ := d.Option("backend")
	u, ok := backend.Shape.(*shape.Union)
	require.True(t, ok)
	assert.Equal(t, "kind", u.Discriminator)
	assert.Equal(t, []string{"file", "s3"}, u.Tags())
	s3, ok := u.Variant("s3")
	require.True(t, ok)
	assert.Equal(t, []string{"bucket", "region"}, s3.Record.FieldNames())
	file, _ := u.Variant("file")
	path, _ := file.Record.Field("path")
	assert.True(t, path.Required)

	limits, _ := d.Option("limits")
	opt, ok := limits.Shape.(*shape.Optional)
	require.True(t, ok)
	rec, ok := opt.Inner.(*shape.Record)
	require.True(t, ok)
	max, ok := rec.Field("max")
	require.True(t, ok)
	assert.Equal(t, int64(5), max.Default)
}

func TestParseDependsQuoting(t *testing.T) {
	d, err := parse(t, "# id: a\n# depends: 'b>=2.0' c   d>=1\n")
	require.NoError(t, err)
	assert.Equal(t, []plugin.Dependency{
		{Name: "b", MinVersion: "2.0"},
		{Name: "c"},
		{Name: "d", MinVersion: "1"},
	}, d.Depends)
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(
			rapid.StringMatching(`opt_[a-z0-9]{1,6}`), 1, 12, rapid.ID[string],
		).Draw(t, "names")

		var b strings.Builder
		b.WriteString("# id: ordered\n# config:\n")
		for i, n := range names {
			fmt.Fprintf(&b, "#   - {name: %s, value: %d}\n", n, i)
		}

		d, err := NewReader().Parse([]byte(b.String()), false)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if got := d.OptionNames(); !assert.ObjectsAreEqual(names, got) {
			t.Fatalf("order %v != %v", got, names)
		}
	})
}

// =============================================================================
// Scan Tests
// =============================================================================

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "greeter.py"), greeterSource)
	writeFile(t, filepath.Join(dir, "a", "base.py"), "# id: base\n# version: 1.0\n")
	writeFile(t, filepath.Join(dir, "a", "util.py"), "import os\n")
	writeFile(t, filepath.Join(dir, "a", "broken.py"), "# title: no id\n")
	writeFile(t, filepath.Join(dir, ".cache", "stale.py"), "# id: stale\n")
	writeFile(t, filepath.Join(dir, "README.md"), "# id: readme\n")

	res := NewReader().Scan([]string{"py"}, dir, filepath.Join(dir, "missing"))

	ids := make([]string, len(res.Descriptors))
	for i, d := range res.Descriptors {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"base", "greeter"}, ids, "lexical order, hidden dirs and other extensions skipped")
	assert.Equal(t, []string{filepath.Join(dir, "a", "util.py")}, res.Skipped)
	require.Len(t, res.Errors, 2)
	assert.True(t, errors.Is(res.Errors[0], errors.ErrMetadataMalformed))
	assert.Contains(t, res.Errors[0].Error(), "broken.py")
	assert.Contains(t, res.Errors[1].Error(), "missing")
}

func TestScanAllExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.py"), "# id: one\n")
	writeFile(t, filepath.Join(dir, "two.go"), "// id: two\npackage two\n")

	res := NewReader().Scan(nil, dir)
	require.Len(t, res.Descriptors, 2)
	assert.Empty(t, res.Errors)
}

func TestRegister(t *testing.T) {
	ds := []*plugin.Descriptor{
		{ID: "a", Source: "x/a.py"},
		{ID: "b", Source: "x/b.py"},
		{ID: "a", Source: "y/a.py"},
	}

	reg := plugin.NewRegistry()
	errs := Register(reg, ds, nil)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], errors.ErrDuplicateID))
	assert.Contains(t, errs[0].Error(), "y/a.py")
	assert.Equal(t, []string{"a", "b"}, reg.IDs())

	reg = plugin.NewRegistry()
	assert.Empty(t, Register(reg, ds[:2], []string{"b"}))
	assert.Equal(t, []string{"b"}, reg.IDs())
}

func TestExistingDirs(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, []string{dir}, ExistingDirs([]string{dir, filepath.Join(dir, "nope")}))
}
