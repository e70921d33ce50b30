// Package header reads plugin descriptors from the comment block at the top
// of a plugin source file.
//
// A header is a contiguous run of "#" or "//" comment lines:
//
//	#!/usr/bin/env python3
//	# id: greeter
//	# title: Greeter
//	# version: 1.2
//	# depends: base "logging>=1.0"
//	# config:
//	#   - {name: who, type: string, value: world, description: Whom to greet}
//	#   - {name: mode, select: [loud, quiet], value: quiet}
//	# Greets whoever is configured.
//
// Lines of the form "key: value" set descriptor fields; indented lines
// continue the previous key; any other comment line is documentation.
package header

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/schema"
)

// DefaultMaxBytes bounds how much of a file is inspected for a header.
const DefaultMaxBytes = 64 * 1024

var (
	keyLine    = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*):(?:\s+(.*))?$`)
	codingLine = regexp.MustCompile(`^[ \t\f]*(?:#|//).*?coding[:=][ \t]*[-\w.]+`)
	markers    = []string{"//", "#"}
	recognized = map[string]bool{"id": true, "title": true, "version": true, "category": true, "type": true, "api": true, "priority": true, "depends": true, "config": true}
)

// FileReader yields up to n leading bytes of a file.
type FileReader interface {
	ReadPrefix(path string, n int) ([]byte, error)
}

// OSFileReader reads from the local filesystem.
type OSFileReader struct{}

// ReadPrefix reads at most n bytes from the start of path.
func (OSFileReader) ReadPrefix(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, int64(n)))
}

// Reader parses plugin headers.
type Reader struct {
	files    FileReader
	maxBytes int
	strict   bool
	logger   *zap.SugaredLogger
}

// Option configures a Reader.
type Option func(*Reader)

// WithFileReader replaces the filesystem collaborator.
func WithFileReader(fr FileReader) Option {
	return func(r *Reader) { r.files = fr }
}

// WithMaxBytes sets the header prefix bound.
func WithMaxBytes(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithStrictKeys makes unknown header and option keys fail with
// ErrMetadataMalformed instead of logging a warning.
func WithStrictKeys(strict bool) Option {
	return func(r *Reader) { r.strict = strict }
}

// WithLogger sets the reader's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a header reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		files:    OSFileReader{},
		maxBytes: DefaultMaxBytes,
		logger:   logger.ComponentLogger("header"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read parses the header of the file at path.
// Fails with ErrMetadataMissing when no "key: value" header line exists and
// with ErrMetadataMalformed when a recognized key does not coerce.
func (r *Reader) Read(path string) (*plugin.Descriptor, error) {
	data, err := r.files.ReadPrefix(path, r.maxBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	d, err := r.Parse(data, len(data) >= r.maxBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	d.Source = path
	return d, nil
}

// Parse parses a header from the leading bytes of a file. truncated drops
// the final partial line.
func (r *Reader) Parse(data []byte, truncated bool) (*plugin.Descriptor, error) {
	if truncated {
		if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
			data = data[:i]
		}
	}
	block := headerBlock(strings.Split(string(data), "\n"))

	var (
		doc     []string
		keys    []string
		values  = make(map[string]string)
		current string
	)
	for _, line := range block {
		if current != "" && line != "" && (line[0] == ' ' || line[0] == '\t') {
			values[current] += "\n" + line
			continue
		}
		if m := keyLine.FindStringSubmatch(line); m != nil {
			key := strings.ToLower(m[1])
			if _, dup := values[key]; dup {
				return nil, errors.Wrapf(errors.ErrMetadataMalformed, "duplicate header key %q", key)
			}
			keys = append(keys, key)
			values[key] = m[2]
			current = key
			continue
		}
		current = ""
		doc = append(doc, line)
	}
	if len(keys) == 0 {
		return nil, errors.WithHint(errors.ErrMetadataMissing, "a plugin header starts with a comment line such as \"# id: <plugin-id>\"")
	}

	d := &plugin.Descriptor{Priority: plugin.PriorityOptional, Doc: strings.TrimSpace(strings.Join(doc, "\n"))}
	for _, key := range keys {
		value := headerValue(values[key])
		if !recognized[key] {
			if r.strict {
				return nil, errors.Wrapf(errors.ErrMetadataMalformed, "unknown header key %q", key)
			}
			if d.Extra == nil {
				d.Extra = make(map[string]string)
			}
			d.Extra[key] = value
			r.logger.Warnw("Unknown header key retained", logger.FieldPath, key)
			continue
		}
		if err := r.apply(d, key, value); err != nil {
			return nil, errors.Wrapf(errors.Mark(err, errors.ErrMetadataMalformed), "header key %q", key)
		}
	}
	if d.ID == "" {
		return nil, errors.Wrap(errors.ErrMetadataMalformed, "missing id")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if _, err := schema.Compile(d.Record()); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrMetadataMalformed), "plugin %q options", d.ID)
	}

	r.logger.Debugw("Parsed plugin header",
		logger.FieldPlugin, d.ID,
		logger.FieldCount, len(d.Options))
	return d, nil
}

func (r *Reader) apply(d *plugin.Descriptor, key, value string) error {
	switch key {
	case "id":
		d.ID = value
	case "title":
		d.Title = value
	case "version":
		if !plugin.ValidVersion(value) {
			return errors.Newf("version %q is not dotted numeric", value)
		}
		d.Version = value
	case "category":
		d.Category = value
	case "type":
		d.Type = value
	case "api":
		d.API = value
	case "priority":
		p, err := plugin.ParsePriority(value)
		if err != nil {
			return err
		}
		d.Priority = p
	case "depends":
		deps, err := parseDepends(value)
		if err != nil {
			return err
		}
		d.Depends = deps
	case "config":
		opts, err := r.parseConfig(value)
		if err != nil {
			return err
		}
		d.Options = opts
	}
	return nil
}

// headerValue trims a single-line value. A value with continuation lines
// keeps their relative indentation, with the shared indent removed, so block
// YAML such as an indented "- {...}" sequence stays well formed.
func headerValue(raw string) string {
	lines := strings.Split(raw, "\n")
	if len(lines) == 1 {
		return strings.TrimSpace(raw)
	}
	indent := -1
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}

	var out []string
	if first := strings.TrimSpace(lines[0]); first != "" {
		out = append(out, first)
	}
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, strings.TrimRight(l[indent:], " \t"))
	}
	return strings.Join(out, "\n")
}

// headerBlock returns the comment contents of the leading comment run, with
// the marker and its single following space removed. A shebang on line one
// and an encoding declaration on lines one or two are skipped.
func headerBlock(lines []string) []string {
	var (
		out    []string
		marker string
	)
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if i == 0 && strings.HasPrefix(line, "#!") {
			continue
		}
		if i < 2 && codingLine.MatchString(line) {
			continue
		}
		if marker == "" {
			for _, m := range markers {
				if strings.HasPrefix(line, m) {
					marker = m
					break
				}
			}
			if marker == "" {
				break
			}
		}
		if !strings.HasPrefix(line, marker) {
			break
		}
		rest := strings.TrimPrefix(line, marker)
		switch {
		case rest == "":
			out = append(out, "")
		case rest[0] == ' ':
			out = append(out, rest[1:])
		}
		// other comment lines, such as "//go:build", carry no header content
	}
	return out
}
