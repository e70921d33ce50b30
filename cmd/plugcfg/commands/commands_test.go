package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/header"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/resolve"
	"github.com/teranos/plugcfg/snapshot"
)

func TestMain(m *testing.M) {
	pterm.DisableColor()
	os.Exit(m.Run())
}

const greeterPlugin = `#!/usr/bin/env python3
# id: greeter
# title: Greeter
# version: 1.2.0
# config:
#   - {name: who, type: string, value: world, description: Whom to greet}
#   - {name: retries, value: 3}
#   - {name: token, type: string?, secret: true}
#
# Greets whoever is configured.

print("hello")
`

const dbPlugin = `// id: db
// version: 0.3.0
// config: [{name: url, type: string, required: true}, {name: port, type: int, value: 5432}]

package db
`

// workspace creates a project directory with the given plugin files and
// makes it the working directory, isolated from the user's own config.
func workspace(t *testing.T, plugins map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plugins"), 0o755))
	for name, src := range plugins {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "plugins", name), []byte(src), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "am.toml"), []byte(`
[plugins]
paths = ["plugins"]

[store]
path = "plugcfg.toml"
`), 0o644))
	return dir
}

type result struct {
	stdout string
	stderr string
	code   int
}

func run(t *testing.T, args ...string) result {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.Execute()
	if err != nil {
		ReportError(&errOut, err)
	}
	return result{stdout: out.String(), stderr: errOut.String(), code: ExitCode(err)}
}

// =============================================================================
// Resolve Command Tests
// =============================================================================

func TestShowDefaults(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin})

	res := run(t, "show", "--format", "yaml")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "greeter:")
	assert.Contains(t, res.stdout, "who: world")
	assert.Contains(t, res.stdout, "retries: 3")

	res = run(t, "show", "--format", "json", "--plugin", "greeter")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"who": "world"`)

	res = run(t, "show", "--format", "xml")
	assert.Equal(t, ExitUsage, res.code)
}

func TestGetLayers(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin})

	res := run(t, "get", "greeter.who")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "world\n", res.stdout)

	t.Setenv("GREETER_WHO", "moon")
	t.Setenv("GREETER_RETRIES", "7")
	assert.Equal(t, "moon\n", run(t, "get", "greeter.who").stdout)
	assert.Equal(t, "7\n", run(t, "get", "greeter.retries").stdout)

	res = run(t, "get", "greeter.who", "--set", "greeter.who=mars")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "mars\n", res.stdout)
}

func TestResolveFailureExitCode(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin, "db.go": dbPlugin})

	res := run(t, "show")
	assert.Equal(t, ExitResolve, res.code)
	assert.Contains(t, res.stderr, "db.url: missing required")
	assert.Empty(t, res.stdout)

	t.Setenv("DB_URL", "postgres://localhost/app")
	res = run(t, "get", "db.port")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "5432\n", res.stdout)
}

func TestSetAndReset(t *testing.T) {
	dir := workspace(t, map[string]string{"greeter.py": greeterPlugin})

	res := run(t, "set", "greeter.retries", "5")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Set greeter.retries = 5")

	data, err := os.ReadFile(filepath.Join(dir, "plugcfg.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema_version = 1")
	assert.Contains(t, string(data), "retries = 5")

	assert.Equal(t, "5\n", run(t, "get", "greeter.retries").stdout)

	res = run(t, "set", "greeter.retries", "abc")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "greeter.retries")
	assert.Equal(t, "5\n", run(t, "get", "greeter.retries").stdout, "a rejected value is not stored")

	res = run(t, "reset", "greeter.retries")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Removed greeter.retries")
	assert.Equal(t, "3\n", run(t, "get", "greeter.retries").stdout)

	res = run(t, "reset", "greeter.retries")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "is not set")
}

func TestSetWarnsWhenOverridden(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin})
	t.Setenv("GREETER_WHO", "moon")

	res := run(t, "set", "greeter.who", "mars")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "overridden by the environment layer")
}

func TestSecrets(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin})

	res := run(t, "set", "greeter.token", "secret=tok")
	require.Equal(t, ExitOK, res.code, res.stderr)

	assert.Equal(t, "secret=tok\n", run(t, "get", "greeter.token").stdout)

	res = run(t, "get", "greeter.token", "--reveal")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "secret unavailable")

	t.Setenv("PLUGCFG_SECRET_TOK", "hunter2")
	res = run(t, "get", "greeter.token", "--reveal")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "hunter2\n", res.stdout)

	show := run(t, "show")
	assert.NotContains(t, show.stdout, "hunter2")
}

func TestWhere(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin})
	require.Equal(t, ExitOK, run(t, "set", "greeter.who", "mars").code)

	res := run(t, "where", "greeter")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "greeter.who")
	assert.Contains(t, res.stdout, "plugcfg.toml")
	assert.Contains(t, res.stdout, "declared default")

	res = run(t, "where", "greeter.token")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "unset")
	assert.NotContains(t, res.stdout, "greeter.who")

	assert.Equal(t, ExitFailure, run(t, "where", "ghost").code)
}

// =============================================================================
// Usage Tests
// =============================================================================

func TestUsageErrors(t *testing.T) {
	workspace(t, map[string]string{"greeter.py": greeterPlugin})

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing argument", []string{"get"}, ExitUsage},
		{"extra argument", []string{"set", "greeter.who", "a", "b"}, ExitUsage},
		{"unknown command", []string{"frobnicate"}, ExitUsage},
		{"unknown flag", []string{"show", "--nope"}, ExitUsage},
		{"path without option", []string{"set", "greeter", "x"}, ExitUsage},
		{"bad override", []string{"show", "--set", "greeter.who"}, ExitUsage},
		{"unknown plugin", []string{"set", "ghost.x", "1"}, ExitFailure},
		{"unknown option", []string{"get", "greeter.nope"}, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.args...)
			assert.Equal(t, tt.code, res.code, res.stderr)
		})
	}

	res := run(t, "set", "ghost.x", "1")
	assert.Contains(t, res.stderr, "Hint: run \"plugcfg plugins ls\"")
}

// =============================================================================
// Plugin Command Tests
// =============================================================================

func TestPluginsCommands(t *testing.T) {
	workspace(t, map[string]string{
		"greeter.py": greeterPlugin,
		"broken.py":  "# id: Not Valid!\n",
		"notes.txt":  "no header here\n",
	})

	res := run(t, "plugins", "ls")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "greeter")
	assert.Contains(t, res.stdout, "1.2.0")
	assert.Contains(t, res.stdout, "broken.py", "scan problems are listed")

	res = run(t, "plugins", "inspect", "greeter")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Greets whoever is configured.")
	assert.Contains(t, res.stdout, "Whom to greet")
	assert.Contains(t, res.stdout, "secret")

	res = run(t, "schema", "greeter")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"$schema": "http://json-schema.org/draft-07/schema#"`)
	assert.Contains(t, res.stdout, `"writeOnly": true`)

	assert.Equal(t, ExitFailure, run(t, "schema", "ghost").code)
}

func TestLint(t *testing.T) {
	dir := workspace(t, map[string]string{"greeter.py": greeterPlugin})

	res := run(t, "lint")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "no problems found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugcfg.toml"), []byte(`
schema_version = 1

[greeter]
who = "mars"

[ghost]
x = 1
`), 0o644))
	res = run(t, "lint")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "ghost: unknown plugin")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.toml"), []byte("[greeter]\nretries = \"many\"\n"), 0o644))
	res = run(t, "lint", "bad.toml")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stdout, "greeter.retries")
}

// =============================================================================
// Host Config Tests
// =============================================================================

func TestAmCommands(t *testing.T) {
	workspace(t, nil)

	res := run(t, "am", "validate")
	require.Equal(t, ExitOK, res.code, res.stderr)

	res = run(t, "am", "show", "--format", "json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"store"`)

	res = run(t, "am", "where")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "am.toml (loaded)")
	assert.Contains(t, res.stdout, "store.path")

	t.Setenv("PLUGCFG_STORE_PATH", " ")
	res = run(t, "am", "validate")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "store.path cannot be empty")
}

func TestVersion(t *testing.T) {
	res := run(t, "version")
	require.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, "plugcfg")
	assert.Contains(t, res.stdout, "Plugin API")

	res = run(t, "version", "--json")
	require.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.stdout, `"api"`)
}

func resolveGreeter(t *testing.T, entries ...layer.Entry) *snapshot.Snapshot {
	t.Helper()
	d, err := header.NewReader().Parse([]byte(greeterPlugin), false)
	require.NoError(t, err)
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Add(d))

	l, err := layer.New(layer.OriginOverride, layer.PriorityOverride, "test", entries)
	require.NoError(t, err)
	stack, err := layer.NewStack(l)
	require.NoError(t, err)
	snap, err := resolve.New().Resolve(reg, stack)
	require.NoError(t, err)
	return snap
}

func TestChangedPaths(t *testing.T) {
	base := resolveGreeter(t)
	changed := resolveGreeter(t,
		layer.Entry{Path: "greeter.who", Value: "mars"},
		layer.Entry{Path: "greeter.retries", Value: 4},
	)

	assert.Empty(t, ChangedPaths(base, resolveGreeter(t)))
	assert.Equal(t, []string{"greeter.retries", "greeter.who"}, ChangedPaths(base, changed))
	assert.Equal(t, []string{"greeter.retries", "greeter.token", "greeter.who"}, ChangedPaths(nil, base))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"usage", usagef("bad %s", "path"), ExitUsage},
		{"wrapped usage", errors.Wrap(usagef("bad"), "context"), ExitUsage},
		{"resolve", &errors.ResolveError{Diagnostics: errors.FieldErrors{errors.NewFieldError("db.url", errors.ErrMissingRequired)}}, ExitResolve},
		{"cobra unknown command", errors.New(`unknown command "x" for "plugcfg"`), ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	ReportError(&buf, &errors.ResolveError{Diagnostics: errors.FieldErrors{
		errors.NewFieldError("db.url", errors.ErrMissingRequired),
	}})
	assert.Equal(t, "resolve failed with 1 problem(s):\n  db.url: missing required\n", buf.String())

	buf.Reset()
	ReportError(&buf, errors.WithHint(errors.New("no store"), "run plugcfg am where"))
	assert.Equal(t, "Error: no store\nHint: run plugcfg am where\n", buf.String())
}

func TestTraceLayers(t *testing.T) {
	d, err := header.NewReader().Parse([]byte(greeterPlugin), false)
	require.NoError(t, err)
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Add(d))

	l, err := layer.New(layer.OriginOverride, layer.PriorityOverride, "test", []layer.Entry{
		{Path: "greeter.who", Value: "mars"},
		{Path: "greeter.token", Value: "hunter2"},
	})
	require.NoError(t, err)
	stack, err := layer.NewStack(l)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	app := &App{Registry: reg, logger: zap.New(core).Sugar(), verbosity: logger.VerbosityDebug}
	app.traceLayers(stack)
	assert.Zero(t, logs.Len(), "layer contents are only logged at -vvv")

	app.verbosity = logger.VerbosityTrace
	app.traceLayers(stack)
	require.Equal(t, 2, logs.Len())

	values := make(map[string]any)
	for _, entry := range logs.All() {
		fields := entry.ContextMap()
		assert.Equal(t, "test", fields[logger.FieldLayer])
		values[fields[logger.FieldPath].(string)] = fields["value"]
	}
	assert.Equal(t, `"mars"`, values["greeter.who"])
	assert.Equal(t, "<redacted>", values["greeter.token"])
}
