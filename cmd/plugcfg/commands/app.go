package commands

import (
	"os"

	"go.uber.org/zap"

	"github.com/teranos/plugcfg/am"
	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/header"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/resolve"
	"github.com/teranos/plugcfg/shape"
	"github.com/teranos/plugcfg/snapshot"
	"github.com/teranos/plugcfg/version"
)

// globalOptions are the persistent root flags.
type globalOptions struct {
	configFile string
	verbosity  int
	logJSON    bool
}

// App is everything a command needs: host config, discovered plugins and
// the writable store. It is rebuilt for every command invocation.
type App struct {
	Config   *am.Config
	Loader   *am.Loader
	Registry *plugin.Registry
	Store    *layer.Store

	// Problems are scan, registration and dependency failures. They never
	// stop a command; the affected plugins are simply not registered or
	// are reported by "plugins ls" and "lint".
	Problems []error

	logger    *zap.SugaredLogger
	verbosity int
}

// loadHostConfig reads and validates plugcfg's own configuration and sets
// up logging from it.
func (o *globalOptions) loadHostConfig() (*am.Config, *am.Loader, error) {
	var opts []am.LoadOption
	if o.configFile != "" {
		opts = append(opts, am.WithConfigFile(o.configFile))
	}
	loader := am.NewLoader(opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "configuration validation failed")
	}
	if err := logger.Initialize(cfg.Log.JSON || o.logJSON, o.verbosity); err != nil {
		return nil, nil, errors.Wrap(err, "failed to initialize logger")
	}
	logger.Logger.Debugw("Logger initialized", "verbosity", logger.LevelName(o.verbosity))
	return cfg, loader, nil
}

// setup builds the App: host config, plugin scan and registration.
func (o *globalOptions) setup(storeOpts ...layer.StoreOption) (*App, error) {
	cfg, loader, err := o.loadHostConfig()
	if err != nil {
		return nil, err
	}
	app := &App{
		Config: cfg,
		Loader: loader,
		logger:    logger.ComponentLogger("cli"),
		verbosity: o.verbosity,
	}

	reader := header.NewReader(
		header.WithMaxBytes(cfg.HeaderBytes()),
		header.WithStrictKeys(cfg.Plugins.StrictKeys),
		header.WithLogger(logger.ComponentLogger("header")),
	)
	dirs := header.ExistingDirs(cfg.Plugins.Paths)
	if len(dirs) < len(cfg.Plugins.Paths) {
		app.logger.Debugw("Some plugin directories do not exist",
			"configured", cfg.Plugins.Paths,
			"existing", dirs)
	}
	scan := reader.Scan(cfg.Plugins.Extensions, dirs...)
	app.Problems = append(app.Problems, scan.Errors...)

	app.Registry = plugin.NewRegistry(plugin.WithLogger(logger.ComponentLogger("registry")))
	app.Problems = append(app.Problems, header.Register(app.Registry, scan.Descriptors, cfg.Plugins.Enabled)...)

	checker := plugin.NewDependencyChecker(version.APIVersion, logger.ComponentLogger("depcheck"))
	unmet := checker.Check(app.Registry)
	for _, id := range app.Registry.IDs() {
		for _, problem := range unmet[id] {
			app.Problems = append(app.Problems, errors.Wrapf(problem, "plugin %s", id))
		}
	}
	if _, err := checker.LoadOrder(app.Registry); err != nil {
		app.Problems = append(app.Problems, err)
	}

	storeOpts = append([]layer.StoreOption{layer.WithStoreLogger(logger.ComponentLogger("store"))}, storeOpts...)
	app.Store = layer.NewStore(cfg.Store.Path, storeOpts...)
	return app, nil
}

// Stack assembles the layers: read-only files (lowest first), the store,
// the environment and the given overrides.
func (a *App) Stack(overrides []string) (*layer.Stack, error) {
	var layers []*layer.Layer
	priority := layer.PriorityFile
	for _, path := range a.Config.Store.Readonly {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			a.logger.Debugw("Read-only config file not found", logger.FieldFile, path)
			continue
		}
		l, err := layer.LoadFile(path, priority)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
		priority++
	}

	stored, err := a.Store.Layer(priority)
	if err != nil {
		return nil, err
	}
	layers = append(layers, stored)

	env, err := layer.FromEnv(resolve.Paths(a.Registry), a.Config.Env.Prefix)
	if err != nil {
		return nil, err
	}
	layers = append(layers, env)

	if len(overrides) > 0 {
		o, err := layer.FromOverrides(overrides)
		if err != nil {
			return nil, usageError(err)
		}
		layers = append(layers, o)
	}
	stack, err := layer.NewStack(layers...)
	if err != nil {
		return nil, err
	}
	a.traceLayers(stack)
	return stack, nil
}

// traceLayers logs every layer entry at -vvv. Values of secret options are
// redacted.
func (a *App) traceLayers(stack *layer.Stack) {
	if !logger.ShouldLogTrace(a.verbosity) {
		return
	}
	for _, l := range stack.Layers() {
		for _, e := range l.Entries() {
			value := shape.Describe(e.Value)
			if a.isSecret(e.Path) {
				value = "<redacted>"
			}
			a.logger.Debugw("Layer entry",
				logger.FieldLayer, l.Name(),
				logger.FieldOrigin, string(l.Origin()),
				logger.FieldPriority, l.Priority(),
				logger.FieldPath, e.Path,
				"value", value)
		}
	}
}

func (a *App) isSecret(path string) bool {
	id, name, ok := shape.SplitPath(path)
	if !ok {
		return false
	}
	d, err := a.Registry.Get(id)
	if err != nil {
		return false
	}
	o, ok := d.Option(name)
	return ok && o.Secret
}

// Resolve builds the stack and resolves it into a snapshot.
func (a *App) Resolve(overrides []string) (*snapshot.Snapshot, error) {
	stack, err := a.Stack(overrides)
	if err != nil {
		return nil, err
	}
	r := resolve.New(
		resolve.WithLogger(logger.ComponentLogger("resolve")),
		resolve.WithSecrets(a.Config.SecretProvider()),
	)
	return r.Resolve(a.Registry, stack)
}

// option finds the declaration behind a "<plugin>.<option>" path.
func (a *App) option(path string) (*plugin.Descriptor, plugin.OptionSpec, error) {
	id, name, ok := shape.SplitPath(path)
	if !ok {
		return nil, plugin.OptionSpec{}, usagef("invalid option path %q, expected <plugin>.<option>", path)
	}
	d, err := a.Registry.Get(id)
	if err != nil {
		return nil, plugin.OptionSpec{}, errors.WithHint(
			errors.Mark(err, errors.ErrUnknownPlugin),
			"run \"plugcfg plugins ls\" to list discovered plugins")
	}
	o, ok := d.Option(name)
	if !ok {
		return nil, plugin.OptionSpec{}, errors.WithHintf(
			errors.Wrapf(errors.ErrUnknownOption, "%s", path),
			"run \"plugcfg plugins inspect %s\" to list its options", id)
	}
	return d, o, nil
}
