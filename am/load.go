package am

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/teranos/plugcfg/errors"
)

// DefaultSystemFile is the lowest-precedence config file.
const DefaultSystemFile = "/etc/plugcfg/am.toml"

// ProjectFile is the name searched for from the working directory upward.
const ProjectFile = "am.toml"

// Loader reads the configuration cascade. Each Load starts from scratch;
// nothing is cached between calls or shared between loaders.
type Loader struct {
	systemFile string
	homeDir    string
	workDir    string
	configFile string

	v       *viper.Viper
	sources map[string]SourceInfo
	checked []CheckedFile
}

// LoadOption configures a Loader.
type LoadOption func(*Loader)

// WithSystemFile replaces /etc/plugcfg/am.toml.
func WithSystemFile(path string) LoadOption {
	return func(l *Loader) { l.systemFile = path }
}

// WithHomeDir sets the directory holding .plugcfg/am.toml.
func WithHomeDir(dir string) LoadOption {
	return func(l *Loader) { l.homeDir = dir }
}

// WithWorkDir sets where the project search starts.
func WithWorkDir(dir string) LoadOption {
	return func(l *Loader) { l.workDir = dir }
}

// WithConfigFile adds an explicit file above the project file. Unlike the
// cascade files it must exist.
func WithConfigFile(path string) LoadOption {
	return func(l *Loader) { l.configFile = path }
}

// NewLoader creates a Loader for the standard cascade.
func NewLoader(opts ...LoadOption) *Loader {
	l := &Loader{systemFile: DefaultSystemFile}
	l.homeDir, _ = os.UserHomeDir()
	l.workDir, _ = os.Getwd()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the plugcfg configuration using Viper
func Load(opts ...LoadOption) (*Config, error) {
	return NewLoader(opts...).Load()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

type cascadeFile struct {
	source   ConfigSource
	path     string
	required bool
}

// cascade lists config files lowest precedence first.
func (l *Loader) cascade() []cascadeFile {
	var files []cascadeFile
	if l.systemFile != "" {
		files = append(files, cascadeFile{source: SourceSystem, path: l.systemFile})
	}
	if l.homeDir != "" {
		files = append(files, cascadeFile{source: SourceUser, path: filepath.Join(l.homeDir, ".plugcfg", "am.toml")})
	}
	if project := findProjectConfig(l.workDir); project != "" {
		files = append(files, cascadeFile{source: SourceProject, path: project})
	}
	if l.configFile != "" {
		files = append(files, cascadeFile{source: SourceExplicit, path: l.configFile, required: true})
	}
	return files
}

// Load merges defaults, config files and PLUGCFG_* variables, in that order
// of precedence, and records where each key came from.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	BindEnvVars(v)
	SetDefaults(v)

	sources := make(map[string]SourceInfo)
	var checked []CheckedFile
	for _, f := range l.cascade() {
		status := CheckedFile{Source: f.source, Path: f.path}
		if _, err := os.Stat(f.path); err != nil {
			if f.required {
				return nil, errors.Wrapf(err, "failed to read config file %s", f.path)
			}
			checked = append(checked, status)
			continue
		}

		fileViper := viper.New()
		fileViper.SetConfigFile(f.path)
		fileViper.SetConfigType("toml")
		if err := fileViper.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", f.path)
		}
		// merged at config level so environment variables still win
		if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
			return nil, errors.Wrapf(err, "failed to merge config file %s", f.path)
		}
		for _, key := range fileViper.AllKeys() {
			sources[key] = SourceInfo{Source: f.source, Path: f.path}
		}
		status.Loaded = true
		checked = append(checked, status)
	}

	for _, key := range v.AllKeys() {
		name := EnvVarName(key)
		if val, ok := os.LookupEnv(name); ok && val != "" {
			sources[key] = SourceInfo{Source: SourceEnvironment, Path: name}
		}
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	l.v, l.sources, l.checked = v, sources, checked
	return cfg, nil
}

// Viper returns the instance behind the last Load, or nil before it.
func (l *Loader) Viper() *viper.Viper { return l.v }

// findProjectConfig searches for am.toml by walking up the directory tree
// from dir. Returns the path to the first file found, or "".
func findProjectConfig(dir string) string {
	if dir == "" {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}
