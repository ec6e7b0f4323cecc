package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/spf13/pflag"
)

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// findConfigFile returns explicit, or the first config file found in dir or
// one of its parents.
func findConfigFile(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	for range maxUpwardSearchLevels {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, already absolute, or ":memory:".
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey maps LEAPQUERY_QUERY_MAX_LIMIT to query.max_limit and
// LEAPQUERY_STATE_PATH to state_path.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "query_"); ok {
		return "query." + rest
	}
	return key
}

// Load loads configuration from defaults, the config file, environment
// variables, and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults. Only flags that were explicitly set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	used := findConfigFile(cfgFile, cwd)
	projectRoot := cwd
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
		if abs, err := filepath.Abs(used); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	var flagStatePath string
	if flags != nil {
		if flags.Changed("state") {
			if v, _ := flags.GetString("state"); v != "" && v != ":memory:" {
				flagStatePath, _ = filepath.Abs(v)
			}
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// --state is short for state_path
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	cfg.ProjectRoot = projectRoot

	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}
	cfg.ModelsDir = resolvePathRelativeTo(cfg.ModelsDir, projectRoot)
	cfg.PipelinesDir = resolvePathRelativeTo(cfg.PipelinesDir, projectRoot)

	for i := range cfg.DataSources {
		d := &cfg.DataSources[i]
		expandSourceEnvVars(d)
		if kind, ok := connector.KindOf(d.DataSource("").Config.Type); ok && kind == connector.KindFile {
			d.Config.Path = resolvePathRelativeTo(d.Config.Path, projectRoot)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
// Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSourceEnvVars expands environment variables in a data source's
// connection fields, options and string params.
func expandSourceEnvVars(d *DataSourceConfig) {
	c := &d.Config
	c.Path = expandEnvVars(c.Path)
	c.Host = expandEnvVars(c.Host)
	c.Database = expandEnvVars(c.Database)
	c.Username = expandEnvVars(c.Username)
	c.Password = expandEnvVars(c.Password)
	for k, v := range c.Options {
		c.Options[k] = expandEnvVars(v)
	}
	for k, v := range c.Params {
		if s, ok := v.(string); ok {
			c.Params[k] = expandEnvVars(s)
		}
	}
}
