// Package config loads leapquery configuration: defaults, then
// leapquery.yaml, then LEAPQUERY_ environment variables, then explicitly set
// command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/internal/query"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Config holds all configuration options.
type Config struct {
	StatePath          string             `koanf:"state_path"`
	Owner              string             `koanf:"owner"`
	OutputFormat       string             `koanf:"output"`
	Verbose            bool               `koanf:"verbose"`
	LogLevel           string             `koanf:"log_level"`
	ModelsDir          string             `koanf:"models_dir"`
	PipelinesDir       string             `koanf:"pipelines_dir"`
	PreviewLimit       int                `koanf:"preview_limit"`
	RefreshConcurrency int                `koanf:"refresh_concurrency"`
	Query              QueryConfig        `koanf:"query"`
	DataSources        []DataSourceConfig `koanf:"data_sources"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// QueryConfig tunes semantic query execution.
type QueryConfig struct {
	DefaultLimit int    `koanf:"default_limit"`
	MaxLimit     int    `koanf:"max_limit"`
	ParamMode    string `koanf:"param_mode"`
}

// DataSourceConfig declares a data source.
type DataSourceConfig struct {
	ID        string               `koanf:"id"`
	Name      string               `koanf:"name"`
	Type      string               `koanf:"type"`
	Owner     string               `koanf:"owner"`
	Certified bool                 `koanf:"certified"`
	Config    core.ConnectorConfig `koanf:"config"`
}

// Limits returns the request limits.
func (q QueryConfig) Limits() semantic.Limits {
	return semantic.Limits{Default: q.DefaultLimit, Max: q.MaxLimit}
}

// Mode returns the parsed parameter mode.
func (q QueryConfig) Mode() (query.ParamMode, error) {
	return query.ParseParamMode(q.ParamMode)
}

// Level returns the slog level, debug when verbose.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// DataSource converts a declaration into a catalog record. Sources without
// an owner belong to defaultOwner.
func (d DataSourceConfig) DataSource(defaultOwner string) *datasource.DataSource {
	cfg := d.Config
	if cfg.Type == "" {
		cfg.Type = d.Type
	}
	owner := d.Owner
	if owner == "" {
		owner = defaultOwner
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}
	return &datasource.DataSource{
		ID:        d.ID,
		Name:      name,
		Owner:     owner,
		Config:    cfg,
		Certified: d.Certified,
	}
}

// Validate reports every problem in the configuration.
func (c *Config) Validate() error {
	var problems []string

	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json", "csv":
	default:
		problems = append(problems, fmt.Sprintf("unknown output format %q", c.OutputFormat))
	}
	if _, err := c.Query.Mode(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Query.MaxLimit <= 0 {
		problems = append(problems, "query.max_limit must be positive")
	}
	if c.Query.DefaultLimit > c.Query.MaxLimit {
		problems = append(problems, fmt.Sprintf("query.default_limit (%d) exceeds query.max_limit (%d)", c.Query.DefaultLimit, c.Query.MaxLimit))
	}

	seen := make(map[string]bool)
	for i, d := range c.DataSources {
		label := d.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("data source %s: id is required", label))
		} else if seen[d.ID] {
			problems = append(problems, fmt.Sprintf("data source %s: duplicate id", label))
		}
		seen[d.ID] = true

		typ := d.Config.Type
		if typ == "" {
			typ = d.Type
		}
		switch {
		case typ == "":
			problems = append(problems, fmt.Sprintf("data source %s: type is required", label))
		case !connector.IsRegistered(strings.ToLower(typ)):
			problems = append(problems, fmt.Sprintf("data source %s: unknown connector type %q (available: %s)",
				label, typ, strings.Join(connector.List(), ", ")))
		}
	}

	if len(problems) > 0 {
		return core.ErrValidationProblems("invalid configuration", problems)
	}
	return nil
}
