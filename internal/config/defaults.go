package config

// Default configuration values.
const (
	DefaultStateFile          = ".leapquery/state.db"
	DefaultModelsDir          = "models"
	DefaultPipelinesDir       = "pipelines"
	DefaultOutput             = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel           = "info"
	DefaultPreviewLimit       = 100
	DefaultRefreshConcurrency = 4
	DefaultQueryLimit         = 1000
	DefaultMaxQueryLimit      = 10000
	DefaultParamMode          = "bind"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "leapquery.yaml"
	ConfigFileNameAlt = "leapquery.yml"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "LEAPQUERY_"

func defaults() map[string]any {
	return map[string]any{
		"state_path":          DefaultStateFile,
		"models_dir":          DefaultModelsDir,
		"pipelines_dir":       DefaultPipelinesDir,
		"output":              DefaultOutput,
		"verbose":             false,
		"log_level":           DefaultLogLevel,
		"preview_limit":       DefaultPreviewLimit,
		"refresh_concurrency": DefaultRefreshConcurrency,
		"query.default_limit": DefaultQueryLimit,
		"query.max_limit":     DefaultMaxQueryLimit,
		"query.param_mode":    DefaultParamMode,
	}
}
