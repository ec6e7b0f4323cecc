package config

import (
	"context"
	"log/slog"
)

type (
	loggerKey struct{}
	configKey struct{}
)

// WithLogger stores logger on ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig stores cfg on ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the config from ctx, or the defaults when none was
// stored.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return &Config{
		StatePath:          DefaultStateFile,
		ModelsDir:          DefaultModelsDir,
		PipelinesDir:       DefaultPipelinesDir,
		OutputFormat:       DefaultOutput,
		LogLevel:           DefaultLogLevel,
		PreviewLimit:       DefaultPreviewLimit,
		RefreshConcurrency: DefaultRefreshConcurrency,
		Query: QueryConfig{
			DefaultLimit: DefaultQueryLimit,
			MaxLimit:     DefaultMaxQueryLimit,
			ParamMode:    DefaultParamMode,
		},
	}
}
