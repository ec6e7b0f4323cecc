package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/config"
	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Store    *state.SQLiteStore
	Catalog  *datasource.Catalog
}

// NewCommandContext creates a CommandContext with an open state store whose
// catalog holds every data source declared in the configuration.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutStore(cmd)

	store, err := openStore(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	cc.Store = store
	cc.Catalog = datasource.NewCatalog(store, cc.Logger)

	cleanup := func() {
		_ = store.Close()
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without a state
// store. Useful for commands that only read local files.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store, err := state.OpenAndMigrate(cfg.StatePath, logger)
	if err != nil {
		return nil, err
	}

	// Declared sources are upserted on every start so that secrets, which are
	// never written to disk, are available to this process.
	declared := make(map[string]bool, len(cfg.DataSources))
	for _, decl := range cfg.DataSources {
		declared[decl.ID] = true
		if err := store.UpsertDataSource(ctx, decl.DataSource(cfg.Owner)); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to register data source %s: %w", decl.ID, err)
		}
	}

	// Sources removed from the config are dropped with their cached tables.
	existing, err := store.ListDataSources(ctx, cfg.Owner)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	for _, ds := range existing {
		if declared[ds.ID] {
			continue
		}
		if err := store.DeleteDataSource(ctx, ds.ID); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to remove data source %s: %w", ds.ID, err)
		}
		logger.Debug("removed undeclared data source", slog.String("id", ds.ID))
	}
	logger.Debug("state store ready",
		slog.String("path", cfg.StatePath),
		slog.Int("declared_sources", len(cfg.DataSources)))
	return store, nil
}
