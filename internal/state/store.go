// Package state persists the data source catalog, cached table lists, and
// pipeline run history in SQLite.
package state

import (
	"context"

	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/internal/transform"
)

// Store is everything the CLI needs from persistent state.
type Store interface {
	datasource.Store
	transform.RunRecorder

	UpsertDataSource(ctx context.Context, ds *datasource.DataSource) error
	DeleteDataSource(ctx context.Context, id string) error
	GetRun(ctx context.Context, id string) (*transform.Run, error)
	ListRuns(ctx context.Context, pipelineName string, limit int) ([]transform.Run, error)
	ListPipelines(ctx context.Context) ([]PipelineStatus, error)
	Close() error
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
