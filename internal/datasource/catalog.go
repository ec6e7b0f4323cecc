package datasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshConcurrency bounds RefreshAll when no limit is given.
const DefaultRefreshConcurrency = 4

// Catalog opens connectors for data sources and keeps their cached table
// lists current.
type Catalog struct {
	Store  Store
	Logger *slog.Logger

	// NewConnector overrides the connector registry; used by tests.
	NewConnector func(ds *DataSource, logger *slog.Logger) (connector.Connector, error)
}

// NewCatalog creates a catalog over store.
// If logger is nil, a discard logger is used.
func NewCatalog(store Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{Store: store, Logger: logger}
}

// Open returns a connected connector for ds. The caller must Disconnect it.
func (c *Catalog) Open(ctx context.Context, ds *DataSource) (connector.Connector, error) {
	var (
		conn connector.Connector
		err  error
	)
	if c.NewConnector != nil {
		conn, err = c.NewConnector(ds, c.Logger)
	} else {
		conn, err = connector.New(ds.Config, c.Logger.With(slog.String("data_source", ds.ID)))
	}
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx, ds.Config); err != nil {
		return nil, err
	}
	return conn, nil
}

// OpenSource loads the data source with the given id and opens it.
func (c *Catalog) OpenSource(ctx context.Context, id string) (connector.Connector, error) {
	ds, err := c.Store.GetDataSource(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, ds)
}

// Test probes the data source's connection without keeping it open.
func (c *Catalog) Test(ctx context.Context, id string) (connector.Status, error) {
	ds, err := c.Store.GetDataSource(ctx, id)
	if err != nil {
		return connector.Status{}, err
	}
	var conn connector.Connector
	if c.NewConnector != nil {
		conn, err = c.NewConnector(ds, c.Logger)
	} else {
		conn, err = connector.New(ds.Config, c.Logger)
	}
	if err != nil {
		return connector.StatusOf(err, ""), nil
	}
	return conn.TestConnection(ctx, ds.Config), nil
}

// Refresh re-reads the table list of one data source through its connector
// and writes it to the schema cache.
func (c *Catalog) Refresh(ctx context.Context, id string) (*DataSource, error) {
	ds, err := c.Store.GetDataSource(ctx, id)
	if err != nil {
		return nil, err
	}

	conn, err := c.Open(ctx, ds)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Disconnect() }()

	tables, err := conn.GetTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", id, err)
	}
	if err := c.Store.ReplaceTables(ctx, id, tables); err != nil {
		return nil, fmt.Errorf("failed to cache tables of %s: %w", id, err)
	}

	c.Logger.Info("schema refreshed", slog.String("data_source", id), slog.Int("tables", len(tables)))
	ds.Tables = tables
	return ds, nil
}

// RefreshResult is the outcome of refreshing one data source.
type RefreshResult struct {
	ID     string
	Tables int
	Err    error
}

// RefreshAll refreshes ids with at most limit sources in flight. Each source
// gets its own connector. A failing source does not stop the others; its
// error is reported in its result. Results follow the order of ids.
func (c *Catalog) RefreshAll(ctx context.Context, ids []string, limit int) []RefreshResult {
	if limit <= 0 {
		limit = DefaultRefreshConcurrency
	}

	results := make([]RefreshResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, id := range ids {
		g.Go(func() error {
			results[i].ID = id
			ds, err := c.Refresh(gctx, id)
			if err != nil {
				c.Logger.Warn("schema refresh failed", slog.String("data_source", id), slog.String("error", err.Error()))
				results[i].Err = err
				return nil
			}
			results[i].Tables = len(ds.Tables)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
