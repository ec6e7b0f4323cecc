package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// Opener returns a connected connector for a data source.
type Opener interface {
	Open(ctx context.Context, ds *datasource.DataSource) (connector.Connector, error)
}

// Router resolves which data source hosts an entity's table and executes
// compiled queries there.
type Router struct {
	Sources datasource.Lister
	Opener  Opener
	Mode    ParamMode
	Limits  semantic.Limits
	Logger  *slog.Logger
}

// NewRouter creates a router binding parameters by default.
// If logger is nil, a discard logger is used.
func NewRouter(sources datasource.Lister, opener Opener, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		Sources: sources,
		Opener:  opener,
		Mode:    ParamBind,
		Limits:  semantic.DefaultLimits(),
		Logger:  logger,
	}
}

// FindDataSource returns the owner's preferred data source whose cached
// table list contains table: certified sources first, then the newest.
func (r *Router) FindDataSource(ctx context.Context, tableName, owner string) (*datasource.DataSource, error) {
	sources, err := r.Sources.ListDataSources(ctx, owner)
	if err != nil {
		return nil, err
	}
	datasource.SortByPreference(sources)

	for i := range sources {
		if sources[i].HasTable(tableName) {
			return &sources[i], nil
		}
	}
	return nil, core.ErrNotFound("No data source found containing table '%s'", tableName)
}

// Execute runs q against ds. The connector is released on every path.
func (r *Router) Execute(ctx context.Context, q *Compiled, ds *datasource.DataSource) (*table.Table, error) {
	conn, err := r.Opener.Open(ctx, ds)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Disconnect() }()

	var (
		text = q.SQL
		args []any
	)
	if r.Mode == ParamSubstitute {
		text = Substitute(q.SQL, q.Params)
	} else {
		text, args, err = Bind(q.SQL, q.Params, conn.BindStyle())
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := conn.ExecuteQuery(ctx, text, args...)
	if err != nil {
		return nil, core.ErrExecution(err, "query execution failed")
	}

	r.Logger.Debug("query executed",
		slog.String("data_source", ds.ID),
		slog.String("mode", string(r.Mode)),
		slog.Int("rows", result.Len()),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Result is the response envelope of a semantic query.
type Result struct {
	Columns      []string         `json:"columns"`
	Data         []map[string]any `json:"data"`
	RowCount     int              `json:"row_count"`
	GeneratedSQL string           `json:"generated_sql"`
	EntityName   string           `json:"entity_name"`
	DataSource   string           `json:"data_source"`

	Table *table.Table `json:"-"`
}

// Query validates req, compiles it, resolves the hosting data source for
// owner and executes it.
func (r *Router) Query(ctx context.Context, e *semantic.Entity, req semantic.QueryRequest, owner string) (*Result, error) {
	if err := req.Validate(e, r.Limits); err != nil {
		return nil, err
	}
	compiled, err := Compile(e, req)
	if err != nil {
		return nil, err
	}
	ds, err := r.FindDataSource(ctx, e.PrimaryTable, owner)
	if err != nil {
		return nil, err
	}
	data, err := r.Execute(ctx, compiled, ds)
	if err != nil {
		return nil, err
	}

	return &Result{
		Columns:      data.ColumnNames(),
		Data:         data.Records(),
		RowCount:     data.Len(),
		GeneratedSQL: compiled.SQL,
		EntityName:   e.Name,
		DataSource:   ds.ID,
		Table:        data,
	}, nil
}
