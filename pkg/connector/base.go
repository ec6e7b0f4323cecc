package connector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// BaseSQLConnector provides common database/sql functionality for connectors.
// Embed this struct in concrete connector implementations to get standard
// Disconnect, ExecuteQuery and result scanning.
type BaseSQLConnector struct {
	DB     *sql.DB
	Cfg    core.ConnectorConfig
	Logger *slog.Logger
	// Types normalizes the driver's column type names.
	Types core.TypeMap
}

// Disconnect closes the database connection.
func (b *BaseSQLConnector) Disconnect() error {
	if b.DB == nil {
		return nil
	}
	if b.Logger != nil {
		b.Logger.Debug("closing database connection")
	}
	err := b.DB.Close()
	b.DB = nil
	return err
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLConnector) IsConnected() bool {
	return b.DB != nil
}

// ExecuteQuery runs query with positional args and returns the result table.
func (b *BaseSQLConnector) ExecuteQuery(ctx context.Context, query string, args ...any) (*table.Table, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	if b.Logger != nil {
		b.Logger.Debug("executing query", slog.Int("args", len(args)))
	}
	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return ScanTable(rows, b.Types)
}

// QueryCount runs a single-value numeric query and returns nil on any
// failure. Used for best-effort row counts and sizes.
func (b *BaseSQLConnector) QueryCount(ctx context.Context, query string, args ...any) *int64 {
	if b.DB == nil {
		return nil
	}
	var n sql.NullInt64
	if err := b.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		if b.Logger != nil {
			b.Logger.Debug("best-effort metadata query failed", slog.String("error", err.Error()))
		}
		return nil
	}
	if !n.Valid {
		return nil
	}
	return core.Int64Ptr(n.Int64)
}

// ScanTable drains rows into a Table. Column types come from the driver's
// type names normalized through types; textual driver values are converted
// to the Go type of their column.
func ScanTable(rows *sql.Rows, types core.TypeMap) (*table.Table, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	cols := make([]table.Column, len(colTypes))
	for i, ct := range colTypes {
		cols[i] = table.Column{Name: ct.Name()}
		if types != nil && ct.DatabaseTypeName() != "" {
			cols[i].Type = types.Normalize(ct.DatabaseTypeName())
		}
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			v = table.NormalizeValue(v)
			if s, ok := v.(string); ok && cols[i].Type != "" && cols[i].Type != core.TypeString {
				v = table.ConvertString(s, cols[i].Type)
			}
			values[i] = v
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return table.New(cols, data)
}

// Probe connects c with cfg, runs check, and always disconnects.
// It is the shared body of TestConnection implementations.
func Probe(ctx context.Context, c Connector, cfg core.ConnectorConfig, okMessage string, check func(context.Context) error) Status {
	if err := c.Connect(ctx, cfg); err != nil {
		return StatusOf(err, "")
	}
	defer func() { _ = c.Disconnect() }()

	if check != nil {
		if err := check(ctx); err != nil {
			return StatusOf(err, "")
		}
	}
	return StatusOf(nil, okMessage)
}
