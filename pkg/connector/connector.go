// Package connector defines the uniform capability surface implemented once
// per storage backend, plus the registry that maps backend names to
// implementations.
//
// Concrete connectors live in pkg/connectors/ subdirectories and register
// themselves from init(). Import them with a blank identifier:
//
//	import _ "github.com/leapstack-labs/leapquery/pkg/connectors/postgres"
package connector

import (
	"context"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// Connector is implemented by every storage backend.
//
// A connector instance belongs to one logical execution. Callers must call
// Connect before use and Disconnect on every exit path.
type Connector interface {
	// Connect opens the backend described by cfg. A failure is always a
	// *core.ConnectionError.
	Connect(ctx context.Context, cfg core.ConnectorConfig) error

	// Disconnect releases the backend. It is safe to call more than once.
	Disconnect() error

	// TestConnection connects with cfg, checks the backend answers, and
	// disconnects. Failures are reported in the returned Status.
	TestConnection(ctx context.Context, cfg core.ConnectorConfig) Status

	// GetTables lists every table the backend exposes.
	GetTables(ctx context.Context) ([]core.TableSchema, error)

	// GetSchema describes a single table. schema may be empty.
	GetSchema(ctx context.Context, table, schema string) (*core.TableSchema, error)

	// PreviewData reads up to limit rows of a table. limit <= 0 reads all rows.
	PreviewData(ctx context.Context, table, schema string, limit int) (*table.Table, error)

	// ExecuteQuery runs query text with positional args in the connector's
	// BindStyle.
	ExecuteQuery(ctx context.Context, query string, args ...any) (*table.Table, error)

	// BindStyle returns the positional placeholder syntax ExecuteQuery accepts.
	BindStyle() BindStyle
}

// BindStyle is a positional parameter placeholder syntax.
type BindStyle int

// Placeholder syntaxes.
const (
	// BindQuestion uses ? for every parameter (MySQL, DuckDB).
	BindQuestion BindStyle = iota
	// BindDollar uses $1, $2, ... (PostgreSQL).
	BindDollar
)

func (s BindStyle) String() string {
	if s == BindDollar {
		return "dollar"
	}
	return "question"
}

// Status is the structured result of a connection test.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// StatusOf converts a connection error into a Status.
func StatusOf(err error, okMessage string) Status {
	if err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	return Status{OK: true, Message: okMessage}
}
