package testutil

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
	"github.com/stretchr/testify/require"
)

// MemoryConnector serves fixed tables and records the queries it runs.
type MemoryConnector struct {
	Tables     map[string]*table.Table
	Style      connector.BindStyle
	ConnectErr error
	QueryErr   error
	// Result is returned by ExecuteQuery when set.
	Result *table.Table

	mu          sync.Mutex
	connected   bool
	Connects    int
	Disconnects int
	Queries     []string
	Args        [][]any
}

// NewMemoryConnector creates a connector serving tables.
func NewMemoryConnector(tables map[string]*table.Table) *MemoryConnector {
	if tables == nil {
		tables = make(map[string]*table.Table)
	}
	return &MemoryConnector{Tables: tables}
}

// Connect fails with ConnectErr when set.
func (m *MemoryConnector) Connect(context.Context, core.ConnectorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return core.ErrConnection("memory", m.ConnectErr, "connect failed")
	}
	m.connected = true
	m.Connects++
	return nil
}

// Disconnect marks the connector closed.
func (m *MemoryConnector) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.Disconnects++
	}
	m.connected = false
	return nil
}

// Connected reports whether Connect succeeded without a later Disconnect.
func (m *MemoryConnector) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// TestConnection probes Connect.
func (m *MemoryConnector) TestConnection(ctx context.Context, cfg core.ConnectorConfig) connector.Status {
	return connector.Probe(ctx, m, cfg, "connected", nil)
}

// GetTables describes every table, sorted by name.
func (m *MemoryConnector) GetTables(ctx context.Context) ([]core.TableSchema, error) {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]core.TableSchema, 0, len(names))
	for _, name := range names {
		s, err := m.GetSchema(ctx, name, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// GetSchema describes one table.
func (m *MemoryConnector) GetSchema(_ context.Context, name, _ string) (*core.TableSchema, error) {
	t, ok := m.Tables[name]
	if !ok {
		return nil, core.ErrNotFound("table %q not found", name)
	}
	s := &core.TableSchema{Name: name, RowCount: core.Int64Ptr(int64(t.Len()))}
	for i, c := range t.Columns() {
		s.Columns = append(s.Columns, core.Column{Name: c.Name, Type: c.Type, Nullable: true, Position: i + 1})
	}
	return s, nil
}

// PreviewData returns the first limit rows of a table.
func (m *MemoryConnector) PreviewData(_ context.Context, name, _ string, limit int) (*table.Table, error) {
	if !m.Connected() {
		return nil, core.ErrExecution(nil, "not connected")
	}
	t, ok := m.Tables[name]
	if !ok {
		return nil, core.ErrNotFound("table %q not found", name)
	}
	return t.Head(limit), nil
}

// ExecuteQuery records query and args and returns Result.
func (m *MemoryConnector) ExecuteQuery(_ context.Context, query string, args ...any) (*table.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	m.Args = append(m.Args, args)
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return table.Empty(), nil
}

// BindStyle returns Style.
func (m *MemoryConnector) BindStyle() connector.BindStyle { return m.Style }

// MustTable builds a table from column names and rows or fails the test.
func MustTable(t testing.TB, names []string, rows ...[]any) *table.Table {
	t.Helper()
	tbl, err := table.FromNames(names, rows)
	require.NoError(t, err)
	return tbl
}

// RegisterMemoryConnector registers name as a database connector type whose
// instances serve tables and answer every query with result.
func RegisterMemoryConnector(name string, tables map[string]*table.Table, result *table.Table) {
	connector.Register(connector.KindDatabase, func(*slog.Logger) connector.Connector {
		m := NewMemoryConnector(tables)
		m.Result = result
		return m
	}, name)
}

var _ connector.Connector = (*MemoryConnector)(nil)
