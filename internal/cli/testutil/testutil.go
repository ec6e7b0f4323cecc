// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	coretestutil "github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// MemoryConnectorType is the connector type the test project's data source
// uses. SetupTestProject registers it.
const MemoryConnectorType = "memtest"

const projectConfig = `owner: analytics
data_sources:
  - id: shop
    name: Shop DB
    type: memtest
    certified: true
`

const ordersModel = `id: orders
name: Orders
primary_table: orders
dimensions:
  - {id: region, name: Region, sql_column: region, data_type: string}
  - {id: status, name: Status, sql_column: status, data_type: string}
measures:
  - {id: total_sales, name: Total Sales, aggregation: SUM, base_column: sales}
`

const regionalSalesPipeline = `name: regional_sales
description: Completed sales per region
steps:
  - step_order: 0
    step_type: source
    output_alias: orders
    configuration:
      data_source_id: shop
      table_name: orders
  - step_order: 1
    step_type: filter
    step_name: completed only
    configuration:
      conditions:
        - {column: status, operator: "==", value: complete}
  - step_order: 2
    step_type: aggregate
    configuration:
      group_by: [region]
      aggregations:
        - {column: sales, function: sum, alias: total_sales}
  - step_order: 3
    step_type: sort
    configuration:
      columns: [total_sales]
      ascending: [false]
`

const brokenPipeline = `name: broken
steps:
  - step_order: 0
    step_type: filter
    configuration:
      conditions: []
`

// OrdersTable is the orders table served by the test project's data source.
func OrdersTable(t testing.TB) *table.Table {
	t.Helper()
	return coretestutil.MustTable(t, []string{"id", "region", "status", "sales"},
		[]any{int64(1), "North", "complete", int64(100)},
		[]any{int64(2), "South", "complete", int64(40)},
		[]any{int64(3), "North", "cancelled", int64(70)},
		[]any{int64(4), "North", "complete", int64(25)},
		[]any{int64(5), "South", "complete", int64(90)},
	)
}

// QueryResultTable is what every query against the test data source returns.
func QueryResultTable(t testing.TB) *table.Table {
	t.Helper()
	return coretestutil.MustTable(t, []string{"region", "total_sales"},
		[]any{"North", int64(125)},
		[]any{"South", int64(130)},
	)
}

// SetupTestProject creates a temporary project with a config file, one
// semantic model and two pipelines, and registers the memory connector its
// data source uses. It returns the project directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	coretestutil.RegisterMemoryConnector(MemoryConnectorType,
		map[string]*table.Table{"orders": OrdersTable(t)}, QueryResultTable(t))

	tmpDir := t.TempDir()

	// Create directories
	dirs := []string{
		filepath.Join(tmpDir, "models"),
		filepath.Join(tmpDir, "pipelines"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	files := map[string]string{
		"leapquery.yaml":                projectConfig,
		"models/orders.yaml":            ordersModel,
		"pipelines/regional_sales.yaml": regionalSalesPipeline,
		"pipelines/broken.yaml":         brokenPipeline,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, mode, isTTY),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
