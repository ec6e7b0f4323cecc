package semantic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersEntity() *Entity {
	e := &Entity{
		Name:         "Orders",
		PrimaryTable: "orders",
		Dimensions: []Dimension{
			{Name: "Category", Column: "category", DisplayOrder: 1},
			{Name: "Region", Column: "region"},
			{Name: "Order Date", Column: "ordered_on", Type: "DATE", DisplayOrder: 1},
		},
		Measures: []Measure{
			{Name: "Total Sales", Aggregation: "sum", Column: "sales"},
			{Name: "Order Count", Aggregation: AggCount, Column: "id"},
		},
	}
	e.Normalize()
	return e
}

func TestEntity_Normalize(t *testing.T) {
	e := ordersEntity()

	assert.Equal(t, "orders", e.ID)
	ids := make([]string, len(e.Dimensions))
	for i, d := range e.Dimensions {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"region", "category", "order_date"}, ids, "stable by display order")

	d, ok := e.Dimension("order_date")
	require.True(t, ok)
	assert.Equal(t, DimDate, d.Type)

	m, ok := e.Measure("total_sales")
	require.True(t, ok)
	assert.Equal(t, AggSum, m.Aggregation)
	assert.Equal(t, "total_sales", m.Alias())
}

func TestEntity_Validate(t *testing.T) {
	require.NoError(t, ordersEntity().Validate())

	bad := &Entity{
		Name: "Broken",
		Dimensions: []Dimension{
			{ID: "a", Column: "a", Type: DimString},
			{ID: "a", Type: "money"},
		},
		Measures: []Measure{{ID: "m", Aggregation: "PERCENTILE", Column: "x"}},
	}
	err := bad.Validate()
	require.Error(t, err)

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "primary_table is required")
	assert.Contains(t, verr.Problems, `duplicate id "a"`)
	assert.Contains(t, verr.Problems, `dimension "a": sql_column is required`)
	assert.Contains(t, verr.Problems, `dimension "a": unknown data_type "money"`)
	assert.Contains(t, verr.Problems, `measure "m": unknown aggregation "PERCENTILE"`)
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
		ok   bool
	}{
		{"=", OpEq, true},
		{"not   in", OpNotIn, true},
		{"is null", OpIsNull, true},
		{"like", OpLike, true},
		{"==", "", false},
		{"BETWEEN", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseOperator(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestQueryRequest_Validate(t *testing.T) {
	e := ordersEntity()

	tests := []struct {
		name      string
		req       QueryRequest
		problems  []string
		wantLimit int
	}{
		{
			name:      "valid with default limit",
			req:       QueryRequest{DimensionIDs: []string{"region"}, MeasureIDs: []string{"total_sales"}, Filters: []Filter{{DimensionID: "region", Operator: "in", Value: []any{"West"}}}},
			wantLimit: DefaultLimit,
		},
		{
			name:     "no measures",
			req:      QueryRequest{DimensionIDs: []string{"region"}, Limit: 10},
			problems: []string{"at least one measure is required"},
		},
		{
			name: "unknown ids and operator",
			req: QueryRequest{
				DimensionIDs: []string{"country"},
				MeasureIDs:   []string{"profit"},
				Filters:      []Filter{{DimensionID: "region", Operator: "~"}},
			},
			problems: []string{`invalid dimension ID "country"`, `invalid measure ID "profit"`, `filter 0: unsupported operator "~"`},
		},
		{
			name:     "in with scalar",
			req:      QueryRequest{MeasureIDs: []string{"total_sales"}, Filters: []Filter{{DimensionID: "region", Operator: OpIn, Value: "West"}}},
			problems: []string{"filter 0: IN requires a list value"},
		},
		{
			name:     "limit too large",
			req:      QueryRequest{MeasureIDs: []string{"total_sales"}, Limit: MaxLimit + 1},
			problems: []string{"limit 10001 exceeds maximum 10000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate(e, DefaultLimits())
			if len(tt.problems) == 0 {
				require.NoError(t, err)
				assert.Equal(t, tt.wantLimit, req.Limit)
				return
			}
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			for _, p := range tt.problems {
				assert.Contains(t, verr.Problems, p)
			}
		})
	}
}

func TestQueryRequest_Validate_NormalizesOperators(t *testing.T) {
	req := QueryRequest{
		MeasureIDs: []string{"total_sales"},
		Filters:    []Filter{{DimensionID: "region", Operator: "is not null"}},
	}
	require.NoError(t, req.Validate(ordersEntity(), Limits{}))
	assert.Equal(t, OpIsNotNull, req.Filters[0].Operator)
}

const ordersYAML = `
name: Orders
primary_table: orders
certified: true
tags: [sales]
dimensions:
  - name: Region
    sql_column: region
    data_type: string
measures:
  - name: Total Sales
    aggregation: sum
    base_column: sales
`

const multiYAML = `
entities:
  - id: customers
    name: Customers
    primary_table: customers
    dimensions:
      - {name: Country, sql_column: country}
    measures:
      - {name: Customer Count, aggregation: COUNT, base_column: id}
`

func TestParse(t *testing.T) {
	entities, err := Parse(strings.NewReader(ordersYAML))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "orders", entities[0].PrimaryTable)
	assert.True(t, entities[0].Certified)

	entities, err = Parse(strings.NewReader(multiYAML))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "customers", entities[0].ID)

	_, err = Parse(strings.NewReader("name: X\nprimary_tabel: typo\n"))
	require.Error(t, err, "unknown fields are rejected")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.yaml"), []byte(ordersYAML), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "crm"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crm", "customers.yml"), []byte(multiYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# models"), 0o600))

	catalog, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, catalog.Entities(), 2)

	e, err := catalog.Get("Orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", e.ID)

	_, err = catalog.Get("products")
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestNewCatalog_Duplicate(t *testing.T) {
	_, err := NewCatalog(ordersEntity(), ordersEntity())
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}
