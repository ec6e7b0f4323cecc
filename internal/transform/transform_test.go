package transform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapquery/internal/testutil"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSources struct {
	conns map[string]*testutil.MemoryConnector
}

func (f *fakeSources) OpenSource(ctx context.Context, id string) (connector.Connector, error) {
	c, ok := f.conns[id]
	if !ok {
		return nil, core.ErrNotFound("data source not found: %s", id)
	}
	if err := c.Connect(ctx, core.ConnectorConfig{}); err != nil {
		return nil, err
	}
	return c, nil
}

func newSources(t *testing.T) (*fakeSources, *testutil.MemoryConnector) {
	t.Helper()
	conn := testutil.NewMemoryConnector(map[string]*table.Table{
		"orders": testutil.MustTable(t, []string{"id", "region", "category", "sales", "customer_id"},
			[]any{int64(1), "West", "Tech", int64(10), int64(100)},
			[]any{int64(2), "East", "Tech", int64(7), int64(101)},
			[]any{int64(3), "West", "Tech", int64(20), int64(102)},
			[]any{int64(4), "West", "Home", int64(5), int64(999)},
			[]any{int64(5), "North", "Home", int64(3), int64(100)},
		),
		"customers": testutil.MustTable(t, []string{"customer_id", "name"},
			[]any{int64(100), "Ada"},
			[]any{int64(101), "Grace"},
			[]any{int64(102), "Linus"},
		),
		"archive": testutil.MustTable(t, []string{"id", "region"},
			[]any{int64(1), "West"},
			[]any{int64(9), "South"},
		),
		"current": testutil.MustTable(t, []string{"id", "region"},
			[]any{int64(1), "West"},
			[]any{int64(2), "East"},
		),
	})
	return &fakeSources{conns: map[string]*testutil.MemoryConnector{"ds1": conn}}, conn
}

func source(order int, tableName, alias string) RawStep {
	return RawStep{
		Order:         order,
		Type:          "source",
		Configuration: map[string]any{"data_source_id": "ds1", "table_name": tableName},
		OutputAlias:   alias,
	}
}

func mustPipeline(t *testing.T, raw ...RawStep) *Pipeline {
	t.Helper()
	p, err := NewPipeline("test", raw)
	require.NoError(t, err)
	return p
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		steps    []RawStep
		valid    bool
		errors   []string
		warnings []string
	}{
		{
			name:   "empty",
			errors: []string{"Pipeline has no steps"},
		},
		{
			name: "first step is a filter",
			steps: []RawStep{
				{Order: 0, Type: "filter", Configuration: map[string]any{"conditions": []any{}}},
			},
			errors: []string{"First step must be a source"},
		},
		{
			name: "order gap",
			steps: []RawStep{
				source(0, "orders", ""),
				{Order: 2, Type: "sort", Configuration: map[string]any{"columns": []any{"id"}}},
				{Order: 3, Type: "sort", Configuration: map[string]any{"columns": []any{"id"}}},
			},
			errors: []string{"Step order mismatch at position 1", "Step order mismatch at position 2"},
		},
		{
			name: "unknown type",
			steps: []RawStep{
				source(0, "orders", ""),
				{Order: 1, Type: "pivot"},
			},
			errors: []string{"Unknown step type: pivot"},
		},
		{
			name: "missing keys are all reported",
			steps: []RawStep{
				{Order: 0, Type: "source", Configuration: map[string]any{}},
				{Order: 1, Type: "join", Configuration: map[string]any{"left_source": "previous"}},
			},
			errors: []string{
				"Step 0: Missing data_source_id",
				"Step 0: Missing table_name",
				"Step 1: Missing right_source",
				"Step 1: Missing left_on",
				"Step 1: Missing right_on",
			},
		},
		{
			name: "unknown operator",
			steps: []RawStep{
				source(0, "orders", ""),
				{Order: 1, Type: "filter", Configuration: map[string]any{
					"conditions": []any{map[string]any{"column": "region", "operator": "~", "value": "x"}},
				}},
			},
			errors: []string{`Step 1: condition 0: unknown operator "~"`},
		},
		{
			name: "unknown alias",
			steps: []RawStep{
				source(0, "orders", "orders"),
				{Order: 1, Type: "union", Configuration: map[string]any{"sources": []any{"orders", "missing"}}},
			},
			errors: []string{`Step 1: sources references unknown alias "missing"`},
		},
		{
			name: "duplicate alias",
			steps: []RawStep{
				source(0, "orders", "o"),
				source(1, "customers", "o"),
			},
			errors: []string{`Step 1: output alias "o" already used by step 0`},
		},
		{
			name: "reserved alias",
			steps: []RawStep{
				source(0, "orders", "previous"),
			},
			errors: []string{`Step 0: output alias "previous" is reserved`},
		},
		{
			name: "warnings do not invalidate",
			steps: []RawStep{
				source(0, "orders", "orders"),
				source(1, "customers", ""),
				{Order: 2, Type: "filter", Configuration: map[string]any{"conditions": []any{}, "colour": "blue"}},
			},
			valid: true,
			warnings: []string{
				`Step 2: unknown configuration key "colour"`,
				"Step 2: filter has no conditions",
				`Step 0: output alias "orders" is never used`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.steps)
			assert.Equal(t, tt.valid, res.Valid)
			for _, e := range tt.errors {
				assert.Contains(t, res.Errors, e)
			}
			for _, w := range tt.warnings {
				assert.Contains(t, res.Warnings, w)
			}
			if tt.valid {
				assert.Empty(t, res.Errors)
			}
		})
	}
}

func TestNewPipeline_ResolvesAliases(t *testing.T) {
	p := mustPipeline(t,
		source(0, "orders", "orders"),
		RawStep{Order: 1, Type: "filter", Configuration: map[string]any{
			"conditions": []any{map[string]any{"column": "region", "operator": "==", "value": "West"}},
		}},
		source(2, "customers", "customers"),
		RawStep{Order: 3, Type: "join", Configuration: map[string]any{
			"left_source": "previous", "right_source": "step_1",
			"left_on": "customer_id", "right_on": "customer_id",
		}},
		RawStep{Order: 4, Type: "sort", Input: "step_1", Configuration: map[string]any{"columns": "id"}},
	)

	assert.Equal(t, "orders", p.Steps[1].Input)
	assert.Equal(t, "step_1", p.Steps[1].OutputAlias)

	join, ok := p.Steps[3].Config.(JoinConfig)
	require.True(t, ok)
	assert.Equal(t, "customers", join.LeftSource)
	assert.Equal(t, []string{"customer_id"}, join.LeftOn)
	assert.Equal(t, "inner", join.JoinType)
	assert.Equal(t, "_left", join.SuffixLeft)
	assert.Equal(t, []string{"customers", "step_1"}, p.Steps[3].Inputs())

	sortCfg, ok := p.Steps[4].Config.(SortConfig)
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, sortCfg.Columns)
	assert.Equal(t, "step_1", p.Steps[4].Input)
}

func TestNewPipeline_Invalid(t *testing.T) {
	_, err := NewPipeline("bad", []RawStep{{Order: 0, Type: "filter"}})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Problems, "First step must be a source")
}

func TestEngine_Run_FilterAggregate(t *testing.T) {
	sources, conn := newSources(t)
	recorder := NewMemoryRecorder()
	engine := New(Config{Sources: sources, Recorder: recorder, Logger: testutil.NewTestLogger(t)})

	p := mustPipeline(t,
		source(0, "orders", ""),
		RawStep{Order: 1, Type: "filter", Configuration: map[string]any{
			"conditions": []any{map[string]any{"column": "region", "operator": "==", "value": "West"}},
		}},
		RawStep{Order: 2, Type: "aggregate", Configuration: map[string]any{
			"group_by":     []any{"category"},
			"aggregations": []any{map[string]any{"column": "sales", "function": "sum", "alias": "total_sales"}},
		}},
	)

	res, err := engine.Run(context.Background(), p, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []map[string]any{
		{"category": "Tech", "total_sales": int64(30)},
		{"category": "Home", "total_sales": int64(5)},
	}, res.Table.Records())

	assert.Equal(t, RunStatusSuccess, res.Run.Status)
	assert.Equal(t, 2, res.Run.RowsProcessed)
	require.Len(t, res.Run.Steps, 3)
	assert.Equal(t, []int{5, 3, 2}, []int{res.Run.Steps[0].RowsOut, res.Run.Steps[1].RowsOut, res.Run.Steps[2].RowsOut})
	assert.Equal(t, "filter", res.Run.Steps[1].Name)

	stored, ok := recorder.Run(res.Run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStatusSuccess, stored.Status)
	assert.Len(t, stored.Steps, 3)
	last, _ := recorder.LastStatus("test")
	assert.Equal(t, RunStatusSuccess, last)

	assert.False(t, conn.Connected())
	assert.Equal(t, 1, conn.Disconnects)
}

func TestEngine_Run_LeftJoin(t *testing.T) {
	sources, _ := newSources(t)
	engine := New(Config{Sources: sources})

	p := mustPipeline(t,
		source(0, "orders", "orders"),
		source(1, "customers", "customers"),
		RawStep{Order: 2, Type: "join", Configuration: map[string]any{
			"left_source": "orders", "right_source": "customers",
			"join_type": "left", "left_on": []any{"customer_id"}, "right_on": []any{"customer_id"},
		}},
	)

	res, err := engine.Run(context.Background(), p, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 5, res.Table.Len())

	names, err := res.Table.Values("name")
	require.NoError(t, err)
	assert.Equal(t, []any{"Ada", "Grace", "Linus", nil, "Ada"}, names)
}

func TestEngine_Run_Union(t *testing.T) {
	for _, tt := range []struct {
		name  string
		dedup any
		rows  int
	}{
		{name: "default removes duplicates", rows: 3},
		{name: "keep duplicates", dedup: false, rows: 4},
	} {
		t.Run(tt.name, func(t *testing.T) {
			sources, _ := newSources(t)
			engine := New(Config{Sources: sources})

			cfg := map[string]any{"sources": []any{"archive", "current"}}
			if tt.dedup != nil {
				cfg["remove_duplicates"] = tt.dedup
			}
			p := mustPipeline(t,
				source(0, "archive", "archive"),
				source(1, "current", "current"),
				RawStep{Order: 2, Type: "union", Configuration: cfg},
			)

			res, err := engine.Run(context.Background(), p, RunOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.rows, res.Table.Len())
		})
	}
}

func TestEngine_Run_SelectSortLimit(t *testing.T) {
	sources, _ := newSources(t)
	engine := New(Config{Sources: sources})

	p := mustPipeline(t,
		source(0, "orders", ""),
		RawStep{Order: 1, Type: "select", Configuration: map[string]any{
			"columns": []any{"id", "sales"},
			"rename":  map[string]any{"sales": "amount"},
		}},
		RawStep{Order: 2, Type: "sort", Configuration: map[string]any{
			"columns": []any{"amount"}, "ascending": []any{false},
		}},
	)

	res, err := engine.Run(context.Background(), p, RunOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount"}, res.Table.ColumnNames())
	assert.Equal(t, []map[string]any{
		{"id": int64(3), "amount": int64(20)},
		{"id": int64(1), "amount": int64(10)},
	}, res.Table.Records())
	assert.Equal(t, 2, res.Run.RowsProcessed)
}

func TestEngine_Run_FailingStep(t *testing.T) {
	sources, conn := newSources(t)
	recorder := NewMemoryRecorder()
	engine := New(Config{Sources: sources, Recorder: recorder})

	p := mustPipeline(t,
		source(0, "orders", ""),
		RawStep{Order: 1, Type: "sort", Configuration: map[string]any{"columns": []any{"id"}}},
		RawStep{Order: 2, Type: "select", Configuration: map[string]any{"columns": []any{"missing"}}},
		RawStep{Order: 3, Type: "sort", Configuration: map[string]any{"columns": []any{"id"}}},
	)

	res, err := engine.Run(context.Background(), p, RunOptions{})
	require.NoError(t, err, "step failures are reported on the run")

	require.NotNil(t, res)
	assert.Nil(t, res.Table)
	assert.Equal(t, RunStatusFailed, res.Run.Status)
	assert.Contains(t, res.Run.ErrorMessage, "step 2 (select) failed")
	require.Len(t, res.Run.Steps, 2)
	assert.Equal(t, 1, res.Run.Steps[1].Order)

	stored, ok := recorder.Run(res.Run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStatusFailed, stored.Status)
	assert.Len(t, stored.Steps, 2)

	assert.False(t, conn.Connected())
}

func TestEngine_Run_SourceErrors(t *testing.T) {
	sources, conn := newSources(t)
	engine := New(Config{Sources: sources})

	t.Run("unknown data source", func(t *testing.T) {
		p := mustPipeline(t, RawStep{Order: 0, Type: "source", Configuration: map[string]any{
			"data_source_id": "nope", "table_name": "orders",
		}})
		res, err := engine.Run(context.Background(), p, RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, RunStatusFailed, res.Run.Status)
		assert.Contains(t, res.Run.ErrorMessage, "data source not found: nope")
	})

	t.Run("missing column disconnects", func(t *testing.T) {
		p := mustPipeline(t, RawStep{Order: 0, Type: "source", Configuration: map[string]any{
			"data_source_id": "ds1", "table_name": "orders", "columns": []any{"id", "nope"},
		}})
		res, err := engine.Run(context.Background(), p, RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, RunStatusFailed, res.Run.Status)
		assert.False(t, conn.Connected())
	})
}

func TestEngine_Run_Cancelled(t *testing.T) {
	sources, _ := newSources(t)
	recorder := NewMemoryRecorder()
	engine := New(Config{Sources: sources, Recorder: recorder})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine.Run(ctx, mustPipeline(t, source(0, "orders", "")), RunOptions{})
	require.NoError(t, err)
	assert.Contains(t, res.Run.ErrorMessage, context.Canceled.Error())
	stored, ok := recorder.Run(res.Run.ID)
	require.True(t, ok)
	assert.Equal(t, RunStatusFailed, stored.Status)
}

func TestApplyFilter(t *testing.T) {
	data := testutil.MustTable(t, []string{"name", "score", "city"},
		[]any{"Alice", int64(90), "Berlin"},
		[]any{"bob", int64(70), nil},
		[]any{"ALBERT", nil, "Bern"},
		[]any{"Carol", int64(85), "Paris"},
	)

	tests := []struct {
		name  string
		cfg   FilterConfig
		names []any
	}{
		{
			name:  "greater than skips nulls",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "score", Operator: ">", Value: 80}}},
			names: []any{"Alice", "Carol"},
		},
		{
			name:  "not equal keeps nulls",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "score", Operator: "!=", Value: 90}}},
			names: []any{"bob", "ALBERT", "Carol"},
		},
		{
			name:  "in",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "city", Operator: "in", Value: []any{"Paris", "Bern"}}}},
			names: []any{"ALBERT", "Carol"},
		},
		{
			name:  "not in keeps nulls",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "city", Operator: "NOT  IN", Value: []string{"Paris", "Bern"}}}},
			names: []any{"Alice", "bob"},
		},
		{
			name:  "contains is case-insensitive",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "name", Operator: "contains", Value: "AL"}}},
			names: []any{"Alice", "ALBERT"},
		},
		{
			name:  "startswith and endswith",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "city", Operator: "startswith", Value: "b"}, {Column: "city", Operator: "endswith", Value: "N"}}},
			names: []any{"Alice", "ALBERT"},
		},
		{
			name:  "null checks",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "city", Operator: "is null"}, {Column: "score", Operator: "is null"}}, LogicalOperator: "or"},
			names: []any{"bob", "ALBERT"},
		},
		{
			name:  "is not null",
			cfg:   FilterConfig{Conditions: []Condition{{Column: "score", Operator: "is not null"}}},
			names: []any{"Alice", "bob", "Carol"},
		},
		{
			name: "or",
			cfg: FilterConfig{LogicalOperator: "OR", Conditions: []Condition{
				{Column: "score", Operator: "<", Value: 75},
				{Column: "city", Operator: "==", Value: "Paris"},
			}},
			names: []any{"bob", "Carol"},
		},
		{
			name:  "no conditions keeps everything",
			cfg:   FilterConfig{},
			names: []any{"Alice", "bob", "ALBERT", "Carol"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := applyFilter(data, tt.cfg)
			require.NoError(t, err)
			names, err := out.Values("name")
			require.NoError(t, err)
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestApplyFilter_Errors(t *testing.T) {
	data := testutil.MustTable(t, []string{"name", "score"}, []any{"Alice", int64(90)})

	_, err := applyFilter(data, FilterConfig{Conditions: []Condition{{Column: "age", Operator: ">", Value: 1}}})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	_, err = applyFilter(data, FilterConfig{Conditions: []Condition{{Column: "score", Operator: "between", Value: 1}}})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	_, err = applyFilter(data, FilterConfig{Conditions: []Condition{{Column: "score", Operator: ">", Value: "high"}}})
	require.Error(t, err)
	assert.True(t, core.IsExecution(err))
}

func TestApplyFilter_IncomparableEquality(t *testing.T) {
	data := testutil.MustTable(t, []string{"city", "zip"},
		[]any{"New York", int64(10001)},
		[]any{"Boston", int64(2108)},
		[]any{"Nowhere", nil},
	)

	tests := []struct {
		name     string
		operator string
		cities   []any
	}{
		{name: "equal matches nothing", operator: "==", cities: []any{}},
		{name: "not equal matches everything", operator: "!=", cities: []any{"New York", "Boston", "Nowhere"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := applyFilter(data, FilterConfig{Conditions: []Condition{{Column: "zip", Operator: tt.operator, Value: "N/A"}}})
			require.NoError(t, err)
			cities, err := out.Values("city")
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.cities, cities)
		})
	}

	_, err := applyFilter(data, FilterConfig{Conditions: []Condition{{Column: "zip", Operator: ">=", Value: "N/A"}}})
	require.Error(t, err)
	assert.True(t, core.IsExecution(err))
}

func TestNewPipeline_TypedStepConfigs(t *testing.T) {
	p := mustPipeline(t,
		source(0, "orders", "o"),
		source(1, "customers", "c"),
		RawStep{Order: 2, Type: "join", Configuration: map[string]any{
			"left_source": "o", "right_source": "c", "left_on": []any{"customer_id"}, "right_on": []any{"customer_id"},
		}},
		RawStep{Order: 3, Type: "filter", Configuration: map[string]any{
			"conditions": []any{map[string]any{"column": "region", "operator": "==", "value": "West"}},
		}},
		RawStep{Order: 4, Type: "aggregate", Configuration: map[string]any{
			"group_by":     []any{"region"},
			"aggregations": []any{map[string]any{"column": "sales", "function": "sum"}},
		}},
		RawStep{Order: 5, Type: "sort", Configuration: map[string]any{"columns": []any{"region"}}},
		RawStep{Order: 6, Type: "select", Configuration: map[string]any{"columns": []any{"region"}}},
	)

	want := []StepConfig{SourceConfig{}, SourceConfig{}, JoinConfig{}, FilterConfig{}, AggregateConfig{}, SortConfig{}, SelectConfig{}}
	require.Len(t, p.Steps, len(want))
	for i, step := range p.Steps {
		assert.IsType(t, want[i], step.Config, "step %d", step.Order)
		assert.Equal(t, step.Kind, step.Config.Kind())
	}

	join, ok := p.Steps[2].Config.(JoinConfig)
	require.True(t, ok)
	assert.Equal(t, "o", join.LeftSource)
	assert.Equal(t, []string{"o", "c"}, p.Steps[2].Inputs())
}

func TestParse(t *testing.T) {
	src := `
name: west_sales
description: Sales in the West by category
steps:
  - step_order: 0
    step_type: source
    output_alias: orders
    configuration:
      data_source_id: ds1
      table_name: orders
  - step_order: 1
    step_type: filter
    input: orders
    configuration:
      conditions:
        - {column: region, operator: "==", value: West}
  - step_order: 2
    step_type: aggregate
    configuration:
      group_by: [category]
      aggregations:
        - {column: sales, function: sum, alias: total_sales}
`
	def, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "west_sales", def.Name)
	require.Len(t, def.Steps, 3)
	assert.True(t, def.Validate().Valid)

	p, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, "Sales in the West by category", p.Description)

	sources, _ := newSources(t)
	res, err := New(Config{Sources: sources}).Run(context.Background(), p, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())

	_, err = Parse(strings.NewReader("name: x\nsteps: []\nextra: 1\n"))
	require.Error(t, err)

	_, err = Parse(strings.NewReader("steps: []\n"))
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestPipeline_Levels(t *testing.T) {
	p := mustPipeline(t,
		source(0, "orders", "orders"),
		RawStep{Order: 1, Type: "filter", OutputAlias: "west", Configuration: map[string]any{
			"conditions": []any{map[string]any{"column": "region", "operator": "==", "value": "West"}},
		}},
		source(2, "customers", "customers"),
		RawStep{Order: 3, Type: "join", OutputAlias: "joined", Configuration: map[string]any{
			"left_source": "west", "right_source": "customers",
			"left_on": "customer_id", "right_on": "customer_id",
		}},
	)

	levels := p.Levels()
	require.Len(t, levels, 3)

	assert.Equal(t, []string{"orders", "customers"}, aliases(levels[0]))
	assert.Equal(t, []string{"west"}, aliases(levels[1]))
	assert.Equal(t, []string{"joined"}, aliases(levels[2]))

	assert.Equal(t, []string{"west"}, levels[0][0].UsedBy)
	assert.Equal(t, []string{}, levels[0][0].Inputs)
	assert.Equal(t, []string{"west", "customers"}, levels[2][0].Inputs)
	assert.Equal(t, KindJoin, levels[2][0].Kind)
	assert.Equal(t, 3, p.EdgeCount())
}

func aliases(nodes []GraphNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Alias)
	}
	return out
}
