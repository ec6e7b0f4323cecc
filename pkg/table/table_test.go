package table

import (
	"testing"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersFixture(t *testing.T) *Table {
	t.Helper()
	tbl, err := FromNames([]string{"id", "region", "category", "sales"}, [][]any{
		{int64(1), "West", "Tech", int64(10)},
		{int64(2), "East", "Tech", int64(7)},
		{int64(3), "West", "Tech", int64(20)},
		{int64(4), "West", "Home", int64(5)},
		{int64(5), "North", "Home", int64(3)},
	})
	require.NoError(t, err)
	return tbl
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		columns []Column
		rows    [][]any
		errMsg  string
	}{
		{
			name:    "valid",
			columns: []Column{{Name: "a"}, {Name: "b"}},
			rows:    [][]any{{int64(1), "x"}},
		},
		{
			name:    "duplicate column",
			columns: []Column{{Name: "a"}, {Name: "a"}},
			errMsg:  `duplicate column "a"`,
		},
		{
			name:    "ragged row",
			columns: []Column{{Name: "a"}, {Name: "b"}},
			rows:    [][]any{{int64(1)}},
			errMsg:  "row 0 has 1 values, expected 2",
		},
		{
			name:    "unnamed column",
			columns: []Column{{Name: ""}},
			errMsg:  "column 0 has no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := New(tt.columns, tt.rows)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.rows), tbl.Len())
		})
	}
}

func TestNew_InfersTypes(t *testing.T) {
	tbl, err := FromNames([]string{"i", "f", "s", "b", "ts", "n"}, [][]any{
		{nil, 1.5, "x", true, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), nil},
		{int64(2), 2.5, "y", false, time.Date(2024, 1, 3, 3, 4, 5, 0, time.UTC), nil},
	})
	require.NoError(t, err)

	want := map[string]core.StandardType{
		"i":  core.TypeInteger,
		"f":  core.TypeFloat,
		"s":  core.TypeString,
		"b":  core.TypeBoolean,
		"ts": core.TypeTimestamp,
		"n":  core.TypeString,
	}
	for name, typ := range want {
		got, ok := tbl.ColumnType(name)
		require.True(t, ok)
		assert.Equal(t, typ, got, name)
	}
}

func TestProject(t *testing.T) {
	tbl := ordersFixture(t)

	projected, err := tbl.Project("sales", "region")
	require.NoError(t, err)
	assert.Equal(t, []string{"sales", "region"}, projected.ColumnNames())
	assert.Equal(t, []any{int64(10), "West"}, projected.Row(0))

	_, err = tbl.Project("region", "missing")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Contains(t, err.Error(), "missing")
}

func TestRename(t *testing.T) {
	tbl := ordersFixture(t)

	renamed, err := tbl.Rename(map[string]string{"sales": "amount", "absent": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "region", "category", "amount"}, renamed.ColumnNames())
	assert.Equal(t, []string{"id", "region", "category", "sales"}, tbl.ColumnNames(), "input must not change")

	_, err = tbl.Rename(map[string]string{"sales": "region"})
	require.Error(t, err)
}

func TestFilterAndHead(t *testing.T) {
	tbl := ordersFixture(t)

	west := tbl.Filter(func(i int) bool {
		v, _ := tbl.Value(i, "region")
		return v == "West"
	})
	assert.Equal(t, 3, west.Len())
	assert.Equal(t, 5, tbl.Len())

	assert.Equal(t, 2, west.Head(2).Len())
	assert.Equal(t, 3, west.Head(0).Len())
	assert.Equal(t, 3, west.Head(10).Len())
}

func TestAggregate(t *testing.T) {
	tbl := ordersFixture(t)
	west := tbl.Filter(func(i int) bool {
		v, _ := tbl.Value(i, "region")
		return v == "West"
	})

	out, err := west.Aggregate([]string{"category"}, []Aggregation{
		{Column: "sales", Func: AggSum, Alias: "total_sales"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"category", "total_sales"}, out.ColumnNames())
	assert.Equal(t, []map[string]any{
		{"category": "Tech", "total_sales": int64(30)},
		{"category": "Home", "total_sales": int64(5)},
	}, out.Records())
}

func TestAggregate_Functions(t *testing.T) {
	tbl, err := FromNames([]string{"g", "v"}, [][]any{
		{"a", int64(1)},
		{"a", int64(2)},
		{"a", int64(3)},
		{"a", int64(6)},
		{"a", nil},
		{nil, int64(100)},
	})
	require.NoError(t, err)

	tests := []struct {
		fn   AggFunc
		want any
	}{
		{AggSum, int64(12)},
		{AggMean, 3.0},
		{AggMedian, 2.5},
		{AggMin, int64(1)},
		{AggMax, int64(6)},
		{AggCount, int64(4)},
		{AggVar, 14.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.fn), func(t *testing.T) {
			out, err := tbl.Aggregate([]string{"g"}, []Aggregation{{Column: "v", Func: tt.fn}})
			require.NoError(t, err)
			require.Equal(t, 1, out.Len(), "null group keys are dropped")
			got, ok := out.Value(0, "v_"+string(tt.fn))
			require.True(t, ok)
			if f, isFloat := tt.want.(float64); isFloat {
				assert.InDelta(t, f, got, 1e-9)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregate_DefaultAliasesAndErrors(t *testing.T) {
	tbl := ordersFixture(t)

	out, err := tbl.Aggregate([]string{"region"}, []Aggregation{
		{Column: "sales", Func: AggSum},
		{Column: "sales", Func: AggMax},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "sales_sum", "sales_max"}, out.ColumnNames())
	assert.Equal(t, 3, out.Len())

	_, err = tbl.Aggregate([]string{"nope"}, []Aggregation{{Column: "sales", Func: AggSum}})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	_, err = tbl.Aggregate([]string{"region"}, []Aggregation{
		{Column: "sales", Func: AggSum},
		{Column: "id", Func: AggSum, Alias: "sales_sum"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = tbl.Aggregate([]string{"region"}, []Aggregation{{Column: "category", Func: AggSum}})
	require.Error(t, err)
	assert.True(t, core.IsExecution(err))
}

func TestAggregate_NoGroupBy(t *testing.T) {
	tbl := ordersFixture(t)

	out, err := tbl.Aggregate(nil, []Aggregation{{Column: "sales", Func: AggSum, Alias: "total"}})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"total": int64(45)}}, out.Records())
}

func joinFixtures(t *testing.T) (*Table, *Table) {
	t.Helper()
	left, err := FromNames([]string{"id", "name"}, [][]any{
		{int64(1), "alice"},
		{int64(2), "bob"},
		{int64(3), "carol"},
	})
	require.NoError(t, err)
	right, err := FromNames([]string{"id", "name", "score"}, [][]any{
		{int64(1), "A", 90.0},
		{int64(3), "C", 70.0},
		{int64(4), "D", 60.0},
	})
	require.NoError(t, err)
	return left, right
}

func TestJoin(t *testing.T) {
	left, right := joinFixtures(t)
	spec := JoinSpec{LeftOn: []string{"id"}, RightOn: []string{"id"}, SuffixLeft: "_left", SuffixRight: "_right"}

	tests := []struct {
		name     string
		joinType JoinType
		want     [][]any
	}{
		{
			name:     "inner",
			joinType: JoinInner,
			want: [][]any{
				{int64(1), "alice", "A", 90.0},
				{int64(3), "carol", "C", 70.0},
			},
		},
		{
			name:     "left keeps unmatched left rows",
			joinType: JoinLeft,
			want: [][]any{
				{int64(1), "alice", "A", 90.0},
				{int64(2), "bob", nil, nil},
				{int64(3), "carol", "C", 70.0},
			},
		},
		{
			name:     "right keeps unmatched right rows",
			joinType: JoinRight,
			want: [][]any{
				{int64(1), "alice", "A", 90.0},
				{int64(3), "carol", "C", 70.0},
				{int64(4), nil, "D", 60.0},
			},
		},
		{
			name:     "full keeps both sides",
			joinType: JoinFull,
			want: [][]any{
				{int64(1), "alice", "A", 90.0},
				{int64(2), "bob", nil, nil},
				{int64(3), "carol", "C", 70.0},
				{int64(4), nil, "D", 60.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := spec
			s.Type = tt.joinType
			out, err := left.Join(right, s)
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name_left", "name_right", "score"}, out.ColumnNames())
			require.Equal(t, len(tt.want), out.Len())
			for i, row := range tt.want {
				assert.Equal(t, row, out.Row(i), "row %d", i)
			}
		})
	}
}

func TestJoin_DifferentKeyNames(t *testing.T) {
	left, err := FromNames([]string{"customer_id", "total"}, [][]any{{int64(1), 10.0}, {int64(9), 5.0}})
	require.NoError(t, err)
	right, err := FromNames([]string{"id", "city"}, [][]any{{int64(1), "Oslo"}})
	require.NoError(t, err)

	out, err := left.Join(right, JoinSpec{Type: JoinLeft, LeftOn: []string{"customer_id"}, RightOn: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "total", "id", "city"}, out.ColumnNames())
	assert.Equal(t, []any{int64(9), 5.0, nil, nil}, out.Row(1))
}

func TestJoin_Errors(t *testing.T) {
	left, right := joinFixtures(t)

	_, err := left.Join(right, JoinSpec{Type: JoinInner, LeftOn: []string{"missing"}, RightOn: []string{"id"}})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))

	_, err = left.Join(right, JoinSpec{Type: JoinInner, LeftOn: []string{"id"}, RightOn: []string{"id", "name"}})
	require.Error(t, err)
}

func TestSort(t *testing.T) {
	tbl, err := FromNames([]string{"k", "v"}, [][]any{
		{"b", int64(2)},
		{"a", nil},
		{"a", int64(3)},
		{"c", int64(1)},
		{"b", int64(1)},
	})
	require.NoError(t, err)

	sorted, err := tbl.Sort([]string{"k", "v"}, []bool{true, false})
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"a", int64(3)},
		{"a", nil},
		{"b", int64(2)},
		{"b", int64(1)},
		{"c", int64(1)},
	}, collectRows(sorted))

	_, err = tbl.Sort([]string{"k"}, []bool{true, false})
	require.Error(t, err)
	_, err = tbl.Sort([]string{"zz"}, []bool{true})
	require.Error(t, err)
}

func TestConcatAndDistinct(t *testing.T) {
	a, err := FromNames([]string{"id", "name"}, [][]any{{int64(1), "x"}, {int64(2), "y"}})
	require.NoError(t, err)
	b, err := FromNames([]string{"id", "name", "extra"}, [][]any{{int64(2), "y", nil}, {int64(3), "z", true}})
	require.NoError(t, err)

	all := Concat(a, b)
	assert.Equal(t, []string{"id", "name", "extra"}, all.ColumnNames())
	assert.Equal(t, 4, all.Len())
	assert.Equal(t, []any{int64(1), "x", nil}, all.Row(0))

	deduped := all.Distinct()
	assert.Equal(t, 3, deduped.Len())
	assert.Equal(t, []any{int64(3), "z", true}, deduped.Row(2))
}

func TestDistinct_SeparatorBytesInStrings(t *testing.T) {
	data, err := FromNames([]string{"a", "b"}, [][]any{
		{"a\x1fs:b", "c"},
		{"a", "b\x1fs:c"},
		{"a", "b\x1fs:c"},
	})
	require.NoError(t, err)

	deduped := data.Distinct()
	assert.Equal(t, 2, deduped.Len())
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name string
		a, b []any
		same bool
	}{
		{"int and float", []any{int64(2)}, []any{2.0}, true},
		{"equal strings", []any{"x", nil}, []any{"x", nil}, true},
		{"separator inside string", []any{"a\x1fs:b", "c"}, []any{"a", "b\x1fs:c"}, false},
		{"shifted boundary", []any{"ab", "c"}, []any{"a", "bc"}, false},
		{"nil vs empty string", []any{nil}, []any{""}, false},
		{"string vs number", []any{"1"}, []any{int64(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, keyOf(tt.a) == keyOf(tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
		ok   bool
	}{
		{"ints", int64(1), int64(2), -1, true},
		{"int and float", int64(2), 2.0, 0, true},
		{"number and numeric string", int64(10), "9", 1, true},
		{"strings", "b", "a", 1, true},
		{"bools", false, true, -1, true},
		{"nil", nil, int64(1), 0, false},
		{"string vs number", "abc", int64(1), 0, false},
		{"times", time.Unix(10, 0), time.Unix(5, 0), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func collectRows(t *Table) [][]any {
	out := make([][]any, t.Len())
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}
