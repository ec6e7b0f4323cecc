// Package query compiles semantic selections into SQL and routes the
// compiled query to the data source that hosts the entity's table.
package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Compiled is parameterized query text. Parameters appear in SQL as
// :param_i, or :param_i_j for the j-th element of a list filter.
type Compiled struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
}

// Compile synthesizes the query for req against e. Selection order is
// preserved: dimensions, then measures, in the order requested.
//
// Filters whose value is nil are skipped, as are list filters with an empty
// list. Null checks never take a parameter.
func Compile(e *semantic.Entity, req semantic.QueryRequest) (*Compiled, error) {
	dims := make([]semantic.Dimension, 0, len(req.DimensionIDs))
	for _, id := range req.DimensionIDs {
		d, ok := e.Dimension(id)
		if !ok {
			return nil, core.ErrValidation("unknown dimension %q on entity %q", id, e.Name)
		}
		dims = append(dims, d)
	}

	selects := make([]string, 0, len(req.DimensionIDs)+len(req.MeasureIDs))
	for _, d := range dims {
		selects = append(selects, d.Column)
	}
	for _, id := range req.MeasureIDs {
		m, ok := e.Measure(id)
		if !ok {
			return nil, core.ErrValidation("unknown measure %q on entity %q", id, e.Name)
		}
		selects = append(selects, fmt.Sprintf("%s(%s) as %s", m.Aggregation, m.Column, m.Alias()))
	}
	if len(selects) == 0 {
		return nil, core.ErrValidation("nothing selected")
	}

	params := make(map[string]any)
	var where []string
	for i, f := range req.Filters {
		d, ok := e.Dimension(f.DimensionID)
		if !ok {
			return nil, core.ErrValidation("filter %d: unknown dimension %q", i, f.DimensionID)
		}
		op, ok := semantic.ParseOperator(string(f.Operator))
		if !ok {
			return nil, core.ErrValidation("filter %d: unsupported operator %q", i, f.Operator)
		}

		switch {
		case op.IsNullCheck():
			where = append(where, fmt.Sprintf("%s %s", d.Column, op))
		case op.IsList():
			values, err := listValues(f.Value)
			if err != nil {
				return nil, core.ErrValidation("filter %d: %s requires a list value", i, op)
			}
			if len(values) == 0 {
				continue
			}
			marks := make([]string, len(values))
			for j, v := range values {
				name := fmt.Sprintf("param_%d_%d", i, j)
				marks[j] = ":" + name
				params[name] = v
			}
			where = append(where, fmt.Sprintf("%s %s (%s)", d.Column, op, strings.Join(marks, ", ")))
		default:
			if f.Value == nil {
				continue
			}
			name := fmt.Sprintf("param_%d", i)
			where = append(where, fmt.Sprintf("%s %s :%s", d.Column, op, name))
			params[name] = f.Value
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = semantic.DefaultLimit
	}

	parts := []string{
		"SELECT " + strings.Join(selects, ", "),
		"FROM " + from(e),
	}
	if len(where) > 0 {
		parts = append(parts, "WHERE "+strings.Join(where, " AND "))
	}
	if len(dims) > 0 {
		groups := make([]string, len(dims))
		for i, d := range dims {
			groups[i] = d.Column
		}
		parts = append(parts, "GROUP BY "+strings.Join(groups, ", "))
	}
	parts = append(parts, fmt.Sprintf("LIMIT %d", limit))

	return &Compiled{SQL: strings.Join(parts, "\n"), Params: params}, nil
}

// from returns the primary table, or the derived definition aliased to it.
func from(e *semantic.Entity) string {
	if def := strings.TrimSpace(e.SQLDefinition); def != "" {
		return fmt.Sprintf("(%s) AS %s", strings.TrimSuffix(def, ";"), e.PrimaryTable)
	}
	return e.PrimaryTable
}

// listValues flattens a list filter value. Nil is an empty list.
func listValues(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if vs, ok := v.([]any); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("not a list: %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
