package table

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// AggFunc is an aggregation function.
type AggFunc string

// Supported aggregation functions.
const (
	AggSum    AggFunc = "sum"
	AggMean   AggFunc = "mean"
	AggMedian AggFunc = "median"
	AggMin    AggFunc = "min"
	AggMax    AggFunc = "max"
	AggCount  AggFunc = "count"
	AggStd    AggFunc = "std"
	AggVar    AggFunc = "var"
)

// ParseAggFunc parses a case-insensitive aggregation function name.
func ParseAggFunc(s string) (AggFunc, bool) {
	f := AggFunc(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case AggSum, AggMean, AggMedian, AggMin, AggMax, AggCount, AggStd, AggVar:
		return f, true
	}
	return "", false
}

// Aggregation is one output column of an aggregate.
type Aggregation struct {
	Column string
	Func   AggFunc
	Alias  string
}

// OutputName returns the alias, or column_function when no alias is set.
func (a Aggregation) OutputName() string {
	if a.Alias != "" {
		return a.Alias
	}
	return fmt.Sprintf("%s_%s", a.Column, a.Func)
}

// Aggregate groups rows by the groupBy columns and computes aggs per group.
// Groups appear in order of first occurrence. Rows with a null group key are
// dropped. With no groupBy columns the whole table forms a single group.
func (t *Table) Aggregate(groupBy []string, aggs []Aggregation) (*Table, error) {
	if missing := t.MissingColumns(groupBy); len(missing) > 0 {
		return nil, core.ErrValidation("group by columns not found: %s", strings.Join(missing, ", "))
	}

	seen := make(map[string]bool, len(aggs))
	for _, a := range aggs {
		if !t.HasColumn(a.Column) {
			return nil, core.ErrValidation("column not found: %s", a.Column)
		}
		name := a.OutputName()
		if seen[name] {
			return nil, core.ErrValidation("duplicate aggregation output column %q", name)
		}
		seen[name] = true
	}

	keyIdx := make([]int, len(groupBy))
	for i, g := range groupBy {
		keyIdx[i] = t.index[g]
	}

	grouped := make(map[string][]int)
	order := make([]string, 0)
	firstRow := make(map[string]int)

	for r, row := range t.rows {
		keyVals := make([]any, len(keyIdx))
		skip := false
		for i, c := range keyIdx {
			if row[c] == nil {
				skip = true
				break
			}
			keyVals[i] = row[c]
		}
		if skip {
			continue
		}
		key := keyOf(keyVals)
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
			firstRow[key] = r
		}
		grouped[key] = append(grouped[key], r)
	}

	if len(groupBy) == 0 && len(order) == 0 {
		order = append(order, "")
		grouped[""] = nil
	}

	cols := make([]Column, 0, len(groupBy)+len(aggs))
	for _, c := range keyIdx {
		cols = append(cols, t.columns[c])
	}
	for _, a := range aggs {
		cols = append(cols, Column{Name: a.OutputName(), Type: aggType(a.Func, t.columns[t.index[a.Column]].Type)})
	}

	rows := make([][]any, 0, len(order))
	for _, key := range order {
		members := grouped[key]
		out := make([]any, 0, len(cols))
		if len(groupBy) > 0 {
			src := t.rows[firstRow[key]]
			for _, c := range keyIdx {
				out = append(out, src[c])
			}
		}
		for _, a := range aggs {
			values := make([]any, len(members))
			c := t.index[a.Column]
			for i, r := range members {
				values[i] = t.rows[r][c]
			}
			v, err := aggregateValues(a.Func, values)
			if err != nil {
				return nil, core.ErrExecution(err, "aggregate %s(%s)", a.Func, a.Column)
			}
			out = append(out, v)
		}
		rows = append(rows, out)
	}

	return New(cols, rows)
}

func aggType(f AggFunc, input core.StandardType) core.StandardType {
	switch f {
	case AggCount:
		return core.TypeInteger
	case AggSum:
		if input == core.TypeInteger {
			return core.TypeInteger
		}
		return core.TypeFloat
	case AggMin, AggMax:
		return input
	default:
		return core.TypeFloat
	}
}

func aggregateValues(f AggFunc, values []any) (any, error) {
	nonNull := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			nonNull = append(nonNull, v)
		}
	}

	switch f {
	case AggCount:
		return int64(len(nonNull)), nil
	case AggMin, AggMax:
		return extreme(f, nonNull)
	}

	nums, allInts, err := numbers(nonNull)
	if err != nil {
		return nil, err
	}

	switch f {
	case AggSum:
		if allInts {
			var s int64
			for _, v := range nonNull {
				n, _ := v.(int64)
				s += n
			}
			return s, nil
		}
		var s float64
		for _, n := range nums {
			s += n
		}
		return s, nil
	case AggMean:
		if len(nums) == 0 {
			return nil, nil
		}
		return mean(nums), nil
	case AggMedian:
		if len(nums) == 0 {
			return nil, nil
		}
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], nil
		}
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	case AggVar:
		return variance(nums), nil
	case AggStd:
		v := variance(nums)
		if v == nil {
			return nil, nil
		}
		return math.Sqrt(v.(float64)), nil
	}
	return nil, fmt.Errorf("unknown aggregation function %q", f)
}

func numbers(values []any) ([]float64, bool, error) {
	out := make([]float64, len(values))
	allInts := true
	for i, v := range values {
		if !isNumber(v) {
			return nil, false, fmt.Errorf("non-numeric value %v", v)
		}
		if _, ok := v.(int64); !ok {
			allInts = false
		}
		out[i], _ = ToFloat(v)
	}
	return out, allInts, nil
}

func mean(nums []float64) float64 {
	var s float64
	for _, n := range nums {
		s += n
	}
	return s / float64(len(nums))
}

// variance is the sample variance (n-1 denominator); nil below two values.
func variance(nums []float64) any {
	if len(nums) < 2 {
		return nil
	}
	m := mean(nums)
	var ss float64
	for _, n := range nums {
		ss += (n - m) * (n - m)
	}
	return ss / float64(len(nums)-1)
}

func extreme(f AggFunc, values []any) (any, error) {
	var best any
	for _, v := range values {
		if best == nil {
			best = v
			continue
		}
		c, ok := Compare(v, best)
		if !ok {
			return nil, fmt.Errorf("cannot compare %v and %v", v, best)
		}
		if (f == AggMin && c < 0) || (f == AggMax && c > 0) {
			best = v
		}
	}
	return best, nil
}
