package transform

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
	"golang.org/x/text/cases"
)

type filterOp string

const (
	opEq         filterOp = "=="
	opNe         filterOp = "!="
	opGt         filterOp = ">"
	opGe         filterOp = ">="
	opLt         filterOp = "<"
	opLe         filterOp = "<="
	opIn         filterOp = "in"
	opNotIn      filterOp = "not in"
	opContains   filterOp = "contains"
	opStartsWith filterOp = "startswith"
	opEndsWith   filterOp = "endswith"
	opIsNull     filterOp = "is null"
	opIsNotNull  filterOp = "is not null"
)

func parseFilterOp(s string) (filterOp, bool) {
	op := filterOp(strings.Join(strings.Fields(strings.ToLower(s)), " "))
	switch op {
	case opEq, opNe, opGt, opGe, opLt, opLe, opIn, opNotIn,
		opContains, opStartsWith, opEndsWith, opIsNull, opIsNotNull:
		return op, true
	case "=":
		return opEq, true
	}
	return "", false
}

func (op filterOp) takesList() bool { return op == opIn || op == opNotIn }

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func listOf(v any) []any {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

var fold = cases.Fold()

// applyFilter keeps the rows of t matching cfg.
func applyFilter(t *table.Table, cfg FilterConfig) (*table.Table, error) {
	columns := make([]string, 0, len(cfg.Conditions))
	for _, c := range cfg.Conditions {
		columns = append(columns, c.Column)
	}
	if missing := t.MissingColumns(columns); len(missing) > 0 {
		return nil, core.ErrValidation("filter columns not found: %s", strings.Join(missing, ", "))
	}

	matchers := make([]func(any) (bool, error), len(cfg.Conditions))
	for i, c := range cfg.Conditions {
		m, err := matcher(c)
		if err != nil {
			return nil, err
		}
		matchers[i] = m
	}
	or := strings.EqualFold(cfg.LogicalOperator, "OR")

	var evalErr error
	out := t.Filter(func(r int) bool {
		if evalErr != nil {
			return false
		}
		if len(matchers) == 0 {
			return true
		}
		for i, m := range matchers {
			v, _ := t.Value(r, cfg.Conditions[i].Column)
			ok, err := m(v)
			if err != nil {
				evalErr = err
				return false
			}
			if or && ok {
				return true
			}
			if !or && !ok {
				return false
			}
		}
		return !or
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return out, nil
}

// matcher builds the row predicate of one condition. Comparisons involving
// null or incomparable values are false, except != which is true. Ordering
// incomparable values is an error.
func matcher(c Condition) (func(any) (bool, error), error) {
	op, ok := parseFilterOp(c.Operator)
	if !ok {
		return nil, core.ErrValidation("unknown operator: %s", c.Operator)
	}

	switch op {
	case opIsNull:
		return func(v any) (bool, error) { return v == nil, nil }, nil
	case opIsNotNull:
		return func(v any) (bool, error) { return v != nil, nil }, nil
	case opIn, opNotIn:
		if !isList(c.Value) {
			return nil, core.ErrValidation("operator %s on %s requires a list value", op, c.Column)
		}
		set := listOf(c.Value)
		return func(v any) (bool, error) {
			found := false
			for _, want := range set {
				if table.Equal(v, want) {
					found = true
					break
				}
			}
			return found == (op == opIn), nil
		}, nil
	case opContains, opStartsWith, opEndsWith:
		needle := fold.String(fmt.Sprint(c.Value))
		return func(v any) (bool, error) {
			if v == nil {
				return false, nil
			}
			s := fold.String(fmt.Sprint(v))
			switch op {
			case opContains:
				return strings.Contains(s, needle), nil
			case opStartsWith:
				return strings.HasPrefix(s, needle), nil
			default:
				return strings.HasSuffix(s, needle), nil
			}
		}, nil
	}

	want := c.Value
	return func(v any) (bool, error) {
		if v == nil || want == nil {
			switch op {
			case opEq:
				return v == nil && want == nil, nil
			case opNe:
				return !(v == nil && want == nil), nil
			}
			return false, nil
		}
		cmp, ok := table.Compare(v, want)
		if !ok {
			// Values of different kinds are never equal.
			switch op {
			case opEq:
				return false, nil
			case opNe:
				return true, nil
			}
			return false, core.ErrExecution(nil, "cannot compare %s value %v with %v", c.Column, v, want)
		}
		switch op {
		case opEq:
			return cmp == 0, nil
		case opNe:
			return cmp != 0, nil
		case opGt:
			return cmp > 0, nil
		case opGe:
			return cmp >= 0, nil
		case opLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	}, nil
}
