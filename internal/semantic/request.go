package semantic

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Row limits applied to query requests.
const (
	DefaultLimit = 1000
	MaxLimit     = 10000
)

// Operator is a filter comparison operator.
type Operator string

// Filter operators.
const (
	OpEq        Operator = "="
	OpNe        Operator = "!="
	OpGt        Operator = ">"
	OpLt        Operator = "<"
	OpGe        Operator = ">="
	OpLe        Operator = "<="
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT IN"
	OpLike      Operator = "LIKE"
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
)

var operators = []Operator{OpEq, OpNe, OpGe, OpLe, OpGt, OpLt, OpNotIn, OpIn, OpLike, OpIsNotNull, OpIsNull}

// ParseOperator normalizes case and inner whitespace of s.
func ParseOperator(s string) (Operator, bool) {
	op := Operator(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	for _, known := range operators {
		if op == known {
			return op, true
		}
	}
	return "", false
}

// IsNullCheck reports whether the operator takes no value.
func (o Operator) IsNullCheck() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// IsList reports whether the operator takes a list of values.
func (o Operator) IsList() bool {
	return o == OpIn || o == OpNotIn
}

// Filter restricts a query on one dimension.
type Filter struct {
	DimensionID string   `json:"dimension_id" yaml:"dimension_id"`
	Operator    Operator `json:"operator" yaml:"operator"`
	Value       any      `json:"value,omitempty" yaml:"value,omitempty"`
}

// QueryRequest is a business-level selection against one entity.
type QueryRequest struct {
	EntityID     string   `json:"entity_id" yaml:"entity_id"`
	DimensionIDs []string `json:"dimension_ids" yaml:"dimension_ids"`
	MeasureIDs   []string `json:"measure_ids" yaml:"measure_ids"`
	Filters      []Filter `json:"filters,omitempty" yaml:"filters,omitempty"`
	Limit        int      `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Limits bounds the row limit of a request.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits returns the standard request limits.
func DefaultLimits() Limits {
	return Limits{Default: DefaultLimit, Max: MaxLimit}
}

// Validate checks the request against e, normalizes operators and applies
// the default limit. All problems are collected into one ValidationError.
func (r *QueryRequest) Validate(e *Entity, limits Limits) error {
	if limits.Default <= 0 {
		limits.Default = DefaultLimit
	}
	if limits.Max <= 0 {
		limits.Max = MaxLimit
	}

	var problems []string
	if len(r.MeasureIDs) == 0 {
		problems = append(problems, "at least one measure is required")
	}
	for _, id := range r.DimensionIDs {
		if _, ok := e.Dimension(id); !ok {
			problems = append(problems, fmt.Sprintf("invalid dimension ID %q", id))
		}
	}
	for _, id := range r.MeasureIDs {
		if _, ok := e.Measure(id); !ok {
			problems = append(problems, fmt.Sprintf("invalid measure ID %q", id))
		}
	}
	for i := range r.Filters {
		f := &r.Filters[i]
		if _, ok := e.Dimension(f.DimensionID); !ok {
			problems = append(problems, fmt.Sprintf("filter %d: invalid dimension ID %q", i, f.DimensionID))
		}
		op, ok := ParseOperator(string(f.Operator))
		if !ok {
			problems = append(problems, fmt.Sprintf("filter %d: unsupported operator %q", i, f.Operator))
			continue
		}
		f.Operator = op
		if op.IsList() && f.Value != nil && !isList(f.Value) {
			problems = append(problems, fmt.Sprintf("filter %d: %s requires a list value", i, op))
		}
	}

	switch {
	case r.Limit == 0:
		r.Limit = limits.Default
	case r.Limit < 0:
		problems = append(problems, "limit must be positive")
	case r.Limit > limits.Max:
		problems = append(problems, fmt.Sprintf("limit %d exceeds maximum %d", r.Limit, limits.Max))
	}

	if len(problems) > 0 {
		return core.ErrValidationProblems("invalid query request", problems)
	}
	return nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
