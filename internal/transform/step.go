// Package transform runs pipelines of typed relational steps over in-memory
// tables and records each run.
package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// StepKind is one of the seven step types.
type StepKind string

// Step kinds.
const (
	KindSource    StepKind = "source"
	KindFilter    StepKind = "filter"
	KindJoin      StepKind = "join"
	KindAggregate StepKind = "aggregate"
	KindSelect    StepKind = "select"
	KindSort      StepKind = "sort"
	KindUnion     StepKind = "union"
)

// PreviousAlias is the join sentinel for the preceding step's output.
const PreviousAlias = "previous"

// requiredKeys lists the configuration keys each kind must carry.
var requiredKeys = map[StepKind][]string{
	KindSource:    {"data_source_id", "table_name"},
	KindFilter:    {"conditions"},
	KindJoin:      {"left_source", "right_source", "left_on", "right_on"},
	KindAggregate: {"group_by", "aggregations"},
	KindSelect:    {"columns"},
	KindSort:      {"columns"},
	KindUnion:     {"sources"},
}

// ParseStepKind reports whether s names a known step kind.
func ParseStepKind(s string) (StepKind, bool) {
	k := StepKind(strings.ToLower(strings.TrimSpace(s)))
	_, ok := requiredKeys[k]
	return k, ok
}

// RawStep is a step as authored: a type tag and a free-form configuration.
type RawStep struct {
	Order         int            `yaml:"step_order" json:"step_order"`
	Type          string         `yaml:"step_type" json:"step_type"`
	Name          string         `yaml:"step_name,omitempty" json:"step_name,omitempty"`
	Configuration map[string]any `yaml:"configuration" json:"configuration"`
	OutputAlias   string         `yaml:"output_alias,omitempty" json:"output_alias,omitempty"`
	Input         string         `yaml:"input,omitempty" json:"input,omitempty"`
}

// StepConfig is the typed configuration of a step. The set of implementations
// is closed to this package.
type StepConfig interface {
	Kind() StepKind
	check() []string
}

// SourceConfig loads a table from a data source.
type SourceConfig struct {
	DataSourceID string   `mapstructure:"data_source_id"`
	TableName    string   `mapstructure:"table_name"`
	SchemaName   string   `mapstructure:"schema_name"`
	Columns      []string `mapstructure:"columns"`
}

// Condition is one filter predicate.
type Condition struct {
	Column   string `mapstructure:"column"`
	Operator string `mapstructure:"operator"`
	Value    any    `mapstructure:"value"`
}

// FilterConfig keeps rows matching its conditions.
type FilterConfig struct {
	Conditions      []Condition `mapstructure:"conditions"`
	LogicalOperator string      `mapstructure:"logical_operator"`
}

// JoinConfig joins two named results.
type JoinConfig struct {
	LeftSource  string   `mapstructure:"left_source"`
	RightSource string   `mapstructure:"right_source"`
	JoinType    string   `mapstructure:"join_type"`
	LeftOn      []string `mapstructure:"left_on"`
	RightOn     []string `mapstructure:"right_on"`
	SuffixLeft  string   `mapstructure:"suffix_left"`
	SuffixRight string   `mapstructure:"suffix_right"`
}

// AggregationSpec is one aggregate output column.
type AggregationSpec struct {
	Column   string `mapstructure:"column"`
	Function string `mapstructure:"function"`
	Alias    string `mapstructure:"alias"`
}

// AggregateConfig groups rows and computes aggregations.
type AggregateConfig struct {
	GroupBy      []string          `mapstructure:"group_by"`
	Aggregations []AggregationSpec `mapstructure:"aggregations"`
}

// SelectConfig projects and renames columns.
type SelectConfig struct {
	Columns []string          `mapstructure:"columns"`
	Rename  map[string]string `mapstructure:"rename"`
}

// SortConfig orders rows. Ascending defaults to true for every column.
type SortConfig struct {
	Columns   []string `mapstructure:"columns"`
	Ascending []bool   `mapstructure:"ascending"`
}

// UnionConfig concatenates named results.
type UnionConfig struct {
	Sources          []string `mapstructure:"sources"`
	RemoveDuplicates *bool    `mapstructure:"remove_duplicates"`
}

func (SourceConfig) Kind() StepKind    { return KindSource }
func (FilterConfig) Kind() StepKind    { return KindFilter }
func (JoinConfig) Kind() StepKind      { return KindJoin }
func (AggregateConfig) Kind() StepKind { return KindAggregate }
func (SelectConfig) Kind() StepKind    { return KindSelect }
func (SortConfig) Kind() StepKind      { return KindSort }
func (UnionConfig) Kind() StepKind     { return KindUnion }

func (c SourceConfig) check() []string {
	var p []string
	if c.DataSourceID == "" {
		p = append(p, "data_source_id is empty")
	}
	if c.TableName == "" {
		p = append(p, "table_name is empty")
	}
	return p
}

func (c FilterConfig) check() []string {
	var p []string
	for i, cond := range c.Conditions {
		if cond.Column == "" {
			p = append(p, fmt.Sprintf("condition %d: column is empty", i))
		}
		op, ok := parseFilterOp(cond.Operator)
		if !ok {
			p = append(p, fmt.Sprintf("condition %d: unknown operator %q", i, cond.Operator))
			continue
		}
		if op.takesList() && !isList(cond.Value) {
			p = append(p, fmt.Sprintf("condition %d: %s requires a list value", i, op))
		}
	}
	switch strings.ToUpper(c.LogicalOperator) {
	case "", "AND", "OR":
	default:
		p = append(p, fmt.Sprintf("unknown logical_operator %q", c.LogicalOperator))
	}
	return p
}

func (c JoinConfig) check() []string {
	var p []string
	if c.JoinType != "" {
		if _, ok := table.ParseJoinType(c.JoinType); !ok {
			p = append(p, fmt.Sprintf("unknown join_type %q", c.JoinType))
		}
	}
	if len(c.LeftOn) != len(c.RightOn) {
		p = append(p, fmt.Sprintf("left_on has %d columns but right_on has %d", len(c.LeftOn), len(c.RightOn)))
	}
	return p
}

func (c AggregateConfig) check() []string {
	var p []string
	seen := make(map[string]bool)
	for i, a := range c.Aggregations {
		if a.Column == "" {
			p = append(p, fmt.Sprintf("aggregation %d: column is empty", i))
		}
		f, ok := table.ParseAggFunc(a.Function)
		if !ok {
			p = append(p, fmt.Sprintf("aggregation %d: unknown function %q", i, a.Function))
			continue
		}
		name := table.Aggregation{Column: a.Column, Func: f, Alias: a.Alias}.OutputName()
		if seen[name] {
			p = append(p, fmt.Sprintf("aggregation %d: duplicate output column %q", i, name))
		}
		seen[name] = true
	}
	return p
}

func (c SelectConfig) check() []string {
	if len(c.Columns) == 0 {
		return []string{"columns is empty"}
	}
	return nil
}

func (c SortConfig) check() []string {
	var p []string
	if len(c.Columns) == 0 {
		p = append(p, "columns is empty")
	}
	if len(c.Ascending) > 0 && len(c.Ascending) != len(c.Columns) {
		p = append(p, fmt.Sprintf("length of columns (%d) and ascending (%d) must match", len(c.Columns), len(c.Ascending)))
	}
	return p
}

func (c UnionConfig) check() []string {
	if len(c.Sources) == 0 {
		return []string{"sources is empty"}
	}
	return nil
}

// applyDefaults fills optional settings.
func (c *JoinConfig) applyDefaults() {
	if c.JoinType == "" {
		c.JoinType = string(table.JoinInner)
	}
	if c.SuffixLeft == "" {
		c.SuffixLeft = "_left"
	}
	if c.SuffixRight == "" {
		c.SuffixRight = "_right"
	}
}

// removeDuplicates defaults to true.
func (c UnionConfig) removeDuplicates() bool {
	return c.RemoveDuplicates == nil || *c.RemoveDuplicates
}

// decodeConfig decodes a free-form configuration into the typed config of
// kind. It also returns configuration keys no field consumed.
func decodeConfig(kind StepKind, raw map[string]any) (StepConfig, []string, error) {
	var target any
	switch kind {
	case KindSource:
		target = &SourceConfig{}
	case KindFilter:
		target = &FilterConfig{}
	case KindJoin:
		target = &JoinConfig{}
	case KindAggregate:
		target = &AggregateConfig{}
	case KindSelect:
		target = &SelectConfig{}
	case KindSort:
		target = &SortConfig{}
	case KindUnion:
		target = &UnionConfig{}
	default:
		return nil, nil, fmt.Errorf("unknown step type: %s", kind)
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           target,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, nil, err
	}
	sort.Strings(md.Unused)

	switch c := target.(type) {
	case *SourceConfig:
		return *c, md.Unused, nil
	case *FilterConfig:
		return *c, md.Unused, nil
	case *JoinConfig:
		c.applyDefaults()
		return *c, md.Unused, nil
	case *AggregateConfig:
		return *c, md.Unused, nil
	case *SelectConfig:
		return *c, md.Unused, nil
	case *SortConfig:
		return *c, md.Unused, nil
	case *UnionConfig:
		return *c, md.Unused, nil
	}
	return nil, nil, fmt.Errorf("unknown step type: %s", kind)
}
