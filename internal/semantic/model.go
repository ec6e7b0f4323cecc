// Package semantic defines the business-facing model the query compiler
// consumes: entities mapped to physical tables, with groupable dimensions
// and aggregatable measures.
package semantic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// DimensionType is the declared type of a dimension.
type DimensionType string

// Dimension types.
const (
	DimString  DimensionType = "string"
	DimInteger DimensionType = "integer"
	DimDate    DimensionType = "date"
	DimBoolean DimensionType = "boolean"
	DimDecimal DimensionType = "decimal"
)

func (t DimensionType) valid() bool {
	switch t {
	case DimString, DimInteger, DimDate, DimBoolean, DimDecimal:
		return true
	}
	return false
}

// Aggregation is a SQL aggregate function applied by a measure.
type Aggregation string

// Supported aggregations.
const (
	AggSum    Aggregation = "SUM"
	AggCount  Aggregation = "COUNT"
	AggAvg    Aggregation = "AVG"
	AggMin    Aggregation = "MIN"
	AggMax    Aggregation = "MAX"
	AggMedian Aggregation = "MEDIAN"
	AggStddev Aggregation = "STDDEV"
)

// ParseAggregation normalizes s to a known aggregation.
func ParseAggregation(s string) (Aggregation, bool) {
	a := Aggregation(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case AggSum, AggCount, AggAvg, AggMin, AggMax, AggMedian, AggStddev:
		return a, true
	}
	return "", false
}

// Entity is a named business object backed by one physical table.
type Entity struct {
	ID            string      `yaml:"id" json:"id"`
	Name          string      `yaml:"name" json:"name"`
	PluralName    string      `yaml:"plural_name,omitempty" json:"plural_name,omitempty"`
	Description   string      `yaml:"description,omitempty" json:"description,omitempty"`
	PrimaryTable  string      `yaml:"primary_table" json:"primary_table"`
	SQLDefinition string      `yaml:"sql_definition,omitempty" json:"sql_definition,omitempty"`
	Certified     bool        `yaml:"certified,omitempty" json:"certified"`
	Tags          []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Dimensions    []Dimension `yaml:"dimensions" json:"dimensions"`
	Measures      []Measure   `yaml:"measures" json:"measures"`
}

// Dimension is a groupable attribute of an entity.
type Dimension struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Column       string        `yaml:"sql_column" json:"sql_column"`
	Type         DimensionType `yaml:"data_type" json:"data_type"`
	DisplayOrder int           `yaml:"display_order,omitempty" json:"display_order"`
	Hidden       bool          `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// Measure is an aggregatable metric of an entity.
type Measure struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Aggregation Aggregation `yaml:"aggregation" json:"aggregation"`
	Column      string      `yaml:"base_column" json:"base_column"`
	Format      string      `yaml:"format,omitempty" json:"format,omitempty"`
	Hidden      bool        `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// Alias is the output column name of the measure in compiled SQL.
func (m Measure) Alias() string {
	return strings.ReplaceAll(strings.ToLower(m.Name), " ", "_")
}

// Dimension returns the dimension with the given id.
func (e *Entity) Dimension(id string) (Dimension, bool) {
	for _, d := range e.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// Measure returns the measure with the given id.
func (e *Entity) Measure(id string) (Measure, bool) {
	for _, m := range e.Measures {
		if m.ID == id {
			return m, true
		}
	}
	return Measure{}, false
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives an identifier from a display name.
func Slug(name string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// Normalize fills derived ids, upper-cases aggregations and orders
// dimensions by display order. Equal display orders keep declaration order.
func (e *Entity) Normalize() {
	if e.ID == "" {
		e.ID = Slug(e.Name)
	}
	for i := range e.Dimensions {
		d := &e.Dimensions[i]
		if d.ID == "" {
			d.ID = Slug(d.Name)
		}
		if d.Type == "" {
			d.Type = DimString
		}
		d.Type = DimensionType(strings.ToLower(string(d.Type)))
	}
	for i := range e.Measures {
		m := &e.Measures[i]
		if m.ID == "" {
			m.ID = Slug(m.Name)
		}
		if a, ok := ParseAggregation(string(m.Aggregation)); ok {
			m.Aggregation = a
		}
	}
	sort.SliceStable(e.Dimensions, func(i, j int) bool {
		return e.Dimensions[i].DisplayOrder < e.Dimensions[j].DisplayOrder
	})
}

// Validate reports every structural problem with the entity.
func (e *Entity) Validate() error {
	var problems []string
	if e.Name == "" {
		problems = append(problems, "name is required")
	}
	if e.PrimaryTable == "" {
		problems = append(problems, "primary_table is required")
	}

	ids := make(map[string]bool)
	for i, d := range e.Dimensions {
		switch {
		case d.ID == "":
			problems = append(problems, fmt.Sprintf("dimension %d: id or name is required", i))
		case ids[d.ID]:
			problems = append(problems, fmt.Sprintf("duplicate id %q", d.ID))
		}
		ids[d.ID] = true
		if d.Column == "" {
			problems = append(problems, fmt.Sprintf("dimension %q: sql_column is required", d.ID))
		}
		if !d.Type.valid() {
			problems = append(problems, fmt.Sprintf("dimension %q: unknown data_type %q", d.ID, d.Type))
		}
	}
	for i, m := range e.Measures {
		switch {
		case m.ID == "":
			problems = append(problems, fmt.Sprintf("measure %d: id or name is required", i))
		case ids[m.ID]:
			problems = append(problems, fmt.Sprintf("duplicate id %q", m.ID))
		}
		ids[m.ID] = true
		if m.Column == "" {
			problems = append(problems, fmt.Sprintf("measure %q: base_column is required", m.ID))
		}
		if _, ok := ParseAggregation(string(m.Aggregation)); !ok {
			problems = append(problems, fmt.Sprintf("measure %q: unknown aggregation %q", m.ID, m.Aggregation))
		}
	}

	if len(problems) > 0 {
		return core.ErrValidationProblems(fmt.Sprintf("invalid entity %q", e.Name), problems)
	}
	return nil
}
