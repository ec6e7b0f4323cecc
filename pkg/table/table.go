// Package table provides the in-memory tabular value shared by connectors and
// the transformation engine.
//
// A Table is an ordered set of named, typed columns plus an ordered sequence of
// rows. Tables are immutable: every operation returns a new Table and never
// mutates its inputs.
package table

import (
	"fmt"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Column is a named, typed column of a Table.
type Column struct {
	Name string
	Type core.StandardType
}

// Table is an immutable in-memory table.
type Table struct {
	columns []Column
	index   map[string]int
	rows    [][]any
}

// New builds a table from columns and rows. Column names must be unique and
// every row must have one value per column. Columns with an empty Type get
// one inferred from their first non-null value.
func New(columns []Column, rows [][]any) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(r), len(columns))
		}
	}

	cols := make([]Column, len(columns))
	copy(cols, columns)
	for i := range cols {
		if cols[i].Type == "" {
			cols[i].Type = inferType(rows, i)
		}
	}

	return &Table{columns: cols, index: index, rows: rows}, nil
}

// FromNames builds a table whose column types are inferred from the data.
func FromNames(names []string, rows [][]any) (*Table, error) {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	return New(cols, rows)
}

// Empty returns a table with the given columns and no rows.
func Empty(columns ...Column) *Table {
	t, err := New(columns, nil)
	if err != nil {
		return &Table{index: map[string]int{}}
	}
	return t
}

// must is used by operations that construct tables whose shape is already
// guaranteed by the caller.
func must(t *Table, err error) *Table {
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Columns returns a copy of the column descriptors.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the ordinal position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// ColumnType returns the type of the named column.
func (t *Table) ColumnType(name string) (core.StandardType, bool) {
	i, ok := t.index[name]
	if !ok {
		return "", false
	}
	return t.columns[i].Type, true
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []any {
	out := make([]any, len(t.rows[i]))
	copy(out, t.rows[i])
	return out
}

// Value returns the value of column name in row i.
func (t *Table) Value(i int, name string) (any, bool) {
	c, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.rows[i][c], true
}

// Values returns all values of the named column in row order.
func (t *Table) Values(name string) ([]any, error) {
	c, ok := t.index[name]
	if !ok {
		return nil, core.ErrValidation("column not found: %s", name)
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[c]
	}
	return out, nil
}

// Records returns every row as a column-name keyed map.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for i, r := range t.rows {
		rec := make(map[string]any, len(t.columns))
		for j, c := range t.columns {
			rec[c.Name] = r[j]
		}
		out[i] = rec
	}
	return out
}

// MissingColumns returns the names from want that the table lacks, in order.
func (t *Table) MissingColumns(want []string) []string {
	var missing []string
	for _, name := range want {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Head returns the first n rows. n <= 0 or n >= Len returns t unchanged.
func (t *Table) Head(n int) *Table {
	if n <= 0 || n >= len(t.rows) {
		return t
	}
	return &Table{columns: t.columns, index: t.index, rows: t.rows[:n:n]}
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	rows := make([][]any, 0, len(t.rows))
	for i, r := range t.rows {
		if keep(i) {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}
