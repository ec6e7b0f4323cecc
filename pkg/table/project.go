package table

import (
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Project returns a table with exactly the listed columns, in the listed order.
func (t *Table) Project(names ...string) (*Table, error) {
	if missing := t.MissingColumns(names); len(missing) > 0 {
		return nil, core.ErrValidation("columns not found: %s", strings.Join(missing, ", "))
	}

	idx := make([]int, len(names))
	cols := make([]Column, len(names))
	for i, n := range names {
		idx[i] = t.index[n]
		cols[i] = t.columns[idx[i]]
	}

	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		out := make([]any, len(idx))
		for i, c := range idx {
			out[i] = row[c]
		}
		rows[r] = out
	}

	return New(cols, rows)
}

// Rename returns a table with columns renamed per mapping (old -> new).
// Mapping entries for absent columns are ignored, as are identity renames.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	if len(mapping) == 0 {
		return t, nil
	}
	cols := t.Columns()
	for i, c := range cols {
		if n, ok := mapping[c.Name]; ok && n != "" {
			cols[i].Name = n
		}
	}
	renamed, err := New(cols, t.rows)
	if err != nil {
		return nil, core.ErrValidation("rename: %v", err)
	}
	return renamed, nil
}
