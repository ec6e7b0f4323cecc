package table

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Sort returns the rows ordered by columns; ascending[i] applies to columns[i].
// The sort is stable and nulls always sort last.
func (t *Table) Sort(columns []string, ascending []bool) (*Table, error) {
	if len(columns) != len(ascending) {
		return nil, core.ErrValidation("length of columns (%d) and ascending (%d) must match", len(columns), len(ascending))
	}
	if missing := t.MissingColumns(columns); len(missing) > 0 {
		return nil, core.ErrValidation("columns not found: %s", strings.Join(missing, ", "))
	}

	idx := columnIndexes(t, columns)
	rows := make([][]any, len(t.rows))
	copy(rows, t.rows)

	sort.SliceStable(rows, func(i, j int) bool {
		for k, c := range idx {
			a, b := rows[i][c], rows[j][c]
			switch {
			case a == nil && b == nil:
				continue
			case a == nil:
				return false
			case b == nil:
				return true
			}
			cmp, ok := Compare(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if ascending[k] {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})

	return &Table{columns: t.columns, index: t.index, rows: rows}, nil
}
