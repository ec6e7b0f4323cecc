package table

// Concat stacks tables in order. The output columns are the first table's
// columns followed by any new columns from later tables; values a table lacks
// are null.
func Concat(tables ...*Table) *Table {
	if len(tables) == 0 {
		return Empty()
	}

	var cols []Column
	pos := make(map[string]int)
	for _, t := range tables {
		for _, c := range t.columns {
			if _, ok := pos[c.Name]; !ok {
				pos[c.Name] = len(cols)
				cols = append(cols, c)
			}
		}
	}

	total := 0
	for _, t := range tables {
		total += len(t.rows)
	}

	rows := make([][]any, 0, total)
	for _, t := range tables {
		mapping := make([]int, len(t.columns))
		for i, c := range t.columns {
			mapping[i] = pos[c.Name]
		}
		for _, r := range t.rows {
			out := make([]any, len(cols))
			for i, v := range r {
				out[mapping[i]] = v
			}
			rows = append(rows, out)
		}
	}

	return must(New(cols, rows))
}

// Distinct removes duplicate rows, keeping the first occurrence.
func (t *Table) Distinct() *Table {
	seen := make(map[string]bool, len(t.rows))
	return t.Filter(func(i int) bool {
		k := keyOf(t.rows[i])
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
}
