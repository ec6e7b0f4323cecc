package table

import (
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// JoinType is a relational join type.
type JoinType string

// Supported join types.
const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

// ParseJoinType parses a join type; "outer" is accepted for full.
func ParseJoinType(s string) (JoinType, bool) {
	switch JoinType(strings.ToLower(strings.TrimSpace(s))) {
	case JoinInner:
		return JoinInner, true
	case JoinLeft:
		return JoinLeft, true
	case JoinRight:
		return JoinRight, true
	case JoinFull, "outer":
		return JoinFull, true
	}
	return "", false
}

// JoinSpec describes a join between two tables.
type JoinSpec struct {
	Type        JoinType
	LeftOn      []string
	RightOn     []string
	SuffixLeft  string
	SuffixRight string
}

// Join joins t (left) with right.
//
// Key columns with the same name on both sides appear once in the output.
// Other overlapping column names get SuffixLeft / SuffixRight appended.
// Rows come in left order (each left row followed by its matches in right
// order); a right join follows right order; a full join appends unmatched
// right rows after the left rows. Null keys never match.
func (t *Table) Join(right *Table, spec JoinSpec) (*Table, error) {
	if len(spec.LeftOn) == 0 || len(spec.LeftOn) != len(spec.RightOn) {
		return nil, core.ErrValidation("join requires the same number of left_on and right_on columns")
	}
	if missing := t.MissingColumns(spec.LeftOn); len(missing) > 0 {
		return nil, core.ErrValidation("left join columns not found: %s", strings.Join(missing, ", "))
	}
	if missing := right.MissingColumns(spec.RightOn); len(missing) > 0 {
		return nil, core.ErrValidation("right join columns not found: %s", strings.Join(missing, ", "))
	}

	leftKeys := columnIndexes(t, spec.LeftOn)
	rightKeys := columnIndexes(right, spec.RightOn)

	// Same-named key pairs collapse into a single output column.
	sharedKey := make(map[int]int) // right column index -> left column index
	for i := range spec.LeftOn {
		if spec.LeftOn[i] == spec.RightOn[i] {
			sharedKey[rightKeys[i]] = leftKeys[i]
		}
	}

	var rightCols []int
	for i := range right.columns {
		if _, shared := sharedKey[i]; !shared {
			rightCols = append(rightCols, i)
		}
	}

	rightNames := make(map[string]bool, len(rightCols))
	for _, i := range rightCols {
		rightNames[right.columns[i].Name] = true
	}
	leftNames := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		leftNames[c.Name] = true
	}

	cols := make([]Column, 0, len(t.columns)+len(rightCols))
	for _, c := range t.columns {
		if rightNames[c.Name] {
			c.Name += spec.SuffixLeft
		}
		cols = append(cols, c)
	}
	for _, i := range rightCols {
		c := right.columns[i]
		if leftNames[c.Name] {
			c.Name += spec.SuffixRight
		}
		cols = append(cols, c)
	}

	index := make(map[string][]int)
	for r, row := range right.rows {
		if key, ok := rowKey(row, rightKeys); ok {
			index[key] = append(index[key], r)
		}
	}

	build := func(l, r []any) []any {
		out := make([]any, 0, len(cols))
		if l != nil {
			out = append(out, l...)
		} else {
			out = append(out, make([]any, len(t.columns))...)
			for ri, li := range sharedKey {
				out[li] = r[ri]
			}
		}
		for _, i := range rightCols {
			if r != nil {
				out = append(out, r[i])
			} else {
				out = append(out, nil)
			}
		}
		return out
	}

	var rows [][]any
	if spec.Type == JoinRight {
		leftIndex := make(map[string][]int)
		for l, row := range t.rows {
			if key, ok := rowKey(row, leftKeys); ok {
				leftIndex[key] = append(leftIndex[key], l)
			}
		}
		for _, rrow := range right.rows {
			key, ok := rowKey(rrow, rightKeys)
			matches := leftIndex[key]
			if !ok || len(matches) == 0 {
				rows = append(rows, build(nil, rrow))
				continue
			}
			for _, l := range matches {
				rows = append(rows, build(t.rows[l], rrow))
			}
		}
	} else {
		matchedRight := make([]bool, len(right.rows))
		for _, lrow := range t.rows {
			key, ok := rowKey(lrow, leftKeys)
			matches := index[key]
			if !ok || len(matches) == 0 {
				if spec.Type == JoinLeft || spec.Type == JoinFull {
					rows = append(rows, build(lrow, nil))
				}
				continue
			}
			for _, r := range matches {
				matchedRight[r] = true
				rows = append(rows, build(lrow, right.rows[r]))
			}
		}
		if spec.Type == JoinFull {
			for r, rrow := range right.rows {
				if !matchedRight[r] {
					rows = append(rows, build(nil, rrow))
				}
			}
		}
	}

	joined, err := New(cols, rows)
	if err != nil {
		return nil, core.ErrValidation("join: %v", err)
	}
	return joined, nil
}

func columnIndexes(t *Table, names []string) []int {
	out := make([]int, len(names))
	for i, n := range names {
		out[i] = t.index[n]
	}
	return out
}

func rowKey(row []any, idx []int) (string, bool) {
	vals := make([]any, len(idx))
	for i, c := range idx {
		if row[c] == nil {
			return "", false
		}
		vals[i] = row[c]
	}
	return keyOf(vals), true
}
