package connector

import (
	"context"

	"github.com/leapstack-labs/leapquery/pkg/table"
)

// DefaultSampleLimit is the number of sample values returned when limit <= 0.
const DefaultSampleLimit = 10

// SampleValues returns up to limit distinct non-null values of a column, read
// through PreviewData. It is a UI convenience: retrieval errors and unknown
// columns yield an empty slice.
func SampleValues(ctx context.Context, c Connector, tableName, column string, limit int) []any {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}

	preview, err := c.PreviewData(ctx, tableName, "", limit)
	if err != nil || !preview.HasColumn(column) {
		return []any{}
	}

	single, err := preview.Project(column)
	if err != nil {
		return []any{}
	}
	distinct := single.Filter(func(i int) bool {
		v, _ := single.Value(i, column)
		return v != nil
	}).Distinct()

	out := make([]any, 0, distinct.Len())
	for i := 0; i < distinct.Len() && len(out) < limit; i++ {
		v, _ := distinct.Value(i, column)
		out = append(out, v)
	}
	return out
}

// ReadAll loads an entire table through PreviewData and optionally narrows it
// to columns, failing when any requested column is absent.
func ReadAll(ctx context.Context, c Connector, tableName, schema string, columns []string) (*table.Table, error) {
	data, err := c.PreviewData(ctx, tableName, schema, 0)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return data, nil
	}
	return data.Project(columns...)
}
