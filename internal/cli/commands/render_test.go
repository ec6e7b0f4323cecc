package commands

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leapstack-labs/leapquery/internal/cli/testutil"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRun_Markdown(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	run := &transform.Run{
		ID:            "run-1",
		PipelineName:  "daily_sales",
		Status:        transform.RunStatusFailed,
		StartedAt:     started,
		CompletedAt:   &completed,
		RowsProcessed: 0,
		ErrorMessage:  "Step 1: unknown column \"amount\"",
		Steps: []transform.StepLog{
			{Order: 0, Type: transform.KindSource, Name: "load", OutputAlias: "orders", RowsOut: 5, Status: transform.RunStatusSuccess},
			{Order: 1, Type: transform.KindFilter, OutputAlias: "step_1", Status: transform.RunStatusFailed},
		},
	}

	tr := testutil.NewTestRendererMarkdown()
	renderRun(tr.Renderer, run)

	out := tr.Output()
	assert.Contains(t, out, "# Run run-1")
	assert.Contains(t, out, "- **Pipeline**: daily_sales")
	assert.Contains(t, out, "- **Status**: failed")
	assert.Contains(t, out, "unknown column")
	assert.Contains(t, out, "| load")
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
}

func TestListEntities_JSONEmpty(t *testing.T) {
	tr := testutil.NewTestRendererJSON()
	require.NoError(t, listEntities(tr.Renderer, nil))

	var got []semantic.Entity
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDescribeEntity_SkipsHidden(t *testing.T) {
	e := &semantic.Entity{
		ID:           "orders",
		Name:         "Orders",
		PrimaryTable: "orders",
		Dimensions: []semantic.Dimension{
			{ID: "region", Name: "Region", Column: "region", Type: "string"},
			{ID: "internal_code", Name: "Internal", Column: "code", Type: "string", Hidden: true},
		},
		Measures: []semantic.Measure{
			{ID: "total_sales", Name: "Total Sales", Aggregation: "SUM", Column: "sales"},
		},
	}

	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, describeEntity(tr.Renderer, e))

	out := tr.Output()
	assert.Contains(t, out, "region")
	assert.Contains(t, out, "total_sales")
	assert.NotContains(t, out, "internal_code")
}

func TestFormatBytes(t *testing.T) {
	ptr := func(n int64) *int64 { return &n }

	tests := []struct {
		in   *int64
		want string
	}{
		{nil, "-"},
		{ptr(512), "512 B"},
		{ptr(1536), "1.5 KiB"},
		{ptr(1 << 20), "1.0 MiB"},
		{ptr(3 << 30), "3.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBytes(tt.in))
		})
	}
	assert.Equal(t, "42", formatCount(ptr(42)))
	assert.Equal(t, "-", formatCount(nil))
}
