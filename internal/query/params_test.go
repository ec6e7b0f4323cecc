package query

import (
	"testing"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind(t *testing.T) {
	sql := "SELECT region FROM orders\nWHERE region IN (:param_0_0, :param_0_1) AND sales > :param_1 AND id <> :param_10"
	params := map[string]any{"param_0_0": "West", "param_0_1": "East", "param_1": 5, "param_10": int64(99)}

	tests := []struct {
		name  string
		style connector.BindStyle
		sql   string
	}{
		{
			name:  "question marks",
			style: connector.BindQuestion,
			sql:   "SELECT region FROM orders\nWHERE region IN (?, ?) AND sales > ? AND id <> ?",
		},
		{
			name:  "dollar positions",
			style: connector.BindDollar,
			sql:   "SELECT region FROM orders\nWHERE region IN ($1, $2) AND sales > $3 AND id <> $4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := Bind(sql, params, tt.style)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, got)
			assert.Equal(t, []any{"West", "East", 5, int64(99)}, args)
		})
	}
}

func TestBind_RepeatedName(t *testing.T) {
	sql := "SELECT * FROM t WHERE a = :param_0 OR b = :param_0"
	params := map[string]any{"param_0": "x"}

	got, args, err := Bind(sql, params, connector.BindDollar)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 OR b = $1", got)
	assert.Equal(t, []any{"x"}, args)

	got, args, err = Bind(sql, params, connector.BindQuestion)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? OR b = ?", got)
	assert.Equal(t, []any{"x", "x"}, args)
}

func TestBind_MissingParam(t *testing.T) {
	_, _, err := Bind("SELECT 1 WHERE a = :param_2", map[string]any{}, connector.BindQuestion)
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Contains(t, err.Error(), "param_2")
}

// Substitute reproduces the literal splicing the compiler's parameters were
// first executed with. It is kept behind param_mode=substitute. Whether that
// mode was a placeholder awaiting hardening or an accepted risk for trusted
// input is unresolved, so these cases pin the current behavior, including
// the unescaped quote, rather than asserting it is safe.
func TestSubstitute(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params map[string]any
		want   string
	}{
		{
			name:   "strings are quoted",
			sql:    "SELECT * FROM orders WHERE region = :param_0",
			params: map[string]any{"param_0": "West"},
			want:   "SELECT * FROM orders WHERE region = 'West'",
		},
		{
			name:   "non-strings are inlined",
			sql:    "WHERE qty > :param_0 AND paid = :param_1 AND price < :param_2",
			params: map[string]any{"param_0": 3, "param_1": true, "param_2": 9.5},
			want:   "WHERE qty > 3 AND paid = true AND price < 9.5",
		},
		{
			name:   "nil becomes NULL",
			sql:    "WHERE region = :param_0",
			params: map[string]any{"param_0": nil},
			want:   "WHERE region = NULL",
		},
		{
			name:   "longer names are not clobbered by shorter prefixes",
			sql:    "WHERE a = :param_1 AND b = :param_10 AND c IN (:param_1_0)",
			params: map[string]any{"param_1": 1, "param_10": 10, "param_1_0": "x"},
			want:   "WHERE a = 1 AND b = 10 AND c IN ('x')",
		},
		{
			name:   "quotes are not escaped",
			sql:    "WHERE name = :param_0",
			params: map[string]any{"param_0": "O'Brien"},
			want:   "WHERE name = 'O'Brien'",
		},
		{
			name:   "unknown markers are left alone",
			sql:    "WHERE a = :param_7",
			params: map[string]any{},
			want:   "WHERE a = :param_7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.sql, tt.params))
		})
	}
}

func TestParseParamMode(t *testing.T) {
	mode, err := ParseParamMode("")
	require.NoError(t, err)
	assert.Equal(t, ParamBind, mode)

	mode, err = ParseParamMode("substitute")
	require.NoError(t, err)
	assert.Equal(t, ParamSubstitute, mode)

	_, err = ParseParamMode("inline")
	assert.True(t, core.IsValidation(err))
}
