// Package duckdb holds the embedded DuckDB plumbing shared by the file-backed
// connectors.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Settings holds DuckDB session configuration shared by file connectors.
// Parsed from core.ConnectorConfig.Params using mapstructure.
type Settings struct {
	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// Types maps DuckDB type names onto the standard vocabulary.
var Types = core.TypeMap{
	"bigint":                   core.TypeInteger,
	"integer":                  core.TypeInteger,
	"int":                      core.TypeInteger,
	"smallint":                 core.TypeInteger,
	"tinyint":                  core.TypeInteger,
	"hugeint":                  core.TypeInteger,
	"ubigint":                  core.TypeInteger,
	"uinteger":                 core.TypeInteger,
	"usmallint":                core.TypeInteger,
	"utinyint":                 core.TypeInteger,
	"double":                   core.TypeFloat,
	"float":                    core.TypeFloat,
	"real":                     core.TypeFloat,
	"decimal":                  core.TypeFloat,
	"numeric":                  core.TypeFloat,
	"varchar":                  core.TypeString,
	"text":                     core.TypeString,
	"date":                     core.TypeDate,
	"timestamp":                core.TypeTimestamp,
	"timestamp with time zone": core.TypeTimestamp,
	"timestamptz":              core.TypeTimestamp,
	"timestamp_s":              core.TypeTimestamp,
	"timestamp_ms":             core.TypeTimestamp,
	"timestamp_ns":             core.TypeTimestamp,
	"datetime":                 core.TypeTimestamp,
	"boolean":                  core.TypeBoolean,
	"bool":                     core.TypeBoolean,
	"json":                     core.TypeJSON,
}

var settingName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open starts an in-memory DuckDB database and applies session settings.
func Open(ctx context.Context, settings map[string]string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !settingName.MatchString(k) {
			_ = db.Close()
			return nil, fmt.Errorf("invalid duckdb setting name %q", k)
		}
		stmt := fmt.Sprintf("SET %s = %s", k, QuoteLiteral(settings[k]))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	return db, nil
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Describe returns the columns of a relation expression via DESCRIBE.
func Describe(ctx context.Context, db *sql.DB, relation string) ([]core.Column, error) {
	rows, err := db.QueryContext(ctx, "DESCRIBE SELECT * FROM "+relation)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", relation, err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var columns []core.Column
	for rows.Next() {
		vals := make([]sql.NullString, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan column description: %w", err)
		}

		// column_name, column_type, null, key, default, extra
		col := core.Column{
			Name:       vals[0].String,
			NativeType: vals[1].String,
			Type:       Types.Normalize(vals[1].String),
			Nullable:   len(vals) < 3 || !strings.EqualFold(vals[2].String, "NO"),
			Position:   len(columns) + 1,
		}
		if len(vals) > 4 && vals[4].Valid {
			def := vals[4].String
			col.Default = &def
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column description: %w", err)
	}
	return columns, nil
}
