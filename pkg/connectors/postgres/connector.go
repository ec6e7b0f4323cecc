// Package postgres provides a PostgreSQL connector for leapquery.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

const (
	backend       = "postgres"
	defaultSchema = "public"
)

// Types maps information_schema data types and pgx type names to standard types.
var Types = core.TypeMap{
	"integer":                     core.TypeInteger,
	"bigint":                      core.TypeInteger,
	"smallint":                    core.TypeInteger,
	"int2":                        core.TypeInteger,
	"int4":                        core.TypeInteger,
	"int8":                        core.TypeInteger,
	"numeric":                     core.TypeFloat,
	"real":                        core.TypeFloat,
	"double precision":            core.TypeFloat,
	"float4":                      core.TypeFloat,
	"float8":                      core.TypeFloat,
	"character varying":           core.TypeString,
	"character":                   core.TypeString,
	"varchar":                     core.TypeString,
	"bpchar":                      core.TypeString,
	"text":                        core.TypeString,
	"uuid":                        core.TypeString,
	"date":                        core.TypeDate,
	"timestamp without time zone": core.TypeTimestamp,
	"timestamp with time zone":    core.TypeTimestamp,
	"timestamp":                   core.TypeTimestamp,
	"timestamptz":                 core.TypeTimestamp,
	"boolean":                     core.TypeBoolean,
	"bool":                        core.TypeBoolean,
	"json":                        core.TypeJSON,
	"jsonb":                       core.TypeJSON,
}

// Connector implements connector.Connector for PostgreSQL.
type Connector struct {
	connector.BaseSQLConnector
}

// New creates a new PostgreSQL connector instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connector{
		BaseSQLConnector: connector.BaseSQLConnector{Logger: logger, Types: Types},
	}
}

// Connect establishes a connection to PostgreSQL.
func (c *Connector) Connect(ctx context.Context, cfg core.ConnectorConfig) error {
	dsn := buildPostgresDSN(cfg)

	c.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return core.ErrConnection(backend, err, "failed to open connection")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return core.ErrConnection(backend, err, "failed to ping server")
	}

	c.DB = db
	c.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(cfg core.ConnectorConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		dsnValue(host), port, dsnValue(cfg.Database), dsnValue(cfg.Option("sslmode", "disable")))

	if cfg.Username != "" {
		dsn += " user=" + dsnValue(cfg.Username)
	}
	if cfg.Password != "" {
		dsn += " password=" + dsnValue(cfg.Password)
	}

	return dsn
}

// dsnValue quotes a keyword/value DSN value when it is empty or holds
// whitespace, quotes or backslashes.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n\r'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// TestConnection connects, runs SELECT 1 and disconnects.
func (c *Connector) TestConnection(ctx context.Context, cfg core.ConnectorConfig) connector.Status {
	return connector.Probe(ctx, c, cfg, "Successfully connected to PostgreSQL", func(ctx context.Context) error {
		var one int
		if err := c.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("connection test query failed: %w", err)
		}
		return nil
	})
}

func (c *Connector) schema(name string) string {
	if name != "" {
		return name
	}
	if c.Cfg.Schema != "" {
		return c.Cfg.Schema
	}
	return defaultSchema
}

func qualified(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// GetTables lists base tables in the configured schema with best-effort
// row counts and on-disk sizes.
func (c *Connector) GetTables(ctx context.Context) ([]core.TableSchema, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}

	query := `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := c.DB.QueryContext(ctx, query, c.schema(""))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var tables []core.TableSchema
	for rows.Next() {
		var t core.TableSchema
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	_ = rows.Close()

	for i := range tables {
		name := qualified(tables[i].Schema, tables[i].Name)
		tables[i].RowCount = c.QueryCount(ctx, "SELECT COUNT(*) FROM "+name) //nolint:gosec // identifier is sanitized
		tables[i].SizeBytes = c.QueryCount(ctx, "SELECT pg_total_relation_size($1::regclass)", name)
	}
	return tables, nil
}

// GetSchema describes the columns of one table.
func (c *Connector) GetSchema(ctx context.Context, tableName, schemaName string) (*core.TableSchema, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}
	schema := c.schema(schemaName)

	query := `
		SELECT column_name, data_type, is_nullable, column_default, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`
	rows, err := c.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var (
			col      core.Column
			nullable string
			def      sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.NativeType, &nullable, &def, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Type = Types.Normalize(col.NativeType)
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, core.ErrNotFound("table %s.%s not found", schema, tableName)
	}

	return &core.TableSchema{Name: tableName, Schema: schema, Columns: columns}, nil
}

// PreviewData returns up to limit rows. A limit of zero reads the whole table.
func (c *Connector) PreviewData(ctx context.Context, tableName, schemaName string, limit int) (*table.Table, error) {
	query := "SELECT * FROM " + qualified(c.schema(schemaName), tableName) //nolint:gosec // identifier is sanitized
	if limit > 0 {
		return c.ExecuteQuery(ctx, query+" LIMIT $1", limit)
	}
	return c.ExecuteQuery(ctx, query)
}

// BindStyle returns the PostgreSQL placeholder syntax.
func (c *Connector) BindStyle() connector.BindStyle {
	return connector.BindDollar
}

// Ensure Connector implements connector.Connector interface
var _ connector.Connector = (*Connector)(nil)
