// Package mysql provides a MySQL connector for leapquery.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

const backend = "mysql"

// Types maps information_schema DATA_TYPE values and driver type names to standard types.
var Types = core.TypeMap{
	"int":        core.TypeInteger,
	"integer":    core.TypeInteger,
	"tinyint":    core.TypeInteger,
	"smallint":   core.TypeInteger,
	"mediumint":  core.TypeInteger,
	"bigint":     core.TypeInteger,
	"decimal":    core.TypeFloat,
	"float":      core.TypeFloat,
	"double":     core.TypeFloat,
	"varchar":    core.TypeString,
	"char":       core.TypeString,
	"text":       core.TypeString,
	"mediumtext": core.TypeString,
	"longtext":   core.TypeString,
	"date":       core.TypeDate,
	"datetime":   core.TypeTimestamp,
	"timestamp":  core.TypeTimestamp,
	"tinyint(1)": core.TypeBoolean,
	"json":       core.TypeJSON,
}

// Connector implements connector.Connector for MySQL.
type Connector struct {
	connector.BaseSQLConnector
}

// New creates a new MySQL connector instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connector{
		BaseSQLConnector: connector.BaseSQLConnector{Logger: logger, Types: Types},
	}
}

// Connect establishes a connection to MySQL.
func (c *Connector) Connect(ctx context.Context, cfg core.ConnectorConfig) error {
	c.Logger.Debug("connecting to mysql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("mysql", buildMySQLDSN(cfg))
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

// buildMySQLDSN constructs a go-sql-driver DSN with parsed times and utf8mb4.
func buildMySQLDSN(cfg core.ConnectorConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 10 * time.Second
	mc.Params = map[string]string{"charset": cfg.Option("charset", "utf8mb4")}
	if tls := cfg.Option("tls", ""); tls != "" {
		mc.TLSConfig = tls
	}
	return mc.FormatDSN()
}

// TestConnection connects, runs SELECT 1 and disconnects.
func (c *Connector) TestConnection(ctx context.Context, cfg core.ConnectorConfig) connector.Status {
	return connector.Probe(ctx, c, cfg, "Successfully connected to MySQL", func(ctx context.Context) error {
		var one int
		if err := c.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("connection test query failed: %w", err)
		}
		return nil
	})
}

// schema resolves the database to inspect. MySQL schemas are databases.
func (c *Connector) schema(name string) string {
	if name != "" {
		return name
	}
	if c.Cfg.Schema != "" {
		return c.Cfg.Schema
	}
	return c.Cfg.Database
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// GetTables lists base tables with the row estimates and sizes MySQL keeps
// in information_schema.
func (c *Connector) GetTables(ctx context.Context) ([]core.TableSchema, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}

	query := `
		SELECT TABLE_NAME, TABLE_SCHEMA, TABLE_ROWS, DATA_LENGTH + INDEX_LENGTH
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	rows, err := c.DB.QueryContext(ctx, query, c.schema(""))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []core.TableSchema
	for rows.Next() {
		var (
			t          core.TableSchema
			count, siz sql.NullInt64
		)
		if err := rows.Scan(&t.Name, &t.Schema, &count, &siz); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		t.RowCount = nullInt(count)
		t.SizeBytes = nullInt(siz)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func nullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return core.Int64Ptr(n.Int64)
}

// GetSchema describes the columns of one table.
func (c *Connector) GetSchema(ctx context.Context, tableName, schemaName string) (*core.TableSchema, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}
	schema := c.schema(schemaName)

	query := `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := c.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}

	var columns []core.Column
	for rows.Next() {
		var (
			col              core.Column
			dataType, native string
			nullable         string
			def              sql.NullString
		)
		if err := rows.Scan(&col.Name, &dataType, &native, &nullable, &def, &col.Position); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.NativeType = native
		col.Type = columnType(dataType, native)
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	_ = rows.Close()

	if len(columns) == 0 {
		return nil, core.ErrNotFound("table %s.%s not found", schema, tableName)
	}

	result := &core.TableSchema{Name: tableName, Schema: schema, Columns: columns}

	var count, size sql.NullInt64
	err = c.DB.QueryRowContext(ctx, `
		SELECT TABLE_ROWS, DATA_LENGTH + INDEX_LENGTH
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`, schema, tableName).Scan(&count, &size)
	if err == nil {
		result.RowCount = nullInt(count)
		result.SizeBytes = nullInt(size)
	} else {
		c.Logger.Debug("table statistics unavailable", slog.String("table", tableName), slog.String("error", err.Error()))
	}
	return result, nil
}

// columnType prefers the full COLUMN_TYPE so tinyint(1) maps to boolean.
func columnType(dataType, columnType string) core.StandardType {
	if t, ok := Types[strings.ToLower(columnType)]; ok {
		return t
	}
	return Types.Normalize(dataType)
}

// PreviewData returns up to limit rows. A limit of zero reads the whole table.
func (c *Connector) PreviewData(ctx context.Context, tableName, schemaName string, limit int) (*table.Table, error) {
	query := "SELECT * FROM " + quoteIdent(c.schema(schemaName)) + "." + quoteIdent(tableName) //nolint:gosec // identifiers are quoted
	if limit > 0 {
		return c.ExecuteQuery(ctx, query+" LIMIT ?", limit)
	}
	return c.ExecuteQuery(ctx, query)
}

// BindStyle returns the MySQL placeholder syntax.
func (c *Connector) BindStyle() connector.BindStyle {
	return connector.BindQuestion
}

// Ensure Connector implements connector.Connector interface
var _ connector.Connector = (*Connector)(nil)
