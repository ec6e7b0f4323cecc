// Package excel provides a spreadsheet connector. Each sheet is exposed as
// one table; queries run against in-memory DuckDB copies of the sheets they name.
package excel

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/connectors/internal/duckdb"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
	"github.com/xuri/excelize/v2"
)

const backend = "excel"

// Params holds spreadsheet-specific configuration.
type Params struct {
	duckdb.Settings `mapstructure:",squash"`

	// SheetName selects the sheet used when no table is named; defaults to the first sheet.
	SheetName string `mapstructure:"sheet_name"`
}

// Connector implements connector.Connector for spreadsheet files.
type Connector struct {
	connector.BaseSQLConnector
	file   *excelize.File
	path   string
	params Params
}

// New creates a new spreadsheet connector instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connector{
		BaseSQLConnector: connector.BaseSQLConnector{Logger: logger, Types: duckdb.Types},
	}
}

// Connect opens the workbook and a DuckDB session used for queries.
func (c *Connector) Connect(ctx context.Context, cfg core.ConnectorConfig) error {
	var params Params
	if err := connector.DecodeParams(cfg.Params, &params); err != nil {
		return core.ErrConnection(backend, err, "invalid configuration")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return core.ErrConnection(backend, err, "invalid path %q", cfg.Path)
	}
	if _, err := os.Stat(absPath); err != nil {
		return core.ErrConnection(backend, err, "file not found: %s", cfg.Path)
	}

	c.Logger.Debug("opening workbook", slog.String("path", absPath))

	f, err := excelize.OpenFile(absPath)
	if err != nil {
		return core.ErrConnection(backend, err, "cannot read workbook")
	}
	if params.SheetName != "" {
		if idx, err := f.GetSheetIndex(params.SheetName); err != nil || idx < 0 {
			_ = f.Close()
			return core.ErrConnection(backend, err, "sheet %q not found", params.SheetName)
		}
	}

	db, err := duckdb.Open(ctx, params.Settings.Settings)
	if err != nil {
		_ = f.Close()
		return core.ErrConnection(backend, err, "failed to start query engine")
	}

	c.file = f
	c.DB = db
	c.Cfg = cfg
	c.path = absPath
	c.params = params
	return nil
}

// Disconnect closes the workbook and the query session.
func (c *Connector) Disconnect() error {
	var fileErr error
	if c.file != nil {
		fileErr = c.file.Close()
		c.file = nil
	}
	if err := c.BaseSQLConnector.Disconnect(); err != nil {
		return err
	}
	return fileErr
}

// TestConnection checks the workbook opens and its default sheet is readable.
func (c *Connector) TestConnection(ctx context.Context, cfg core.ConnectorConfig) connector.Status {
	return connector.Probe(ctx, c, cfg, "Successfully connected to Excel file", func(context.Context) error {
		_, err := c.readSheet(c.defaultSheet())
		return err
	})
}

func (c *Connector) defaultSheet() string {
	if c.params.SheetName != "" {
		return c.params.SheetName
	}
	if c.file == nil {
		return ""
	}
	if sheets := c.file.GetSheetList(); len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

func (c *Connector) resolveSheet(name string) (string, error) {
	if c.file == nil {
		return "", fmt.Errorf("workbook not open")
	}
	if name == "" {
		name = c.defaultSheet()
	}
	for _, s := range c.file.GetSheetList() {
		if s == name {
			return s, nil
		}
	}
	return "", core.ErrNotFound("sheet %q not found in %s", name, filepath.Base(c.path))
}

// GetTables returns one table per sheet.
func (c *Connector) GetTables(ctx context.Context) ([]core.TableSchema, error) {
	if c.file == nil {
		return nil, fmt.Errorf("workbook not open")
	}
	var tables []core.TableSchema
	for _, sheet := range c.file.GetSheetList() {
		schema, err := c.GetSchema(ctx, sheet, "")
		if err != nil {
			return nil, err
		}
		tables = append(tables, *schema)
	}
	return tables, nil
}

// GetSchema describes one sheet. An empty table name selects the default sheet.
func (c *Connector) GetSchema(_ context.Context, tableName, _ string) (*core.TableSchema, error) {
	sheet, err := c.resolveSheet(tableName)
	if err != nil {
		return nil, err
	}
	data, err := c.readSheet(sheet)
	if err != nil {
		return nil, err
	}

	schema := &core.TableSchema{
		Name:     sheet,
		RowCount: core.Int64Ptr(int64(data.Len())),
	}
	for i, col := range data.Columns() {
		values, _ := data.Values(col.Name)
		nullable := false
		for _, v := range values {
			if v == nil {
				nullable = true
				break
			}
		}
		schema.Columns = append(schema.Columns, core.Column{
			Name:     col.Name,
			Type:     col.Type,
			Nullable: nullable,
			Position: i + 1,
		})
	}
	if info, err := os.Stat(c.path); err == nil {
		schema.SizeBytes = core.Int64Ptr(info.Size())
	}
	return schema, nil
}

// PreviewData reads up to limit rows of a sheet.
func (c *Connector) PreviewData(_ context.Context, tableName, _ string, limit int) (*table.Table, error) {
	sheet, err := c.resolveSheet(tableName)
	if err != nil {
		return nil, err
	}
	data, err := c.readSheet(sheet)
	if err != nil {
		return nil, err
	}
	return data.Head(limit), nil
}

// ExecuteQuery stages every sheet the query references as a DuckDB table
// named after the sheet and runs query against them. The default sheet is
// also reachable under the file's base name.
func (c *Connector) ExecuteQuery(ctx context.Context, query string, args ...any) (*table.Table, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}

	staged, err := c.stageReferenced(ctx, query)
	defer func() {
		for _, name := range staged {
			_, _ = c.DB.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+duckdb.QuoteIdent(name))
		}
	}()
	if err != nil {
		return nil, err
	}

	return c.BaseSQLConnector.ExecuteQuery(ctx, query, args...)
}

// stageReferenced stages the sheets named in query and returns the staged
// table names. When no sheet is named, the default sheet is staged under
// TableName.
func (c *Connector) stageReferenced(ctx context.Context, query string) ([]string, error) {
	if c.file == nil {
		return nil, fmt.Errorf("workbook not open")
	}

	aliases := make(map[string]string)
	sheets := c.file.GetSheetList()
	for _, sheet := range sheets {
		if references(query, sheet) {
			aliases[sheet] = sheet
		}
	}
	if stem := c.TableName(); !slices.Contains(sheets, stem) && (len(aliases) == 0 || references(query, stem)) {
		def, err := c.resolveSheet("")
		if err != nil {
			return nil, err
		}
		aliases[stem] = def
	}

	names := slices.Sorted(maps.Keys(aliases))
	staged := make([]string, 0, len(names))
	for _, name := range names {
		data, err := c.readSheet(aliases[name])
		if err != nil {
			return staged, err
		}
		if err := c.stage(ctx, name, data); err != nil {
			return staged, err
		}
		staged = append(staged, name)
	}
	return staged, nil
}

// references reports whether name occurs in query as a whole identifier.
func references(query, name string) bool {
	re := regexp.MustCompile(`(?i)(^|[^\w])` + regexp.QuoteMeta(name) + `($|[^\w])`)
	return re.MatchString(query)
}

// TableName returns the name queries use to address the default sheet.
func (c *Connector) TableName() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BindStyle returns the DuckDB placeholder syntax.
func (c *Connector) BindStyle() connector.BindStyle {
	return connector.BindQuestion
}

// readSheet loads a sheet into a table. The first row is the header.
func (c *Connector) readSheet(sheet string) (*table.Table, error) {
	if c.file == nil {
		return nil, fmt.Errorf("workbook not open")
	}
	rows, err := c.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return table.Empty(), nil
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	first := make([]string, width)
	copy(first, rows[0])
	header := headerNames(first)
	cells := rows[1:]

	cols := make([]table.Column, len(header))
	for i, name := range header {
		raw := make([]string, 0, len(cells))
		for _, r := range cells {
			if i < len(r) {
				raw = append(raw, r[i])
			}
		}
		cols[i] = table.Column{Name: name, Type: inferType(raw)}
	}

	data := make([][]any, len(cells))
	for r, row := range cells {
		out := make([]any, len(header))
		for i := range header {
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				continue
			}
			out[i] = table.ConvertString(strings.TrimSpace(row[i]), cols[i].Type)
		}
		data[r] = out
	}

	return table.New(cols, data)
}

// headerNames fills blank header cells and disambiguates duplicates.
func headerNames(row []string) []string {
	names := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, cell := range row {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

// inferType picks the narrowest standard type every non-blank cell parses as.
func inferType(values []string) core.StandardType {
	candidates := []core.StandardType{core.TypeInteger, core.TypeFloat, core.TypeBoolean, core.TypeTimestamp}
	seen := false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		kept := candidates[:0]
		for _, typ := range candidates {
			if parses(v, typ) {
				kept = append(kept, typ)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return core.TypeString
		}
	}
	if !seen {
		return core.TypeString
	}
	return candidates[0]
}

func parses(v string, typ core.StandardType) bool {
	switch typ {
	case core.TypeInteger:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	case core.TypeFloat:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case core.TypeBoolean:
		return strings.EqualFold(v, "true") || strings.EqualFold(v, "false")
	case core.TypeTimestamp:
		_, ok := table.ParseTime(v)
		return ok
	}
	return false
}

var duckTypes = map[core.StandardType]string{
	core.TypeInteger:   "BIGINT",
	core.TypeFloat:     "DOUBLE",
	core.TypeBoolean:   "BOOLEAN",
	core.TypeDate:      "DATE",
	core.TypeTimestamp: "TIMESTAMP",
}

// stage copies data into a DuckDB table.
func (c *Connector) stage(ctx context.Context, name string, data *table.Table) error {
	cols := data.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		typ, ok := duckTypes[col.Type]
		if !ok {
			typ = "VARCHAR"
		}
		defs[i] = duckdb.QuoteIdent(col.Name) + " " + typ
		marks[i] = "?"
	}

	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", duckdb.QuoteIdent(name), strings.Join(defs, ", "))
	if _, err := c.DB.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to stage sheet: %w", err)
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to stage sheet: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", duckdb.QuoteIdent(name), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to stage sheet: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < data.Len(); i++ {
		row := data.Row(i)
		for j, v := range row {
			if cols[j].Type == core.TypeJSON || cols[j].Type == core.TypeString {
				if v != nil {
					row[j] = fmt.Sprint(v)
				}
			}
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to stage row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Ensure Connector implements connector.Connector interface
var _ connector.Connector = (*Connector)(nil)
