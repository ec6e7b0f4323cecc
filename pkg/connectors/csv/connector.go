// Package csv provides a delimited-file connector backed by DuckDB's
// read_csv_auto reader. The whole file is exposed as one table named after
// the file's base name.
package csv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/connectors/internal/duckdb"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const backend = "csv"

// Params holds CSV-specific configuration.
// Parsed from core.ConnectorConfig.Params using mapstructure.
type Params struct {
	duckdb.Settings `mapstructure:",squash"`

	Delimiter string `mapstructure:"delimiter"`
	Header    *bool  `mapstructure:"header"`
	Encoding  string `mapstructure:"encoding"`
}

func (p *Params) applyDefaults() {
	if p.Delimiter == "" {
		p.Delimiter = ","
	}
	if p.Header == nil {
		h := true
		p.Header = &h
	}
	if p.Encoding == "" {
		p.Encoding = "utf-8"
	}
}

// Connector implements connector.Connector for delimited files.
type Connector struct {
	connector.BaseSQLConnector
	path string
	// source is the file DuckDB reads: path itself, or a UTF-8 copy of it.
	source string
	params Params
}

// New creates a new CSV connector instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connector{
		BaseSQLConnector: connector.BaseSQLConnector{Logger: logger, Types: duckdb.Types},
	}
}

// Connect validates the file and opens an in-memory DuckDB session to read it.
func (c *Connector) Connect(ctx context.Context, cfg core.ConnectorConfig) error {
	var params Params
	if err := connector.DecodeParams(cfg.Params, &params); err != nil {
		return core.ErrConnection(backend, err, "invalid configuration")
	}
	params.applyDefaults()

	enc, err := lookupEncoding(params.Encoding)
	if err != nil {
		return core.ErrConnection(backend, err, "unsupported encoding %q", params.Encoding)
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return core.ErrConnection(backend, err, "invalid path %q", cfg.Path)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return core.ErrConnection(backend, err, "file not found: %s", cfg.Path)
	}
	if info.IsDir() {
		return core.ErrConnection(backend, nil, "%s is a directory", cfg.Path)
	}

	c.Logger.Debug("opening csv file", slog.String("path", absPath), slog.String("delimiter", params.Delimiter))

	source := absPath
	if enc != nil {
		source, err = transcode(absPath, enc)
		if err != nil {
			return core.ErrConnection(backend, err, "cannot decode %s as %s", cfg.Path, params.Encoding)
		}
	}

	db, err := duckdb.Open(ctx, params.Settings.Settings)
	if err != nil {
		removeCopy(absPath, source)
		return core.ErrConnection(backend, err, "failed to start reader")
	}

	c.DB = db
	c.Cfg = cfg
	c.path = absPath
	c.source = source
	c.params = params
	return nil
}

// Disconnect closes the reader and removes any transcoded copy of the file.
func (c *Connector) Disconnect() error {
	removeCopy(c.path, c.source)
	c.source = ""
	return c.BaseSQLConnector.Disconnect()
}

// lookupEncoding resolves an encoding label. A nil encoding means the file is
// already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	switch strings.NewReplacer("-", "", "_", "").Replace(label) {
	case "utf8", "utf8sig":
		return nil, nil
	case "latin1":
		label = "iso-8859-1"
	}

	if enc, err := htmlindex.Get(label); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("no decoder for %s", name)
	}
	return enc, nil
}

// transcode writes a UTF-8 copy of path to a temporary file.
func transcode(path string, enc encoding.Encoding) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	out, err := os.CreateTemp("", "leapquery-*"+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, transform.NewReader(in, enc.NewDecoder())); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func removeCopy(path, source string) {
	if source != "" && source != path {
		_ = os.Remove(source)
	}
}

// TestConnection checks the file can be opened and its header read.
func (c *Connector) TestConnection(ctx context.Context, cfg core.ConnectorConfig) connector.Status {
	return connector.Probe(ctx, c, cfg, "Successfully connected to CSV file", func(ctx context.Context) error {
		_, err := duckdb.Describe(ctx, c.DB, c.reader())
		return err
	})
}

// TableName returns the table name the file is exposed as.
func (c *Connector) TableName() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// reader returns the read_csv_auto relation expression for the file.
func (c *Connector) reader() string {
	return fmt.Sprintf("read_csv_auto(%s, delim=%s, header=%t)",
		duckdb.QuoteLiteral(c.source), duckdb.QuoteLiteral(c.params.Delimiter), *c.params.Header)
}

// GetTables returns the single table the file represents.
func (c *Connector) GetTables(ctx context.Context) ([]core.TableSchema, error) {
	schema, err := c.GetSchema(ctx, c.TableName(), "")
	if err != nil {
		return nil, err
	}
	return []core.TableSchema{*schema}, nil
}

// GetSchema describes the file. table must be empty or the file's table name.
func (c *Connector) GetSchema(ctx context.Context, tableName, _ string) (*core.TableSchema, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}
	if err := c.checkTable(tableName); err != nil {
		return nil, err
	}

	columns, err := duckdb.Describe(ctx, c.DB, c.reader())
	if err != nil {
		return nil, err
	}

	schema := &core.TableSchema{
		Name:     c.TableName(),
		Columns:  columns,
		RowCount: c.QueryCount(ctx, "SELECT COUNT(*) FROM "+c.reader()),
	}
	if info, err := os.Stat(c.path); err == nil {
		schema.SizeBytes = core.Int64Ptr(info.Size())
	}
	return schema, nil
}

// PreviewData reads up to limit rows of the file.
func (c *Connector) PreviewData(ctx context.Context, tableName, _ string, limit int) (*table.Table, error) {
	if err := c.checkTable(tableName); err != nil {
		return nil, err
	}
	query := "SELECT * FROM " + c.reader()
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return c.BaseSQLConnector.ExecuteQuery(ctx, query)
}

// ExecuteQuery runs query against the file. References of the form
// "FROM <table name>" are rewritten to the file reader.
func (c *Connector) ExecuteQuery(ctx context.Context, query string, args ...any) (*table.Table, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("database connection not established")
	}
	return c.BaseSQLConnector.ExecuteQuery(ctx, c.rewrite(query), args...)
}

func (c *Connector) rewrite(query string) string {
	re := regexp.MustCompile(`(?i)\bFROM\s+` + regexp.QuoteMeta(c.TableName()) + `\b`)
	return re.ReplaceAllLiteralString(query, "FROM "+c.reader())
}

func (c *Connector) checkTable(tableName string) error {
	if tableName != "" && tableName != c.TableName() {
		return core.ErrNotFound("table %q not found in %s", tableName, filepath.Base(c.path))
	}
	return nil
}

// BindStyle returns the DuckDB placeholder syntax.
func (c *Connector) BindStyle() connector.BindStyle {
	return connector.BindQuestion
}

// Ensure Connector implements connector.Connector interface
var _ connector.Connector = (*Connector)(nil)
