package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// UpsertDataSource registers ds or updates its definition. The creation
// time and cached tables of an existing source are kept.
func (s *SQLiteStore) UpsertDataSource(ctx context.Context, ds *datasource.DataSource) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if ds.ID == "" {
		return core.ErrValidation("data source id is required")
	}

	cfg, err := json.Marshal(ds.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config for %s: %w", ds.ID, err)
	}

	now := time.Now().UTC()
	created := ds.CreatedAt
	if created.IsZero() {
		created = now
	}

	s.logger.Debug("upserting data source", slog.String("id", ds.ID), slog.String("type", ds.Config.Type))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO data_sources (id, name, owner, type, config, certified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			owner = excluded.owner,
			type = excluded.type,
			config = excluded.config,
			certified = excluded.certified,
			updated_at = excluded.updated_at`,
		ds.ID, ds.Name, ds.Owner, ds.Config.Type, string(cfg), ds.Certified,
		formatTime(created), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to upsert data source %s: %w", ds.ID, err)
	}

	s.mu.Lock()
	if ds.Config.Password != "" {
		s.secrets[ds.ID] = ds.Config.Password
	} else {
		delete(s.secrets, ds.ID)
	}
	s.mu.Unlock()
	return nil
}

// DeleteDataSource removes a data source and its cached tables.
func (s *SQLiteStore) DeleteDataSource(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM data_sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete data source %s: %w", id, err)
	}
	s.mu.Lock()
	delete(s.secrets, id)
	s.mu.Unlock()
	return nil
}

// ListDataSources returns the sources of owner, certified first then newest
// first. An empty owner lists every source.
func (s *SQLiteStore) ListDataSources(ctx context.Context, owner string) ([]datasource.DataSource, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner, config, certified, refreshed_at, created_at, updated_at
		FROM data_sources
		WHERE ? = '' OR owner = ?
		ORDER BY certified DESC, created_at DESC, id`, owner, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []datasource.DataSource
	for rows.Next() {
		ds, err := s.scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ds)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		tables, err := s.loadTables(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tables = tables
	}
	return out, nil
}

// GetDataSource loads one data source with its cached tables.
func (s *SQLiteStore) GetDataSource(ctx context.Context, id string) (*datasource.DataSource, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner, config, certified, refreshed_at, created_at, updated_at
		FROM data_sources WHERE id = ?`, id)
	ds, err := s.scanDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("data source not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	ds.Tables, err = s.loadTables(ctx, id)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// ReplaceTables swaps the cached table list of a source and stamps its
// refresh time.
func (s *SQLiteStore) ReplaceTables(ctx context.Context, id string, tables []core.TableSchema) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE data_sources SET refreshed_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update data source %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("data source not found: %s", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM data_source_tables WHERE data_source_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear tables of %s: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO data_source_tables (data_source_id, position, table_name, schema_name, columns, row_count, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, t := range tables {
		cols := t.Columns
		if cols == nil {
			cols = []core.Column{}
		}
		colsJSON, err := json.Marshal(cols)
		if err != nil {
			return fmt.Errorf("failed to encode columns of %s: %w", t.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, id, i, t.Name, t.Schema, string(colsJSON), t.RowCount, t.SizeBytes); err != nil {
			return fmt.Errorf("failed to insert table %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tables of %s: %w", id, err)
	}
	s.logger.Debug("cached tables", slog.String("data_source", id), slog.Int("count", len(tables)))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanDataSource(row rowScanner) (*datasource.DataSource, error) {
	var (
		ds               datasource.DataSource
		cfg              string
		refreshed        sql.NullString
		created, updated string
	)
	if err := row.Scan(&ds.ID, &ds.Name, &ds.Owner, &cfg, &ds.Certified, &refreshed, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &ds.Config); err != nil {
		return nil, fmt.Errorf("invalid config for data source %s: %w", ds.ID, err)
	}

	var err error
	if ds.RefreshedAt, err = parseTimePtr(refreshed); err != nil {
		return nil, err
	}
	if ds.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if ds.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ds.Config.Password = s.secrets[ds.ID]
	s.mu.RUnlock()
	return &ds, nil
}

func (s *SQLiteStore) loadTables(ctx context.Context, id string) ([]core.TableSchema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, schema_name, columns, row_count, size_bytes
		FROM data_source_tables WHERE data_source_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tables of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.TableSchema
	for rows.Next() {
		var (
			t         core.TableSchema
			cols      string
			rowCount  sql.NullInt64
			sizeBytes sql.NullInt64
		)
		if err := rows.Scan(&t.Name, &t.Schema, &cols, &rowCount, &sizeBytes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cols), &t.Columns); err != nil {
			return nil, fmt.Errorf("invalid columns for %s.%s: %w", id, t.Name, err)
		}
		if rowCount.Valid {
			t.RowCount = core.Int64Ptr(rowCount.Int64)
		}
		if sizeBytes.Valid {
			t.SizeBytes = core.Int64Ptr(sizeBytes.Int64)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
