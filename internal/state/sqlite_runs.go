package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// PipelineStatus is the outcome of the latest run of a pipeline.
type PipelineStatus struct {
	Name          string              `json:"name"`
	LastRunAt     *time.Time          `json:"last_run_at,omitempty"`
	LastRunStatus transform.RunStatus `json:"last_run_status,omitempty"`
}

// CreateRun creates a new pipeline run.
func (s *SQLiteStore) CreateRun(ctx context.Context, pipelineName string) (*transform.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &transform.Run{
		ID:           generateID(),
		PipelineName: pipelineName,
		Status:       transform.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("pipeline", pipelineName))

	if _, err := s.db.ExecContext(ctx, `INSERT INTO pipelines (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, pipelineName); err != nil {
		return nil, fmt.Errorf("failed to register pipeline: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, pipeline_name, status, started_at)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.PipelineName, string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// AppendStepLog records a completed step of a run.
func (s *SQLiteStore) AppendStepLog(ctx context.Context, log transform.StepLog) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if log.ID == "" {
		log.ID = generateID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_step_logs (id, run_id, step_order, step_type, step_name, output_alias, rows_out, execution_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.RunID, log.Order, string(log.Type), log.Name, log.OutputAlias,
		log.RowsOut, log.ExecutionTime.Milliseconds(), string(log.Status))
	if err != nil {
		return fmt.Errorf("failed to record step %d of run %s: %w", log.Order, log.RunID, err)
	}
	return nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status transform.RunStatus, rowsProcessed int, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, completed_at = ?, rows_processed = ?, error_message = ?
		WHERE id = ?`,
		string(status), formatTime(time.Now()), rowsProcessed, errorPtr, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("run not found: %s", runID)
	}
	return nil
}

// UpdatePipelineLastRun records the outcome of the latest run of a pipeline.
func (s *SQLiteStore) UpdatePipelineLastRun(ctx context.Context, pipelineName string, at time.Time, status transform.RunStatus) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipelines (name, last_run_at, last_run_status) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status`,
		pipelineName, formatTime(at), string(status))
	if err != nil {
		return fmt.Errorf("failed to update pipeline %s: %w", pipelineName, err)
	}
	return nil
}

// GetRun retrieves a run by ID with its step log.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*transform.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline_name, status, started_at, completed_at, rows_processed, error_message
		FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Steps, err = s.stepLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first, without step logs.
// An empty pipelineName lists runs of every pipeline. limit <= 0 means no
// limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, pipelineName string, limit int) ([]transform.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline_name, status, started_at, completed_at, rows_processed, error_message
		FROM pipeline_runs
		WHERE ? = '' OR pipeline_name = ?
		ORDER BY started_at DESC, id
		LIMIT ?`, pipelineName, pipelineName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []transform.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// ListPipelines returns every pipeline that has run, by name.
func (s *SQLiteStore) ListPipelines(ctx context.Context) ([]PipelineStatus, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, last_run_at, last_run_status FROM pipelines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PipelineStatus
	for rows.Next() {
		var (
			p      PipelineStatus
			at     sql.NullString
			status sql.NullString
		)
		if err := rows.Scan(&p.Name, &at, &status); err != nil {
			return nil, err
		}
		if p.LastRunAt, err = parseTimePtr(at); err != nil {
			return nil, err
		}
		p.LastRunStatus = transform.RunStatus(status.String)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) stepLogs(ctx context.Context, runID string) ([]transform.StepLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_order, step_type, step_name, output_alias, rows_out, execution_ms, status
		FROM run_step_logs WHERE run_id = ? ORDER BY step_order`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []transform.StepLog
	for rows.Next() {
		var (
			l          transform.StepLog
			stepType   string
			status     string
			durationMS int64
		)
		if err := rows.Scan(&l.ID, &l.RunID, &l.Order, &stepType, &l.Name, &l.OutputAlias, &l.RowsOut, &durationMS, &status); err != nil {
			return nil, err
		}
		l.Type = transform.StepKind(stepType)
		l.Status = transform.RunStatus(status)
		l.ExecutionTime = time.Duration(durationMS) * time.Millisecond
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*transform.Run, error) {
	var (
		run       transform.Run
		status    string
		started   string
		completed sql.NullString
		errMsg    sql.NullString
	)
	if err := row.Scan(&run.ID, &run.PipelineName, &status, &started, &completed, &run.RowsProcessed, &errMsg); err != nil {
		return nil, err
	}
	run.Status = transform.RunStatus(status)
	run.ErrorMessage = errMsg.String

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, err
	}
	return &run, nil
}
