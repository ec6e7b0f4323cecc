package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// Engine runs pipelines.
type Engine struct {
	sources  SourceOpener
	recorder RunRecorder
	logger   *slog.Logger
}

// Config holds engine dependencies.
type Config struct {
	// Sources opens the data sources read by source steps.
	Sources SourceOpener
	// Recorder persists runs (optional, runs are kept in memory if nil)
	Recorder RunRecorder
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = NewMemoryRecorder()
	}
	return &Engine{sources: cfg.Sources, recorder: recorder, logger: logger}
}

// RunOptions tunes a single run.
type RunOptions struct {
	// Limit truncates the final table when positive.
	Limit int
}

// Result is the outcome of a run.
type Result struct {
	Run   *Run
	Table *table.Table
}

// Run executes the steps of p in order and records the run.
//
// When a step fails the run is marked failed and the remaining steps are not
// attempted. The failure is reported only through the run's status and error
// message; the step log keeps every step that completed before it. An error
// is returned only when no run could be created.
func (e *Engine) Run(ctx context.Context, p *Pipeline, opts RunOptions) (*Result, error) {
	e.logger.Info("starting pipeline run", "pipeline", p.Name, "steps", len(p.Steps))

	run, err := e.recorder.CreateRun(ctx, p.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Debug("created run", "run_id", run.ID)

	final, runErr := e.execute(ctx, run, p)

	// Bookkeeping must survive a cancelled caller.
	bg := context.WithoutCancel(ctx)
	status := RunStatusSuccess
	errMsg := ""
	if runErr != nil {
		status = RunStatusFailed
		errMsg = runErr.Error()
		final = nil
		e.logger.Info("run failed", "run_id", run.ID, "error", errMsg)
	} else {
		if opts.Limit > 0 {
			final = final.Head(opts.Limit)
		}
		run.RowsProcessed = final.Len()
		e.logger.Info("run completed", "run_id", run.ID, "rows", run.RowsProcessed)
	}

	if err := e.recorder.CompleteRun(bg, run.ID, status, run.RowsProcessed, errMsg); err != nil {
		e.logger.Warn("failed to complete run", "run_id", run.ID, "error", err)
	}
	now := time.Now().UTC()
	if err := e.recorder.UpdatePipelineLastRun(bg, p.Name, now, status); err != nil {
		e.logger.Warn("failed to update pipeline last run", "pipeline", p.Name, "error", err)
	}

	run.Status = status
	run.ErrorMessage = errMsg
	run.CompletedAt = &now
	return &Result{Run: run, Table: final}, nil
}

func (e *Engine) execute(ctx context.Context, run *Run, p *Pipeline) (*table.Table, error) {
	if len(p.Steps) == 0 {
		return nil, core.ErrValidation("Pipeline has no steps")
	}

	outputs := make(map[string]*table.Table, len(p.Steps))
	var last *table.Table
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("step %d (%s) not started: %w", step.Order, step.Kind, err)
		}

		e.logger.Debug("executing step", "run_id", run.ID, "step", step.Order, "type", step.Kind, "input", step.Input)
		start := time.Now()
		out, err := e.executeStep(ctx, step, outputs)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s) failed: %w", step.Order, step.Kind, err)
		}
		elapsed := time.Since(start)

		outputs[step.OutputAlias] = out
		last = out

		log := StepLog{
			ID:            uuid.New().String(),
			RunID:         run.ID,
			Order:         step.Order,
			Type:          step.Kind,
			Name:          step.DisplayName(),
			OutputAlias:   step.OutputAlias,
			RowsOut:       out.Len(),
			ExecutionTime: elapsed,
			Status:        RunStatusSuccess,
		}
		if err := e.recorder.AppendStepLog(ctx, log); err != nil {
			e.logger.Warn("failed to record step log", "run_id", run.ID, "step", step.Order, "error", err)
		}
		run.Steps = append(run.Steps, log)
	}
	return last, nil
}

func (e *Engine) executeStep(ctx context.Context, step Step, outputs map[string]*table.Table) (*table.Table, error) {
	lookup := func(alias string) (*table.Table, error) {
		t, ok := outputs[alias]
		if !ok {
			return nil, core.ErrValidation("no result named %q", alias)
		}
		return t, nil
	}

	switch cfg := step.Config.(type) {
	case SourceConfig:
		return e.loadSource(ctx, cfg)

	case FilterConfig:
		in, err := lookup(step.Input)
		if err != nil {
			return nil, err
		}
		return applyFilter(in, cfg)

	case JoinConfig:
		left, err := lookup(cfg.LeftSource)
		if err != nil {
			return nil, err
		}
		right, err := lookup(cfg.RightSource)
		if err != nil {
			return nil, err
		}
		cfg.applyDefaults()
		jt, ok := table.ParseJoinType(cfg.JoinType)
		if !ok {
			return nil, core.ErrValidation("unknown join type: %s", cfg.JoinType)
		}
		return left.Join(right, table.JoinSpec{
			Type:        jt,
			LeftOn:      cfg.LeftOn,
			RightOn:     cfg.RightOn,
			SuffixLeft:  cfg.SuffixLeft,
			SuffixRight: cfg.SuffixRight,
		})

	case AggregateConfig:
		in, err := lookup(step.Input)
		if err != nil {
			return nil, err
		}
		aggs := make([]table.Aggregation, len(cfg.Aggregations))
		for i, a := range cfg.Aggregations {
			f, ok := table.ParseAggFunc(a.Function)
			if !ok {
				return nil, core.ErrValidation("unknown aggregation function: %s", a.Function)
			}
			aggs[i] = table.Aggregation{Column: a.Column, Func: f, Alias: a.Alias}
		}
		return in.Aggregate(cfg.GroupBy, aggs)

	case SelectConfig:
		in, err := lookup(step.Input)
		if err != nil {
			return nil, err
		}
		out, err := in.Project(cfg.Columns...)
		if err != nil {
			return nil, err
		}
		if len(cfg.Rename) == 0 {
			return out, nil
		}
		return out.Rename(cfg.Rename)

	case SortConfig:
		in, err := lookup(step.Input)
		if err != nil {
			return nil, err
		}
		ascending := cfg.Ascending
		if len(ascending) == 0 {
			ascending = make([]bool, len(cfg.Columns))
			for i := range ascending {
				ascending[i] = true
			}
		}
		return in.Sort(cfg.Columns, ascending)

	case UnionConfig:
		tables := make([]*table.Table, 0, len(cfg.Sources))
		for _, alias := range cfg.Sources {
			t, err := lookup(alias)
			if err != nil {
				return nil, err
			}
			tables = append(tables, t)
		}
		out := table.Concat(tables...)
		if cfg.removeDuplicates() {
			out = out.Distinct()
		}
		return out, nil
	}

	return nil, core.ErrValidation("Unknown step type: %s", step.Kind)
}

// loadSource reads a table and always disconnects.
func (e *Engine) loadSource(ctx context.Context, cfg SourceConfig) (*table.Table, error) {
	if e.sources == nil {
		return nil, fmt.Errorf("no data source opener configured")
	}
	conn, err := e.sources.OpenSource(ctx, cfg.DataSourceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			e.logger.Warn("failed to disconnect", "data_source", cfg.DataSourceID, "error", err)
		}
	}()
	return connector.ReadAll(ctx, conn, cfg.TableName, cfg.SchemaName, cfg.Columns)
}
