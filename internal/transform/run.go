package transform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// RunStatus is the state of a pipeline run.
type RunStatus string

// Run states. Success and failed are terminal.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one execution of a pipeline.
type Run struct {
	ID            string     `json:"id"`
	PipelineName  string     `json:"pipeline_name"`
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RowsProcessed int        `json:"rows_processed"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Steps         []StepLog  `json:"steps"`
}

// Duration returns the elapsed time of a completed run.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// StepLog records one completed step.
type StepLog struct {
	ID            string        `json:"id"`
	RunID         string        `json:"run_id"`
	Order         int           `json:"step_order"`
	Type          StepKind      `json:"step_type"`
	Name          string        `json:"step_name"`
	OutputAlias   string        `json:"output_alias"`
	RowsOut       int           `json:"rows_out"`
	ExecutionTime time.Duration `json:"execution_time"`
	Status        RunStatus     `json:"status"`
}

// RunRecorder persists runs and their step logs.
type RunRecorder interface {
	// CreateRun starts a run in the running state.
	CreateRun(ctx context.Context, pipelineName string) (*Run, error)
	// AppendStepLog records a completed step.
	AppendStepLog(ctx context.Context, log StepLog) error
	// CompleteRun moves a run to a terminal state.
	CompleteRun(ctx context.Context, runID string, status RunStatus, rowsProcessed int, errMsg string) error
	// UpdatePipelineLastRun records the outcome of the latest run of a pipeline.
	UpdatePipelineLastRun(ctx context.Context, pipelineName string, at time.Time, status RunStatus) error
}

// SourceOpener returns a connected connector for a data source id.
type SourceOpener interface {
	OpenSource(ctx context.Context, id string) (connector.Connector, error)
}

// MemoryRecorder keeps runs in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	runs    map[string]*Run
	order   []string
	lastRun map[string]RunStatus
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string]*Run), lastRun: make(map[string]RunStatus)}
}

// CreateRun implements RunRecorder.
func (m *MemoryRecorder) CreateRun(_ context.Context, pipelineName string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &Run{
		ID:           uuid.New().String(),
		PipelineName: pipelineName,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	m.runs[r.ID] = r
	m.order = append(m.order, r.ID)
	cp := *r
	return &cp, nil
}

// AppendStepLog implements RunRecorder.
func (m *MemoryRecorder) AppendStepLog(_ context.Context, log StepLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[log.RunID]
	if !ok {
		return core.ErrNotFound("run not found: %s", log.RunID)
	}
	r.Steps = append(r.Steps, log)
	return nil
}

// CompleteRun implements RunRecorder.
func (m *MemoryRecorder) CompleteRun(_ context.Context, runID string, status RunStatus, rowsProcessed int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return core.ErrNotFound("run not found: %s", runID)
	}
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.RowsProcessed = rowsProcessed
	r.ErrorMessage = errMsg
	return nil
}

// UpdatePipelineLastRun implements RunRecorder.
func (m *MemoryRecorder) UpdatePipelineLastRun(_ context.Context, pipelineName string, _ time.Time, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun[pipelineName] = status
	return nil
}

// Run returns a copy of the run with the given id.
func (m *MemoryRecorder) Run(id string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	cp := *r
	cp.Steps = append([]StepLog(nil), r.Steps...)
	return &cp, true
}

// LastStatus returns the status of the latest run of a pipeline.
func (m *MemoryRecorder) LastStatus(pipelineName string) (RunStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.lastRun[pipelineName]
	return s, ok
}

var _ RunRecorder = (*MemoryRecorder)(nil)
