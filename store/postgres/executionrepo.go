package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/pkg/logger"
	"github.com/opensyte/workflow-core/workflow"
)

// ExecutionRepo implements execution.ExecutionRepository: persistence for
// WorkflowExecution, NodeExecution and ExecutionLog rows (spec §3, §4.2).
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

type executionRow struct {
	ID                  string     `db:"id"`
	WorkflowID          string     `db:"workflow_id"`
	OrganizationID      string     `db:"organization_id"`
	Module              string     `db:"module"`
	UserID              *string    `db:"user_id"`
	ExternalExecutionID string     `db:"external_execution_id"`
	TriggerID           *string    `db:"trigger_id"`
	Status              string     `db:"status"`
	TriggerData         []byte     `db:"trigger_data"`
	Progress            int        `db:"progress"`
	StartedAt           time.Time  `db:"started_at"`
	CompletedAt         *time.Time `db:"completed_at"`
	Result              []byte     `db:"result"`
	Error               []byte     `db:"error"`
}

func (r executionRow) toDomain() (*workflow.Execution, error) {
	e := &workflow.Execution{
		ID:                  core.ID(r.ID),
		WorkflowID:          core.ID(r.WorkflowID),
		OrganizationID:      core.ID(r.OrganizationID),
		Module:              r.Module,
		ExternalExecutionID: r.ExternalExecutionID,
		Status:              workflow.ExecutionStatus(r.Status),
		Progress:            r.Progress,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
	}
	if r.UserID != nil {
		id := core.ID(*r.UserID)
		e.UserID = &id
	}
	if r.TriggerID != nil {
		id := core.ID(*r.TriggerID)
		e.TriggerID = &id
	}
	if err := FromJSONB(r.TriggerData, &e.TriggerData); err != nil {
		return nil, fmt.Errorf("decoding execution %s trigger data: %w", r.ID, err)
	}
	if err := FromJSONB(r.Result, &e.Result); err != nil {
		return nil, fmt.Errorf("decoding execution %s result: %w", r.ID, err)
	}
	if err := FromJSONBPtr(r.Error, &e.Error); err != nil {
		return nil, fmt.Errorf("decoding execution %s error: %w", r.ID, err)
	}
	return e, nil
}

func idString(id *core.ID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

const insertExecution = `
	INSERT INTO executions (
		id, workflow_id, organization_id, module, user_id, external_execution_id,
		trigger_id, status, trigger_data, progress, started_at, completed_at, result, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// CreateExecution implements execution.ExecutionRepository (spec §4.2
// step 1 "create a WorkflowExecution row").
func (r *ExecutionRepo) CreateExecution(ctx context.Context, exec *workflow.Execution) error {
	triggerData, err := ToJSONB(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("encoding trigger data: %w", err)
	}
	result, err := ToJSONB(exec.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	errJSON, err := ToJSONB(exec.Error)
	if err != nil {
		return fmt.Errorf("encoding error: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertExecution,
		exec.ID.String(), exec.WorkflowID.String(), exec.OrganizationID.String(), exec.Module,
		idString(exec.UserID), exec.ExternalExecutionID, idString(exec.TriggerID),
		string(exec.Status), triggerData, exec.Progress, exec.StartedAt, exec.CompletedAt,
		result, errJSON)
	if err != nil {
		return fmt.Errorf("creating execution %s: %w", exec.ID, err)
	}
	return nil
}

const selectExecutionByID = `
	SELECT id, workflow_id, organization_id, module, user_id, external_execution_id,
	       trigger_id, status, trigger_data, progress, started_at, completed_at, result, error
	FROM executions WHERE id = $1`

func (r *ExecutionRepo) GetExecution(ctx context.Context, id core.ID) (*workflow.Execution, error) {
	var row executionRow
	if err := scanOne(ctx, r.pool, &row, selectExecutionByID, id.String()); err != nil {
		return nil, fmt.Errorf("loading execution %s: %w", id, err)
	}
	return row.toDomain()
}

// UpdateExecutionStatus implements execution.ExecutionRepository: sets the
// terminal status/result/error and stamps completedAt (spec §4.2 step 7).
func (r *ExecutionRepo) UpdateExecutionStatus(
	ctx context.Context, id core.ID, status workflow.ExecutionStatus, result core.Value, execErr *core.Error,
) error {
	resultJSON, err := ToJSONB(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	errJSON, err := ToJSONB(execErr)
	if err != nil {
		return fmt.Errorf("encoding error: %w", err)
	}
	query := `
		UPDATE executions SET
			status = $2, result = $3, error = $4,
			completed_at = CASE WHEN $2 IN ('COMPLETED','FAILED','CANCELLED') THEN now() ELSE completed_at END
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id.String(), string(status), resultJSON, errJSON)
	if err != nil {
		return fmt.Errorf("updating execution %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution %s not found", id)
	}
	return nil
}

// CancelRunning implements execution.ExecutionRepository (spec §6
// cancelExecution): marks a RUNNING execution CANCELLED, recording reason.
func (r *ExecutionRepo) CancelRunning(ctx context.Context, id core.ID, reason string) error {
	execErr := core.NewError(fmt.Errorf("%s", reason), core.ErrCodeFatal, nil)
	errJSON, err := ToJSONB(execErr)
	if err != nil {
		return fmt.Errorf("encoding cancellation reason: %w", err)
	}
	query := `
		UPDATE executions SET status = 'CANCELLED', error = $2, completed_at = now()
		WHERE id = $1 AND status = 'RUNNING'`
	tag, err := r.pool.Exec(ctx, query, id.String(), errJSON)
	if err != nil {
		return fmt.Errorf("cancelling execution %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution %s is not RUNNING", id)
	}
	return nil
}

type nodeExecutionRow struct {
	ID                  string     `db:"id"`
	WorkflowExecutionID string     `db:"workflow_execution_id"`
	NodeID              string     `db:"node_id"`
	ExecutionOrder      int        `db:"execution_order"`
	Status              string     `db:"status"`
	Input               []byte     `db:"input"`
	Output              []byte     `db:"output"`
	Error               []byte     `db:"error"`
	DurationMS          int64      `db:"duration_ms"`
	Retries             int        `db:"retries"`
	StartedAt           time.Time  `db:"started_at"`
	CompletedAt         *time.Time `db:"completed_at"`
}

func (r nodeExecutionRow) toDomain() (workflow.NodeExecution, error) {
	ne := workflow.NodeExecution{
		ID:                  core.ID(r.ID),
		WorkflowExecutionID: core.ID(r.WorkflowExecutionID),
		NodeID:              r.NodeID,
		ExecutionOrder:      r.ExecutionOrder,
		Status:              workflow.NodeExecutionStatus(r.Status),
		Duration:            time.Duration(r.DurationMS) * time.Millisecond,
		Retries:             r.Retries,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
	}
	if err := FromJSONB(r.Input, &ne.Input); err != nil {
		return ne, fmt.Errorf("decoding node execution %s input: %w", r.ID, err)
	}
	if err := FromJSONB(r.Output, &ne.Output); err != nil {
		return ne, fmt.Errorf("decoding node execution %s output: %w", r.ID, err)
	}
	if err := FromJSONBPtr(r.Error, &ne.Error); err != nil {
		return ne, fmt.Errorf("decoding node execution %s error: %w", r.ID, err)
	}
	return ne, nil
}

const insertNodeExecution = `
	INSERT INTO node_executions (
		id, workflow_execution_id, node_id, execution_order, status, input, output,
		error, duration_ms, retries, started_at, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (r *ExecutionRepo) CreateNodeExecution(ctx context.Context, ne *workflow.NodeExecution) error {
	input, err := ToJSONB(ne.Input)
	if err != nil {
		return fmt.Errorf("encoding node input: %w", err)
	}
	output, err := ToJSONB(ne.Output)
	if err != nil {
		return fmt.Errorf("encoding node output: %w", err)
	}
	errJSON, err := ToJSONB(ne.Error)
	if err != nil {
		return fmt.Errorf("encoding node error: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertNodeExecution,
		ne.ID.String(), ne.WorkflowExecutionID.String(), ne.NodeID, ne.ExecutionOrder,
		string(ne.Status), input, output, errJSON, ne.Duration.Milliseconds(), ne.Retries,
		ne.StartedAt, ne.CompletedAt)
	if err != nil {
		return fmt.Errorf("creating node execution %s: %w", ne.ID, err)
	}
	return nil
}

const updateNodeExecution = `
	UPDATE node_executions SET
		status = $2, output = $3, error = $4, duration_ms = $5, retries = $6, completed_at = $7
	WHERE id = $1`

func (r *ExecutionRepo) UpdateNodeExecution(ctx context.Context, ne *workflow.NodeExecution) error {
	output, err := ToJSONB(ne.Output)
	if err != nil {
		return fmt.Errorf("encoding node output: %w", err)
	}
	errJSON, err := ToJSONB(ne.Error)
	if err != nil {
		return fmt.Errorf("encoding node error: %w", err)
	}
	tag, err := r.pool.Exec(ctx, updateNodeExecution,
		ne.ID.String(), string(ne.Status), output, errJSON, ne.Duration.Milliseconds(), ne.Retries, ne.CompletedAt)
	if err != nil {
		return fmt.Errorf("updating node execution %s: %w", ne.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("node execution %s not found", ne.ID)
	}
	return nil
}

const selectNodeExecutionsByExecution = `
	SELECT id, workflow_execution_id, node_id, execution_order, status, input, output,
	       error, duration_ms, retries, started_at, completed_at
	FROM node_executions WHERE workflow_execution_id = $1 ORDER BY started_at`

func (r *ExecutionRepo) ListNodeExecutions(ctx context.Context, executionID core.ID) ([]workflow.NodeExecution, error) {
	var rows []nodeExecutionRow
	if err := scanAll(ctx, r.pool, &rows, selectNodeExecutionsByExecution, executionID.String()); err != nil {
		return nil, fmt.Errorf("loading node executions for %s: %w", executionID, err)
	}
	out := make([]workflow.NodeExecution, 0, len(rows))
	for _, row := range rows {
		ne, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ne)
	}
	return out, nil
}

const insertExecutionLog = `
	INSERT INTO execution_logs (id, workflow_execution_id, node_id, level, source, category, ts, details)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// AppendLog implements execution.ExecutionRepository. It logs persistence
// failures rather than propagating them: losing a log line must never
// abort a running workflow (spec §4.2 step 3 "structured log entries").
func (r *ExecutionRepo) AppendLog(ctx context.Context, log *workflow.ExecutionLog) {
	fallback := logger.FromContext(ctx)
	id, err := core.NewID()
	if err != nil {
		fallback.Warn("execution log write failed", "executionId", log.WorkflowExecutionID.String(), "error", err)
		return
	}
	details, err := ToJSONB(log.Details)
	if err != nil {
		fallback.Warn("execution log write failed", "executionId", log.WorkflowExecutionID.String(), "error", err)
		return
	}
	if _, err := r.pool.Exec(ctx, insertExecutionLog,
		id.String(), log.WorkflowExecutionID.String(), log.NodeID, string(log.Level),
		log.Source, log.Category, log.Timestamp, details); err != nil {
		fallback.Warn("execution log write failed", "executionId", log.WorkflowExecutionID.String(), "error", err)
	}
}
