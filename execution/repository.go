package execution

import (
	"context"
	"time"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/schedule"
	"github.com/opensyte/workflow-core/workflow"
)

// WorkflowRepository is the read-side port the engine needs to load a
// workflow's graph (spec §4.2 "loads the workflow graph").
type WorkflowRepository interface {
	GetWorkflow(ctx context.Context, id core.ID) (*workflow.Workflow, error)
	GetNodes(ctx context.Context, workflowID core.ID) ([]workflow.Node, error)
	GetConnections(ctx context.Context, workflowID core.ID) ([]*workflow.Connection, error)
	GetTrigger(ctx context.Context, id core.ID) (*workflow.Trigger, error)
	IncrementCounters(ctx context.Context, workflowID core.ID, success bool) error
}

// ExecutionRepository persists WorkflowExecution and NodeExecution rows.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, exec *workflow.Execution) error
	GetExecution(ctx context.Context, id core.ID) (*workflow.Execution, error)
	UpdateExecutionStatus(ctx context.Context, id core.ID, status workflow.ExecutionStatus, result core.Value, execErr *core.Error) error
	CancelRunning(ctx context.Context, id core.ID, reason string) error

	CreateNodeExecution(ctx context.Context, ne *workflow.NodeExecution) error
	UpdateNodeExecution(ctx context.Context, ne *workflow.NodeExecution) error
	ListNodeExecutions(ctx context.Context, executionID core.ID) ([]workflow.NodeExecution, error)

	AppendLog(ctx context.Context, log *workflow.ExecutionLog)
}

// ApprovalRepository persists WorkflowApproval rows (spec §4.2 APPROVAL,
// §6 resumeAfterApproval).
type ApprovalRepository interface {
	Create(ctx context.Context, a *workflow.Approval) error
	Get(ctx context.Context, id core.ID) (*workflow.Approval, error)
	Decide(ctx context.Context, id core.ID, approved bool, actorID core.ID, comments *string, decidedAt time.Time) (*workflow.Approval, error)
}

// SchedulerPort is the narrow slice of schedule.Scheduler the SCHEDULE
// node interpreter calls through (Design Note "ORM dependency" applied
// uniformly to every outbound port, not just RecordStore).
type SchedulerPort interface {
	UpsertSchedule(ctx context.Context, workflowID core.ID, nodeID string, cfg schedule.Config) (*schedule.Record, error)
}

// Stats is the summary returned by getWorkflowStats (spec §6).
type Stats struct {
	WorkflowID           core.ID
	TotalExecutions      int64
	SuccessfulExecutions int64
	FailedExecutions     int64
	LastExecutedAt       *time.Time
}
