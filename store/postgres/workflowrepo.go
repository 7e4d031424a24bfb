package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/dispatch"
	"github.com/opensyte/workflow-core/workflow"
)

// WorkflowRepo implements execution.WorkflowRepository and
// dispatch.Repository: the read-side graph/trigger lookups both the
// Dispatcher and the Engine need, plus the workflow execution counters.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

type workflowRow struct {
	ID                   string     `db:"id"`
	OrganizationID       string     `db:"organization_id"`
	Name                 string     `db:"name"`
	Status               string     `db:"status"`
	Category             string     `db:"category"`
	TotalExecutions      int64      `db:"total_executions"`
	SuccessfulExecutions int64      `db:"successful_executions"`
	FailedExecutions     int64      `db:"failed_executions"`
	LastExecutedAt       *time.Time `db:"last_executed_at"`
}

func (r workflowRow) toDomain() *workflow.Workflow {
	return &workflow.Workflow{
		ID:                   core.ID(r.ID),
		OrganizationID:       core.ID(r.OrganizationID),
		Name:                 r.Name,
		Status:               workflow.Status(r.Status),
		Category:             r.Category,
		TotalExecutions:      r.TotalExecutions,
		SuccessfulExecutions: r.SuccessfulExecutions,
		FailedExecutions:     r.FailedExecutions,
		LastExecutedAt:       r.LastExecutedAt,
	}
}

const selectWorkflowByID = `
	SELECT id, organization_id, name, status, category,
	       total_executions, successful_executions, failed_executions, last_executed_at
	FROM workflows WHERE id = $1`

func (r *WorkflowRepo) GetWorkflow(ctx context.Context, id core.ID) (*workflow.Workflow, error) {
	var row workflowRow
	if err := scanOne(ctx, r.pool, &row, selectWorkflowByID, id.String()); err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", id, err)
	}
	return row.toDomain(), nil
}

type nodeRow struct {
	ID             string  `db:"id"`
	WorkflowID     string  `db:"workflow_id"`
	NodeID         string  `db:"node_id"`
	Type           string  `db:"type"`
	Name           string  `db:"name"`
	ExecutionOrder int     `db:"execution_order"`
	IsOptional     bool    `db:"is_optional"`
	RetryLimit     int     `db:"retry_limit"`
	TimeoutSeconds int     `db:"timeout_seconds"`
	Config         []byte  `db:"config"`
	EmailAction    []byte  `db:"email_action"`
	SMSAction      []byte  `db:"sms_action"`
}

func (r nodeRow) toDomain() (workflow.Node, error) {
	n := workflow.Node{
		ID:             core.ID(r.ID),
		WorkflowID:     core.ID(r.WorkflowID),
		NodeID:         r.NodeID,
		Type:           workflow.NodeType(r.Type),
		Name:           r.Name,
		ExecutionOrder: r.ExecutionOrder,
		IsOptional:     r.IsOptional,
		RetryLimit:     r.RetryLimit,
		TimeoutSeconds: r.TimeoutSeconds,
	}
	if err := FromJSONB(r.Config, &n.Config); err != nil {
		return n, fmt.Errorf("decoding node %s config: %w", r.NodeID, err)
	}
	if err := FromJSONBPtr(r.EmailAction, &n.EmailAction); err != nil {
		return n, fmt.Errorf("decoding node %s email action: %w", r.NodeID, err)
	}
	if err := FromJSONBPtr(r.SMSAction, &n.SMSAction); err != nil {
		return n, fmt.Errorf("decoding node %s sms action: %w", r.NodeID, err)
	}
	return n, nil
}

const selectNodesByWorkflow = `
	SELECT id, workflow_id, node_id, type, name, execution_order, is_optional,
	       retry_limit, timeout_seconds, config, email_action, sms_action
	FROM nodes WHERE workflow_id = $1 ORDER BY execution_order, node_id`

func (r *WorkflowRepo) GetNodes(ctx context.Context, workflowID core.ID) ([]workflow.Node, error) {
	var rows []nodeRow
	if err := scanAll(ctx, r.pool, &rows, selectNodesByWorkflow, workflowID.String()); err != nil {
		return nil, fmt.Errorf("loading nodes for workflow %s: %w", workflowID, err)
	}
	nodes := make([]workflow.Node, 0, len(rows))
	for _, row := range rows {
		n, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

type connectionRow struct {
	ID             string `db:"id"`
	WorkflowID     string `db:"workflow_id"`
	SourceNodeID   string `db:"source_node_id"`
	TargetNodeID   string `db:"target_node_id"`
	SourceHandle   string `db:"source_handle"`
	ExecutionOrder *int   `db:"execution_order"`
	Conditions     []byte `db:"conditions"`
}

func (r connectionRow) toDomain() (*workflow.Connection, error) {
	c := &workflow.Connection{
		ID:             core.ID(r.ID),
		WorkflowID:     core.ID(r.WorkflowID),
		SourceNodeID:   r.SourceNodeID,
		TargetNodeID:   r.TargetNodeID,
		SourceHandle:   r.SourceHandle,
		ExecutionOrder: r.ExecutionOrder,
	}
	if err := FromJSONBPtr(r.Conditions, &c.Conditions); err != nil {
		return nil, fmt.Errorf("decoding connection %s conditions: %w", r.ID, err)
	}
	return c, nil
}

const selectConnectionsByWorkflow = `
	SELECT id, workflow_id, source_node_id, target_node_id, source_handle, execution_order, conditions
	FROM connections WHERE workflow_id = $1`

func (r *WorkflowRepo) GetConnections(ctx context.Context, workflowID core.ID) ([]*workflow.Connection, error) {
	var rows []connectionRow
	if err := scanAll(ctx, r.pool, &rows, selectConnectionsByWorkflow, workflowID.String()); err != nil {
		return nil, fmt.Errorf("loading connections for workflow %s: %w", workflowID, err)
	}
	conns := make([]*workflow.Connection, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, nil
}

type triggerRow struct {
	ID            string     `db:"id"`
	WorkflowID    string     `db:"workflow_id"`
	NodeID        string     `db:"node_id"`
	Type          string     `db:"type"`
	Module        string     `db:"module"`
	EntityType    *string    `db:"entity_type"`
	EventType     *string    `db:"event_type"`
	Conditions    []byte     `db:"conditions"`
	IsActive      bool       `db:"is_active"`
	TriggerCount  int64      `db:"trigger_count"`
	LastTriggered *time.Time `db:"last_triggered"`
}

func (r triggerRow) toDomain() (*workflow.Trigger, error) {
	t := &workflow.Trigger{
		ID:            core.ID(r.ID),
		WorkflowID:    core.ID(r.WorkflowID),
		NodeID:        r.NodeID,
		Type:          workflow.TriggerType(r.Type),
		Module:        r.Module,
		EntityType:    r.EntityType,
		EventType:     r.EventType,
		IsActive:      r.IsActive,
		TriggerCount:  r.TriggerCount,
		LastTriggered: r.LastTriggered,
	}
	if err := FromJSONBPtr(r.Conditions, &t.Conditions); err != nil {
		return nil, fmt.Errorf("decoding trigger %s conditions: %w", r.ID, err)
	}
	return t, nil
}

const selectTriggerByID = `
	SELECT id, workflow_id, node_id, type, module, entity_type, event_type,
	       conditions, is_active, trigger_count, last_triggered
	FROM triggers WHERE id = $1`

func (r *WorkflowRepo) GetTrigger(ctx context.Context, id core.ID) (*workflow.Trigger, error) {
	var row triggerRow
	if err := scanOne(ctx, r.pool, &row, selectTriggerByID, id.String()); err != nil {
		return nil, fmt.Errorf("loading trigger %s: %w", id, err)
	}
	return row.toDomain()
}

const selectActiveTriggersByOrg = `
	SELECT t.id, t.workflow_id, t.node_id, t.type, t.module, t.entity_type, t.event_type,
	       t.conditions, t.is_active, t.trigger_count, t.last_triggered
	FROM triggers t
	JOIN workflows w ON w.id = t.workflow_id
	WHERE w.organization_id = $1 AND w.status = $2 AND t.is_active`

// ActiveWorkflowsWithTriggers implements dispatch.Repository (spec §4.1
// step 1): every ACTIVE workflow in org with at least one active trigger.
func (r *WorkflowRepo) ActiveWorkflowsWithTriggers(ctx context.Context, org core.ID) ([]dispatch.WorkflowTriggers, error) {
	var rows []triggerRow
	if err := scanAll(ctx, r.pool, &rows, selectActiveTriggersByOrg, org.String(), string(workflow.StatusActive)); err != nil {
		return nil, fmt.Errorf("loading active triggers for org %s: %w", org, err)
	}
	byWorkflow := make(map[core.ID][]workflow.Trigger)
	order := make([]core.ID, 0)
	for _, row := range rows {
		t, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		if _, seen := byWorkflow[t.WorkflowID]; !seen {
			order = append(order, t.WorkflowID)
		}
		byWorkflow[t.WorkflowID] = append(byWorkflow[t.WorkflowID], *t)
	}
	out := make([]dispatch.WorkflowTriggers, 0, len(order))
	for _, wfID := range order {
		wf, err := r.GetWorkflow(ctx, wfID)
		if err != nil {
			return nil, err
		}
		out = append(out, dispatch.WorkflowTriggers{Workflow: *wf, Triggers: byWorkflow[wfID]})
	}
	return out, nil
}

// RecordTriggerFired implements dispatch.Repository (spec §4.1
// "Execution": atomically increments triggerCount and sets lastTriggered).
func (r *WorkflowRepo) RecordTriggerFired(ctx context.Context, triggerID core.ID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE triggers SET trigger_count = trigger_count + 1, last_triggered = now() WHERE id = $1`,
		triggerID.String())
	if err != nil {
		return fmt.Errorf("recording trigger fired for %s: %w", triggerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trigger %s not found", triggerID)
	}
	return nil
}

// IncrementCounters implements execution.WorkflowRepository: bump the
// workflow's execution counters after a run terminates (spec §3).
func (r *WorkflowRepo) IncrementCounters(ctx context.Context, workflowID core.ID, success bool) error {
	query := `
		UPDATE workflows SET
			total_executions = total_executions + 1,
			successful_executions = successful_executions + CASE WHEN $2 THEN 1 ELSE 0 END,
			failed_executions = failed_executions + CASE WHEN $2 THEN 0 ELSE 1 END,
			last_executed_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, workflowID.String(), success)
	if err != nil {
		return fmt.Errorf("incrementing counters for workflow %s: %w", workflowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s not found", workflowID)
	}
	return nil
}
