package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/dispatch"
	"github.com/opensyte/workflow-core/pkg/logger"
	"github.com/opensyte/workflow-core/schedule"
	"github.com/opensyte/workflow-core/workflow"
	"github.com/sethvargo/go-retry"
)

// Engine ties the per-kind NodeInterpreters to the persisted workflow graph
// (spec §4.2): it owns executeWorkflow's graph walk, the approval resume
// path, cancellation, retry, and stats lookup. It implements dispatch.Engine
// so the Dispatcher can call it directly.
type Engine struct {
	workflowRepo WorkflowRepository
	execRepo     ExecutionRepository
	approvalRepo ApprovalRepository
	scheduler    SchedulerPort
	clock        adapters.Clock
	interpreters map[workflow.NodeType]NodeInterpreter
	log          logger.Logger
}

// Deps bundles Engine's constructor-injected collaborators (Design Note
// "Singletons": reified collaborators, not package-level globals).
type Deps struct {
	WorkflowRepo WorkflowRepository
	ExecRepo     ExecutionRepository
	ApprovalRepo ApprovalRepository
	Scheduler    SchedulerPort
	EmailSink    adapters.EmailSink
	SmsSink      adapters.SmsSink
	RecordStore  adapters.RecordStore
	Clock        adapters.Clock
	Logger       logger.Logger
}

func NewEngine(d Deps) *Engine {
	clock := d.Clock
	if clock == nil {
		clock = adapters.SystemClock
	}
	log := d.Logger
	if log == nil {
		log = logger.NewLogger(nil)
	}
	interpreters := map[workflow.NodeType]NodeInterpreter{
		workflow.NodeTrigger:       triggerInterpreter{},
		workflow.NodeDelay:         delayInterpreter{},
		workflow.NodeCondition:     conditionInterpreter{},
		workflow.NodeFilter:        filterInterpreter{},
		workflow.NodeDataTransform: dataTransformInterpreter{},
		workflow.NodeQuery:         queryInterpreter{store: d.RecordStore},
		workflow.NodeCreateRecord:  recordWriteInterpreter{store: d.RecordStore, update: false},
		workflow.NodeUpdateRecord:  recordWriteInterpreter{store: d.RecordStore, update: true},
		workflow.NodeEmail:         emailInterpreter{sink: d.EmailSink},
		workflow.NodeSMS:           smsInterpreter{sink: d.SmsSink},
		workflow.NodeAction:        actionInterpreter{},
		workflow.NodeApproval:      newApprovalInterpreter(d.ApprovalRepo, d.EmailSink),
		workflow.NodeSchedule:      scheduleInterpreter{scheduler: d.Scheduler},
		// LOOP is registered so it can be unit-tested in isolation, but the
		// graph walk below never dispatches through it directly — runLoopNode
		// owns the real per-item re-entry (see graph.go).
		workflow.NodeLoop: loopInterpreter{},
	}
	return &Engine{
		workflowRepo: d.WorkflowRepo,
		execRepo:     d.ExecRepo,
		approvalRepo: d.ApprovalRepo,
		scheduler:    d.Scheduler,
		clock:        clock,
		interpreters: interpreters,
		log:          log,
	}
}

// ExecuteWorkflow satisfies dispatch.Engine: build the per-execution
// RunContext, resolve a start node, and walk the graph (spec §4.2).
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID core.ID, ev dispatch.Event, triggerID core.ID) (core.ID, error) {
	log := e.log.With("workflowId", workflowID.String())

	wf, err := e.workflowRepo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", core.NewError(fmt.Errorf("loading workflow: %w", err), core.ErrCodeFatal, nil)
	}
	if !wf.IsEligibleForDispatch() {
		return "", core.NewError(fmt.Errorf("workflow %s is not ACTIVE", workflowID), core.ErrCodeDefinition, nil)
	}

	nodes, err := e.workflowRepo.GetNodes(ctx, workflowID)
	if err != nil {
		return "", core.NewError(fmt.Errorf("loading nodes: %w", err), core.ErrCodeFatal, nil)
	}
	conns, err := e.workflowRepo.GetConnections(ctx, workflowID)
	if err != nil {
		return "", core.NewError(fmt.Errorf("loading connections: %w", err), core.ErrCodeFatal, nil)
	}
	g := buildGraph(nodes, conns)

	execID, err := core.NewID()
	if err != nil {
		return "", core.NewError(err, core.ErrCodeFatal, nil)
	}

	var triggerIDPtr *core.ID
	startNode, ok := e.resolveStartNode(ctx, g, triggerID)
	if triggerID != "" {
		triggerIDPtr = &triggerID
	}

	exec := &workflow.Execution{
		ID:             execID,
		WorkflowID:     workflowID,
		OrganizationID: ev.OrganizationID,
		Module:         ev.Module,
		UserID:         ev.UserID,
		TriggerID:      triggerIDPtr,
		Status:         workflow.ExecutionRunning,
		TriggerData:    ev.Payload,
		StartedAt:      e.clock.Now(),
	}
	if err := e.execRepo.CreateExecution(ctx, exec); err != nil {
		return "", core.NewError(fmt.Errorf("creating execution: %w", err), core.ErrCodeFatal, nil)
	}

	if !ok {
		// spec §4.2 "Start-node selection": neither triggerId nor
		// context-matching resolved a start node — succeed with no work done.
		e.finishExecution(ctx, exec, workflow.ExecutionCompleted, core.Null(), nil)
		return execID, nil
	}

	rc := NewRunContext(execID, workflowID, ev.OrganizationID, ev.UserID, e.clock)
	rc.Module = ev.Module
	rc.EntityType = ev.EntityType
	rc.EventType = ev.EventType
	rc.Payload = ev.Payload
	rc.TriggerData = ev.Payload
	rc.User = nestedOrNull(ev.Payload, "user")
	rc.Organization = nestedOrNull(ev.Payload, "organization")

	runErr := e.runNode(ctx, g, rc, startNode.NodeID)

	status := workflow.ExecutionCompleted
	var execErr *core.Error
	if runErr != nil {
		status = workflow.ExecutionFailed
		execErr = toCoreError(runErr)
		log.Warn("workflow execution failed", "executionId", execID.String(), "error", runErr)
	}
	e.finishExecution(ctx, exec, status, core.ObjectValue(rc.SharedSnapshot()), execErr)
	return execID, nil
}

func (e *Engine) finishExecution(ctx context.Context, exec *workflow.Execution, status workflow.ExecutionStatus, result core.Value, execErr *core.Error) {
	if err := e.execRepo.UpdateExecutionStatus(ctx, exec.ID, status, result, execErr); err != nil {
		e.log.Error("failed to persist execution status", "executionId", exec.ID.String(), "error", err)
	}
	if err := e.workflowRepo.IncrementCounters(ctx, exec.WorkflowID, status == workflow.ExecutionCompleted); err != nil {
		e.log.Error("failed to increment workflow counters", "workflowId", exec.WorkflowID.String(), "error", err)
	}
}

// resolveStartNode implements spec §4.2 "Start-node selection": if
// triggerId maps to a node, start there; otherwise no start node resolves
// (context-matching re-derivation belongs to the Dispatcher, which already
// supplies triggerId for every event-driven call).
func (e *Engine) resolveStartNode(ctx context.Context, g *graph, triggerID core.ID) (*workflow.Node, bool) {
	if triggerID == "" {
		return nil, false
	}
	trigger, err := e.workflowRepo.GetTrigger(ctx, triggerID)
	if err != nil || trigger == nil {
		return nil, false
	}
	node, ok := g.nodes[trigger.NodeID]
	return node, ok
}

// ResumeAfterApproval implements spec §6 "resumeAfterApproval": decide the
// approval, then either resume from the approval node's successors or fail
// the owning execution. Exported as part of the Engine's inbound surface
// an embedding service calls once a human actor decides a pending approval.
func (e *Engine) ResumeAfterApproval(ctx context.Context, approvalID core.ID, approved bool, actorID core.ID, comments *string) error {
	approval, err := e.approvalRepo.Decide(ctx, approvalID, approved, actorID, comments, e.clock.Now())
	if err != nil {
		return core.NewError(fmt.Errorf("deciding approval: %w", err), core.ErrCodeTransient, nil)
	}

	exec, err := e.execRepo.GetExecution(ctx, approval.ExecutionID)
	if err != nil {
		return core.NewError(fmt.Errorf("loading execution: %w", err), core.ErrCodeFatal, nil)
	}

	if !approved {
		rejectedErr := core.NewError(errors.New("approval rejected"), core.ErrCodePredicate, map[string]any{"approvalId": approvalID.String()})
		e.finishExecution(ctx, exec, workflow.ExecutionFailed, core.Null(), rejectedErr)
		return nil
	}

	nodes, err := e.workflowRepo.GetNodes(ctx, exec.WorkflowID)
	if err != nil {
		return core.NewError(fmt.Errorf("loading nodes: %w", err), core.ErrCodeFatal, nil)
	}
	conns, err := e.workflowRepo.GetConnections(ctx, exec.WorkflowID)
	if err != nil {
		return core.NewError(fmt.Errorf("loading connections: %w", err), core.ErrCodeFatal, nil)
	}
	g := buildGraph(nodes, conns)

	rc := NewRunContext(exec.ID, exec.WorkflowID, exec.OrganizationID, exec.UserID, e.clock)
	rc.Module = exec.Module
	rc.Payload = exec.TriggerData
	rc.TriggerData = exec.TriggerData
	rc.User = nestedOrNull(exec.TriggerData, "user")
	rc.Organization = nestedOrNull(exec.TriggerData, "organization")

	// Reconstruct prior node outputs from persisted history (RunContext
	// itself is per-process memory and does not survive the approval park).
	if history, err := e.execRepo.ListNodeExecutions(ctx, exec.ID); err == nil {
		for _, ne := range history {
			if ne.Status == core.StatusCompleted || ne.Status == core.StatusPending {
				rc.SetNodeOutput(ne.NodeID, ne.Output)
			}
		}
	}

	successors := selectConnections(g.outgoing[approval.NodeID], core.StatusCompleted, []string{"approved"})
	var runErr error
	for _, conn := range successors {
		if err := e.runNode(ctx, g, rc, conn.TargetNodeID); err != nil {
			runErr = err
			break
		}
	}

	status := workflow.ExecutionCompleted
	var execErr *core.Error
	if runErr != nil {
		status = workflow.ExecutionFailed
		execErr = toCoreError(runErr)
	}
	e.finishExecution(ctx, exec, status, core.ObjectValue(rc.SharedSnapshot()), execErr)
	return nil
}

// CancelExecution implements spec §5 "cancelExecution": atomically
// transition a RUNNING execution to a terminal, non-completed status.
// In-flight node tasks are not forcibly killed; their completions are
// simply ignored once the execution is no longer RUNNING. Exported as
// part of the Engine's inbound surface.
func (e *Engine) CancelExecution(ctx context.Context, executionID core.ID, reason string) error {
	return e.execRepo.CancelRunning(ctx, executionID, reason)
}

// RetryExecution implements spec §6: only valid for a FAILED execution;
// replays with the frozen trigger data and triggerId. Exported as part of
// the Engine's inbound surface.
func (e *Engine) RetryExecution(ctx context.Context, executionID core.ID) (core.ID, error) {
	exec, err := e.execRepo.GetExecution(ctx, executionID)
	if err != nil {
		return "", core.NewError(fmt.Errorf("loading execution: %w", err), core.ErrCodeFatal, nil)
	}
	if exec.Status != workflow.ExecutionFailed {
		return "", core.NewError(fmt.Errorf("execution %s is not FAILED", executionID), core.ErrCodeDefinition, nil)
	}
	var triggerID core.ID
	if exec.TriggerID != nil {
		triggerID = *exec.TriggerID
	}
	ev := dispatch.Event{
		OrganizationID: exec.OrganizationID,
		Module:         exec.Module,
		Payload:        exec.TriggerData,
		UserID:         exec.UserID,
		TriggeredAt:    e.clock.Now(),
	}
	return e.ExecuteWorkflow(ctx, exec.WorkflowID, ev, triggerID)
}

// GetWorkflowStats implements spec §6. Exported as part of the Engine's
// inbound surface.
func (e *Engine) GetWorkflowStats(ctx context.Context, workflowID core.ID) (Stats, error) {
	wf, err := e.workflowRepo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return Stats{}, core.NewError(fmt.Errorf("loading workflow: %w", err), core.ErrCodeFatal, nil)
	}
	return Stats{
		WorkflowID:           wf.ID,
		TotalExecutions:      wf.TotalExecutions,
		SuccessfulExecutions: wf.SuccessfulExecutions,
		FailedExecutions:     wf.FailedExecutions,
		LastExecutedAt:       wf.LastExecutedAt,
	}, nil
}

// executeNodeOnce races node.Interpreter against the node's timeout and,
// when retryLimit > 0, retries transient failures using sethvargo/go-retry
// with the Scheduler's own backoff curve (spec §4.2 "Timeouts & retries":
// "reusing the same backoff shape the Scheduler uses rather than inventing
// a second backoff curve").
func (e *Engine) executeNodeOnce(ctx context.Context, rc *RunContext, node *workflow.Node, interp NodeInterpreter) NodeResult {
	attempt := func(ctx context.Context) NodeResult {
		nodeCtx, cancel := context.WithTimeout(ctx, node.EffectiveTimeout())
		defer cancel()
		type outcome struct {
			res NodeResult
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := interp.Execute(nodeCtx, rc, node)
			done <- outcome{res: res, err: err}
		}()
		select {
		case o := <-done:
			if o.err != nil && o.res.Status == "" {
				o.res.Status = core.StatusFailed
			}
			return o.res
		case <-nodeCtx.Done():
			nodeErr := core.NewError(nodeCtx.Err(), core.ErrCodeTransient, map[string]any{"node": node.NodeID})
			return NodeResult{Status: core.StatusFailed, Err: nodeErr}
		}
	}

	if node.RetryLimit <= 0 {
		return attempt(ctx)
	}

	var final NodeResult
	backoff := nodeRetryBackoff(node.RetryLimit)
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		final = attempt(ctx)
		if final.Status == core.StatusFailed && final.Err != nil && final.Err.Code == core.ErrCodeTransient {
			return retry.RetryableError(errors.New(final.Err.Message))
		}
		if final.Status == core.StatusFailed {
			return final.Err
		}
		return nil
	})
	return final
}

// nodeRetryBackoff wraps schedule.Backoff as a go-retry Backoff so node
// retries follow the identical clamp(60*2^(n-1), 60, 86400s) curve the
// Scheduler uses for schedule dispatch failures.
func nodeRetryBackoff(limit int) retry.Backoff {
	attempt := 0
	base := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return schedule.Backoff(attempt), false
	})
	return retry.WithMaxRetries(uint64(limit), base)
}

func toCoreError(err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return core.NewError(err, core.ErrCodeFatal, nil)
}

func nestedOrNull(v core.Value, field string) core.Value {
	if nested, ok := v.Get(field); ok {
		return nested
	}
	return core.Null()
}
