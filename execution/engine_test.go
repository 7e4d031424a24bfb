package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/dispatch"
	"github.com/opensyte/workflow-core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorkflowRepo is an in-memory WorkflowRepository backing one workflow's
// graph, following the fakeRepo pattern from dispatch/dispatcher_test.go.
type fakeWorkflowRepo struct {
	mu               sync.Mutex
	wf               *workflow.Workflow
	nodes            []workflow.Node
	conns            []*workflow.Connection
	trigger          *workflow.Trigger
	incrementCalls   int
	incrementSuccess int
}

func (r *fakeWorkflowRepo) GetWorkflow(_ context.Context, _ core.ID) (*workflow.Workflow, error) {
	return r.wf, nil
}

func (r *fakeWorkflowRepo) GetNodes(_ context.Context, _ core.ID) ([]workflow.Node, error) {
	return r.nodes, nil
}

func (r *fakeWorkflowRepo) GetConnections(_ context.Context, _ core.ID) ([]*workflow.Connection, error) {
	return r.conns, nil
}

func (r *fakeWorkflowRepo) GetTrigger(_ context.Context, id core.ID) (*workflow.Trigger, error) {
	if r.trigger != nil && r.trigger.ID == id {
		return r.trigger, nil
	}
	return nil, fmt.Errorf("trigger %s not found", id)
}

func (r *fakeWorkflowRepo) IncrementCounters(_ context.Context, _ core.ID, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incrementCalls++
	if success {
		r.incrementSuccess++
	}
	return nil
}

// fakeExecRepo is an in-memory ExecutionRepository. CreateNodeExecution
// appends the same *workflow.NodeExecution pointer executeTracked/
// runLoopNode later mutate in place, so nodeExecs ends up an ordered,
// always-current record of every node attempt.
type fakeExecRepo struct {
	mu         sync.Mutex
	executions map[core.ID]*workflow.Execution
	nodeExecs  []*workflow.NodeExecution
	logs       []*workflow.ExecutionLog
}

func newFakeExecRepo() *fakeExecRepo {
	return &fakeExecRepo{executions: map[core.ID]*workflow.Execution{}}
}

func (r *fakeExecRepo) CreateExecution(_ context.Context, exec *workflow.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	r.executions[exec.ID] = &cp
	return nil
}

func (r *fakeExecRepo) GetExecution(_ context.Context, id core.ID) (*workflow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	cp := *exec
	return &cp, nil
}

func (r *fakeExecRepo) UpdateExecutionStatus(_ context.Context, id core.ID, status workflow.ExecutionStatus, result core.Value, execErr *core.Error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.executions[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	exec.Status = status
	exec.Result = result
	exec.Error = execErr
	return nil
}

func (r *fakeExecRepo) CancelRunning(_ context.Context, id core.ID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.executions[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	if exec.Status != workflow.ExecutionRunning {
		return fmt.Errorf("execution %s is not RUNNING", id)
	}
	exec.Status = workflow.ExecutionCancelled
	exec.Error = core.NewError(fmt.Errorf("%s", reason), core.ErrCodePredicate, nil)
	return nil
}

func (r *fakeExecRepo) CreateNodeExecution(_ context.Context, ne *workflow.NodeExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeExecs = append(r.nodeExecs, ne)
	return nil
}

func (r *fakeExecRepo) UpdateNodeExecution(_ context.Context, _ *workflow.NodeExecution) error {
	return nil
}

func (r *fakeExecRepo) ListNodeExecutions(_ context.Context, executionID core.ID) ([]workflow.NodeExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []workflow.NodeExecution
	for _, ne := range r.nodeExecs {
		if ne.WorkflowExecutionID == executionID {
			out = append(out, *ne)
		}
	}
	return out, nil
}

func (r *fakeExecRepo) AppendLog(_ context.Context, log *workflow.ExecutionLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
}

// nodeExecutionsFor returns, in call order, the NodeExecutions created for
// nodeID.
func (r *fakeExecRepo) nodeExecutionsFor(nodeID string) []*workflow.NodeExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*workflow.NodeExecution
	for _, ne := range r.nodeExecs {
		if ne.NodeID == nodeID {
			out = append(out, ne)
		}
	}
	return out
}

// fakeApprovalRepo is an in-memory ApprovalRepository guarding against
// deciding an already-decided approval, mirroring
// store/postgres/approvalrepo.go's WHERE status='PENDING' guard.
type fakeApprovalRepo struct {
	mu        sync.Mutex
	approvals map[core.ID]*workflow.Approval
}

func newFakeApprovalRepo() *fakeApprovalRepo {
	return &fakeApprovalRepo{approvals: map[core.ID]*workflow.Approval{}}
}

func (r *fakeApprovalRepo) Create(_ context.Context, a *workflow.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.approvals[a.ID] = &cp
	return nil
}

func (r *fakeApprovalRepo) Get(_ context.Context, id core.ID) (*workflow.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (r *fakeApprovalRepo) Decide(_ context.Context, id core.ID, approved bool, actorID core.ID, comments *string, decidedAt time.Time) (*workflow.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.approvals[id]
	if !ok {
		return nil, fmt.Errorf("approval %s not found", id)
	}
	if a.Status != core.ApprovalPending {
		return nil, fmt.Errorf("approval %s already decided", id)
	}
	if approved {
		a.Status = core.ApprovalApproved
	} else {
		a.Status = core.ApprovalRejected
	}
	a.DecidedBy = &actorID
	a.DecidedAt = &decidedAt
	a.Comments = comments
	cp := *a
	return &cp, nil
}

// onlyApproval returns the single approval a test expects to have been
// created.
func (r *fakeApprovalRepo) onlyApproval(t *testing.T) *workflow.Approval {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.approvals, 1)
	for _, a := range r.approvals {
		cp := *a
		return &cp
	}
	return nil
}

// harness bundles one Engine with its fake collaborators for a single test.
type harness struct {
	workflowRepo *fakeWorkflowRepo
	execRepo     *fakeExecRepo
	approvalRepo *fakeApprovalRepo
	engine       *Engine
}

func newHarness(wf *workflow.Workflow, trigger *workflow.Trigger, nodes []workflow.Node, conns []*workflow.Connection, smsSink adapters.SmsSink) *harness {
	h := &harness{
		workflowRepo: &fakeWorkflowRepo{wf: wf, trigger: trigger, nodes: nodes, conns: conns},
		execRepo:     newFakeExecRepo(),
		approvalRepo: newFakeApprovalRepo(),
	}
	if smsSink == nil {
		smsSink = adapters.UnconfiguredSmsSink{}
	}
	h.engine = NewEngine(Deps{
		WorkflowRepo: h.workflowRepo,
		ExecRepo:     h.execRepo,
		ApprovalRepo: h.approvalRepo,
		EmailSink:    adapters.NoopEmailSink{},
		SmsSink:      smsSink,
		RecordStore:  adapters.NewInMemoryRecordStore(),
		Clock:        adapters.NewFixedClock(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)),
	})
	return h
}

func connOrder(order int) *int { return &order }

func TestEngine_LoopBodyReceivesPerIterationPayload(t *testing.T) {
	t.Run("Should merge itemVariable/indexVariable/loop into each iteration's payload (Scenario 3)", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.ID("wf-loop"), Status: workflow.StatusActive}
		trigger := &workflow.Trigger{ID: core.ID("trig-loop"), WorkflowID: wf.ID, NodeID: "start"}
		nodes := []workflow.Node{
			{NodeID: "start", Type: workflow.NodeTrigger},
			{NodeID: "loop1", Type: workflow.NodeLoop, Config: workflow.NodeConfig{
				Kind: workflow.NodeLoop,
				Loop: &workflow.LoopConfig{DataSource: "payload.tasks"},
			}},
			{NodeID: "bodyIndex", Type: workflow.NodeDataTransform, Config: workflow.NodeConfig{
				Kind:          workflow.NodeDataTransform,
				DataTransform: &workflow.DataTransformConfig{Operation: workflow.TransformExtract, Expression: "payload.index"},
			}},
			{NodeID: "bodyTotal", Type: workflow.NodeDataTransform, Config: workflow.NodeConfig{
				Kind:          workflow.NodeDataTransform,
				DataTransform: &workflow.DataTransformConfig{Operation: workflow.TransformExtract, Expression: "payload.loop.total"},
			}},
		}
		conns := []*workflow.Connection{
			{SourceNodeID: "start", TargetNodeID: "loop1", ExecutionOrder: connOrder(1)},
			{SourceNodeID: "loop1", TargetNodeID: "bodyIndex", SourceHandle: "body", ExecutionOrder: connOrder(1)},
			{SourceNodeID: "loop1", TargetNodeID: "bodyTotal", SourceHandle: "body", ExecutionOrder: connOrder(2)},
		}
		h := newHarness(wf, trigger, nodes, conns, nil)

		ev := dispatch.Event{
			OrganizationID: core.ID("org-1"),
			Module:         "CRM",
			Payload:        core.ValueOf(map[string]any{"tasks": []any{"a", "b", "c"}}),
			TriggeredAt:    time.Now().UTC(),
		}
		execID, err := h.engine.ExecuteWorkflow(context.Background(), wf.ID, ev, trigger.ID)
		require.NoError(t, err)

		indexRuns := h.execRepo.nodeExecutionsFor("bodyIndex")
		require.Len(t, indexRuns, 3)
		for i, ne := range indexRuns {
			assert.Equal(t, core.StatusCompleted, ne.Status)
			n, ok := ne.Output.AsNumber()
			require.True(t, ok)
			assert.Equal(t, float64(i), n)
		}

		totalRuns := h.execRepo.nodeExecutionsFor("bodyTotal")
		require.Len(t, totalRuns, 3)
		for _, ne := range totalRuns {
			assert.Equal(t, core.StatusCompleted, ne.Status)
			n, ok := ne.Output.AsNumber()
			require.True(t, ok)
			assert.Equal(t, float64(3), n)
		}

		loopRuns := h.execRepo.nodeExecutionsFor("loop1")
		require.Len(t, loopRuns, 1)
		iterations, _ := loopRuns[0].Output.Get("iterations")
		n, _ := iterations.AsNumber()
		assert.Equal(t, float64(3), n)

		exec, err := h.execRepo.GetExecution(context.Background(), execID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ExecutionCompleted, exec.Status)
	})

	t.Run("Should record one NodeExecution per node visited, every one in a terminal status (invariant 1)", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.ID("wf-loop-2"), Status: workflow.StatusActive}
		trigger := &workflow.Trigger{ID: core.ID("trig-loop-2"), WorkflowID: wf.ID, NodeID: "start"}
		nodes := []workflow.Node{
			{NodeID: "start", Type: workflow.NodeTrigger},
			{NodeID: "loop1", Type: workflow.NodeLoop, Config: workflow.NodeConfig{
				Kind: workflow.NodeLoop,
				Loop: &workflow.LoopConfig{DataSource: "payload.tasks"},
			}},
			{NodeID: "bodyIndex", Type: workflow.NodeDataTransform, Config: workflow.NodeConfig{
				Kind:          workflow.NodeDataTransform,
				DataTransform: &workflow.DataTransformConfig{Operation: workflow.TransformExtract, Expression: "payload.index"},
			}},
		}
		conns := []*workflow.Connection{
			{SourceNodeID: "start", TargetNodeID: "loop1"},
			{SourceNodeID: "loop1", TargetNodeID: "bodyIndex", SourceHandle: "body"},
		}
		h := newHarness(wf, trigger, nodes, conns, nil)

		ev := dispatch.Event{
			OrganizationID: core.ID("org-1"),
			Payload:        core.ValueOf(map[string]any{"tasks": []any{"x", "y", "z"}}),
		}
		execID, err := h.engine.ExecuteWorkflow(context.Background(), wf.ID, ev, trigger.ID)
		require.NoError(t, err)

		all, err := h.execRepo.ListNodeExecutions(context.Background(), execID)
		require.NoError(t, err)
		// start(1) + loop1(1) + bodyIndex(3 iterations) = 5
		require.Len(t, all, 5)
		for _, ne := range all {
			assert.True(t, ne.Status.IsTerminal(), "node execution %s (%s) should be terminal, got %s", ne.ID, ne.NodeID, ne.Status)
			assert.NotNil(t, ne.CompletedAt)
		}
	})
}

func TestEngine_ApprovalPauseAndResume(t *testing.T) {
	buildApprovalWorkflow := func(id string) (*workflow.Workflow, *workflow.Trigger, []workflow.Node, []*workflow.Connection) {
		wf := &workflow.Workflow{ID: core.ID("wf-approval-" + id), Status: workflow.StatusActive}
		trigger := &workflow.Trigger{ID: core.ID("trig-approval-" + id), WorkflowID: wf.ID, NodeID: "start"}
		nodes := []workflow.Node{
			{NodeID: "start", Type: workflow.NodeTrigger},
			{NodeID: "appr1", Type: workflow.NodeApproval, Config: workflow.NodeConfig{
				Kind:     workflow.NodeApproval,
				Approval: &workflow.ApprovalConfig{ApproverIDs: []core.ID{"u1"}},
			}},
			{NodeID: "after", Type: workflow.NodeAction, Config: workflow.NodeConfig{
				Kind:   workflow.NodeAction,
				Action: &workflow.ActionConfig{},
			}},
		}
		conns := []*workflow.Connection{
			{SourceNodeID: "start", TargetNodeID: "appr1"},
			{SourceNodeID: "appr1", TargetNodeID: "after", SourceHandle: "approved"},
		}
		return wf, trigger, nodes, conns
	}

	t.Run("Should pause at the approval node and resume into its successor once approved (Scenario 5)", func(t *testing.T) {
		wf, trigger, nodes, conns := buildApprovalWorkflow("approve")
		h := newHarness(wf, trigger, nodes, conns, nil)

		ev := dispatch.Event{OrganizationID: core.ID("org-1"), Payload: core.Null()}
		execID, err := h.engine.ExecuteWorkflow(context.Background(), wf.ID, ev, trigger.ID)
		require.NoError(t, err)

		// The approval parks the branch: "after" must not have run yet.
		assert.Empty(t, h.execRepo.nodeExecutionsFor("after"))
		apprRuns := h.execRepo.nodeExecutionsFor("appr1")
		require.Len(t, apprRuns, 1)
		assert.Equal(t, core.StatusPending, apprRuns[0].Status)

		approval := h.approvalRepo.onlyApproval(t)
		require.Equal(t, core.ApprovalPending, approval.Status)

		err = h.engine.ResumeAfterApproval(context.Background(), approval.ID, true, core.ID("approver-1"), nil)
		require.NoError(t, err)

		decided, err := h.approvalRepo.Get(context.Background(), approval.ID)
		require.NoError(t, err)
		assert.Equal(t, core.ApprovalApproved, decided.Status)

		afterRuns := h.execRepo.nodeExecutionsFor("after")
		require.Len(t, afterRuns, 1)
		assert.Equal(t, core.StatusCompleted, afterRuns[0].Status)

		exec, err := h.execRepo.GetExecution(context.Background(), execID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ExecutionCompleted, exec.Status)
	})

	t.Run("Should fail the execution when the approval is rejected", func(t *testing.T) {
		wf, trigger, nodes, conns := buildApprovalWorkflow("reject")
		h := newHarness(wf, trigger, nodes, conns, nil)

		ev := dispatch.Event{OrganizationID: core.ID("org-1"), Payload: core.Null()}
		execID, err := h.engine.ExecuteWorkflow(context.Background(), wf.ID, ev, trigger.ID)
		require.NoError(t, err)

		approval := h.approvalRepo.onlyApproval(t)
		err = h.engine.ResumeAfterApproval(context.Background(), approval.ID, false, core.ID("approver-1"), nil)
		require.NoError(t, err)

		decided, err := h.approvalRepo.Get(context.Background(), approval.ID)
		require.NoError(t, err)
		assert.Equal(t, core.ApprovalRejected, decided.Status)

		assert.Empty(t, h.execRepo.nodeExecutionsFor("after"))
		exec, err := h.execRepo.GetExecution(context.Background(), execID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ExecutionFailed, exec.Status)
		require.NotNil(t, exec.Error)
		assert.Equal(t, core.ErrCodePredicate, exec.Error.Code)
	})

	t.Run("Should never leave a NodeExecution RUNNING once the owning execution is terminal (invariant 7)", func(t *testing.T) {
		wf, trigger, nodes, conns := buildApprovalWorkflow("invariant")
		h := newHarness(wf, trigger, nodes, conns, nil)

		ev := dispatch.Event{OrganizationID: core.ID("org-1"), Payload: core.Null()}
		execID, err := h.engine.ExecuteWorkflow(context.Background(), wf.ID, ev, trigger.ID)
		require.NoError(t, err)
		approval := h.approvalRepo.onlyApproval(t)
		require.NoError(t, h.engine.ResumeAfterApproval(context.Background(), approval.ID, true, core.ID("approver-1"), nil))

		exec, err := h.execRepo.GetExecution(context.Background(), execID)
		require.NoError(t, err)
		require.True(t, exec.Status.IsTerminal())

		all, err := h.execRepo.ListNodeExecutions(context.Background(), execID)
		require.NoError(t, err)
		for _, ne := range all {
			assert.NotEqual(t, core.StatusRunning, ne.Status)
		}
	})
}

func TestEngine_SMSUnconfiguredAdapterIsSkippedNotFailed(t *testing.T) {
	t.Run("Should complete with output.skipped=true when the SMS adapter is unconfigured (Scenario 6)", func(t *testing.T) {
		wf := &workflow.Workflow{ID: core.ID("wf-sms"), Status: workflow.StatusActive}
		trigger := &workflow.Trigger{ID: core.ID("trig-sms"), WorkflowID: wf.ID, NodeID: "start"}
		nodes := []workflow.Node{
			{NodeID: "start", Type: workflow.NodeTrigger},
			{NodeID: "sms1", Type: workflow.NodeSMS, SMSAction: &workflow.SMSAction{To: "+15551234567", Message: "Hello there"}},
			{NodeID: "after", Type: workflow.NodeAction, Config: workflow.NodeConfig{
				Kind:   workflow.NodeAction,
				Action: &workflow.ActionConfig{},
			}},
		}
		conns := []*workflow.Connection{
			{SourceNodeID: "start", TargetNodeID: "sms1"},
			{SourceNodeID: "sms1", TargetNodeID: "after"},
		}
		h := newHarness(wf, trigger, nodes, conns, adapters.UnconfiguredSmsSink{})

		ev := dispatch.Event{OrganizationID: core.ID("org-1"), Payload: core.Null()}
		execID, err := h.engine.ExecuteWorkflow(context.Background(), wf.ID, ev, trigger.ID)
		require.NoError(t, err)

		smsRuns := h.execRepo.nodeExecutionsFor("sms1")
		require.Len(t, smsRuns, 1)
		assert.Equal(t, core.StatusCompleted, smsRuns[0].Status)
		skipped, ok := smsRuns[0].Output.Get("skipped")
		require.True(t, ok)
		b, _ := skipped.AsBool()
		assert.True(t, b)

		// The branch is not aborted: "after" still runs.
		afterRuns := h.execRepo.nodeExecutionsFor("after")
		require.Len(t, afterRuns, 1)
		assert.Equal(t, core.StatusCompleted, afterRuns[0].Status)

		exec, err := h.execRepo.GetExecution(context.Background(), execID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ExecutionCompleted, exec.Status)
	})
}
