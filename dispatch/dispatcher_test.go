package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
	"github.com/opensyte/workflow-core/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

type fakeRepo struct {
	workflows []WorkflowTriggers
	fired     []core.ID
}

func (r *fakeRepo) ActiveWorkflowsWithTriggers(_ context.Context, _ core.ID) ([]WorkflowTriggers, error) {
	return r.workflows, nil
}

func (r *fakeRepo) RecordTriggerFired(_ context.Context, triggerID core.ID) error {
	r.fired = append(r.fired, triggerID)
	return nil
}

type fakeEngine struct {
	fail map[core.ID]bool
}

func (e *fakeEngine) ExecuteWorkflow(_ context.Context, workflowID core.ID, _ Event, _ core.ID) (core.ID, error) {
	if e.fail[workflowID] {
		return "", errors.New("engine exploded")
	}
	return core.ID("exec-" + workflowID.String()), nil
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("Should let an exact match win over a wildcard", func(t *testing.T) {
		wf := workflow.Workflow{ID: core.ID("wf-1"), Status: workflow.StatusActive}
		wildcard := workflow.Trigger{
			ID: core.ID("t1"), WorkflowID: wf.ID, NodeID: "n1",
			Module: "CRM", EntityType: strPtr("deal"), EventType: nil, IsActive: true,
		}
		exact := workflow.Trigger{
			ID: core.ID("t2"), WorkflowID: wf.ID, NodeID: "n2",
			Module: "CRM", EntityType: strPtr("deal"), EventType: strPtr("DEAL_STATUS_CHANGED"), IsActive: true,
		}
		repo := &fakeRepo{workflows: []WorkflowTriggers{{Workflow: wf, Triggers: []workflow.Trigger{wildcard, exact}}}}
		engine := &fakeEngine{fail: map[core.ID]bool{}}
		d := NewDispatcher(repo, engine)

		ev := Event{OrganizationID: core.ID("org-1"), Module: "CRM", EntityType: "deal", EventType: "DEAL_STATUS_CHANGED", Payload: core.Null()}
		result, err := d.Dispatch(context.Background(), ev)
		require.NoError(t, err)

		assert.Equal(t, 1, result.TriggeredCount)
		require.Len(t, result.PerWorkflowResults, 1)
		assert.Equal(t, core.ID("t2"), result.PerWorkflowResults[0].TriggerID)
		assert.Equal(t, []core.ID{core.ID("t2")}, repo.fired)
	})

	t.Run("Should require every dispatched workflow's trigger module to match the event module", func(t *testing.T) {
		wf := workflow.Workflow{ID: core.ID("wf-2"), Status: workflow.StatusActive}
		hrTrigger := workflow.Trigger{ID: core.ID("t3"), WorkflowID: wf.ID, NodeID: "n1", Module: "HR", IsActive: true}
		repo := &fakeRepo{workflows: []WorkflowTriggers{{Workflow: wf, Triggers: []workflow.Trigger{hrTrigger}}}}
		engine := &fakeEngine{fail: map[core.ID]bool{}}
		d := NewDispatcher(repo, engine)

		ev := Event{OrganizationID: core.ID("org-1"), Module: "CRM", EntityType: "deal", EventType: "X", Payload: core.Null()}
		result, err := d.Dispatch(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, 0, result.TriggeredCount)
	})

	t.Run("Should retain only the maximum-score triggers per workflow", func(t *testing.T) {
		wf := workflow.Workflow{ID: core.ID("wf-3"), Status: workflow.StatusActive}
		low := workflow.Trigger{ID: core.ID("t4"), WorkflowID: wf.ID, NodeID: "n1", Module: "CRM", EventType: strPtr("OTHER"), IsActive: true}
		high := workflow.Trigger{ID: core.ID("t5"), WorkflowID: wf.ID, NodeID: "n2", Module: "CRM", EntityType: strPtr("deal"), EventType: strPtr("X"), IsActive: true}
		repo := &fakeRepo{workflows: []WorkflowTriggers{{Workflow: wf, Triggers: []workflow.Trigger{low, high}}}}
		engine := &fakeEngine{fail: map[core.ID]bool{}}
		d := NewDispatcher(repo, engine)

		ev := Event{OrganizationID: core.ID("org-1"), Module: "CRM", EntityType: "deal", EventType: "X", Payload: core.Null()}
		result, err := d.Dispatch(context.Background(), ev)
		require.NoError(t, err)
		require.Len(t, result.PerWorkflowResults, 1)
		assert.Equal(t, core.ID("t5"), result.PerWorkflowResults[0].TriggerID)
	})

	t.Run("Should isolate one workflow's engine failure from the others", func(t *testing.T) {
		wf1 := workflow.Workflow{ID: core.ID("wf-a"), Status: workflow.StatusActive}
		wf2 := workflow.Workflow{ID: core.ID("wf-b"), Status: workflow.StatusActive}
		t1 := workflow.Trigger{ID: core.ID("ta"), WorkflowID: wf1.ID, NodeID: "n1", Module: "CRM", IsActive: true}
		t2 := workflow.Trigger{ID: core.ID("tb"), WorkflowID: wf2.ID, NodeID: "n1", Module: "CRM", IsActive: true}
		repo := &fakeRepo{workflows: []WorkflowTriggers{
			{Workflow: wf1, Triggers: []workflow.Trigger{t1}},
			{Workflow: wf2, Triggers: []workflow.Trigger{t2}},
		}}
		engine := &fakeEngine{fail: map[core.ID]bool{wf1.ID: true}}
		d := NewDispatcher(repo, engine)

		ev := Event{OrganizationID: core.ID("org-1"), Module: "CRM", EntityType: "any", EventType: "any", Payload: core.Null()}
		result, err := d.Dispatch(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, 1, result.TriggeredCount)
		require.Len(t, result.PerWorkflowResults, 2)
	})

	t.Run("Should evaluate trigger conditions and drop non-matching ones", func(t *testing.T) {
		wf := workflow.Workflow{ID: core.ID("wf-4"), Status: workflow.StatusActive}
		trig := workflow.Trigger{
			ID: core.ID("t6"), WorkflowID: wf.ID, NodeID: "n1", Module: "CRM", IsActive: true,
			Conditions: &resolve.ConditionSet{
				LogicalOperator: resolve.LogicalAND,
				Conditions: []resolve.Condition{
					{Field: "payload.amount", Op: resolve.OpGT, Value: core.NumberValue(500)},
				},
			},
		}
		repo := &fakeRepo{workflows: []WorkflowTriggers{{Workflow: wf, Triggers: []workflow.Trigger{trig}}}}
		engine := &fakeEngine{fail: map[core.ID]bool{}}
		d := NewDispatcher(repo, engine)

		ev := Event{OrganizationID: core.ID("org-1"), Module: "CRM", EntityType: "any", EventType: "any",
			Payload: core.ValueOf(map[string]any{"amount": 300.0})}
		result, err := d.Dispatch(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, 0, result.TriggeredCount)
	})

	t.Run("Should skip inactive workflows entirely", func(t *testing.T) {
		wf := workflow.Workflow{ID: core.ID("wf-5"), Status: workflow.StatusPaused}
		trig := workflow.Trigger{ID: core.ID("t7"), WorkflowID: wf.ID, NodeID: "n1", Module: "CRM", IsActive: true}
		repo := &fakeRepo{workflows: []WorkflowTriggers{{Workflow: wf, Triggers: []workflow.Trigger{trig}}}}
		d := NewDispatcher(repo, &fakeEngine{fail: map[core.ID]bool{}})

		ev := Event{OrganizationID: core.ID("org-1"), Module: "CRM", EntityType: "any", EventType: "any", Payload: core.Null()}
		result, err := d.Dispatch(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, 0, result.TriggeredCount)
	})
}
