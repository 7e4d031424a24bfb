package dispatch

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// Repository is the persistence port the Dispatcher calls through to find
// candidate workflows/triggers and record trigger firings (spec §4.1). The
// postgres implementation lives in store/postgres.
type Repository interface {
	// ActiveWorkflowsWithTriggers returns every ACTIVE workflow in org that
	// owns at least one active trigger, together with those triggers
	// (spec §4.1 step 1).
	ActiveWorkflowsWithTriggers(ctx context.Context, org core.ID) ([]WorkflowTriggers, error)
	// RecordTriggerFired atomically increments triggerCount and sets
	// lastTriggered (spec §4.1 "Execution").
	RecordTriggerFired(ctx context.Context, triggerID core.ID) error
}

// WorkflowTriggers pairs a workflow with its active triggers.
type WorkflowTriggers struct {
	Workflow workflow.Workflow
	Triggers []workflow.Trigger
}

// Engine is the narrow callback the Dispatcher invokes once per matched
// (workflow, trigger) pair (spec §4.1 "Execution").
type Engine interface {
	ExecuteWorkflow(ctx context.Context, workflowID core.ID, ev Event, triggerID core.ID) (executionID core.ID, err error)
}
