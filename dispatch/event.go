// Package dispatch implements the Event Dispatcher (spec §4.1): it matches
// inbound domain events against active workflow triggers by specificity
// score, evaluates each retained trigger's condition predicate, and fans
// out to the Execution Engine in parallel without letting one workflow's
// failure abort the others.
package dispatch

import (
	"time"

	"github.com/opensyte/workflow-core/core"
)

// Event is one inbound domain occurrence (spec §4.1, "inbound — event
// dispatch"): organizationId, module and (entityType, eventType) are
// required for matching; payload is opaque to the dispatcher and only
// interpreted by conditions/resolvers downstream.
type Event struct {
	OrganizationID core.ID
	Module         string
	EntityType     string
	EventType      string
	Payload        core.Value
	UserID         *core.ID
	TriggeredAt    time.Time
}

// Match pairs one matched trigger with its owning workflow ID.
type Match struct {
	WorkflowID core.ID
	TriggerID  core.ID
	NodeID     string
	Score      int
}

// WorkflowResult is the per-workflow outcome of one dispatch call.
type WorkflowResult struct {
	WorkflowID  core.ID
	TriggerID   core.ID
	ExecutionID core.ID
	Success     bool
	Error       string
}

// Result is the aggregate outcome of Dispatcher.Dispatch.
type Result struct {
	TriggeredCount     int
	PerWorkflowResults []WorkflowResult
}
