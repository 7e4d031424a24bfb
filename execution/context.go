// Package execution implements the Execution Engine (spec §4.2): the
// per-execution RunContext, one NodeInterpreter per node kind, and the
// graph walk that ties them together.
package execution

import (
	"sync"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
)

// RunContext is allocated once per executeWorkflow call and owns all
// mutable state for that run (Design Note "Coroutines/await": per-execution
// state is owned by a per-execution arena, never package-level). It is
// safe for concurrent use by PARALLEL fan-out.
type RunContext struct {
	mu sync.Mutex

	ExecutionID    core.ID
	WorkflowID     core.ID
	OrganizationID core.ID
	UserID         *core.ID

	// Module, EntityType, EventType, Payload, Trigger, User and
	// Organization are the frozen triggering-event context every
	// interpreter resolves variables against (spec §4.4); they never
	// change during the run.
	Module       string
	EntityType   string
	EventType    string
	Payload      core.Value
	TriggerData  core.Value
	User         core.Value
	Organization core.Value

	// nodeOutputs and shared are the two keyed stores from Design Note
	// "Cross-component context map": by node id, and by user-declared
	// resultKey, respectively.
	nodeOutputs map[string]core.Value
	shared      map[string]core.Value
	visitCounts map[string]int

	// Loop holds the current iteration context ($loop. path prefix) when
	// walking inside a LOOP node's body; nil outside a loop.
	Loop *LoopFrame

	// Clock backs CURRENT_DATE/TIME/DATETIME system-variable resolution so
	// it can be swapped for a FixedClock in tests (Design Note "Singletons").
	Clock adapters.Clock
}

// LoopFrame carries the current iteration's item/index/total for $loop.
// path resolution and payload augmentation. ItemVar/IndexVar are the
// LoopConfig-declared variable names under which item/index are merged
// into the per-iteration payload (spec §4.2 "LOOP"); empty defaults to
// "item"/"index".
type LoopFrame struct {
	Item     core.Value
	Index    int
	Total    int
	ItemVar  string
	IndexVar string
}

// MaxNodeVisits bounds how many times one node id may run within a single
// execution before the branch is abandoned (spec §4.2, default 50).
const MaxNodeVisits = 50

func NewRunContext(executionID, workflowID, orgID core.ID, userID *core.ID, clock adapters.Clock) *RunContext {
	if clock == nil {
		clock = adapters.SystemClock
	}
	return &RunContext{
		ExecutionID:    executionID,
		WorkflowID:     workflowID,
		OrganizationID: orgID,
		UserID:         userID,
		nodeOutputs:    map[string]core.Value{},
		shared:         map[string]core.Value{},
		visitCounts:    map[string]int{},
		Clock:          clock,
	}
}

// RecordVisit increments nodeID's visit count and reports whether the
// visit is still within MaxNodeVisits.
func (rc *RunContext) RecordVisit(nodeID string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.visitCounts[nodeID]++
	return rc.visitCounts[nodeID] <= MaxNodeVisits
}

func (rc *RunContext) SetNodeOutput(nodeID string, v core.Value) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.nodeOutputs[nodeID] = v
}

func (rc *RunContext) NodeOutput(nodeID string) (core.Value, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.nodeOutputs[nodeID]
	return v, ok
}

func (rc *RunContext) SetShared(key string, v core.Value) {
	if key == "" {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.shared[key] = v
}

func (rc *RunContext) Shared(key string) (core.Value, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.shared[key]
	return v, ok
}

// NodeOutputsSnapshot and SharedSnapshot return shallow copies for
// resolve.Context construction, so resolution never races node execution.
func (rc *RunContext) NodeOutputsSnapshot() map[string]core.Value {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]core.Value, len(rc.nodeOutputs))
	for k, v := range rc.nodeOutputs {
		out[k] = v
	}
	return out
}

func (rc *RunContext) SharedSnapshot() map[string]core.Value {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make(map[string]core.Value, len(rc.shared))
	for k, v := range rc.shared {
		out[k] = v
	}
	return out
}
