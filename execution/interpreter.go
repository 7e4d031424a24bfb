package execution

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// NodeResult is what a NodeInterpreter returns for one node attempt.
type NodeResult struct {
	Output core.Value
	Status core.StatusType // terminal (or PENDING) status to persist on the NodeExecution
	Err    *core.Error
	// Handles lists the outgoing handles this node activates (e.g.
	// ["true"], ["body","loop"], ["pending"]); nil/empty means "take every
	// connection whose handle is unset or 'default'".
	Handles []string
}

// NodeInterpreter implements one node kind's execution semantics (spec
// §4.2 "Per-kind interpreters"). Exactly one interpreter is registered per
// workflow.NodeType (Design Note "Deeply nested type unions in node
// configs": a sum type per kind, not one flat struct).
type NodeInterpreter interface {
	Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error)
}
