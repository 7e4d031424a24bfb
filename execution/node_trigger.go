package execution

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// triggerInterpreter implements TRIGGER: passthrough, take every default
// connection (spec §4.2 "TRIGGER — passthrough").
type triggerInterpreter struct{}

func (triggerInterpreter) Execute(_ context.Context, _ *RunContext, _ *workflow.Node) (NodeResult, error) {
	return NodeResult{
		Output: core.ObjectValue(map[string]core.Value{"triggered": core.BoolValue(true)}),
		Status: core.StatusCompleted,
	}, nil
}
