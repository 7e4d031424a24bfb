package execution

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
	"github.com/opensyte/workflow-core/workflow"
)

// conditionInterpreter implements CONDITION: evaluate the configured set
// and pick the "true"/"false" handle (spec §4.2 "CONDITION").
type conditionInterpreter struct{}

func (conditionInterpreter) Execute(_ context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Condition
	cs := &resolve.ConditionSet{
		LogicalOperator: cfg.LogicalOperator,
		Conditions:      cfg.Conditions,
	}
	matched := cs.Evaluate(resolveContext(rc))
	handle := "false"
	if matched {
		handle = "true"
	}
	return NodeResult{
		Output:  core.ObjectValue(map[string]core.Value{"matched": core.BoolValue(matched)}),
		Status:  core.StatusCompleted,
		Handles: []string{handle},
	}, nil
}
