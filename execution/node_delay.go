package execution

import (
	"context"
	"time"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// delayInterpreter implements DELAY: sleep delayMs, default 1000 (spec
// §4.2 "DELAY — sleep delayMs").
type delayInterpreter struct{}

func (delayInterpreter) Execute(ctx context.Context, _ *RunContext, node *workflow.Node) (NodeResult, error) {
	ms := node.Config.Delay.EffectiveDelay()
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
		return NodeResult{Status: core.StatusFailed, Err: core.NewError(ctx.Err(), core.ErrCodeTransient, nil)}, ctx.Err()
	}
	return NodeResult{
		Output: core.ObjectValue(map[string]core.Value{
			"delayed": core.BoolValue(true),
			"delayMs": core.NumberValue(float64(ms)),
		}),
		Status: core.StatusCompleted,
	}, nil
}
