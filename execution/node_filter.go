package execution

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
	"github.com/opensyte/workflow-core/workflow"
)

// filterInterpreter implements FILTER: resolve sourceKey to an array and
// apply the condition set in-memory (spec §4.2 "FILTER").
type filterInterpreter struct{}

func (filterInterpreter) Execute(_ context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Filter
	src, _ := lookupKeyed(rc, cfg.SourceKey)
	items, _ := src.AsArray()

	var kept []core.Value
	for _, item := range items {
		matched := true
		if cfg.Where != nil {
			itemCtx := resolveContext(rc)
			itemCtx.Loop = item
			matched = cfg.Where.Evaluate(itemCtx)
		}
		if matched {
			kept = append(kept, item)
		}
	}
	out := core.ObjectValue(map[string]core.Value{
		"items": core.ArrayValue(kept),
		"count": core.NumberValue(float64(len(kept))),
	})
	if cfg.ResultKey != "" {
		rc.SetShared(cfg.ResultKey, out)
	}
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

// lookupKeyed resolves a FILTER/LOOP sourceKey against shared, then node
// outputs, then a plain payload dot-path — the same "first non-empty wins"
// order spec §4.2 LOOP describes for dataSource/sourceKey/resultKey.
func lookupKeyed(rc *RunContext, key string) (core.Value, bool) {
	if key == "" {
		return core.Null(), false
	}
	if v, ok := rc.Shared(key); ok {
		return v, true
	}
	if v, ok := rc.NodeOutput(key); ok {
		return v, true
	}
	return resolve.ResolvePath(resolveContext(rc), key)
}
