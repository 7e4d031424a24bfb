package execution

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// loopInterpreter implements LOOP (spec §4.2 "LOOP"): resolve the
// collection, determine how many items to emit (bounded by
// maxIterations), honoring breakCondition, and routing to the empty
// handle when the collection has no items. The engine's graph walk
// (graph.go runLoopNode) drives the per-item re-entry into the body
// connections itself, calling planLoopItems for the items to run.
type loopInterpreter struct{}

func (loopInterpreter) Execute(_ context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Loop
	collection, _ := resolveLoopCollection(rc, cfg)
	items, _ := collection.AsArray()
	total := len(items)

	if total == 0 {
		return NodeResult{
			Output:  core.ObjectValue(map[string]core.Value{"iterations": core.NumberValue(0), "itemsProcessed": core.NumberValue(0)}),
			Status:  core.StatusCompleted,
			Handles: []string{"empty"},
		}, nil
	}

	processed := planLoopItems(rc, cfg, items, total)
	return NodeResult{
		Output: core.ObjectValue(map[string]core.Value{
			"iterations":     core.NumberValue(float64(len(processed))),
			"itemsProcessed": core.NumberValue(float64(len(processed))),
		}),
		Status:  core.StatusCompleted,
		Handles: []string{"body", "loop", "item"},
	}, nil
}

// planLoopItems applies maxIterations and breakCondition to items, in the
// order spec §4.2 "LOOP" describes: bounded by maxIterations, evaluating
// breakCondition per item before emission. Shared by the interpreter
// (summary output) and the engine's per-item body walk (graph.go
// runLoopNode).
func planLoopItems(rc *RunContext, cfg *workflow.LoopConfig, items []core.Value, total int) []core.Value {
	max := cfg.MaxIterations
	if max <= 0 || max > total {
		max = total
	}
	processed := make([]core.Value, 0, max)
	for i := 0; i < max; i++ {
		item := items[i]
		if cfg.BreakCondition != nil {
			prevLoop := rc.Loop
			rc.Loop = &LoopFrame{Item: item, Index: i, Total: total, ItemVar: cfg.ItemVariable, IndexVar: cfg.IndexVariable}
			brk := cfg.BreakCondition.Evaluate(resolveContext(rc))
			rc.Loop = prevLoop
			if brk {
				break
			}
		}
		processed = append(processed, item)
	}
	return processed
}

// resolveLoopCollection tries dataSource, then sourceKey, then resultKey,
// first non-empty wins (spec §4.2 "LOOP").
func resolveLoopCollection(rc *RunContext, cfg *workflow.LoopConfig) (core.Value, bool) {
	if cfg.DataSource != "" {
		if v, ok := lookupKeyed(rc, cfg.DataSource); ok {
			if arr, isArr := v.AsArray(); isArr && len(arr) > 0 {
				return v, true
			}
		}
	}
	if cfg.SourceKey != "" {
		if v, ok := lookupKeyed(rc, cfg.SourceKey); ok {
			if arr, isArr := v.AsArray(); isArr && len(arr) > 0 {
				return v, true
			}
		}
	}
	if cfg.ResultKey != "" {
		if v, ok := rc.Shared(cfg.ResultKey); ok {
			if arr, isArr := v.AsArray(); isArr && len(arr) > 0 {
				return v, true
			}
		}
	}
	if cfg.DataSource != "" {
		return lookupKeyed(rc, cfg.DataSource)
	}
	return core.ArrayValue(nil), false
}
