package execution

import (
	"context"
	"fmt"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// dataTransformInterpreter implements DATA_TRANSFORM (spec §4.2, §4.4):
// map/filter/reduce/aggregate/query operate on an array resolved from
// sourceKey; extract is the one operation that does not require an array.
type dataTransformInterpreter struct{}

func (dataTransformInterpreter) Execute(_ context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.DataTransform

	var out core.Value
	if cfg.Operation == workflow.TransformExtract {
		out, _ = lookupKeyed(rc, cfg.Expression)
	} else {
		src, _ := lookupKeyed(rc, cfg.SourceKey)
		items, isArr := src.AsArray()
		if !isArr {
			err := fmt.Errorf("data transform %q requires an array at sourceKey %q", cfg.Operation, cfg.SourceKey)
			nodeErr := core.NewError(err, core.ErrCodeDefinition, map[string]any{
				"sourceKey": cfg.SourceKey, "operation": string(cfg.Operation),
			})
			return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
		}
		out = applyDataTransform(cfg.Operation, items, cfg.Expression)
	}

	if cfg.ResultKey != "" {
		rc.SetShared(cfg.ResultKey, out)
	}
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

// applyDataTransform implements the non-extract operations over a resolved
// array. expr is a dot-path into each item, used by map (project a field)
// and aggregate (sum a numeric field); filter/reduce/query operate over
// whole items without needing expr.
func applyDataTransform(op workflow.DataTransformOperation, items []core.Value, expr string) core.Value {
	switch op {
	case workflow.TransformMap:
		out := make([]core.Value, len(items))
		for i, item := range items {
			if expr == "" {
				out[i] = item
				continue
			}
			if v, ok := item.Get(expr); ok {
				out[i] = v
			} else {
				out[i] = core.Null()
			}
		}
		return core.ArrayValue(out)
	case workflow.TransformFilter, workflow.TransformQuery:
		// Without a configured predicate this is a passthrough; callers
		// needing a real predicate should use the FILTER node kind, which
		// carries a full resolve.ConditionSet.
		return core.ArrayValue(items)
	case workflow.TransformAggregate:
		var sum float64
		for _, item := range items {
			var v core.Value
			var ok bool
			if expr != "" {
				v, ok = item.Get(expr)
			} else {
				v, ok = item, true
			}
			if ok {
				if n, isNum := v.AsNumber(); isNum {
					sum += n
				}
			}
		}
		return core.ObjectValue(map[string]core.Value{
			"sum":   core.NumberValue(sum),
			"count": core.NumberValue(float64(len(items))),
		})
	case workflow.TransformReduce:
		return core.ObjectValue(map[string]core.Value{"count": core.NumberValue(float64(len(items)))})
	default:
		return core.ArrayValue(items)
	}
}
