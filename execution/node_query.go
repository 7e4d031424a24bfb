package execution

import (
	"context"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
	"github.com/opensyte/workflow-core/workflow"
)

// queryInterpreter implements QUERY (spec §4.2 "QUERY"): dispatch to a
// per-model adapter, scoping by the triggering event's organizationId.
type queryInterpreter struct {
	store adapters.RecordStore
}

func (q queryInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Query
	where := conditionsToWhere(rc, cfg.Where)

	records, count, err := q.store.FindMany(ctx, adapters.RecordQuery{
		Model:          string(cfg.Model),
		OrganizationID: rc.OrganizationID,
		Where:          where,
		OrderBy:        cfg.OrderBy,
		Limit:          cfg.Limit,
		Offset:         cfg.Offset,
		Select:         cfg.Select,
		Include:        cfg.Include,
	})
	if err != nil {
		nodeErr := core.NewError(err, core.ErrCodeTransient, map[string]any{"model": string(cfg.Model)})
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}
	out := core.ObjectValue(map[string]core.Value{
		"records": core.ArrayValue(records),
		"count":   core.NumberValue(float64(count)),
	})
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

// conditionsToWhere flattens an equals-only condition set into a where
// map for adapters that don't understand the full operator set (spec §4.2
// "filters → where"); richer predicates should be expressed via a FILTER
// node applied to the QUERY's output instead.
func conditionsToWhere(rc *RunContext, cs *resolve.ConditionSet) map[string]core.Value {
	if cs == nil {
		return nil
	}
	where := map[string]core.Value{}
	for _, c := range cs.Conditions {
		if c.Op != resolve.OpEquals {
			continue
		}
		field := c.Field
		where[field] = c.Value
	}
	return where
}
