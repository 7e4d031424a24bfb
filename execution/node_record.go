package execution

import (
	"context"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// recordWriteInterpreter backs both CREATE_RECORD and UPDATE_RECORD (spec
// §4.2): resolve each field via token/path expression, enforce
// organization scoping, and respect an optional pre-update condition set.
type recordWriteInterpreter struct {
	store  adapters.RecordStore
	update bool
}

func (r recordWriteInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	var cfg *workflow.RecordWriteConfig
	if r.update {
		cfg = node.Config.UpdateRecord
	} else {
		cfg = node.Config.CreateRecord
	}

	if r.update && cfg.Conditions != nil && !cfg.Conditions.Evaluate(resolveContext(rc)) {
		return NodeResult{
			Output: core.ObjectValue(map[string]core.Value{"skipped": core.BoolValue(true), "reason": core.StringValue("pre-update condition not met")}),
			Status: core.StatusSkipped,
		}, nil
	}

	fields := resolveFields(rc, cfg.Fields)
	write := adapters.RecordWrite{
		Model:          string(cfg.Model),
		OrganizationID: rc.OrganizationID,
		Fields:         fields,
	}

	var result core.Value
	var err error
	if r.update {
		if cfg.RecordIDField != "" {
			if idVal, ok := fields[cfg.RecordIDField]; ok {
				if id, isStr := idVal.AsString(); isStr {
					write.RecordID = id
				}
			}
		}
		result, err = r.store.Update(ctx, write)
	} else {
		result, err = r.store.Create(ctx, write)
	}
	if err != nil {
		nodeErr := core.NewError(err, core.ErrCodeTransient, map[string]any{"model": string(cfg.Model)})
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}
	return NodeResult{Output: result, Status: core.StatusCompleted}, nil
}

func resolveFields(rc *RunContext, templates map[string]string) map[string]core.Value {
	out := make(map[string]core.Value, len(templates))
	sys := defaultSystemVars(rc)
	for field, tpl := range templates {
		out[field] = core.StringValue(resolveString(rc, sys, tpl))
	}
	return out
}
