package execution

import (
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
)

// resolveContext builds a *resolve.Context snapshot from rc, suitable for
// one condition evaluation or token resolution call. Inside a LOOP body
// (rc.Loop set), Payload is layered with the per-iteration fields spec
// §4.2 "LOOP" mandates: payload[itemVariable]=item,
// payload[indexVariable]=index, payload.loop={item,index,total}.
func resolveContext(rc *RunContext) *resolve.Context {
	payload := rc.Payload
	loopVal := core.Null()
	if rc.Loop != nil {
		loopVal = core.ObjectValue(map[string]core.Value{
			"item":  rc.Loop.Item,
			"index": core.NumberValue(float64(rc.Loop.Index)),
			"total": core.NumberValue(float64(rc.Loop.Total)),
		})
		payload = mergeLoopPayload(rc.Payload, rc.Loop, loopVal)
	}
	return &resolve.Context{
		Payload:      payload,
		Trigger:      rc.TriggerData,
		Organization: rc.Organization,
		User:         rc.User,
		Shared:       rc.SharedSnapshot(),
		NodeOutputs:  rc.NodeOutputsSnapshot(),
		Loop:         loopVal,
	}
}

// mergeLoopPayload layers the current loop iteration onto the frozen
// trigger payload without mutating it, so every interpreter/condition
// resolving "payload.<itemVariable>", "payload.<indexVariable>" or
// "payload.loop.*" inside a LOOP body sees the values spec §4.2 "LOOP"
// describes emitting per iteration.
func mergeLoopPayload(payload core.Value, loop *LoopFrame, loopVal core.Value) core.Value {
	merged := map[string]core.Value{}
	if obj, ok := payload.AsObject(); ok {
		for k, v := range obj {
			merged[k] = v
		}
	}
	itemVar := loop.ItemVar
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar := loop.IndexVar
	if indexVar == "" {
		indexVar = "index"
	}
	merged[itemVar] = loop.Item
	merged[indexVar] = core.NumberValue(float64(loop.Index))
	merged["loop"] = loopVal
	return core.ObjectValue(merged)
}

// resolveString runs token resolution (spec §4.4) over s using rc's frozen
// context and the given system variables.
func resolveString(rc *RunContext, sys resolve.SystemVars, s string) string {
	return resolve.Resolve(resolveContext(rc), sys, rc.Module, s)
}
