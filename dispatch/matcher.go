package dispatch

import (
	"github.com/opensyte/workflow-core/resolve"
	"github.com/opensyte/workflow-core/workflow"
)

// score computes the specificity score of one trigger against an event
// (spec §4.1 step 2): score = (exact-entity? 2 : 0) + (exact-event? 2 : 0),
// with module required to match exactly and entity/event matching a
// wildcard (nil) trigger field unconditionally.
//
// ok is false when the module does not match at all — such a trigger
// never participates in scoring regardless of its score value.
func score(t *workflow.Trigger, ev *Event) (s int, ok bool) {
	if !sameModule(t.Module, ev.Module) {
		return 0, false
	}
	switch {
	case t.EntityType == nil:
		// wildcard: matches unconditionally, contributes no specificity.
	case sameEntity(t.Module, *t.EntityType, ev.EntityType):
		s += 2
	default:
		return 0, false
	}
	switch {
	case t.EventType == nil:
		// wildcard: matches unconditionally, contributes no specificity.
	case sameEventType(*t.EventType, ev.EventType):
		s += 2
	default:
		return 0, false
	}
	return s, true
}

// matchTriggers scores every trigger of one workflow against ev, keeps
// only the maximum-scoring ones (spec §4.1 step 3), and evaluates each
// retained trigger's condition predicate (step 4). A condition with an
// unsupported operator evaluates false, so its trigger is dropped like any
// other non-matching one; no WARN is logged for it.
func matchTriggers(triggers []workflow.Trigger, ev *Event, evalCtx *resolve.Context) []Match {
	best := -1
	var candidates []struct {
		trig  *workflow.Trigger
		score int
	}
	for i := range triggers {
		t := &triggers[i]
		if !t.IsActive {
			continue
		}
		s, ok := score(t, ev)
		if !ok {
			continue
		}
		if s > best {
			best = s
		}
		candidates = append(candidates, struct {
			trig  *workflow.Trigger
			score int
		}{t, s})
	}
	if best < 0 {
		return nil
	}

	var matches []Match
	for _, c := range candidates {
		if c.score != best {
			continue
		}
		if !evaluateConditions(c.trig.Conditions, evalCtx) {
			continue
		}
		matches = append(matches, Match{
			WorkflowID: c.trig.WorkflowID,
			TriggerID:  c.trig.ID,
			NodeID:     c.trig.NodeID,
			Score:      c.score,
		})
	}
	return matches
}

// evaluateConditions evaluates a trigger's predicate, defaulting to true
// when absent (spec §4.1 step 4: "If true (or conditions absent)").
func evaluateConditions(cs *resolve.ConditionSet, ctx *resolve.Context) bool {
	if cs == nil {
		return true
	}
	return cs.Evaluate(ctx)
}
