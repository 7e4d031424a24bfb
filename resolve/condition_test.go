package resolve

import (
	"testing"

	"github.com/opensyte/workflow-core/core"
	"github.com/stretchr/testify/assert"
)

func payloadContext(fields map[string]any) *Context {
	ctx := NewContext()
	ctx.Payload = core.ValueOf(fields)
	return ctx
}

func TestConditionSet_Evaluate(t *testing.T) {
	t.Run("Should AND two conditions with numeric coercion", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"status": "CLOSED_WON", "amount": 1000.0})
		cs := &ConditionSet{
			LogicalOperator: LogicalAND,
			Conditions: []Condition{
				{Field: "payload.status", Op: OpEquals, Value: core.StringValue("CLOSED_WON")},
				{Field: "payload.amount", Op: OpGT, Value: core.NumberValue(500)},
			},
		}
		assert.True(t, cs.Evaluate(ctx))
	})

	t.Run("Should fail AND when one branch fails", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"status": "CLOSED_WON", "amount": 300.0})
		cs := &ConditionSet{
			LogicalOperator: LogicalAND,
			Conditions: []Condition{
				{Field: "payload.status", Op: OpEquals, Value: core.StringValue("CLOSED_WON")},
				{Field: "payload.amount", Op: OpGT, Value: core.NumberValue(500)},
			},
		}
		assert.False(t, cs.Evaluate(ctx))
	})

	t.Run("Should OR two conditions", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"status": "OPEN"})
		cs := &ConditionSet{
			LogicalOperator: LogicalOR,
			Conditions: []Condition{
				{Field: "payload.status", Op: OpEquals, Value: core.StringValue("CLOSED_WON")},
				{Field: "payload.status", Op: OpEquals, Value: core.StringValue("OPEN")},
			},
		}
		assert.True(t, cs.Evaluate(ctx))
	})

	t.Run("Should default to AND when LogicalOperator is unset", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"status": "OPEN"})
		cs := &ConditionSet{
			Conditions: []Condition{
				{Field: "payload.status", Op: OpEquals, Value: core.StringValue("OPEN")},
			},
		}
		assert.True(t, cs.Evaluate(ctx))
	})

	t.Run("Should treat nil/empty condition set as always-true", func(t *testing.T) {
		var cs *ConditionSet
		assert.True(t, cs.Evaluate(NewContext()))
		assert.True(t, (&ConditionSet{}).Evaluate(NewContext()))
	})

	t.Run("negate should equal not of the same condition", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"status": "OPEN"})
		positive := &ConditionSet{Conditions: []Condition{
			{Field: "payload.status", Op: OpEquals, Value: core.StringValue("OPEN")},
		}}
		negated := &ConditionSet{Conditions: []Condition{
			{Field: "payload.status", Op: OpEquals, Value: core.StringValue("OPEN"), Negate: true},
		}}
		assert.Equal(t, !positive.Evaluate(ctx), negated.Evaluate(ctx))
	})

	t.Run("Should coerce numeric string for gt comparison", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"amount": "750"})
		cs := &ConditionSet{Conditions: []Condition{
			{Field: "payload.amount", Op: OpGT, Value: core.NumberValue(500)},
		}}
		assert.True(t, cs.Evaluate(ctx))
	})

	t.Run("Should check array containment by element equality", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"tags": []any{"vip", "urgent"}})
		cs := &ConditionSet{Conditions: []Condition{
			{Field: "payload.tags", Op: OpContains, Value: core.StringValue("urgent")},
		}}
		assert.True(t, cs.Evaluate(ctx))
	})

	t.Run("Should evaluate is_empty / is_not_empty", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"note": ""})
		cs := &ConditionSet{Conditions: []Condition{{Field: "payload.note", Op: OpIsEmpty}}}
		assert.True(t, cs.Evaluate(ctx))
		cs2 := &ConditionSet{Conditions: []Condition{{Field: "payload.note", Op: OpIsNotEmpty}}}
		assert.False(t, cs2.Evaluate(ctx))
	})

	t.Run("Should evaluate between", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"score": 42.0})
		cs := &ConditionSet{Conditions: []Condition{
			{Field: "payload.score", Op: OpBetween, Value: core.NumberValue(10), ValueTo: core.NumberValue(50)},
		}}
		assert.True(t, cs.Evaluate(ctx))
	})

	t.Run("Should require both string operands for starts_with", func(t *testing.T) {
		ctx := payloadContext(map[string]any{"count": 5.0})
		cs := &ConditionSet{Conditions: []Condition{
			{Field: "payload.count", Op: OpStartsWith, Value: core.StringValue("5")},
		}}
		assert.False(t, cs.Evaluate(ctx))
	})
}
