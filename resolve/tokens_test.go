package resolve

import (
	"testing"
	"time"

	"github.com/opensyte/workflow-core/core"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	sys := SystemVars{
		Now:              time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC),
		OrganizationName: "Acme Inc",
		UserName:         "Jane Doe",
		UserEmail:        "jane@acme.test",
	}

	t.Run("Should resolve system variables first", func(t *testing.T) {
		ctx := NewContext()
		out := Resolve(ctx, sys, "CRM", "Hello {USER_NAME} from {ORGANIZATION_NAME}")
		assert.Equal(t, "Hello Jane Doe from Acme Inc", out)
	})

	t.Run("Should resolve module-specific aliases for the event module", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{"customerEmail": "cust@example.com"})
		out := Resolve(ctx, sys, "CRM", "Contact: {customer_email}")
		assert.Equal(t, "Contact: cust@example.com", out)
	})

	t.Run("Should fall back through snake_case aliases", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{"email": "fallback@example.com"})
		out := Resolve(ctx, sys, "", "Email: {customer_email}")
		assert.Equal(t, "Email: fallback@example.com", out)
	})

	t.Run("Should resolve dot-path across payload", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{"deal": map[string]any{"amount": 500.0}})
		out := Resolve(ctx, sys, "", "Amount: {payload.deal.amount}")
		assert.Equal(t, "Amount: 500", out)
	})

	t.Run("Should fall back to case-insensitive direct payload lookup", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{"DealStatus": "won"})
		out := Resolve(ctx, sys, "", "Status: {dealstatus}")
		assert.Equal(t, "Status: won", out)
	})

	t.Run("Should fall back to one-level nested payload scan", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{
			"customer": map[string]any{"email": "nested@example.com"},
		})
		out := Resolve(ctx, sys, "", "Email: {email}")
		assert.Equal(t, "Email: nested@example.com", out)
	})

	t.Run("Should leave unresolved tokens literal", func(t *testing.T) {
		ctx := NewContext()
		out := Resolve(ctx, sys, "", "Missing: {does.not.exist}")
		assert.Equal(t, "Missing: {does.not.exist}", out)
	})

	t.Run("Should be idempotent on an already-resolved string", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{"email": "a@b.com"})
		once := Resolve(ctx, sys, "", "Email: {email}")
		twice := Resolve(ctx, sys, "", once)
		assert.Equal(t, once, twice)
	})
}

func TestResolvePath(t *testing.T) {
	t.Run("Should resolve $trigger. prefix", func(t *testing.T) {
		ctx := NewContext()
		ctx.Trigger = core.ValueOf(map[string]any{"id": "trig-1"})
		v, ok := ResolvePath(ctx, "$trigger.id")
		assert.True(t, ok)
		assert.Equal(t, "trig-1", v.String())
	})

	t.Run("Should resolve $context. against the shared map", func(t *testing.T) {
		ctx := NewContext()
		ctx.Shared["total"] = core.NumberValue(7)
		v, ok := ResolvePath(ctx, "$context.total")
		assert.True(t, ok)
		n, _ := v.AsNumber()
		assert.Equal(t, 7.0, n)
	})

	t.Run("Should resolve $node.<id>.<path>", func(t *testing.T) {
		ctx := NewContext()
		ctx.NodeOutputs["n1"] = core.ValueOf(map[string]any{"result": "ok"})
		v, ok := ResolvePath(ctx, "$node.n1.result")
		assert.True(t, ok)
		assert.Equal(t, "ok", v.String())
	})

	t.Run("Should resolve $loop. against the current iteration", func(t *testing.T) {
		ctx := NewContext()
		ctx.Loop = core.ValueOf(map[string]any{"index": 2.0})
		v, ok := ResolvePath(ctx, "$loop.index")
		assert.True(t, ok)
		n, _ := v.AsNumber()
		assert.Equal(t, 2.0, n)
	})

	t.Run("Should union scan for unknown prefix", func(t *testing.T) {
		ctx := NewContext()
		ctx.Payload = core.ValueOf(map[string]any{"foo": "bar"})
		v, ok := ResolvePath(ctx, "$unknown.foo")
		assert.True(t, ok)
		assert.Equal(t, "bar", v.String())
	})

	t.Run("Should resolve plain path across payload/user/organization/trigger", func(t *testing.T) {
		ctx := NewContext()
		ctx.User = core.ValueOf(map[string]any{"name": "Jane"})
		v, ok := ResolvePath(ctx, "name")
		assert.True(t, ok)
		assert.Equal(t, "Jane", v.String())
	})
}
