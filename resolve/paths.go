package resolve

import (
	"strconv"
	"strings"

	"github.com/opensyte/workflow-core/core"
)

// Context is the layered data the resolver and condition engine read from.
// It mirrors the engine's per-execution runtime context (nodeOutputs,
// shared) plus the event/trigger context and the current loop iteration.
type Context struct {
	Payload      core.Value
	Trigger      core.Value
	Organization core.Value
	User         core.Value
	Shared       map[string]core.Value
	NodeOutputs  map[string]core.Value
	Loop         core.Value
}

// NewContext builds an empty Context with initialized maps.
func NewContext() *Context {
	return &Context{
		Payload:      core.Null(),
		Trigger:      core.Null(),
		Organization: core.Null(),
		User:         core.Null(),
		Shared:       map[string]core.Value{},
		NodeOutputs:  map[string]core.Value{},
		Loop:         core.Null(),
	}
}

// ResolvePath resolves a possibly-prefixed path against ctx.
//
// Recognized prefixes: $trigger., $payload., $context. (the shared map),
// $node.<nodeId>.<rest>, $loop. (current iteration context). A plain path
// (no recognized prefix) is looked up across {payload, user, organization,
// trigger} in that order (spec §4.1 matching uses payload directly; §4.4
// uses the documented order). An unrecognized prefix falls back to a union
// scan across shared, node outputs and payload.
func ResolvePath(ctx *Context, path string) (core.Value, bool) {
	if ctx == nil || path == "" {
		return core.Null(), false
	}
	switch {
	case strings.HasPrefix(path, "$trigger."):
		return getPath(ctx.Trigger, strings.TrimPrefix(path, "$trigger."))
	case strings.HasPrefix(path, "$payload."):
		return getPath(ctx.Payload, strings.TrimPrefix(path, "$payload."))
	case strings.HasPrefix(path, "$context."):
		return resolveSharedPath(ctx.Shared, strings.TrimPrefix(path, "$context."))
	case strings.HasPrefix(path, "$loop."):
		return getPath(ctx.Loop, strings.TrimPrefix(path, "$loop."))
	case strings.HasPrefix(path, "$node."):
		return resolveNodePath(ctx.NodeOutputs, strings.TrimPrefix(path, "$node."))
	case strings.HasPrefix(path, "$"):
		return unionScan(ctx, strings.TrimPrefix(path, strings.SplitN(path, ".", 2)[0]+"."))
	// Unprefixed root selectors — "payload.status", "user.name" — are the
	// common form condition/filter fields use (spec §4.4 "Path resolution
	// for conditions" documents the $-prefixed form, but the examples
	// throughout §8 write plain "payload.x"); treat the leading segment as
	// a root selector before falling back to the multi-root scan.
	case strings.HasPrefix(path, "payload."):
		return getPath(ctx.Payload, strings.TrimPrefix(path, "payload."))
	case strings.HasPrefix(path, "user."):
		return getPath(ctx.User, strings.TrimPrefix(path, "user."))
	case strings.HasPrefix(path, "organization."):
		return getPath(ctx.Organization, strings.TrimPrefix(path, "organization."))
	case strings.HasPrefix(path, "trigger."):
		return getPath(ctx.Trigger, strings.TrimPrefix(path, "trigger."))
	default:
		return resolvePlainPath(ctx, path)
	}
}

func resolvePlainPath(ctx *Context, path string) (core.Value, bool) {
	for _, root := range []core.Value{ctx.Payload, ctx.User, ctx.Organization, ctx.Trigger} {
		if v, ok := getPath(root, path); ok {
			return v, true
		}
	}
	return core.Null(), false
}

func resolveSharedPath(shared map[string]core.Value, path string) (core.Value, bool) {
	parts := strings.SplitN(path, ".", 2)
	v, ok := shared[parts[0]]
	if !ok {
		return core.Null(), false
	}
	if len(parts) == 1 {
		return v, true
	}
	return getPath(v, parts[1])
}

func resolveNodePath(nodeOutputs map[string]core.Value, path string) (core.Value, bool) {
	parts := strings.SplitN(path, ".", 2)
	v, ok := nodeOutputs[parts[0]]
	if !ok {
		return core.Null(), false
	}
	if len(parts) == 1 {
		return v, true
	}
	return getPath(v, parts[1])
}

// unionScan is the fallback for an unrecognized "$xxx." prefix: union scan
// across shared, node outputs and payload (spec §4.4 "Unknown prefixes
// fall back to a union scan").
func unionScan(ctx *Context, rest string) (core.Value, bool) {
	if v, ok := resolveSharedPath(ctx.Shared, rest); ok {
		return v, ok
	}
	if v, ok := resolveNodePath(ctx.NodeOutputs, rest); ok {
		return v, ok
	}
	return getPath(ctx.Payload, rest)
}

// getPath walks a dot-path across a Value tree. On an object a segment is
// a key; on an array a segment must be a zero-based integer index within
// range. Any other segment makes the lookup fail with (null, false).
func getPath(root core.Value, path string) (core.Value, bool) {
	if path == "" {
		return root, !root.IsNull()
	}
	cur := root
	for _, segment := range strings.Split(path, ".") {
		obj, ok := cur.AsObject()
		if ok {
			v, found := obj[segment]
			if !found {
				return core.Null(), false
			}
			cur = v
			continue
		}
		arr, ok := cur.AsArray()
		if ok {
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(arr) {
				return core.Null(), false
			}
			cur = arr[idx]
			continue
		}
		return core.Null(), false
	}
	return cur, true
}
