// Package resolve implements the Variable Resolver & Condition Engine
// (spec §4.4): token/dot-path resolution against layered context, and the
// uniform filter-operator set shared by CONDITION, LOOP break conditions,
// FILTER and QUERY where-clause construction.
package resolve

import (
	"strings"

	"github.com/opensyte/workflow-core/core"
)

// Operator is the uniform operator set spec §4.4 requires every condition
// consumer (condition node, loop break, filter, query where) to share.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGT          Operator = "gt"
	OpGTE         Operator = "gte"
	OpLT          Operator = "lt"
	OpLTE         Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpBetween     Operator = "between"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// LogicalOperator combines conditions within a ConditionSet.
type LogicalOperator string

const (
	LogicalAND LogicalOperator = "AND"
	LogicalOR  LogicalOperator = "OR"
)

// Condition is one predicate in a ConditionSet.
type Condition struct {
	Field   string
	Path    string // optional explicit path override; see paths.go
	Op      Operator
	Value   core.Value
	ValueTo core.Value   // used by `between`
	Values  []core.Value // used by `in`/`not_in`
	Negate  bool
}

// ConditionSet is a top-level predicate tree: a flat list of Conditions
// combined by one LogicalOperator (default AND when empty/unset).
type ConditionSet struct {
	Conditions      []Condition
	LogicalOperator LogicalOperator
}

func (l LogicalOperator) orDefault() LogicalOperator {
	if l == LogicalOR {
		return LogicalOR
	}
	return LogicalAND
}

// Evaluate evaluates every condition in the set against ctx (see
// Context/ResolvePath in paths.go) and combines them by LogicalOperator.
// A malformed/unsupported condition is treated as non-matching and never
// panics (spec §7 "predicate errors ... treat as non-match").
func (cs *ConditionSet) Evaluate(ctx *Context) bool {
	if cs == nil || len(cs.Conditions) == 0 {
		return true
	}
	op := cs.LogicalOperator.orDefault()
	for _, cond := range cs.Conditions {
		result := evaluateCondition(ctx, &cond)
		if op == LogicalAND && !result {
			return false
		}
		if op == LogicalOR && result {
			return true
		}
	}
	return op == LogicalAND
}

func evaluateCondition(ctx *Context, c *Condition) bool {
	value := resolveConditionValue(ctx, c)
	result := evaluateOperator(c.Op, value, c)
	if c.Negate {
		return !result
	}
	return result
}

func resolveConditionValue(ctx *Context, c *Condition) core.Value {
	path := c.Path
	if path == "" {
		path = c.Field
	}
	v, _ := ResolvePath(ctx, path)
	return v
}

func evaluateOperator(op Operator, value core.Value, c *Condition) bool {
	switch op {
	case OpEquals:
		return core.Equal(value, c.Value)
	case OpNotEquals:
		return !core.Equal(value, c.Value)
	case OpGT, OpGTE, OpLT, OpLTE:
		return evaluateNumericOp(op, value, c.Value)
	case OpContains:
		return evaluateContains(value, c.Value)
	case OpNotContains:
		return !evaluateContains(value, c.Value)
	case OpStartsWith:
		return evaluateStringOp(value, c.Value, strings.HasPrefix)
	case OpEndsWith:
		return evaluateStringOp(value, c.Value, strings.HasSuffix)
	case OpIn:
		return evaluateIn(value, c.Values)
	case OpNotIn:
		return !evaluateIn(value, c.Values)
	case OpBetween:
		return evaluateBetween(value, c.Value, c.ValueTo)
	case OpIsEmpty:
		return isEmpty(value)
	case OpIsNotEmpty:
		return !isEmpty(value)
	default:
		return false
	}
}

// evaluateNumericOp coerces numeric-looking strings to numbers before
// comparing, per spec §4.4 "Comparisons on numbers coerce numeric strings".
func evaluateNumericOp(op Operator, a, b core.Value) bool {
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()
	if !aok || !bok {
		return false
	}
	switch op {
	case OpGT:
		return an > bn
	case OpGTE:
		return an >= bn
	case OpLT:
		return an < bn
	case OpLTE:
		return an <= bn
	default:
		return false
	}
}

// evaluateStringOp requires both operands to be genuine strings (spec
// §4.4: "string comparisons require both operands to be strings").
func evaluateStringOp(a, b core.Value, fn func(s, prefix string) bool) bool {
	as, aok := a.AsString()
	bs, bok := b.AsString()
	if !aok || !bok {
		return false
	}
	return fn(as, bs)
}

// evaluateContains checks array element equality when the field resolves
// to an array, and falls back to substring containment for strings.
func evaluateContains(haystack, needle core.Value) bool {
	if arr, ok := haystack.AsArray(); ok {
		for _, item := range arr {
			if core.Equal(item, needle) {
				return true
			}
		}
		return false
	}
	hs, hok := haystack.AsString()
	ns, nok := needle.AsString()
	if hok && nok {
		return strings.Contains(hs, ns)
	}
	return false
}

func evaluateIn(value core.Value, candidates []core.Value) bool {
	for _, c := range candidates {
		if core.Equal(value, c) {
			return true
		}
	}
	return false
}

func evaluateBetween(value, from, to core.Value) bool {
	vn, vok := value.AsNumber()
	fn, fok := from.AsNumber()
	tn, tok := to.AsNumber()
	if !vok || !fok || !tok {
		return false
	}
	return vn >= fn && vn <= tn
}

func isEmpty(v core.Value) bool {
	switch v.Kind() {
	case core.KindNull:
		return true
	case core.KindString:
		s, _ := v.AsString()
		return s == ""
	case core.KindArray:
		arr, _ := v.AsArray()
		return len(arr) == 0
	case core.KindObject:
		obj, _ := v.AsObject()
		return len(obj) == 0
	default:
		return false
	}
}
