package resolve

import (
	"regexp"
	"strings"
	"time"

	"github.com/opensyte/workflow-core/core"
)

// tokenPattern matches {IDENTIFIER} where IDENTIFIER is [A-Za-z0-9_.]+.
var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// SystemVars carries the ambient values available to every token
// resolution (spec §4.4 step (a)).
type SystemVars struct {
	Now              time.Time
	OrganizationName string
	UserName         string
	UserEmail        string
}

// ModuleAliases maps a module-specific alias identifier (e.g. "customer")
// to the dot-path it should resolve against the Context (spec §4.4 step
// (b)). Keys are matched case-insensitively.
type ModuleAliases map[string]string

// moduleAliasTables is the enumerated per-module alias set named in spec
// §4.4. Each module's aliases are tried only when the event's module
// matches (case-insensitively, by upper-casing the module name).
var moduleAliasTables = map[string]ModuleAliases{
	"CRM": {
		"customer_name":  "payload.customerName",
		"customer_email": "payload.customerEmail",
		"deal_amount":    "payload.amount",
		"deal_stage":     "payload.stage",
	},
	"HR": {
		"employee_name":  "payload.employeeName",
		"employee_email": "payload.employeeEmail",
		"time_off_type":  "payload.type",
	},
	"FINANCE": {
		"invoice_number": "payload.invoiceNumber",
		"invoice_amount": "payload.amount",
		"customer_email": "payload.customerEmail",
	},
	"PROJECTS": {
		"project_name": "payload.projectName",
		"task_name":    "payload.taskName",
		"assignee":     "payload.assignee.email",
	},
}

// snakeCaseAliases expands common snake_case shorthands to the dot-path(s)
// they should try, in order, first-hit-wins (spec §4.4 step (c)).
var snakeCaseAliases = map[string][]string{
	"user_name":       {"user.name"},
	"user_email":      {"user.email"},
	"customer_email":  {"payload.customerEmail", "payload.email"},
	"organization":    {"organization.name"},
	"employee_email":  {"payload.employeeEmail", "payload.email"},
}

// Resolve replaces every {TOKEN} in s following the resolution order of
// spec §4.4: system vars, module aliases, snake_case aliases, dot-path
// lookup, case-insensitive direct payload lookup, one-level nested payload
// scan. A token with no hit is left literal in place, and resolving an
// already-resolved string again with the same inputs is a no-op
// (idempotence, spec §8 invariant 6): a token left literal fails to
// resolve again the same way. A substituted value that itself contains
// `{TOKEN}` text is not protected and is resolved on a second pass.
func Resolve(ctx *Context, sys SystemVars, module, s string) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		ident := match[1 : len(match)-1]
		if v, ok := resolveToken(ctx, sys, module, ident); ok {
			return v.String()
		}
		return match
	})
}

func resolveToken(ctx *Context, sys SystemVars, module, ident string) (core.Value, bool) {
	if v, ok := resolveSystemVar(sys, ident); ok {
		return v, ok
	}
	if v, ok := resolveModuleAlias(ctx, module, ident); ok {
		return v, ok
	}
	if v, ok := resolveSnakeCaseAlias(ctx, ident); ok {
		return v, ok
	}
	if v, ok := ResolvePath(ctx, ident); ok {
		return v, ok
	}
	if v, ok := resolveCaseInsensitivePayload(ctx, ident); ok {
		return v, ok
	}
	return resolveNestedPayloadScan(ctx, ident)
}

func resolveSystemVar(sys SystemVars, ident string) (core.Value, bool) {
	switch strings.ToUpper(ident) {
	case "CURRENT_DATE":
		return core.StringValue(sys.Now.Format("2006-01-02")), true
	case "CURRENT_TIME":
		return core.StringValue(sys.Now.Format("15:04:05")), true
	case "CURRENT_DATETIME":
		return core.StringValue(sys.Now.Format(time.RFC3339)), true
	case "CURRENT_USER":
		return core.StringValue(sys.UserName), true
	case "ORGANIZATION_NAME":
		return core.StringValue(sys.OrganizationName), true
	case "USER_NAME":
		return core.StringValue(sys.UserName), true
	case "USER_EMAIL":
		return core.StringValue(sys.UserEmail), true
	default:
		return core.Null(), false
	}
}

func resolveModuleAlias(ctx *Context, module, ident string) (core.Value, bool) {
	aliases, ok := moduleAliasTables[strings.ToUpper(module)]
	if !ok {
		return core.Null(), false
	}
	path, ok := aliases[strings.ToLower(ident)]
	if !ok {
		return core.Null(), false
	}
	return ResolvePath(ctx, path)
}

func resolveSnakeCaseAlias(ctx *Context, ident string) (core.Value, bool) {
	paths, ok := snakeCaseAliases[strings.ToLower(ident)]
	if !ok {
		return core.Null(), false
	}
	for _, path := range paths {
		if v, ok := ResolvePath(ctx, path); ok {
			return v, true
		}
	}
	return core.Null(), false
}

func resolveCaseInsensitivePayload(ctx *Context, ident string) (core.Value, bool) {
	obj, ok := ctx.Payload.AsObject()
	if !ok {
		return core.Null(), false
	}
	for k, v := range obj {
		if strings.EqualFold(k, ident) {
			return v, true
		}
	}
	return core.Null(), false
}

// resolveNestedPayloadScan performs a one-level nested scan of payload
// values (spec §4.4 step (f)): for each top-level object-valued field,
// look for ident as a direct (case-insensitive) child key.
func resolveNestedPayloadScan(ctx *Context, ident string) (core.Value, bool) {
	obj, ok := ctx.Payload.AsObject()
	if !ok {
		return core.Null(), false
	}
	for _, v := range obj {
		nested, ok := v.AsObject()
		if !ok {
			continue
		}
		for k, nv := range nested {
			if strings.EqualFold(k, ident) {
				return nv, true
			}
		}
	}
	return core.Null(), false
}
