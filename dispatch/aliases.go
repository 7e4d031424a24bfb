package dispatch

import "strings"

// entityAliases maps a module name to a set of entityType synonyms that
// must be treated as the same entity for matching purposes (spec §4.1:
// "CRM.customer≡contact; HR.timeoff≡time_off; CRM.deal≡opportunity"). Each
// inner map is keyed by the normalized (lower-cased) alias and stores its
// canonical form.
var entityAliases = map[string]map[string]string{
	"CRM": {
		"customer":    "customer",
		"contact":     "customer",
		"deal":        "deal",
		"opportunity": "deal",
	},
	"HR": {
		"timeoff":  "timeoff",
		"time_off": "timeoff",
	},
}

// normalizeModule uppercases a module name for canonical comparison.
func normalizeModule(module string) string {
	return strings.ToUpper(strings.TrimSpace(module))
}

// canonicalEntity resolves an entityType to its canonical alias within the
// given (already normalized) module, falling back to the lower-cased input
// when no alias table or entry exists for it.
func canonicalEntity(module, entityType string) string {
	key := strings.ToLower(strings.TrimSpace(entityType))
	if table, ok := entityAliases[module]; ok {
		if canon, ok := table[key]; ok {
			return canon
		}
	}
	return key
}

// sameModule reports whether two module names are identical after
// normalization. Spec §4.1: "Module must match exactly after normalization."
func sameModule(a, b string) bool {
	return normalizeModule(a) == normalizeModule(b)
}

// sameEntity reports whether two entityTypes denote the same entity once
// module-specific aliases are applied and casing is ignored.
func sameEntity(module, a, b string) bool {
	m := normalizeModule(module)
	return canonicalEntity(m, a) == canonicalEntity(m, b)
}

// sameEventType reports whether two eventTypes match case-insensitively.
func sameEventType(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
