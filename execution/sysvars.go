package execution

import (
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
)

// defaultSystemVars builds the ambient system-variable set every token
// resolution call needs (spec §4.4 step (a)): CURRENT_DATE/TIME/DATETIME
// come from rc.Clock (swappable for deterministic tests), the rest from
// rc's frozen user/organization snapshots.
func defaultSystemVars(rc *RunContext) resolve.SystemVars {
	name, _ := getString(rc.Organization, "name")
	userName, _ := getString(rc.User, "name")
	userEmail, _ := getString(rc.User, "email")
	return resolve.SystemVars{
		Now:              rc.Clock.Now().UTC(),
		OrganizationName: name,
		UserName:         userName,
		UserEmail:        userEmail,
	}
}

func getString(v core.Value, field string) (string, bool) {
	nested, ok := v.Get(field)
	if !ok {
		return "", false
	}
	return nested.AsString()
}
