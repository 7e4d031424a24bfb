package execution

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
	"github.com/opensyte/workflow-core/workflow"
)

var errNoRecipient = errors.New("could not resolve a recipient for this node")

func errSendFailed(reason string) error {
	if reason == "" {
		reason = "send failed"
	}
	return fmt.Errorf("adapter reported failure: %s", reason)
}

// emailInterpreter implements EMAIL (spec §4.2 "EMAIL / SMS / ACTION"):
// resolve variables in subject/body, extract a recipient, and call the
// adapter. Email results carry no skipped flag, so there is no SKIPPED
// path here (that applies to SMS only).
type emailInterpreter struct {
	sink adapters.EmailSink
}

func (e emailInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	a := node.EmailAction
	sys := defaultSystemVars(rc)
	to := a.To
	if to == "" {
		to, _ = extractRecipient(rc, "email")
	} else {
		to = resolveString(rc, sys, to)
	}
	if to == "" {
		err := core.NewError(errNoRecipient, core.ErrCodeDefinition, map[string]any{"node": node.NodeID})
		return NodeResult{Status: core.StatusFailed, Err: err}, err
	}

	msg := adapters.EmailMessage{
		To:        to,
		Subject:   resolveString(rc, sys, a.Subject),
		HTMLBody:  resolveString(rc, sys, a.HTMLBody),
		TextBody:  resolveString(rc, sys, a.TextBody),
		FromName:  resolveString(rc, sys, a.FromName),
		FromEmail: resolveString(rc, sys, a.FromEmail),
		ReplyTo:   resolveString(rc, sys, a.ReplyTo),
		CC:        a.CC,
		BCC:       a.BCC,
	}
	result, err := e.sink.Send(ctx, msg)
	if err != nil {
		nodeErr := core.NewError(err, core.ErrCodeTransient, nil)
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}
	if !result.Success {
		err := core.NewError(errSendFailed(result.Error), core.ErrCodeTransient, nil)
		return NodeResult{Status: core.StatusFailed, Err: err}, err
	}
	out := core.ObjectValue(map[string]core.Value{
		"messageId": core.StringValue(result.MessageID),
		"to":        core.StringValue(to),
	})
	if node.Config.Action != nil && node.Config.Action.ResultKey != "" {
		rc.SetShared(node.Config.Action.ResultKey, out)
	}
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

// smsInterpreter implements SMS: strip HTML from the message, extract the
// recipient, and treat an adapter-reported skip as a completed (not
// failed) outcome (spec §8 scenario 6).
type smsInterpreter struct {
	sink adapters.SmsSink
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}

func (s smsInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	a := node.SMSAction
	sys := defaultSystemVars(rc)
	to := a.To
	if to == "" {
		to, _ = extractRecipient(rc, "phone")
	} else {
		to = resolveString(rc, sys, to)
	}
	if to == "" {
		err := core.NewError(errNoRecipient, core.ErrCodeDefinition, map[string]any{"node": node.NodeID})
		return NodeResult{Status: core.StatusFailed, Err: err}, err
	}

	message := stripHTML(resolveString(rc, sys, a.Message))
	result, err := s.sink.Send(ctx, adapters.SMSMessage{To: to, Message: message})
	if err != nil {
		nodeErr := core.NewError(err, core.ErrCodeTransient, nil)
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}
	if result.Skipped {
		out := core.ObjectValue(map[string]core.Value{"skipped": core.BoolValue(true)})
		return NodeResult{Output: out, Status: core.StatusCompleted}, nil
	}
	if !result.Success {
		err := core.NewError(errSendFailed(result.Error), core.ErrCodeTransient, nil)
		return NodeResult{Status: core.StatusFailed, Err: err}, err
	}
	out := core.ObjectValue(map[string]core.Value{
		"messageSid": core.StringValue(result.MessageSID),
		"to":         core.StringValue(to),
	})
	if node.Config.Action != nil && node.Config.Action.ResultKey != "" {
		rc.SetShared(node.Config.Action.ResultKey, out)
	}
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

// actionInterpreter implements ACTION-with-sub-action as a thin passthrough
// that just records whichever output a prior step already produced —
// module-specific sub-actions (EMAIL/SMS) are modeled as their own node
// kinds above; a bare ACTION node carries no adapter call of its own.
type actionInterpreter struct{}

func (actionInterpreter) Execute(_ context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	out := core.ObjectValue(map[string]core.Value{"executed": core.BoolValue(true)})
	if node.Config.Action != nil && node.Config.Action.ResultKey != "" {
		rc.SetShared(node.Config.Action.ResultKey, out)
	}
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

// extractRecipient applies the module-specific fallback order spec §4.2
// describes: Projects -> assignee or creator; Finance -> triggering user,
// creator/updater, then customerEmail; generic -> email/customerEmail/
// employeeEmail/nested .email.
func extractRecipient(rc *RunContext, field string) (string, bool) {
	ctx := resolveContext(rc)
	var candidates []string
	switch strings.ToUpper(rc.Module) {
	case "PROJECTS":
		candidates = []string{"payload.assignee." + field, "payload.creator." + field}
	case "FINANCE":
		candidates = []string{"user." + field, "payload.creator." + field, "payload.updater." + field, "payload.customerEmail"}
	default:
		candidates = []string{"payload." + field, "payload.customerEmail", "payload.employeeEmail", "payload.contact." + field}
	}
	for _, path := range candidates {
		if v, ok := resolve.ResolvePath(ctx, path); ok {
			if s, isStr := v.AsString(); isStr && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
