package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// approvalInterpreter implements APPROVAL (spec §4.2 "APPROVAL"): create a
// pending WorkflowApproval, optionally notify approvers, and park the node
// in PENDING until resumeAfterApproval is called. Once the approval row is
// created it returns PENDING, not a terminal status — the engine's graph
// walk stops at "pending" and waits for the decision; it returns FAILED
// only when the approval cannot be created.
type approvalInterpreter struct {
	approvals ApprovalRepository
	emailSink adapters.EmailSink
	notify    func(ctx context.Context, sink adapters.EmailSink, approverIDs []core.ID, rc *RunContext, node *workflow.Node) error
}

func newApprovalInterpreter(approvals ApprovalRepository, emailSink adapters.EmailSink) *approvalInterpreter {
	return &approvalInterpreter{approvals: approvals, emailSink: emailSink, notify: notifyApprovers}
}

func (a *approvalInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Approval

	id, err := core.NewID()
	if err != nil {
		nodeErr := core.NewError(err, core.ErrCodeFatal, map[string]any{"node": node.NodeID})
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}
	approval := &workflow.Approval{
		ID:          id,
		ExecutionID: rc.ExecutionID,
		NodeID:      node.NodeID,
		Status:      core.ApprovalPending,
		ApproverIDs: cfg.ApproverIDs,
	}
	if cfg.ExpiresInSeconds > 0 {
		expiresAt := rc.Clock.Now().UTC().Add(time.Duration(cfg.ExpiresInSeconds) * time.Second)
		approval.ExpiresAt = &expiresAt
	}

	if err := a.approvals.Create(ctx, approval); err != nil {
		nodeErr := core.NewError(fmt.Errorf("creating approval: %w", err), core.ErrCodeTransient, map[string]any{"node": node.NodeID})
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}

	if cfg.NotifyApprovers && len(cfg.ApproverIDs) > 0 {
		if err := a.notify(ctx, a.emailSink, cfg.ApproverIDs, rc, node); err != nil {
			// Notification failure doesn't fail the node: the approval
			// still exists and can be decided directly.
			rc.SetShared(approvalNotifyFailureKey(node.NodeID), core.StringValue(err.Error()))
		}
	}

	out := core.ObjectValue(map[string]core.Value{
		"approvalId": core.StringValue(approval.ID.String()),
		"status":     core.StringValue(string(approval.Status)),
	})
	return NodeResult{Output: out, Status: core.StatusPending, Handles: []string{"pending"}}, nil
}

func approvalNotifyFailureKey(nodeID string) string {
	return "_approval_notify_failed." + nodeID
}

// notifyApprovers sends a best-effort notification email to each approver
// (spec §4.2: "notifyApprovers triggers an EMAIL-shaped notification").
// Approver identities resolve to email addresses out of band (by id, via
// the organization's user directory); this core treats the approver id
// itself as the recipient the adapter already knows how to notify.
func notifyApprovers(ctx context.Context, sink adapters.EmailSink, approverIDs []core.ID, rc *RunContext, node *workflow.Node) error {
	if sink == nil {
		return fmt.Errorf("no email sink configured")
	}
	var firstErr error
	for _, approverID := range approverIDs {
		msg := adapters.EmailMessage{
			To:      approverID.String(),
			Subject: fmt.Sprintf("Approval requested: %s", node.Name),
			TextBody: fmt.Sprintf("Workflow execution %s is waiting on your approval for node %s.",
				rc.ExecutionID.String(), node.NodeID),
		}
		result, err := sink.Send(ctx, msg)
		if err != nil && firstErr == nil {
			firstErr = err
			continue
		}
		if err == nil && !result.Success && firstErr == nil {
			firstErr = fmt.Errorf("adapter reported failure notifying approver %s: %s", approverID, result.Error)
		}
	}
	return firstErr
}
