// Package workflow holds the persisted data model of spec §3: Workflow,
// WorkflowTrigger, WorkflowNode, WorkflowConnection, WorkflowExecution,
// NodeExecution, ExecutionLog, WorkflowSchedule and WorkflowApproval.
package workflow

import (
	"time"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
)

// Status is the lifecycle status of a Workflow definition.
type Status = core.WorkflowStatus

const (
	StatusDraft    = core.WorkflowDraft
	StatusActive   = core.WorkflowActive
	StatusPaused   = core.WorkflowPaused
	StatusArchived = core.WorkflowArchived
)

// Workflow is an organization-owned directed graph of nodes.
type Workflow struct {
	ID                   core.ID
	OrganizationID       core.ID
	Name                 string
	Status               Status
	Category             string
	TotalExecutions      int64
	SuccessfulExecutions int64
	FailedExecutions     int64
	LastExecutedAt       *time.Time
}

// IsEligibleForDispatch reports whether the workflow may be matched by the
// dispatcher (spec §3: "Only ACTIVE workflows are eligible for dispatch").
func (w *Workflow) IsEligibleForDispatch() bool {
	return w != nil && w.Status == StatusActive
}

// TriggerType enumerates the canonical domain-event kinds a trigger can
// bind to. Additional kinds may be added without breaking callers that
// switch on the module/entityType/eventType triple instead.
type TriggerType string

const (
	TriggerTypeRecordCreated TriggerType = "RECORD_CREATED"
	TriggerTypeRecordUpdated TriggerType = "RECORD_UPDATED"
	TriggerTypeRecordDeleted TriggerType = "RECORD_DELETED"
	TriggerTypeStatusChanged TriggerType = "STATUS_CHANGED"
	TriggerTypeCustomEvent   TriggerType = "CUSTOM_EVENT"
	TriggerTypeSchedule      TriggerType = "SCHEDULE"
)

// Trigger belongs to a Workflow and anchors a start node.
type Trigger struct {
	ID            core.ID
	WorkflowID    core.ID
	NodeID        string
	Type          TriggerType
	Module        string  // required: "CRM", "HR", "FINANCE", "PROJECTS", "system", ...
	EntityType    *string // nil = wildcard
	EventType     *string // nil = wildcard
	Conditions    *resolve.ConditionSet
	IsActive      bool
	TriggerCount  int64
	LastTriggered *time.Time
}

// NodeType enumerates the node kinds spec §3 requires.
type NodeType string

const (
	NodeTrigger        NodeType = "TRIGGER"
	NodeAction         NodeType = "ACTION"
	NodeEmail          NodeType = "EMAIL"
	NodeSMS            NodeType = "SMS"
	NodeDelay          NodeType = "DELAY"
	NodeCondition      NodeType = "CONDITION"
	NodeLoop           NodeType = "LOOP"
	NodeParallel       NodeType = "PARALLEL"
	NodeDataTransform  NodeType = "DATA_TRANSFORM"
	NodeApproval       NodeType = "APPROVAL"
	NodeCreateRecord   NodeType = "CREATE_RECORD"
	NodeUpdateRecord   NodeType = "UPDATE_RECORD"
	NodeQuery          NodeType = "QUERY"
	NodeFilter         NodeType = "FILTER"
	NodeSchedule       NodeType = "SCHEDULE"
)

// EmailAction is the sub-record attached to an EMAIL node (spec §3).
type EmailAction struct {
	To         string
	Subject    string
	HTMLBody   string
	TextBody   string
	FromName   string
	FromEmail  string
	ReplyTo    string
	CC         []string
	BCC        []string
}

// SMSAction is the sub-record attached to an SMS node (spec §3).
type SMSAction struct {
	To      string
	Message string
}

// Node belongs to a Workflow; nodeId is the graph-local identifier used by
// Connection.SourceNodeID/TargetNodeID and unique within the workflow.
type Node struct {
	ID              core.ID
	WorkflowID      core.ID
	NodeID          string
	Type            NodeType
	Name            string
	ExecutionOrder  int
	IsOptional      bool
	RetryLimit      int
	TimeoutSeconds  int
	Config          NodeConfig
	EmailAction     *EmailAction
	SMSAction       *SMSAction
}

// EffectiveTimeout resolves the per-node timeout, defaulting to 300s when
// unset or zero (spec §4.2/§5: "timeoutSeconds=0 is treated as default").
func (n *Node) EffectiveTimeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Connection is a directed edge between two nodes in the same workflow.
type Connection struct {
	ID             core.ID
	WorkflowID     core.ID
	SourceNodeID   string
	TargetNodeID   string
	SourceHandle   string // "true", "false", "body", "empty", "fallback", ...
	ExecutionOrder *int   // nil when the source data omitted it; see Sort
	Conditions     *ConnectionConditions
}

// ConnectionConditions gates whether a connection is taken.
type ConnectionConditions struct {
	// OnStatus defaults to COMPLETED when nil (spec §4.2 "Connection gating").
	OnStatus *core.StatusType
}

// SortConnections orders outgoing connections deterministically: by
// ExecutionOrder ascending when present, falling back to
// (SourceNodeID, TargetNodeID) ascending when absent — Open Question (b).
func SortConnections(conns []*Connection) []*Connection {
	out := make([]*Connection, len(conns))
	copy(out, conns)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && connLess(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func connLess(a, b *Connection) bool {
	if a.ExecutionOrder != nil && b.ExecutionOrder != nil {
		if *a.ExecutionOrder != *b.ExecutionOrder {
			return *a.ExecutionOrder < *b.ExecutionOrder
		}
	} else if a.ExecutionOrder != nil {
		return true
	} else if b.ExecutionOrder != nil {
		return false
	}
	if a.SourceNodeID != b.SourceNodeID {
		return a.SourceNodeID < b.SourceNodeID
	}
	return a.TargetNodeID < b.TargetNodeID
}

// ExecutionStatus is the lifecycle status of a WorkflowExecution.
type ExecutionStatus = core.StatusType

const (
	ExecutionRunning   = core.StatusRunning
	ExecutionCompleted = core.StatusCompleted
	ExecutionFailed    = core.StatusFailed
	ExecutionCancelled = core.StatusCancelled
)

// Execution is one invocation of a Workflow.
type Execution struct {
	ID                  core.ID
	WorkflowID          core.ID
	OrganizationID      core.ID
	Module              string
	UserID              *core.ID
	ExternalExecutionID string
	TriggerID           *core.ID
	Status              ExecutionStatus
	TriggerData         core.Value // frozen snapshot, replayed verbatim by retryExecution
	Progress            int        // 0-100
	StartedAt           time.Time
	CompletedAt         *time.Time
	Result              core.Value
	Error               *core.Error
}

// NodeExecutionStatus is the terminal/transitional status of a NodeExecution.
type NodeExecutionStatus = core.StatusType

const (
	NodeExecRunning   = core.StatusRunning
	NodeExecCompleted = core.StatusCompleted
	NodeExecFailed    = core.StatusFailed
	NodeExecSkipped   = core.StatusSkipped
	NodeExecPending   = core.StatusPending
)

// NodeExecution is one node attempt within an Execution.
type NodeExecution struct {
	ID                  core.ID
	WorkflowExecutionID core.ID
	NodeID              string
	ExecutionOrder      int
	Status              NodeExecutionStatus
	Input               core.Value
	Output              core.Value
	Error               *core.Error
	Duration            time.Duration
	Retries             int
	StartedAt           time.Time
	CompletedAt         *time.Time
}

// ExecutionLog is an append-only structured log entry.
type ExecutionLog struct {
	ID                  core.ID
	WorkflowExecutionID core.ID
	NodeID              *string
	Level               core.LogLevel
	Source              string
	Category            string
	Timestamp           time.Time
	Details             core.Value
}

// ApprovalStatus is the lifecycle status of a WorkflowApproval.
type ApprovalStatus = core.ApprovalStatus

const (
	ApprovalPending  = core.ApprovalPending
	ApprovalApproved = core.ApprovalApproved
	ApprovalRejected = core.ApprovalRejected
	ApprovalExpired  = core.ApprovalExpired
)

// Approval is created by an APPROVAL node and pauses execution until
// decided or expired.
type Approval struct {
	ID          core.ID
	ExecutionID core.ID
	NodeID      string
	Status      ApprovalStatus
	ApproverIDs []core.ID
	ExpiresAt   *time.Time
	DecidedBy   *core.ID
	DecidedAt   *time.Time
	Comments    *string
}
