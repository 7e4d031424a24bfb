package workflow

import (
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/resolve"
)

// NodeConfig is a tagged union over the per-kind config shapes (Design
// Note "Deeply nested type unions in node configs": a sum type per node
// kind rather than one struct carrying every optional field). Exactly one
// of the kind-specific pointer fields is non-nil, matching Kind.
type NodeConfig struct {
	Kind NodeType

	Action         *ActionConfig
	Delay          *DelayConfig
	Condition      *ConditionConfig
	Loop           *LoopConfig
	Parallel       *ParallelConfig
	DataTransform  *DataTransformConfig
	Query          *QueryConfig
	Filter         *FilterConfig
	CreateRecord   *RecordWriteConfig
	UpdateRecord   *RecordWriteConfig
	Approval       *ApprovalConfig
	Schedule       *ScheduleConfig
}

// ActionConfig backs ACTION/EMAIL/SMS nodes that resolve a recipient and
// call an outbound adapter.
type ActionConfig struct {
	ResultKey string
}

// DelayConfig backs DELAY nodes.
type DelayConfig struct {
	DelayMs int
}

func (d *DelayConfig) EffectiveDelay() int {
	if d == nil || d.DelayMs <= 0 {
		return 1000
	}
	return d.DelayMs
}

// ConditionConfig backs CONDITION nodes.
type ConditionConfig struct {
	Conditions      []resolve.Condition
	LogicalOperator resolve.LogicalOperator
}

// LoopConfig backs LOOP nodes.
type LoopConfig struct {
	DataSource      string // dot-path to the collection
	SourceKey       string // alternate: shared/node-output key
	ResultKey       string // alternate: declared resultKey of a prior node
	ItemVariable    string
	IndexVariable   string
	MaxIterations   int
	BreakCondition  *resolve.ConditionSet
}

// ParallelConfig backs PARALLEL nodes.
type ParallelConfig struct {
	ParallelNodeIDs []string
	FailureHandling FailureHandling
}

// FailureHandling controls PARALLEL's terminal status rule.
type FailureHandling string

const (
	FailOnAny          FailureHandling = "fail_on_any"
	FailOnAll          FailureHandling = "fail_on_all"
	ContinueOnFailure  FailureHandling = "continue_on_failure"
)

// DataTransformOperation enumerates DATA_TRANSFORM.operation.
type DataTransformOperation string

const (
	TransformMap     DataTransformOperation = "map"
	TransformFilter  DataTransformOperation = "filter"
	TransformReduce  DataTransformOperation = "reduce"
	TransformQuery   DataTransformOperation = "query"
	TransformAggregate DataTransformOperation = "aggregate"
	TransformExtract DataTransformOperation = "extract"
)

// DataTransformConfig backs DATA_TRANSFORM nodes.
type DataTransformConfig struct {
	Operation  DataTransformOperation
	SourceKey  string
	Expression string // used by map/reduce/aggregate; engine-interpreted, see execution package
	ResultKey  string
}

// RecordModel enumerates the models QUERY/CREATE_RECORD/UPDATE_RECORD may
// target via the RecordStore port.
type RecordModel string

const (
	ModelLead     RecordModel = "Lead"
	ModelCustomer RecordModel = "Customer"
	ModelProject  RecordModel = "Project"
	ModelTask     RecordModel = "Task"
	ModelInvoice  RecordModel = "Invoice"
	ModelEmployee RecordModel = "Employee"
	ModelPayroll  RecordModel = "Payroll"
	ModelTimeOff  RecordModel = "TimeOff"
)

// QueryConfig backs QUERY nodes.
type QueryConfig struct {
	Model   RecordModel
	Where   *resolve.ConditionSet
	OrderBy string
	Limit   int
	Offset  int
	Select  []string
	Include []string
}

// FilterConfig backs FILTER nodes.
type FilterConfig struct {
	SourceKey string
	Where     *resolve.ConditionSet
	ResultKey string
}

// RecordWriteConfig backs CREATE_RECORD/UPDATE_RECORD nodes.
type RecordWriteConfig struct {
	Model      RecordModel
	Fields     map[string]string // field -> template/token expression
	Conditions *resolve.ConditionSet
	RecordIDField string // for UPDATE_RECORD: which resolved field carries the record id
}

// ApprovalConfig backs APPROVAL nodes.
type ApprovalConfig struct {
	ApproverIDs      []core.ID
	ExpiresInSeconds int
	NotifyApprovers  bool
}

// Frequency enumerates WorkflowSchedule.frequency.
type Frequency string

const (
	FrequencyHourly  Frequency = "HOURLY"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// ScheduleConfig backs SCHEDULE nodes.
type ScheduleConfig struct {
	Cron      string
	Frequency Frequency
	Timezone  string
	StartAt   *int64 // unix seconds, optional
	EndAt     *int64
	ResultKey string
}
