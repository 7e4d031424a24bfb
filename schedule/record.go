// Package schedule implements the Scheduler (spec §4.3): schedule record
// storage, next-run computation, exponential retry backoff, and the
// Scheduler Worker polling loop that hands due schedules to the engine.
package schedule

import (
	"time"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// Frequency re-exports workflow.Frequency so callers need only import this
// package for scheduling concerns.
type Frequency = workflow.Frequency

const (
	Hourly  = workflow.FrequencyHourly
	Daily   = workflow.FrequencyDaily
	Weekly  = workflow.FrequencyWeekly
	Monthly = workflow.FrequencyMonthly
	Yearly  = workflow.FrequencyYearly
)

// Metadata captures the retry state and the replay context required to
// re-enter the engine when a schedule fires (spec §3 WorkflowSchedule).
type Metadata struct {
	RetryCount       int
	LastError        string
	LastErrorAt      *time.Time
	OrganizationID   core.ID
	Module           string
	EntityType       string
	EventType        string
	UserID           *core.ID
	Payload          core.Value
}

// Record is one persisted WorkflowSchedule row, unique on (WorkflowID, NodeID).
type Record struct {
	ID         core.ID
	WorkflowID core.ID
	NodeID     string

	Cron      string
	Frequency Frequency
	Timezone  string

	StartAt *time.Time
	EndAt   *time.Time

	IsActive  bool
	LastRunAt *time.Time
	NextRunAt *time.Time

	Metadata Metadata
}

// Config is the upsert payload for a schedule (spec §4.3 upsertSchedule).
type Config struct {
	Cron      string
	Frequency Frequency
	Timezone  string
	StartAt   *time.Time
	EndAt     *time.Time
	Metadata  Metadata
}
