package execution

import (
	"context"
	"time"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/schedule"
	"github.com/opensyte/workflow-core/workflow"
)

// scheduleInterpreter implements SCHEDULE (spec §4.2 "SCHEDULE"): a
// workflow that reaches a SCHEDULE node during a run upserts (or re-arms) a
// recurring schedule for itself, merging the triggering event into the
// schedule's stored metadata so the scheduler worker can replay it later.
type scheduleInterpreter struct {
	scheduler SchedulerPort
}

func (s scheduleInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Schedule

	scheduleCfg := schedule.Config{
		Cron:      cfg.Cron,
		Frequency: schedule.Frequency(cfg.Frequency),
		Timezone:  cfg.Timezone,
		StartAt:   unixSecondsToTime(cfg.StartAt),
		EndAt:     unixSecondsToTime(cfg.EndAt),
		Metadata: schedule.Metadata{
			OrganizationID: rc.OrganizationID,
			Module:         rc.Module,
			EntityType:     rc.EntityType,
			EventType:      rc.EventType,
			UserID:         rc.UserID,
			Payload:        rc.Payload,
		},
	}

	rec, err := s.scheduler.UpsertSchedule(ctx, rc.WorkflowID, node.NodeID, scheduleCfg)
	if err != nil {
		nodeErr := core.NewError(err, core.ErrCodeScheduler, map[string]any{"node": node.NodeID})
		return NodeResult{Status: core.StatusFailed, Err: nodeErr}, err
	}

	fields := map[string]core.Value{
		"scheduleId": core.StringValue(rec.ID.String()),
		"active":     core.BoolValue(rec.IsActive),
	}
	if rec.NextRunAt != nil {
		fields["nextRunAt"] = core.StringValue(rec.NextRunAt.UTC().Format(time.RFC3339))
	}
	out := core.ObjectValue(fields)
	if cfg.ResultKey != "" {
		rc.SetShared(cfg.ResultKey, out)
	}
	return NodeResult{Output: out, Status: core.StatusCompleted}, nil
}

func unixSecondsToTime(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
