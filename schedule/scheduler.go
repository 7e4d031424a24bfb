package schedule

import (
	"context"
	"fmt"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/pkg/logger"
)

// Scheduler owns schedule-record lifecycle: upsert, due-fetch, and the
// success/failure transitions that drive NextRunAt forward (spec §4.3).
type Scheduler struct {
	repo  Repository
	cron  adapters.CronParser
	clock adapters.Clock
}

func NewScheduler(repo Repository, cron adapters.CronParser, clock adapters.Clock) *Scheduler {
	if clock == nil {
		clock = adapters.SystemClock
	}
	return &Scheduler{repo: repo, cron: cron, clock: clock}
}

// UpsertSchedule creates or replaces the schedule record for a SCHEDULE
// node and computes its initial NextRunAt.
func (s *Scheduler) UpsertSchedule(ctx context.Context, workflowID core.ID, nodeID string, cfg Config) (*Record, error) {
	rec, err := s.repo.Upsert(ctx, workflowID, nodeID, cfg)
	if err != nil {
		return nil, fmt.Errorf("upsert schedule: %w", err)
	}
	next, keepActive, err := NextRun(s.cron, *rec, s.clock.Now())
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeDefinition, map[string]any{
			"workflowId": workflowID.String(),
			"nodeId":     nodeID,
		})
	}
	if err := s.repo.SetNextRun(ctx, rec.ID, next, keepActive); err != nil {
		return nil, fmt.Errorf("set next run: %w", err)
	}
	rec.NextRunAt = next
	rec.IsActive = keepActive
	return rec, nil
}

// FetchDueSchedules returns active schedules whose NextRunAt has elapsed,
// up to batchSize rows, ordered by the repository's locking strategy.
func (s *Scheduler) FetchDueSchedules(ctx context.Context, batchSize int) ([]Record, error) {
	return s.repo.FetchDue(ctx, s.clock.Now(), batchSize)
}

// MarkRunSuccess advances a schedule past a successful dispatch: resets the
// retry counter, records LastRunAt, and computes the next fire time.
func (s *Scheduler) MarkRunSuccess(ctx context.Context, rec Record) error {
	ranAt := s.clock.Now()
	rec.LastRunAt = &ranAt
	rec.Metadata.RetryCount = 0
	rec.Metadata.LastError = ""
	rec.Metadata.LastErrorAt = nil

	next, keepActive, err := NextRun(s.cron, rec, ranAt)
	if err != nil {
		return core.NewError(err, core.ErrCodeDefinition, map[string]any{"scheduleId": rec.ID.String()})
	}
	return s.repo.MarkRunSuccess(ctx, rec.ID, ranAt, next, keepActive)
}

// MarkRunFailure records a failed dispatch attempt and schedules a retry
// using exponential backoff (spec §4.3), independent of the schedule's own
// NextRunAt cadence.
func (s *Scheduler) MarkRunFailure(ctx context.Context, rec Record, failErr error, log logger.Logger) error {
	rec.Metadata.RetryCount++
	rec.Metadata.LastError = failErr.Error()
	now := s.clock.Now()
	rec.Metadata.LastErrorAt = &now

	delay := Backoff(rec.Metadata.RetryCount)
	retryAt := now.Add(delay)

	if log != nil {
		log.Warn("schedule dispatch failed, backing off",
			"scheduleId", rec.ID.String(),
			"retryCount", rec.Metadata.RetryCount,
			"retryAt", retryAt,
			"error", failErr,
		)
	}
	return s.repo.MarkRunFailure(ctx, rec.ID, rec.Metadata, retryAt)
}

// SetActiveState enables or disables a schedule without altering its
// NextRunAt, e.g. when the owning workflow is deactivated.
func (s *Scheduler) SetActiveState(ctx context.Context, id core.ID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}
