package schedule

import (
	"context"
	"time"

	"github.com/opensyte/workflow-core/core"
)

// Repository is the persistence port the Scheduler calls through. The
// postgres implementation lives in store/postgres (spec §4.3, §6).
type Repository interface {
	Upsert(ctx context.Context, workflowID core.ID, nodeID string, cfg Config) (*Record, error)
	Get(ctx context.Context, workflowID core.ID, nodeID string) (*Record, error)
	// FetchDue returns active schedules whose NextRunAt is <= asOf, locked
	// against concurrent pollers, up to limit rows.
	FetchDue(ctx context.Context, asOf time.Time, limit int) ([]Record, error)
	SetNextRun(ctx context.Context, id core.ID, next *time.Time, active bool) error
	MarkRunSuccess(ctx context.Context, id core.ID, ranAt time.Time, next *time.Time, active bool) error
	MarkRunFailure(ctx context.Context, id core.ID, meta Metadata, retryAt time.Time) error
	SetActive(ctx context.Context, id core.ID, active bool) error
}
