package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/pkg/logger"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[core.ID]*Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[core.ID]*Record{}}
}

func (r *fakeRepo) Upsert(_ context.Context, workflowID core.ID, nodeID string, cfg Config) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := core.ID(nodeID)
	rec := &Record{
		ID:         id,
		WorkflowID: workflowID,
		NodeID:     nodeID,
		Cron:       cfg.Cron,
		Frequency:  cfg.Frequency,
		Timezone:   cfg.Timezone,
		StartAt:    cfg.StartAt,
		EndAt:      cfg.EndAt,
		IsActive:   true,
		Metadata:   cfg.Metadata,
	}
	r.records[id] = rec
	return rec, nil
}

func (r *fakeRepo) Get(_ context.Context, _ core.ID, nodeID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[core.ID(nodeID)], nil
}

func (r *fakeRepo) FetchDue(_ context.Context, asOf time.Time, limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.IsActive && rec.NextRunAt != nil && !rec.NextRunAt.After(asOf) {
			out = append(out, *rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) SetNextRun(_ context.Context, id core.ID, next *time.Time, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[id]
	rec.NextRunAt = next
	rec.IsActive = active
	return nil
}

func (r *fakeRepo) MarkRunSuccess(_ context.Context, id core.ID, ranAt time.Time, next *time.Time, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[id]
	rec.LastRunAt = &ranAt
	rec.NextRunAt = next
	rec.IsActive = active
	rec.Metadata.RetryCount = 0
	return nil
}

func (r *fakeRepo) MarkRunFailure(_ context.Context, id core.ID, meta Metadata, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id].Metadata = meta
	return nil
}

func (r *fakeRepo) SetActive(_ context.Context, id core.ID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id].IsActive = active
	return nil
}

func TestScheduler_UpsertAndAdvance(t *testing.T) {
	repo := newFakeRepo()
	cron := adapters.NewRobfigCronParser()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	clock := adapters.NewFixedClock(now)
	s := NewScheduler(repo, cron, clock)

	t.Run("Should compute NextRunAt on upsert", func(t *testing.T) {
		rec, err := s.UpsertSchedule(context.Background(), core.ID("wf-1"), "node-1", Config{Frequency: Daily})
		require.NoError(t, err)
		require.NotNil(t, rec.NextRunAt)
		require.Equal(t, now.AddDate(0, 0, 1), *rec.NextRunAt)
	})

	t.Run("Should find the upserted schedule once due", func(t *testing.T) {
		clock.Advance(25 * time.Hour)
		due, err := s.FetchDueSchedules(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
	})

	t.Run("Should reset retry state and advance NextRunAt on success", func(t *testing.T) {
		due, err := s.FetchDueSchedules(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		rec := due[0]
		rec.Metadata.RetryCount = 2
		require.NoError(t, s.MarkRunSuccess(context.Background(), rec))

		updated, err := repo.Get(context.Background(), rec.WorkflowID, rec.NodeID)
		require.NoError(t, err)
		require.Equal(t, 0, updated.Metadata.RetryCount)
		require.NotNil(t, updated.LastRunAt)
	})

	t.Run("Should back off with an increasing retry count on failure", func(t *testing.T) {
		rec, err := repo.Get(context.Background(), core.ID("wf-1"), "node-1")
		require.NoError(t, err)
		log := logger.NewLogger(logger.TestConfig())
		require.NoError(t, s.MarkRunFailure(context.Background(), *rec, errors.New("boom"), log))

		updated, err := repo.Get(context.Background(), rec.WorkflowID, rec.NodeID)
		require.NoError(t, err)
		require.Equal(t, 1, updated.Metadata.RetryCount)
		require.Equal(t, "boom", updated.Metadata.LastError)
	})
}
