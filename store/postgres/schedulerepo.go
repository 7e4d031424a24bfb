package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/schedule"
)

// ScheduleRepo implements schedule.Repository: persistence for the
// Scheduler's due-schedule polling and retry backoff (spec §4.3, §6).
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

type scheduleMetadataRow struct {
	RetryCount     int        `json:"retryCount"`
	LastError      string     `json:"lastError,omitempty"`
	LastErrorAt    *time.Time `json:"lastErrorAt,omitempty"`
	OrganizationID string     `json:"organizationId"`
	Module         string     `json:"module"`
	EntityType     string     `json:"entityType,omitempty"`
	EventType      string     `json:"eventType,omitempty"`
	UserID         *string    `json:"userId,omitempty"`
	Payload        core.Value `json:"payload"`
}

func metadataToRow(m schedule.Metadata) scheduleMetadataRow {
	row := scheduleMetadataRow{
		RetryCount:     m.RetryCount,
		LastError:      m.LastError,
		LastErrorAt:    m.LastErrorAt,
		OrganizationID: m.OrganizationID.String(),
		Module:         m.Module,
		EntityType:     m.EntityType,
		EventType:      m.EventType,
		Payload:        m.Payload,
	}
	if m.UserID != nil {
		s := m.UserID.String()
		row.UserID = &s
	}
	return row
}

func (row scheduleMetadataRow) toDomain() schedule.Metadata {
	m := schedule.Metadata{
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		LastErrorAt:    row.LastErrorAt,
		OrganizationID: core.ID(row.OrganizationID),
		Module:         row.Module,
		EntityType:     row.EntityType,
		EventType:      row.EventType,
		Payload:        row.Payload,
	}
	if row.UserID != nil {
		id := core.ID(*row.UserID)
		m.UserID = &id
	}
	return m
}

type scheduleRow struct {
	ID        string     `db:"id"`
	WorkflowID string    `db:"workflow_id"`
	NodeID    string     `db:"node_id"`
	Cron      string     `db:"cron"`
	Frequency string     `db:"frequency"`
	Timezone  string     `db:"timezone"`
	StartAt   *time.Time `db:"start_at"`
	EndAt     *time.Time `db:"end_at"`
	IsActive  bool       `db:"is_active"`
	LastRunAt *time.Time `db:"last_run_at"`
	NextRunAt *time.Time `db:"next_run_at"`
	Metadata  []byte     `db:"metadata"`
}

func (r scheduleRow) toDomain() (schedule.Record, error) {
	rec := schedule.Record{
		ID:         core.ID(r.ID),
		WorkflowID: core.ID(r.WorkflowID),
		NodeID:     r.NodeID,
		Cron:       r.Cron,
		Frequency:  schedule.Frequency(r.Frequency),
		Timezone:   r.Timezone,
		StartAt:    r.StartAt,
		EndAt:      r.EndAt,
		IsActive:   r.IsActive,
		LastRunAt:  r.LastRunAt,
		NextRunAt:  r.NextRunAt,
	}
	var metaRow scheduleMetadataRow
	if err := FromJSONB(r.Metadata, &metaRow); err != nil {
		return rec, fmt.Errorf("decoding schedule %s metadata: %w", r.ID, err)
	}
	rec.Metadata = metaRow.toDomain()
	return rec, nil
}

const upsertScheduleQuery = `
	INSERT INTO schedules (id, workflow_id, node_id, cron, frequency, timezone, start_at, end_at, is_active, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
	ON CONFLICT (workflow_id, node_id) DO UPDATE SET
		cron = EXCLUDED.cron, frequency = EXCLUDED.frequency, timezone = EXCLUDED.timezone,
		start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at, is_active = TRUE, metadata = EXCLUDED.metadata
	RETURNING id, workflow_id, node_id, cron, frequency, timezone, start_at, end_at,
	          is_active, last_run_at, next_run_at, metadata`

// Upsert implements schedule.Repository (spec §4.3 upsertSchedule): create
// or replace the schedule row for (workflowID, nodeID), re-activating it.
func (r *ScheduleRepo) Upsert(ctx context.Context, workflowID core.ID, nodeID string, cfg schedule.Config) (*schedule.Record, error) {
	id, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("generating schedule id: %w", err)
	}
	metaJSON, err := ToJSONB(metadataToRow(cfg.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encoding schedule metadata: %w", err)
	}
	var row scheduleRow
	if err := scanOne(ctx, r.pool, &row, upsertScheduleQuery,
		id.String(), workflowID.String(), nodeID, cfg.Cron, string(cfg.Frequency), cfg.Timezone,
		cfg.StartAt, cfg.EndAt, metaJSON); err != nil {
		return nil, fmt.Errorf("upserting schedule for workflow %s node %s: %w", workflowID, nodeID, err)
	}
	rec, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

const selectScheduleByWorkflowNode = `
	SELECT id, workflow_id, node_id, cron, frequency, timezone, start_at, end_at,
	       is_active, last_run_at, next_run_at, metadata
	FROM schedules WHERE workflow_id = $1 AND node_id = $2`

func (r *ScheduleRepo) Get(ctx context.Context, workflowID core.ID, nodeID string) (*schedule.Record, error) {
	var row scheduleRow
	if err := scanOne(ctx, r.pool, &row, selectScheduleByWorkflowNode, workflowID.String(), nodeID); err != nil {
		return nil, fmt.Errorf("loading schedule for workflow %s node %s: %w", workflowID, nodeID, err)
	}
	rec, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

const selectDueSchedules = `
	SELECT id, workflow_id, node_id, cron, frequency, timezone, start_at, end_at,
	       is_active, last_run_at, next_run_at, metadata
	FROM schedules
	WHERE is_active AND next_run_at <= $1
	ORDER BY next_run_at
	LIMIT $2
	FOR UPDATE SKIP LOCKED`

// FetchDue implements schedule.Repository: claims up to limit due schedules
// with FOR UPDATE SKIP LOCKED so concurrent Worker pollers never double-fire
// the same schedule (spec §4.3 "Polling loop").
func (r *ScheduleRepo) FetchDue(ctx context.Context, asOf time.Time, limit int) ([]schedule.Record, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning fetch-due transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var rows []scheduleRow
	if err := scanAll(ctx, tx, &rows, selectDueSchedules, asOf, limit); err != nil {
		return nil, fmt.Errorf("fetching due schedules: %w", err)
	}
	out := make([]schedule.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing fetch-due transaction: %w", err)
	}
	return out, nil
}

func (r *ScheduleRepo) SetNextRun(ctx context.Context, id core.ID, next *time.Time, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET next_run_at = $2, is_active = $3 WHERE id = $1`,
		id.String(), next, active)
	if err != nil {
		return fmt.Errorf("setting next run for schedule %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s not found", id)
	}
	return nil
}

// MarkRunSuccess implements schedule.Repository (spec §4.3 "on success"):
// resets retry state and advances to the next scheduled run.
func (r *ScheduleRepo) MarkRunSuccess(ctx context.Context, id core.ID, ranAt time.Time, next *time.Time, active bool) error {
	query := `
		UPDATE schedules SET
			last_run_at = $2, next_run_at = $3, is_active = $4,
			metadata = jsonb_set(jsonb_set(metadata, '{retryCount}', '0'), '{lastError}', '""')
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id.String(), ranAt, next, active)
	if err != nil {
		return fmt.Errorf("marking schedule %s run success: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s not found", id)
	}
	return nil
}

// MarkRunFailure implements schedule.Repository (spec §4.3 "on failure"):
// persists updated retry metadata and reschedules at retryAt without
// touching is_active (the caller decides whether retries are exhausted).
func (r *ScheduleRepo) MarkRunFailure(ctx context.Context, id core.ID, meta schedule.Metadata, retryAt time.Time) error {
	metaJSON, err := ToJSONB(metadataToRow(meta))
	if err != nil {
		return fmt.Errorf("encoding failure metadata: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET next_run_at = $2, metadata = $3 WHERE id = $1`,
		id.String(), retryAt, metaJSON)
	if err != nil {
		return fmt.Errorf("marking schedule %s run failure: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s not found", id)
	}
	return nil
}

func (r *ScheduleRepo) SetActive(ctx context.Context, id core.ID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE schedules SET is_active = $2 WHERE id = $1`, id.String(), active)
	if err != nil {
		return fmt.Errorf("setting schedule %s active=%v: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s not found", id)
	}
	return nil
}
