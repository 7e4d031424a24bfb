package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// ApprovalRepo implements execution.ApprovalRepository: persistence for
// the APPROVAL node's pause/resume lifecycle (spec §4.2 APPROVAL, §6
// resumeAfterApproval).
type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

type approvalRow struct {
	ID          string     `db:"id"`
	ExecutionID string     `db:"execution_id"`
	NodeID      string     `db:"node_id"`
	Status      string     `db:"status"`
	ApproverIDs []byte     `db:"approver_ids"`
	ExpiresAt   *time.Time `db:"expires_at"`
	DecidedBy   *string    `db:"decided_by"`
	DecidedAt   *time.Time `db:"decided_at"`
	Comments    *string    `db:"comments"`
}

func (r approvalRow) toDomain() (*workflow.Approval, error) {
	a := &workflow.Approval{
		ID:          core.ID(r.ID),
		ExecutionID: core.ID(r.ExecutionID),
		NodeID:      r.NodeID,
		Status:      workflow.ApprovalStatus(r.Status),
		ExpiresAt:   r.ExpiresAt,
		DecidedAt:   r.DecidedAt,
		Comments:    r.Comments,
	}
	if r.DecidedBy != nil {
		id := core.ID(*r.DecidedBy)
		a.DecidedBy = &id
	}
	var ids []string
	if err := FromJSONB(r.ApproverIDs, &ids); err != nil {
		return nil, fmt.Errorf("decoding approval %s approver ids: %w", r.ID, err)
	}
	a.ApproverIDs = make([]core.ID, len(ids))
	for i, s := range ids {
		a.ApproverIDs[i] = core.ID(s)
	}
	return a, nil
}

const insertApproval = `
	INSERT INTO approvals (id, execution_id, node_id, status, approver_ids, expires_at, decided_by, decided_at, comments)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (r *ApprovalRepo) Create(ctx context.Context, a *workflow.Approval) error {
	ids := make([]string, len(a.ApproverIDs))
	for i, id := range a.ApproverIDs {
		ids[i] = id.String()
	}
	approverJSON, err := ToJSONB(ids)
	if err != nil {
		return fmt.Errorf("encoding approver ids: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertApproval,
		a.ID.String(), a.ExecutionID.String(), a.NodeID, string(a.Status), approverJSON,
		a.ExpiresAt, idString(a.DecidedBy), a.DecidedAt, a.Comments)
	if err != nil {
		return fmt.Errorf("creating approval %s: %w", a.ID, err)
	}
	return nil
}

const selectApprovalByID = `
	SELECT id, execution_id, node_id, status, approver_ids, expires_at, decided_by, decided_at, comments
	FROM approvals WHERE id = $1`

func (r *ApprovalRepo) Get(ctx context.Context, id core.ID) (*workflow.Approval, error) {
	var row approvalRow
	if err := scanOne(ctx, r.pool, &row, selectApprovalByID, id.String()); err != nil {
		return nil, fmt.Errorf("loading approval %s: %w", id, err)
	}
	return row.toDomain()
}

// Decide implements execution.ApprovalRepository (spec §4.2 APPROVAL
// "decideApproval"): atomically transitions a PENDING approval to
// APPROVED/REJECTED, rejecting a second decision on an already-decided row.
func (r *ApprovalRepo) Decide(
	ctx context.Context, id core.ID, approved bool, actorID core.ID, comments *string, decidedAt time.Time,
) (*workflow.Approval, error) {
	status := core.ApprovalApproved
	if !approved {
		status = core.ApprovalRejected
	}
	query := `
		UPDATE approvals SET status = $2, decided_by = $3, decided_at = $4, comments = $5
		WHERE id = $1 AND status = 'PENDING'`
	tag, err := r.pool.Exec(ctx, query, id.String(), string(status), actorID.String(), decidedAt, comments)
	if err != nil {
		return nil, fmt.Errorf("deciding approval %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("approval %s is not PENDING", id)
	}
	return r.Get(ctx, id)
}
