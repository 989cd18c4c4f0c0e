package postgres

import (
	"context"

	"github.com/gigledger/escrow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type milestonesRepo struct{ db dbtx }

const milestoneCols = `id, contract_id, title, amount, due_date, status, created_at, updated_at`

func scanMilestone(row pgx.Row) (models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(&m.ID, &m.ContractID, &m.Title, &m.Amount, &m.DueDate, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	return m, translate(err)
}

func (r *milestonesRepo) Create(ctx context.Context, m models.Milestone) (models.Milestone, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MilestonePending
	}
	return scanMilestone(r.db.QueryRow(ctx,
		`INSERT INTO milestones (id, contract_id, title, amount, due_date, status)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING `+milestoneCols,
		m.ID, m.ContractID, m.Title, m.Amount, m.DueDate, m.Status,
	))
}

func (r *milestonesRepo) GetByID(ctx context.Context, id string) (models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE id=$1`, id))
}

func (r *milestonesRepo) GetForUpdate(ctx context.Context, id string) (models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneCols+` FROM milestones WHERE id=$1 FOR UPDATE`, id))
}

func (r *milestonesRepo) ListByContract(ctx context.Context, contractID string) ([]models.Milestone, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+milestoneCols+`
		   FROM milestones
		  WHERE contract_id=$1
		  ORDER BY created_at ASC`,
		contractID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *milestonesRepo) Update(ctx context.Context, m models.Milestone) (models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx,
		`UPDATE milestones
		    SET title=$2, amount=$3, due_date=$4, updated_at=now()
		  WHERE id=$1
		  RETURNING `+milestoneCols,
		m.ID, m.Title, m.Amount, m.DueDate,
	))
}

func (r *milestonesRepo) UpdateStatus(ctx context.Context, id string, status models.MilestoneStatus) (models.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx,
		`UPDATE milestones SET status=$2, updated_at=now() WHERE id=$1 RETURNING `+milestoneCols,
		id, status,
	))
}

func (r *milestonesRepo) Delete(ctx context.Context, id string) error {
	return notFoundIfNone(r.db.Exec(ctx, `DELETE FROM milestones WHERE id=$1`, id))
}
