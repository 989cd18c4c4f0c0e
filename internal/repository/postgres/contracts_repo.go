package postgres

import (
	"context"

	"github.com/gigledger/escrow/internal/models"
	"github.com/google/uuid"
)

type contractsRepo struct{ db dbtx }

const contractCols = `id, project_id, client_id, freelancer_id, status, created_at, updated_at`

func (r *contractsRepo) Create(ctx context.Context, c models.Contract) (models.Contract, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ContractPending
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO contracts (id, project_id, client_id, freelancer_id, status)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING `+contractCols,
		c.ID, c.ProjectID, c.ClientID, c.FreelancerID, c.Status,
	).Scan(&c.ID, &c.ProjectID, &c.ClientID, &c.FreelancerID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, translate(err)
}

func (r *contractsRepo) GetByID(ctx context.Context, id string) (models.Contract, error) {
	var c models.Contract
	err := r.db.QueryRow(ctx,
		`SELECT `+contractCols+` FROM contracts WHERE id=$1`, id,
	).Scan(&c.ID, &c.ProjectID, &c.ClientID, &c.FreelancerID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, translate(err)
}
