package postgres

import (
	"context"

	"github.com/gigledger/escrow/internal/models"
	"github.com/google/uuid"
)

type auditLogsRepo struct{ db dbtx }

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_id, details)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.EntityType, l.EntityID, l.Action, l.ActorID, l.Details,
	)
	return err
}
