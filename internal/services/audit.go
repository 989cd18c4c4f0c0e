package services

import (
	"context"
	"fmt"

	"github.com/gigledger/escrow/internal/models"
	repo "github.com/gigledger/escrow/internal/repository"
)

// audit appends a row inside the caller's transaction so the trail commits or
// rolls back with the change it describes.
func audit(ctx context.Context, r repo.Repositories, entityType, entityID, action, actorID string, details map[string]any) error {
	l := models.AuditLog{
		EntityType: entityType,
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	}
	if actorID != "" {
		l.ActorID = &actorID
	}
	if l.Details == nil {
		l.Details = map[string]any{}
	}
	if err := r.AuditLogs.Create(ctx, l); err != nil {
		return fmt.Errorf("audit %s %s: %w", entityType, action, err)
	}
	return nil
}
