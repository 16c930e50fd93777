package repository

import (
	"context"

	"courier-auth/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByUser returns the most recent entries for userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int32) ([]*domain.AuditLog, error)
}
