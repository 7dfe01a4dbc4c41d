package repository

import (
	"context"

	"event-analytics-api/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	// List returns audit logs newest first, paginated by limit and offset.
	List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
