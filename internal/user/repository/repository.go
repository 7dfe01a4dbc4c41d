package repository

import (
	"context"

	"event-analytics-api/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
}
