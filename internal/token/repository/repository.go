package repository

import (
	"context"
	"time"

	"event-analytics-api/internal/token/domain"
)

// Repository defines persistence for refresh tokens.
type Repository interface {
	// Create persists a new refresh token record.
	Create(ctx context.Context, t *domain.RefreshToken) error
	// GetActiveByHash returns the non-revoked, non-expired token with the given
	// hash, or nil. Expired and revoked rows are never "found".
	GetActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)
	// RevokeByHash marks the token with the given hash as revoked. Returns
	// whether a non-revoked row was updated; a second call returns false.
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	// RevokeAllByUser revokes every active token for the user and returns the
	// number of rows affected.
	RevokeAllByUser(ctx context.Context, userID string) (int64, error)
	// DeleteExpired removes rows whose expiry has passed, regardless of
	// revocation status, and returns the number deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
