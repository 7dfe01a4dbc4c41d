package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"event-analytics-api/internal/token/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the refresh token record. The record must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.IsRevoked, t.CreatedAt,
	)
	return err
}

// GetActiveByHash returns the token with the given hash if it is neither
// revoked nor expired, or nil. Expired, revoked, and unknown hashes are
// indistinguishable to the caller.
func (r *PostgresRepository) GetActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, is_revoked, created_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND is_revoked = FALSE AND expires_at > $2`,
		tokenHash, now,
	)
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// RevokeByHash marks the token with the given hash as revoked. Returns whether
// a not-yet-revoked row was updated; repeated calls return false, not an error.
func (r *PostgresRepository) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked = TRUE WHERE token_hash = $1 AND is_revoked = FALSE",
		tokenHash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeAllByUser revokes all active tokens for the user. Returns the number of rows affected.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE",
		userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes rows with expires_at before now, independent of
// revocation status. Returns the number of rows deleted.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < $1",
		now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
