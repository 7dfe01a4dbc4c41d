package domain

import "time"

// RefreshToken is the stored record of an opaque refresh token. Only the
// SHA-256 hash of the raw token is persisted; the raw value is observable
// exactly once, when the pair is issued.
//
// Lifecycle: issued → active → revoked or expired. Expiry is enforced at
// lookup time; terminal rows are physically removed only by the cleanup sweep.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}
