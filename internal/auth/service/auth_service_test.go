package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"event-analytics-api/internal/security"
	tokendomain "event-analytics-api/internal/token/domain"
	userdomain "event-analytics-api/internal/user/domain"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*userdomain.User{}} }

func (m *memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) SetAdmin(_ context.Context, id string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsAdmin = isAdmin
	}
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	byHash map[string]*tokendomain.RefreshToken
}

func newMemTokens() *memTokens { return &memTokens{byHash: map[string]*tokendomain.RefreshToken{}} }

func (m *memTokens) Create(_ context.Context, t *tokendomain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[t.TokenHash] = t
	return nil
}

func (m *memTokens) GetActiveByHash(_ context.Context, hash string, now time.Time) (*tokendomain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[hash]
	if !ok || t.IsRevoked || !t.ExpiresAt.After(now) {
		return nil, nil
	}
	return t, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[hash]
	if !ok || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	return true, nil
}

func (m *memTokens) RevokeAllByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.byHash {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			n++
		}
	}
	return n, nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, t := range m.byHash {
		if !t.ExpiresAt.After(now) {
			delete(m.byHash, h)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T) (*AuthService, *memUsers, *memTokens) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	users := newMemUsers()
	refresh := newMemTokens()
	svc := NewAuthService(users, refresh, security.NewHasher(4), tokens, time.Hour)
	return svc, users, refresh
}

func mustSignup(t *testing.T, svc *AuthService, username string) *userdomain.User {
	t.Helper()
	u, err := svc.Signup(context.Background(), username, username+"@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Signup(%s): %v", username, err)
	}
	return u
}

func TestSignup(t *testing.T) {
	svc, _, _ := newTestService(t)

	u := mustSignup(t, svc, "alice")
	if u.ID == "" {
		t.Error("no user id assigned")
	}
	if !u.IsActive || u.IsAdmin {
		t.Errorf("new user active=%v admin=%v, want active non-admin", u.IsActive, u.IsAdmin)
	}
	if u.HashedPassword == "correct-horse-battery" {
		t.Error("password stored in clear")
	}
}

func TestSignup_UsernameTaken(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignup(t, svc, "alice")

	_, err := svc.Signup(context.Background(), "alice", "other@example.com", "another-password")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestSignup_WeakPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Signup(context.Background(), "alice", "a@example.com", "short"); err == nil {
		t.Error("short password accepted")
	}
}

func TestAuthenticateUser_Uniform(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := mustSignup(t, svc, "alice")

	cases := []struct {
		name     string
		username string
		password string
		setup    func()
	}{
		{"unknown user", "nobody", "correct-horse-battery", nil},
		{"wrong password", "alice", "wrong-password-here", nil},
		{"inactive account", "alice", "correct-horse-battery", func() {
			users.users[u.ID].IsActive = false
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			got, err := svc.AuthenticateUser(context.Background(), tc.username, tc.password)
			if err != nil {
				t.Fatalf("AuthenticateUser: %v", err)
			}
			if got != nil {
				t.Error("authentication should fail")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := mustSignup(t, svc, "alice")

	pair, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.TokenType != "bearer" {
		t.Errorf("token_type = %q", pair.TokenType)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty tokens")
	}

	claims, err := svc.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.Subject != u.ID || claims.Username != "alice" {
		t.Errorf("claims = sub %q username %q", claims.Subject, claims.Username)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignup(t, svc, "alice")

	_, err := svc.Login(context.Background(), "alice", "wrong-password-here")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_RotatesPriorRefreshTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignup(t, svc, "alice")

	first, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("second Login: %v", err)
	}

	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("refresh with rotated-out token: err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignup(t, svc, "alice")

	pair, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token not rotated")
	}

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("replayed token: err = %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := svc.Refresh(context.Background(), next.RefreshToken); err != nil {
		t.Errorf("current token rejected: %v", err)
	}
}

func TestRefresh_StoredHashMismatch(t *testing.T) {
	svc, _, tokens := newTestService(t)
	mustSignup(t, svc, "alice")

	pair, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Corrupt the stored hash while leaving the lookup key intact. The
	// constant-time re-check must reject the token even though the store
	// returned a record.
	rec := tokens.byHash[security.HashRefreshToken(pair.RefreshToken)]
	rec.TokenHash = security.HashRefreshToken("some-other-token")

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Refresh(context.Background(), "not-a-real-token")
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	svc, _, refresh := newTestService(t)
	mustSignup(t, svc, "alice")

	pair, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	for _, rec := range refresh.byHash {
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	}

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("expired token: err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_DisabledUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := mustSignup(t, svc, "alice")

	pair, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	users.users[u.ID].IsActive = false

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("disabled user: err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRevokeRefreshToken_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSignup(t, svc, "alice")

	pair, err := svc.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	revoked, err := svc.RevokeRefreshToken(context.Background(), pair.RefreshToken)
	if err != nil || !revoked {
		t.Fatalf("first revoke = (%v, %v), want (true, nil)", revoked, err)
	}
	revoked, err = svc.RevokeRefreshToken(context.Background(), pair.RefreshToken)
	if err != nil || revoked {
		t.Fatalf("second revoke = (%v, %v), want (false, nil)", revoked, err)
	}
}

func TestRevokeUserRefreshTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := mustSignup(t, svc, "alice")

	if _, err := svc.Login(context.Background(), "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	n, err := svc.RevokeUserRefreshTokens(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("RevokeUserRefreshTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("revoked = %d, want 1", n)
	}
}

func TestGrantAdmin(t *testing.T) {
	svc, users, _ := newTestService(t)
	u := mustSignup(t, svc, "alice")

	got, err := svc.GrantAdmin(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GrantAdmin: %v", err)
	}
	if !got.IsAdmin || !users.users[u.ID].IsAdmin {
		t.Error("user not promoted")
	}

	if _, err := svc.GrantAdmin(context.Background(), "alice"); !errors.Is(err, ErrAlreadyAdmin) {
		t.Errorf("second grant: err = %v, want ErrAlreadyAdmin", err)
	}
	if _, err := svc.GrantAdmin(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: err = %v, want ErrUserNotFound", err)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	svc, _, refresh := newTestService(t)
	mustSignup(t, svc, "alice")

	if _, err := svc.Login(context.Background(), "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	for _, rec := range refresh.byHash {
		rec.ExpiresAt = time.Now().Add(-time.Hour)
	}

	n, err := svc.CleanupExpiredTokens(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpiredTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if len(refresh.byHash) != 0 {
		t.Errorf("%d rows left, want 0", len(refresh.byHash))
	}
}
