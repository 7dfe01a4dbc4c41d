package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"event-analytics-api/internal/security"
	userdomain "event-analytics-api/internal/user/domain"
)

type stubVerifier struct {
	claims *security.AccessClaims
	err    error
}

func (s *stubVerifier) VerifyAccessToken(_ string) (*security.AccessClaims, error) {
	return s.claims, s.err
}

type stubUsers struct {
	user *userdomain.User
	err  error
}

func (s *stubUsers) GetUser(_ context.Context, _ string) (*userdomain.User, error) {
	return s.user, s.err
}

func claimsFor(userID, username string) *security.AccessClaims {
	c := &security.AccessClaims{Username: username, TokenType: security.TokenTypeAccess}
	c.Subject = userID
	return c
}

func activeUser(admin bool) *userdomain.User {
	return &userdomain.User{ID: "u1", Username: "alice", IsActive: true, IsAdmin: admin}
}

func runAuth(t *testing.T, a *Auth, authz string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var got *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	a.RequireAuth(next).ServeHTTP(rec, req)
	return rec, got
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	a := NewAuth(&stubVerifier{}, &stubUsers{})
	rec, _ := runAuth(t, a, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_NotBearer(t *testing.T) {
	a := NewAuth(&stubVerifier{}, &stubUsers{})
	rec, _ := runAuth(t, a, "Basic abc123")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_BadToken(t *testing.T) {
	a := NewAuth(&stubVerifier{err: security.ErrInvalidToken}, &stubUsers{})
	rec, _ := runAuth(t, a, "Bearer not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_UserGone(t *testing.T) {
	a := NewAuth(&stubVerifier{claims: claimsFor("u1", "alice")}, &stubUsers{err: errors.New("not found")})
	rec, _ := runAuth(t, a, "Bearer token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_DisabledUser(t *testing.T) {
	u := activeUser(false)
	u.IsActive = false
	a := NewAuth(&stubVerifier{claims: claimsFor("u1", "alice")}, &stubUsers{user: u})
	rec, _ := runAuth(t, a, "Bearer token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_InjectsIdentity(t *testing.T) {
	a := NewAuth(&stubVerifier{claims: claimsFor("u1", "alice")}, &stubUsers{user: activeUser(true)})
	rec, id := runAuth(t, a, "Bearer token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if id == nil || id.UserID != "u1" || id.Username != "alice" || !id.IsAdmin {
		t.Errorf("identity = %+v", id)
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name string
		id   *Identity
		want int
	}{
		{"no identity fails closed", nil, http.StatusUnauthorized},
		{"non-admin", &Identity{UserID: "u1"}, http.StatusForbidden},
		{"admin", &Identity{UserID: "u1", IsAdmin: true}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tc.id != nil {
				req = req.WithContext(WithIdentity(req.Context(), tc.id))
			}
			rec := httptest.NewRecorder()
			RequireAdmin(next).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCaptureRemoteAddr(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIP(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	CaptureRemoteAddr(next).ServeHTTP(httptest.NewRecorder(), req)
	if got != "203.0.113.7" {
		t.Errorf("ip = %q, want 203.0.113.7", got)
	}
}

func TestClientIP_Missing(t *testing.T) {
	if got := ClientIP(context.Background()); got != "unknown" {
		t.Errorf("ip = %q, want unknown", got)
	}
}
