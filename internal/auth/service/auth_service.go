// Package service implements signup, login, token refresh, and revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"event-analytics-api/internal/security"
	tokendomain "event-analytics-api/internal/token/domain"
	userdomain "event-analytics-api/internal/user/domain"
)

// Sentinel errors for the auth service; the handler maps them to HTTP status codes.
var (
	ErrUsernameTaken       = errors.New("username already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrAlreadyAdmin        = errors.New("user is already an admin")
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)

// TokenPair is the outcome of Login and Refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
}

// TokenRepo is the minimal refresh-token repository needed by the auth service.
type TokenRepo interface {
	Create(ctx context.Context, t *tokendomain.RefreshToken) error
	GetActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*tokendomain.RefreshToken, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuthService implements password signup, login, refresh rotation, and revocation.
type AuthService struct {
	userRepo   UserRepo
	tokenRepo  TokenRepo
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	refreshTTL time.Duration
	now        func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	userRepo UserRepo,
	tokenRepo TokenRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		hasher:     hasher,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Signup creates a user with a bcrypt-hashed password. New users are active
// and never admins; admin is granted separately.
func (s *AuthService) Signup(ctx context.Context, username, email, password string) (*userdomain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if !usernameRe.MatchString(username) {
		return nil, errors.New("username must be 3-64 characters of letters, digits, '_', '.' or '-'")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &userdomain.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// AuthenticateUser returns the user when the credentials match an active
// account, and nil otherwise. Unknown username, wrong password, and disabled
// account are indistinguishable to the caller.
func (s *AuthService) AuthenticateUser(ctx context.Context, username, password string) (*userdomain.User, error) {
	u, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		// Burn a bcrypt comparison so a missing user costs the same as a
		// wrong password.
		_ = s.hasher.Compare("$2a$10$0000000000000000000000uGZv3hWt7k4nO3S5kN9WqVYkE1hBq0e", []byte(password))
		return nil, nil
	}
	if err := s.hasher.Compare(u.HashedPassword, []byte(password)); err != nil {
		return nil, nil
	}
	if !u.IsActive {
		return nil, nil
	}
	return u, nil
}

// Login authenticates and issues a fresh token pair.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.AuthenticateUser(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	return s.CreateTokenPair(ctx, u)
}

// CreateTokenPair issues an access JWT plus an opaque refresh token for the
// user. All previously issued refresh tokens for the user are revoked first,
// so at most one refresh token is live per user.
func (s *AuthService) CreateTokenPair(ctx context.Context, u *userdomain.User) (*TokenPair, error) {
	if _, err := s.tokenRepo.RevokeAllByUser(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("revoke prior tokens: %w", err)
	}

	access, _, expiresAt, err := s.tokens.IssueAccess(u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now().UTC()
	rec := &tokendomain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: security.HashRefreshToken(refresh),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.tokenRepo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
	}, nil
}

// VerifyAccessToken validates an access JWT and returns its claims.
func (s *AuthService) VerifyAccessToken(tokenString string) (*security.AccessClaims, error) {
	return s.tokens.Verify(tokenString, security.TokenTypeAccess)
}

// Refresh exchanges a live refresh token for a fresh pair. The presented token
// is revoked along with every other token of the user by the rotation in
// CreateTokenPair, so a replayed token fails uniformly.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rec, err := s.tokenRepo.GetActiveByHash(ctx, security.HashRefreshToken(refreshToken), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rec == nil || !security.RefreshTokenHashEqual(refreshToken, rec.TokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	u, err := s.userRepo.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.IsActive {
		return nil, ErrInvalidRefreshToken
	}
	return s.CreateTokenPair(ctx, u)
}

// RevokeRefreshToken revokes the presented token. Returns true when a live
// token was revoked; revoking an unknown or already-revoked token returns
// false without error.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) (bool, error) {
	return s.tokenRepo.RevokeByHash(ctx, security.HashRefreshToken(refreshToken))
}

// RevokeUserRefreshTokens revokes every live refresh token of the user and
// returns how many were revoked.
func (s *AuthService) RevokeUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	return s.tokenRepo.RevokeAllByUser(ctx, userID)
}

// GetUser returns the user with the given id, or ErrUserNotFound.
func (s *AuthService) GetUser(ctx context.Context, id string) (*userdomain.User, error) {
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// GrantAdmin marks the named user as admin. Granting to an admin is an error
// so the caller learns the call had no effect.
func (s *AuthService) GrantAdmin(ctx context.Context, username string) (*userdomain.User, error) {
	u, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if u.IsAdmin {
		return nil, ErrAlreadyAdmin
	}
	if err := s.userRepo.SetAdmin(ctx, u.ID, true); err != nil {
		return nil, fmt.Errorf("set admin: %w", err)
	}
	u.IsAdmin = true
	return u, nil
}

// CleanupExpiredTokens deletes refresh token rows past their expiry, revoked
// or not, and returns how many were removed.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokenRepo.DeleteExpired(ctx, s.now().UTC())
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		// bcrypt truncates beyond 72 bytes.
		return errors.New("password must be at most 72 characters")
	}
	return nil
}
