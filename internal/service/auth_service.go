package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allure/event-admin/internal/model"
	"github.com/allure/event-admin/internal/repository"
	"github.com/allure/event-admin/internal/utils"
)

// ErrInvalidCredentials is the single authentication failure reported to
// clients, whatever the underlying reason.
var ErrInvalidCredentials = errors.New("credenciais inválidas")

// Credentials is a login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionUser is the public part of a staff account.
type SessionUser struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Session is an issued token pair.
type Session struct {
	User           SessionUser `json:"user"`
	AccessToken    string      `json:"accessToken"`
	AccessExpires  time.Time   `json:"accessExpires"`
	RefreshToken   string      `json:"refreshToken"`
	RefreshExpires time.Time   `json:"refreshExpires"`
}

// Authenticator is the capability the HTTP layer depends on.
type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uint64) error
}

// UserStore is implemented by *repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore is implemented by *repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthConfig carries token lifetimes and hashing cost.
type AuthConfig struct {
	Secret         string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// AuthService issues HS256 access tokens and rotating refresh tokens for
// staff accounts stored in the users table.
type AuthService struct {
	users  UserStore
	tokens TokenStore
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthService(users UserStore, tokens TokenStore, cfg AuthConfig) *AuthService {
	return &AuthService{users: users, tokens: tokens, cfg: cfg, now: time.Now}
}

var _ Authenticator = (*AuthService)(nil)

// Authenticate verifies e-mail and password and issues a new session.
func (s *AuthService) Authenticate(ctx context.Context, c Credentials) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" || c.Password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, c.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Refresh validates a refresh token, revokes it and issues a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return nil, ErrInvalidCredentials
	}
	hash := utils.HashRefreshRaw(raw)
	userID, err := s.tokens.ValidateRefresh(ctx, hash, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	// Only the caller that revokes the row may rotate it.
	revoked, err := s.tokens.RevokeByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, u)
}

// Logout revokes a refresh token.  Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return ErrInvalidCredentials
	}
	_, err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
	return err
}

// LogoutAll revokes every refresh token of a user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint64) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

func (s *AuthService) issue(ctx context.Context, u model.User) (*Session, error) {
	now := s.now()
	access, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Email, u.Role, s.cfg.AccessTTLMin, now)
	if err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays, now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, fmt.Errorf("save refresh: %w", err)
	}
	return &Session{
		User:           SessionUser{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role},
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Raw,
		RefreshExpires: refresh.Exp,
	}, nil
}

// SeedUser is one entry of ADMIN_USERS.
type SeedUser struct {
	Email    string
	Password string
	Role     string
	Name     string
}

// ParseSeedUsers parses "email:password:role[:name]" entries separated by
// commas.
func ParseSeedUsers(spec string) ([]SeedUser, error) {
	var out []SeedUser
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("ADMIN_USERS entry %q: want email:password:role[:name]", entry)
		}
		su := SeedUser{
			Email:    strings.ToLower(strings.TrimSpace(parts[0])),
			Password: parts[1],
			Role:     strings.ToLower(strings.TrimSpace(parts[2])),
		}
		if len(parts) == 4 {
			su.Name = strings.TrimSpace(parts[3])
		}
		if su.Email == "" || su.Password == "" {
			return nil, fmt.Errorf("ADMIN_USERS entry %q: empty email or password", entry)
		}
		if su.Role != model.RoleAdmin && su.Role != model.RoleManager {
			return nil, fmt.Errorf("ADMIN_USERS entry %q: role must be admin or manager", entry)
		}
		out = append(out, su)
	}
	return out, nil
}

// Seed creates the accounts that do not exist yet and returns how many
// were created.  Existing accounts are left untouched.
func (s *AuthService) Seed(ctx context.Context, users []SeedUser) (int, error) {
	created := 0
	for _, su := range users {
		_, err := s.users.GetByEmail(ctx, su.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return created, err
		}
		hash, err := utils.HashPassword(su.Password, s.cfg.BcryptCost)
		if err != nil {
			return created, err
		}
		name := su.Name
		if name == "" {
			name = su.Email
		}
		if _, err := s.users.Create(ctx, model.User{Email: su.Email, Name: name, PasswordHash: hash, Role: su.Role}); err != nil {
			if errors.Is(err, repository.ErrEmailExists) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
