// Package services – AuthService
//
// Login, token resolution and account administration. There is no
// self-registration and no password change flow: accounts are created by
// an admin or bootstrapped from configuration at startup.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/repo"
)

// MinPasswordRunes bounds admin-set passwords from below.
const MinPasswordRunes = 8

// errBadCredentials is deliberately vague about which half was wrong.
var errBadCredentials = fmt.Errorf("%w: invalid username or password", ErrUnauthenticated)

// dummyHash keeps login timing similar for unknown usernames.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("slotboard-dummy-password")
	return h
})

// Session is the result of a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// NewUserInput describes an account created by an admin.
type NewUserInput struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Nickname string      `json:"nickname"`
	Role     domain.Role `json:"role"`
}

// AuthService authenticates and manages accounts.
type AuthService struct {
	DB     *gorm.DB
	Tokens *auth.Tokens
}

// NewAuthService returns an AuthService.
func NewAuthService(db *gorm.DB, tokens *auth.Tokens) *AuthService {
	return &AuthService{DB: db, Tokens: tokens}
}

// Login checks credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := repo.GetUserByUsername(ctx, s.DB, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			_ = auth.CheckPassword(dummyHash(), password)
			return nil, errBadCredentials
		}
		return nil, storeErr("load user", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, errBadCredentials
	}
	token, exp, err := s.Tokens.Issue(auth.FromUser(u))
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Resolve verifies a bearer token and returns the account's current
// identity. Unknown accounts and bad tokens are ErrUnauthenticated.
func (s *AuthService) Resolve(ctx context.Context, token string) (*auth.Identity, error) {
	id, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return loadIdentity(ctx, s.DB, id)
}

// Me returns the stored account behind actor.
func (s *AuthService) Me(ctx context.Context, actor *auth.Identity) (*domain.User, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	u, err := repo.GetUser(ctx, s.DB, actor.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, storeErr("load user", err)
	}
	return u, nil
}

// ListUsers returns every account. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, actor *auth.Identity) ([]domain.User, error) {
	if err := s.RequireAdmin(ctx, actor, "administer accounts"); err != nil {
		return nil, err
	}
	out, err := repo.ListUsers(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return nonNil(out), nil
}

// CreateUser adds an account. Admin only.
func (s *AuthService) CreateUser(ctx context.Context, actor *auth.Identity, in NewUserInput) (*domain.User, error) {
	if err := s.RequireAdmin(ctx, actor, "administer accounts"); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = domain.RoleViewer
	}
	if r, ok := auth.ParseRole(string(role)); ok {
		role = r
	} else {
		return nil, invalid("role", "unknown role %q", in.Role)
	}
	return s.createUser(ctx, in.Username, in.Password, in.Nickname, role)
}

// SetRole changes another account's role. Admin only; admins cannot change
// their own role.
func (s *AuthService) SetRole(ctx context.Context, actor *auth.Identity, userID uint, role string) (*domain.User, error) {
	if err := s.RequireAdmin(ctx, actor, "administer accounts"); err != nil {
		return nil, err
	}
	r, ok := auth.ParseRole(role)
	if !ok {
		return nil, invalid("role", "unknown role %q", role)
	}
	if userID == actor.UserID {
		return nil, invalid("id", "cannot change your own role")
	}
	if err := repo.UpdateUserRole(ctx, s.DB, userID, r); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("user")
		}
		return nil, storeErr("update role", err)
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		return nil, storeErr("reload user", err)
	}
	return u, nil
}

// BootstrapAdmin creates the configured admin account unless the username
// is already taken. An existing account is left untouched.
func (s *AuthService) BootstrapAdmin(ctx context.Context, username, password, nickname string) (bool, error) {
	_, err := repo.GetUserByUsername(ctx, s.DB, normalizeUsername(username))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return false, storeErr("load admin", err)
	}
	if _, err := s.createUser(ctx, username, password, nickname, domain.RoleAdmin); err != nil {
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AuthService) createUser(ctx context.Context, username, password, nickname string, role domain.Role) (*domain.User, error) {
	username = normalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordRunes {
		return nil, invalid("password", "at least %d characters", MinPasswordRunes)
	}
	nickname = normalizeNickname(nickname)
	if nickname == "" {
		nickname = username
	}
	if err := validateNickname("nickname", nickname); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, invalid("password", "cannot be hashed: %v", err)
	}
	u, err := repo.CreateUser(ctx, s.DB, username, hash, nickname, role)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: username %q is taken", ErrConflict, username)
		}
		return nil, storeErr("create user", err)
	}
	return u, nil
}

// RequireAdmin reloads actor and fails unless it is currently an admin.
// action names the attempted operation in the error.
func (s *AuthService) RequireAdmin(ctx context.Context, actor *auth.Identity, action string) error {
	actor, err := loadIdentity(ctx, s.DB, actor)
	if err != nil {
		return err
	}
	if !auth.CanAdminister(actor) {
		return forbidden(action)
	}
	return nil
}
