// Package auth authenticates accounts and decides what a caller may do.
//
// One Policy serves every entry point (HTTP handlers and websocket events go
// through the same services.Coordinator), so the rules below are the only
// place role checks live.
package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/slotboard/internal/domain"
)

// Identity is the authenticated principal attached to a request or
// connection. A nil *Identity is an anonymous visitor.
type Identity struct {
	UserID   uint        `json:"id"`
	Username string      `json:"username"`
	Nickname string      `json:"nickname"`
	Role     domain.Role `json:"role"`
}

// FromUser builds the identity for a stored account.
func FromUser(u *domain.User) *Identity {
	if u == nil {
		return nil
	}
	return &Identity{UserID: u.ID, Username: u.Username, Nickname: u.Nickname, Role: u.Role}
}

// Has reports whether the identity holds at least min. Anonymous holds nothing.
func (id *Identity) Has(min domain.Role) bool {
	return id != nil && id.Role.AtLeast(min)
}

// HashPassword returns a bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
