package auth

import (
	"strings"

	"github.com/tbourn/slotboard/internal/domain"
)

// CanWriteTracker: editors and admins create and update any tracker.
func CanWriteTracker(id *Identity) bool { return id.Has(domain.RoleEditor) }

// CanDeleteTracker allows admins, and the owner while the owner still holds
// at least editor. ownerRole is the owner's current role.
func CanDeleteTracker(id *Identity, ownerID uint, ownerRole domain.Role) bool {
	if id.Has(domain.RoleAdmin) {
		return true
	}
	return id != nil && id.UserID == ownerID && ownerRole.AtLeast(domain.RoleEditor)
}

// CanChat: chatters and above post to the shared chat.
func CanChat(id *Identity) bool { return id.Has(domain.RoleChatter) }

// CanDeleteChat allows the author or an admin.
func CanDeleteChat(id *Identity, authorID uint) bool {
	return id.Has(domain.RoleAdmin) || (id != nil && id.UserID == authorID)
}

// CanAdminister gates catalog edits, role changes and housekeeping.
func CanAdminister(id *Identity) bool { return id.Has(domain.RoleAdmin) }

// ParseRole accepts role names case-insensitively (the seed data and older
// clients use upper case).
func ParseRole(s string) (domain.Role, bool) {
	r := roleOf(s)
	return r, r.Valid()
}

func roleOf(s string) domain.Role {
	return domain.Role(strings.ToLower(strings.TrimSpace(s)))
}
