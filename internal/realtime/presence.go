package realtime

import (
	"sort"
	"sync"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
)

// PresenceUser is the public view of a named connection.
type PresenceUser struct {
	ID       uint        `json:"id"`
	Username string      `json:"username"`
	Nickname string      `json:"nickname"`
	Role     domain.Role `json:"role"`
}

// Snapshot is the aggregate published as users:onlineCount.
type Snapshot struct {
	Total    int            `json:"total"`
	Visitors int            `json:"visitors"`
	Users    []PresenceUser `json:"users"`
}

// Presence maps live connection ids to identities. A user with several
// connections appears once per connection.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*auth.Identity
}

// NewPresence returns an empty registry.
func NewPresence() *Presence {
	return &Presence{entries: make(map[string]*auth.Identity)}
}

// Register records connID with id (nil for anonymous) and returns the new
// aggregate. Re-registering a connection replaces its identity.
func (p *Presence) Register(connID string, id *auth.Identity) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id != nil {
		cp := *id
		id = &cp
	}
	p.entries[connID] = id
	return p.snapshotLocked()
}

// Unregister drops connID. ok is false if it was not registered.
func (p *Presence) Unregister(connID string) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[connID]
	delete(p.entries, connID)
	return p.snapshotLocked(), ok
}

// Snapshot returns the current aggregate.
func (p *Presence) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Presence) snapshotLocked() Snapshot {
	s := Snapshot{Total: len(p.entries), Users: make([]PresenceUser, 0, len(p.entries))}
	for _, id := range p.entries {
		if id == nil {
			s.Visitors++
			continue
		}
		s.Users = append(s.Users, PresenceUser{
			ID:       id.UserID,
			Username: id.Username,
			Nickname: id.Nickname,
			Role:     id.Role,
		})
	}
	sort.Slice(s.Users, func(i, j int) bool {
		if s.Users[i].Nickname != s.Users[j].Nickname {
			return s.Users[i].Nickname < s.Users[j].Nickname
		}
		return s.Users[i].ID < s.Users[j].ID
	})
	return s
}
