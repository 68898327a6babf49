package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
)

func TestPresence_OneEntryPerConnection(t *testing.T) {
	p := NewPresence()
	bob := &auth.Identity{UserID: 2, Username: "bob", Nickname: "Bob", Role: domain.RoleViewer}

	p.Register("tab1", bob)
	s := p.Register("tab2", bob)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 0, s.Visitors)
	assert.Len(t, s.Users, 2)
}

func TestPresence_SortedAndCopied(t *testing.T) {
	p := NewPresence()
	zed := &auth.Identity{UserID: 9, Nickname: "Zed"}
	p.Register("c1", zed)
	p.Register("c2", &auth.Identity{UserID: 3, Nickname: "Amy"})
	p.Register("c3", &auth.Identity{UserID: 1, Nickname: "Amy"})

	// Mutating the caller's identity must not leak into the registry.
	zed.Nickname = "Changed"

	s := p.Snapshot()
	assert.Equal(t, []uint{1, 3, 9}, []uint{s.Users[0].ID, s.Users[1].ID, s.Users[2].ID})
	assert.Equal(t, "Zed", s.Users[2].Nickname)
}

func TestPresence_UnregisterUnknown(t *testing.T) {
	p := NewPresence()
	s, ok := p.Unregister("nope")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Total)
	assert.NotNil(t, s.Users)
}
