package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// sentEvent is one recorded broadcast. room is empty for global events.
type sentEvent struct {
	room  domain.RoomKey
	event string
	data  any
}

type fakeBus struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *fakeBus) BroadcastRoom(key domain.RoomKey, event string, data any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{room: key, event: event, data: data})
	return 1
}

func (b *fakeBus) BroadcastGlobal(event string, data any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{event: event, data: data})
	return 1
}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.event
	}
	return out
}

func (b *fakeBus) snapshot() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEvent(nil), b.events...)
}

type world struct {
	db      *gorm.DB
	bus     *fakeBus
	coord   *Coordinator
	mp      *domain.Map
	channel *domain.Channel
	viewer  *auth.Identity
	chatter *auth.Identity
	editor  *auth.Identity
	editor2 *auth.Identity
	admin   *auth.Identity
}

// newWorld seeds episode 10 with map "Harbor" (level 40), channel 3 and one
// account per role.
func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)
	if _, _, err := repo.EnsureEpisode(ctx, db, 10, "Ten"); err != nil {
		t.Fatalf("episode: %v", err)
	}
	mp, _, err := repo.EnsureMap(ctx, db, domain.Map{EpisodeNumber: 10, Name: "Harbor", Level: 40})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	ch, _, err := repo.EnsureChannel(ctx, db, 3, "Ch 3")
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	mk := func(name string, role domain.Role) *auth.Identity {
		u, err := repo.CreateUser(ctx, db, name, "x", name, role)
		if err != nil {
			t.Fatalf("user %s: %v", name, err)
		}
		return auth.FromUser(u)
	}
	bus := &fakeBus{}
	return &world{
		db:      db,
		bus:     bus,
		coord:   NewCoordinator(db, bus, zerolog.Nop()),
		mp:      mp,
		channel: ch,
		viewer:  mk("vera", domain.RoleViewer),
		chatter: mk("chad", domain.RoleChatter),
		editor:  mk("eddie", domain.RoleEditor),
		editor2: mk("emma", domain.RoleEditor),
		admin:   mk("ada", domain.RoleAdmin),
	}
}

func (w *world) input(status float64) CreateTrackerInput {
	return CreateTrackerInput{EpisodeNumber: 10, MapID: w.mp.ID, ChannelID: w.channel.ID, Status: status}
}

func ptr[T any](v T) *T { return &v }
