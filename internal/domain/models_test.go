package domain

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "domain.db") + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func migrateAll(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.AutoMigrate(&User{}, &Episode{}, &Map{}, &Channel{}, &Tracker{}, &ChatMessage{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():        "users",
		Episode{}.TableName():     "episodes",
		Map{}.TableName():         "maps",
		Channel{}.TableName():     "channels",
		Tracker{}.TableName():     "trackers",
		ChatMessage{}.TableName(): "chat_messages",
		Idempotency{}.TableName(): "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestRoleOrder(t *testing.T) {
	order := []Role{RoleViewer, RoleChatter, RoleEditor, RoleAdmin}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("%s should rank below %s", order[i-1], order[i])
		}
	}
	if !RoleAdmin.AtLeast(RoleEditor) || RoleChatter.AtLeast(RoleEditor) {
		t.Fatalf("AtLeast ordering wrong")
	}
	if Role("root").Valid() || Role("root").AtLeast(RoleViewer) {
		t.Fatalf("unknown role must not be valid")
	}
}

func TestMigrations_Indexes_AndConstraints(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)
	m := db.Migrator()

	for _, idx := range []struct {
		model any
		name  string
	}{
		{&User{}, "ux_users_username"},
		{&Episode{}, "ux_episodes_number"},
		{&Map{}, "ux_maps_episode_name"},
		{&Tracker{}, "idx_trackers_slot"},
		{&Tracker{}, "idx_trackers_created"},
		{&ChatMessage{}, "idx_chat_created"},
		{&Idempotency{}, "ux_user_scope_key"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	u := User{Username: "alice", PasswordHash: "x", Nickname: "Alice", Role: RoleEditor}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := db.Create(&User{Username: "alice", PasswordHash: "y", Nickname: "A2"}).Error; err == nil {
		t.Fatalf("expected unique violation on username")
	}
	if err := db.Create(&User{Username: "bob", PasswordHash: "y", Nickname: "B", Role: "root"}).Error; err == nil {
		t.Fatalf("expected check violation on role")
	}

	ep := Episode{Number: 10, Name: "Ten"}
	if err := db.Create(&ep).Error; err != nil {
		t.Fatalf("create episode: %v", err)
	}
	mp := Map{EpisodeNumber: 10, Name: "Harbor", Level: 40}
	if err := db.Create(&mp).Error; err != nil {
		t.Fatalf("create map: %v", err)
	}
	if err := db.Create(&Map{EpisodeNumber: 99, Name: "Orphan"}).Error; err == nil {
		t.Fatalf("expected FK violation for unknown episode")
	}
	ch := Channel{ID: 3, Name: "Ch 3"}
	if err := db.Create(&ch).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}

	tr := Tracker{EpisodeNumber: 10, MapID: mp.ID, ChannelID: 3, Level: 40, Status: 2.5, Nickname: "Alice", UserID: u.ID}
	if err := db.Create(&tr).Error; err != nil {
		t.Fatalf("create tracker: %v", err)
	}
	if tr.CreatedAt.IsZero() || time.Since(tr.CreatedAt) > time.Minute {
		t.Fatalf("created_at not populated: %v", tr.CreatedAt)
	}
	bad := Tracker{EpisodeNumber: 10, MapID: mp.ID, ChannelID: 3, Status: 5.5, Nickname: "x", UserID: u.ID}
	if err := db.Create(&bad).Error; err == nil {
		t.Fatalf("expected check violation on status")
	}

	// Deleting the episode cascades to its maps and trackers.
	if err := db.Delete(&ep).Error; err != nil {
		t.Fatalf("delete episode: %v", err)
	}
	var n int64
	db.Model(&Tracker{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected trackers cascade-deleted, got %d", n)
	}
}

func TestTrackerRoom(t *testing.T) {
	tr := Tracker{EpisodeNumber: 10, MapID: 5, ChannelID: 3}
	if tr.Room() != NewRoomKey(10, 5, 3) {
		t.Fatalf("Room() = %q", tr.Room())
	}
}
