package repo

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/slotboard/internal/domain"
)

// newRepoDB opens a fresh file-backed database. Shared in-memory databases
// lock under concurrent writers, so every test gets its own file.
func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

type fixture struct {
	user    *domain.User
	episode *domain.Episode
	mp      *domain.Map
	channel *domain.Channel
}

// seedCatalog creates one user, episode 10, one map and channel 3.
func seedCatalog(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	ctx := context.Background()
	u, err := CreateUser(ctx, db, "alice", "hash", "Alice", domain.RoleEditor)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	ep, _, err := EnsureEpisode(ctx, db, 10, "Ten")
	if err != nil {
		t.Fatalf("ensure episode: %v", err)
	}
	mp, _, err := EnsureMap(ctx, db, domain.Map{EpisodeNumber: 10, Name: "Harbor", Level: 40})
	if err != nil {
		t.Fatalf("ensure map: %v", err)
	}
	ch, _, err := EnsureChannel(ctx, db, 3, "Ch 3")
	if err != nil {
		t.Fatalf("ensure channel: %v", err)
	}
	return fixture{user: u, episode: ep, mp: mp, channel: ch}
}

func (f fixture) tracker(status float64, nickname string) *domain.Tracker {
	return &domain.Tracker{
		EpisodeNumber: f.episode.Number,
		MapID:         f.mp.ID,
		ChannelID:     f.channel.ID,
		Level:         f.mp.Level,
		Status:        status,
		Nickname:      nickname,
		UserID:        f.user.ID,
	}
}
