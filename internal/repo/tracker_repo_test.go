package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/domain"
)

func TestCreateTracker_Error_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if err := CreateTracker(context.Background(), db, &domain.Tracker{Nickname: "x"}); err == nil {
		t.Fatalf("expected error creating without table")
	}
}

func TestTracker_CRUD(t *testing.T) {
	db := newRepoDB(t, true)
	f := seedCatalog(t, db)
	ctx := context.Background()

	tr := f.tracker(2, "Alice")
	if err := CreateTracker(ctx, db, tr); err != nil {
		t.Fatalf("CreateTracker: %v", err)
	}
	if tr.ID == 0 || tr.CreatedAt.IsZero() || !tr.CreatedAt.Equal(tr.UpdatedAt) {
		t.Fatalf("ids/timestamps not populated: %+v", tr)
	}

	if err := UpdateTracker(ctx, db, tr.ID, map[string]any{"status": 4.5}); err != nil {
		t.Fatalf("UpdateTracker: %v", err)
	}
	got, err := GetTracker(ctx, db, tr.ID)
	if err != nil {
		t.Fatalf("GetTracker: %v", err)
	}
	if got.Status != 4.5 || got.Nickname != "Alice" || got.UpdatedAt.Before(tr.UpdatedAt) {
		t.Fatalf("unexpected after update: %+v", got)
	}

	if err := UpdateTracker(ctx, db, 9999, map[string]any{"status": 1.0}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing, got %v", err)
	}

	if err := DeleteTracker(ctx, db, tr.ID); err != nil {
		t.Fatalf("DeleteTracker: %v", err)
	}
	if err := DeleteTracker(ctx, db, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := GetTracker(ctx, db, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateTracker_RejectsUnknownChannel(t *testing.T) {
	db := newRepoDB(t, true)
	f := seedCatalog(t, db)
	tr := f.tracker(1, "x")
	tr.ChannelID = 77
	if err := CreateTracker(context.Background(), db, tr); err == nil {
		t.Fatalf("expected FK violation for unknown channel")
	}
}

func TestListTrackers_SortAndFilter(t *testing.T) {
	db := newRepoDB(t, true)
	f := seedCatalog(t, db)
	ctx := context.Background()

	if _, _, err := EnsureEpisode(ctx, db, 11, "Eleven"); err != nil {
		t.Fatal(err)
	}
	other, _, err := EnsureMap(ctx, db, domain.Map{EpisodeNumber: 11, Name: "Cave", Level: 5})
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []struct {
		status float64
		nick   string
	}{{3, "carol"}, {1, "bob"}, {5, "alice"}} {
		if err := CreateTracker(ctx, db, f.tracker(s.status, s.nick)); err != nil {
			t.Fatal(err)
		}
	}
	o := &domain.Tracker{EpisodeNumber: 11, MapID: other.ID, ChannelID: f.channel.ID, Level: 5, Status: 0, Nickname: "dave", UserID: f.user.ID}
	if err := CreateTracker(ctx, db, o); err != nil {
		t.Fatal(err)
	}

	asc, err := ListTrackers(ctx, db, TrackerQuery{SortBy: "status", Order: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(asc) != 4 || asc[0].Nickname != "dave" || asc[3].Nickname != "alice" {
		t.Fatalf("status asc order wrong: %+v", asc)
	}

	byNick, _ := ListTrackers(ctx, db, TrackerQuery{SortBy: "nickname", Order: "desc"})
	if byNick[0].Nickname != "dave" || byNick[3].Nickname != "alice" {
		t.Fatalf("nickname desc order wrong: %+v", byNick)
	}

	ep := 11
	only, _ := ListTrackers(ctx, db, TrackerQuery{SortBy: "bogus; DROP TABLE trackers", EpisodeNumber: &ep})
	if len(only) != 1 || only[0].Nickname != "dave" {
		t.Fatalf("episode filter wrong: %+v", only)
	}

	// Default is updated_at desc with id tiebreak: newest first.
	def, _ := ListTrackers(ctx, db, TrackerQuery{})
	if def[0].ID != o.ID {
		t.Fatalf("default order should put newest first, got id %d", def[0].ID)
	}
}

func TestTrackers_AgeQueries(t *testing.T) {
	db := newRepoDB(t, true)
	f := seedCatalog(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := f.tracker(1, "old")
	old.CreatedAt, old.UpdatedAt = now.Add(-25*time.Hour), now.Add(-25*time.Hour)
	fresh := f.tracker(1, "fresh")
	fresh.CreatedAt, fresh.UpdatedAt = now.Add(-time.Hour), now.Add(-time.Hour)
	for _, tr := range []*domain.Tracker{old, fresh} {
		if err := db.Create(tr).Error; err != nil {
			t.Fatal(err)
		}
	}

	cutoff := now.Add(-24 * time.Hour)
	expired, err := ListTrackersCreatedBefore(ctx, db, cutoff)
	if err != nil || len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("ListTrackersCreatedBefore = %+v, %v", expired, err)
	}

	// A row that no longer exists is not reported as deleted.
	deleted, err := DeleteTrackersByID(ctx, db, []uint{old.ID, fresh.ID, 9999}, cutoff)
	if err != nil || len(deleted) != 1 || deleted[0].ID != old.ID || deleted[0].MapID != f.mp.ID {
		t.Fatalf("DeleteTrackersByID = %+v, %v; fresh row must survive", deleted, err)
	}
	deleted, err = DeleteTrackersByID(ctx, db, []uint{old.ID}, cutoff)
	if err != nil || len(deleted) != 0 {
		t.Fatalf("second DeleteTrackersByID = %+v, %v", deleted, err)
	}
	n, err := DeleteTrackersCreatedBefore(ctx, db, cutoff)
	if err != nil || n != 0 {
		t.Fatalf("DeleteTrackersCreatedBefore = %d, %v", n, err)
	}
	if _, err := GetTracker(ctx, db, fresh.ID); err != nil {
		t.Fatalf("fresh tracker gone: %v", err)
	}
}

func TestDeleteTrackersByID_ReturnsEarlierChunksOnError(t *testing.T) {
	db := newRepoDB(t, true)
	f := seedCatalog(t, db)
	ctx := context.Background()
	stale := time.Now().UTC().Add(-48 * time.Hour)

	batch := make([]domain.Tracker, deleteChunk+1)
	for i := range batch {
		batch[i] = *f.tracker(1, "old")
		batch[i].CreatedAt, batch[i].UpdatedAt = stale, stale
	}
	if err := db.CreateInBatches(batch, 100).Error; err != nil {
		t.Fatal(err)
	}
	ids := make([]uint, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	boom := errors.New("disk on fire")
	calls := 0
	if err := db.Callback().Delete().Before("gorm:delete").Register("test:fail_second_chunk", func(tx *gorm.DB) {
		if tx.Statement.Table == "trackers" {
			calls++
			if calls == 2 {
				_ = tx.AddError(boom)
			}
		}
	}); err != nil {
		t.Fatal(err)
	}

	deleted, err := DeleteTrackersByID(ctx, db, ids, time.Now().UTC().Add(-24*time.Hour))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(deleted) != deleteChunk {
		t.Fatalf("deleted = %d, want the first chunk of %d", len(deleted), deleteChunk)
	}
	var left int64
	if err := db.Model(&domain.Tracker{}).Count(&left).Error; err != nil {
		t.Fatal(err)
	}
	if left != 1 {
		t.Fatalf("trackers left = %d, want 1", left)
	}
}
