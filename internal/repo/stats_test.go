package repo

import (
	"context"
	"testing"
	"time"
)

func TestTrackersStats_CountError_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if _, _, err := TrackersStats(context.Background(), db, nil); err == nil {
		t.Fatalf("expected error due to missing trackers table")
	}
}

func TestTrackersStats_ZeroRows(t *testing.T) {
	db := newRepoDB(t, true)
	count, maxAt, err := TrackersStats(context.Background(), db, nil)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, maxAt, err)
	}
}

func TestTrackersStats_FilterAndMax(t *testing.T) {
	db := newRepoDB(t, true)
	f := seedCatalog(t, db)

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	for _, at := range []time.Time{t1, t2} {
		tr := f.tracker(1, "n")
		tr.CreatedAt, tr.UpdatedAt = at, at
		if err := db.Create(tr).Error; err != nil {
			t.Fatal(err)
		}
	}

	count, maxAt, err := TrackersStats(context.Background(), db, nil)
	if err != nil || count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("TrackersStats = (%d, %v, %v); want (2, %v)", count, maxAt, err, t2)
	}

	other := 11
	count, maxAt, err = TrackersStats(context.Background(), db, &other)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("filtered stats = (%d, %v, %v)", count, maxAt, err)
	}
}
