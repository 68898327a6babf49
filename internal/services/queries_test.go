package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/repo"
)

func backdate(t *testing.T, w *world, id uint, at time.Time) {
	t.Helper()
	if err := w.db.Model(&domain.ChatMessage{}).Where("id = ?", id).Update("created_at", at.UTC()).Error; err != nil {
		t.Fatalf("backdate %d: %v", id, err)
	}
}

func TestChatHistory_WindowLimitAndOrder(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var ids []uint
	for i := 0; i < 5; i++ {
		m, err := repo.CreateChatMessage(ctx, w.db, w.chatter.UserID, fmt.Sprintf("m%d", i))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}
	// m0 falls outside the history window; the rest are a minute apart.
	backdate(t, w, ids[0], now.Add(-8*24*time.Hour))
	for i, id := range ids[1:] {
		backdate(t, w, id, now.Add(time.Duration(i-4)*time.Minute))
	}

	qs := NewQueryService(w.db)
	got, err := qs.ChatHistory(ctx, 0, nil)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(got) != 4 || got[0].Content != "m1" || got[3].Content != "m4" {
		t.Fatalf("unexpected history: %+v", got)
	}
	if got[0].Author == nil || got[0].Author.ID != w.chatter.UserID {
		t.Fatalf("author not loaded: %+v", got[0])
	}

	got, err = qs.ChatHistory(ctx, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "m3" || got[1].Content != "m4" {
		t.Fatalf("limit should keep the newest, oldest first: %+v", got)
	}

	before := got[0].CreatedAt
	got, err = qs.ChatHistory(ctx, 10, &before)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "m1" || got[1].Content != "m2" {
		t.Fatalf("before page: %+v", got)
	}
}

func TestChatHistory_Empty(t *testing.T) {
	w := newWorld(t)
	got, err := NewQueryService(w.db).ChatHistory(context.Background(), MaxHistoryLimit+50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestChatStats(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, err := repo.CreateChatMessage(ctx, w.db, w.chatter.UserID, "old")
	if err != nil {
		t.Fatal(err)
	}
	b, err := repo.CreateChatMessage(ctx, w.db, w.chatter.UserID, "new")
	if err != nil {
		t.Fatal(err)
	}
	backdate(t, w, a.ID, fixed.Add(-10*24*time.Hour))
	backdate(t, w, b.ID, fixed.Add(-time.Hour))

	qs := &QueryService{DB: w.db, Now: func() time.Time { return fixed }}
	st, err := qs.ChatStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.Recent != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if !st.OldestRetained.Equal(fixed.Add(-HistoryWindow)) {
		t.Fatalf("oldest_retained = %v", st.OldestRetained)
	}
}

func TestListTrackersAndStats(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	qs := NewQueryService(w.db)

	n, at, err := qs.TrackersStats(ctx, nil)
	if err != nil || n != 0 || at != nil {
		t.Fatalf("empty stats = %d %v %v", n, at, err)
	}
	items, err := qs.ListTrackers(ctx, repo.TrackerQuery{})
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("empty list = %#v %v", items, err)
	}

	for _, s := range []float64{1, 3, 2} {
		if _, err := w.coord.CreateTracker(ctx, w.editor, w.input(s)); err != nil {
			t.Fatal(err)
		}
	}
	items, err = qs.ListTrackers(ctx, repo.TrackerQuery{SortBy: "status", Order: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 || items[0].Status != 1 || items[2].Status != 3 {
		t.Fatalf("sorted list = %+v", items)
	}
	n, at, err = qs.TrackersStats(ctx, ptr(10))
	if err != nil || n != 3 || at == nil {
		t.Fatalf("stats = %d %v %v", n, at, err)
	}
}

func TestQueryService_SingleRecordLookups(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	qs := NewQueryService(w.db)

	tr, err := w.coord.CreateTracker(ctx, w.editor, w.input(1))
	if err != nil {
		t.Fatal(err)
	}
	got, err := qs.Tracker(ctx, tr.ID)
	if err != nil || got.ID != tr.ID || got.Status != 1 {
		t.Fatalf("Tracker: %+v, %v", got, err)
	}
	if _, err := qs.Tracker(ctx, tr.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing tracker: %v", err)
	}

	m, err := w.coord.SendChatMessage(ctx, w.chatter, "hello")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := qs.ChatMessage(ctx, m.ID)
	if err != nil || msg.Content != "hello" || msg.Author == nil {
		t.Fatalf("ChatMessage: %+v, %v", msg, err)
	}
	if _, err := qs.ChatMessage(ctx, m.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing message: %v", err)
	}
}
