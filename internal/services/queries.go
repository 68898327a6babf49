// Package services – QueryService
//
// Read-side operations for the board: tracker listings with their ETag
// inputs, chat history pages and chat statistics.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/repo"
)

// Chat history bounds.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
	HistoryWindow       = 7 * 24 * time.Hour
)

// ChatStats is the payload of GET /chat/stats.
type ChatStats struct {
	Total          int64     `json:"total"`
	Recent         int64     `json:"recent"`
	OldestRetained time.Time `json:"oldest_retained"`
}

// QueryService serves read-only views.
type QueryService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewQueryService returns a QueryService reading from db.
func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{DB: db, Now: time.Now}
}

// ListTrackers returns trackers filtered and sorted per q.
func (s *QueryService) ListTrackers(ctx context.Context, q repo.TrackerQuery) ([]domain.Tracker, error) {
	ctx, span := tracer.Start(ctx, "ListTrackers", trace.WithAttributes(
		attribute.String("sort_by", q.SortBy),
		attribute.String("order", q.Order),
	))
	defer span.End()

	items, err := repo.ListTrackers(ctx, s.DB, q)
	if err != nil {
		return nil, storeErr("list trackers", err)
	}
	if items == nil {
		items = []domain.Tracker{}
	}
	return items, nil
}

// Tracker returns one tracker by id.
func (s *QueryService) Tracker(ctx context.Context, id uint) (*domain.Tracker, error) {
	t, err := repo.GetTracker(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("tracker")
	}
	if err != nil {
		return nil, storeErr("get tracker", err)
	}
	return t, nil
}

// ChatMessage returns one message with its author.
func (s *QueryService) ChatMessage(ctx context.Context, id uint) (*domain.ChatMessage, error) {
	m, err := repo.GetChatMessage(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("message")
	}
	if err != nil {
		return nil, storeErr("get message", err)
	}
	return m, nil
}

// TrackersStats returns the count and latest update used to build ETags.
func (s *QueryService) TrackersStats(ctx context.Context, episodeNumber *int) (int64, *time.Time, error) {
	n, at, err := repo.TrackersStats(ctx, s.DB, episodeNumber)
	if err != nil {
		return 0, nil, storeErr("tracker stats", err)
	}
	return n, at, nil
}

// ChatHistory returns up to limit messages from the last seven days,
// oldest first. limit <= 0 means the default; larger values are capped.
// before, when set, pages to strictly older messages.
func (s *QueryService) ChatHistory(ctx context.Context, limit int, before *time.Time) ([]domain.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "ChatHistory", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	items, err := repo.ListChatHistory(ctx, s.DB, repo.ChatHistoryQuery{
		Since:  s.Now().Add(-HistoryWindow),
		Before: before,
		Limit:  limit,
	})
	if err != nil {
		return nil, storeErr("chat history", err)
	}
	if items == nil {
		items = []domain.ChatMessage{}
	}
	return items, nil
}

// ChatStats counts all messages and those inside the history window.
func (s *QueryService) ChatStats(ctx context.Context) (ChatStats, error) {
	since := s.Now().Add(-HistoryWindow).UTC()
	st, err := repo.GetChatStats(ctx, s.DB, since)
	if err != nil {
		return ChatStats{}, storeErr("chat stats", err)
	}
	return ChatStats{Total: st.Total, Recent: st.Recent, OldestRetained: since}, nil
}
