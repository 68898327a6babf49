// Package services – Coordinator
//
// The Coordinator is the single write path for trackers and chat. HTTP
// handlers and websocket events both call it, so validation, authorization
// and the broadcasts that follow a write are identical across transports.
//
// Ordering: writes to one tracker hold a per-id lock from persistence until
// their broadcasts are enqueued, so subscribers observe changes in the order
// the store applied them. Chat posts and deletions share one lock so frames
// follow id order. Concurrent updates are last-writer-wins.
//
// Cancellation: once persistence starts the caller's cancellation is
// detached; a client that disconnects mid-write does not abort the write or
// the fan-out to everyone else.
package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/repo"
)

// Broadcaster fans events out to connected clients. *realtime.Hub
// implements it.
type Broadcaster interface {
	BroadcastRoom(key domain.RoomKey, event string, data any) int
	BroadcastGlobal(event string, data any) int
}

// CreateTrackerInput is the payload of tracker creation.
type CreateTrackerInput struct {
	EpisodeNumber int     `json:"episode_number"`
	MapID         uint    `json:"map_id"`
	ChannelID     uint    `json:"channel_id"`
	Status        float64 `json:"status"`
	Nickname      string  `json:"nickname"`
}

// TrackerPatch is a partial update; nil fields are left unchanged.
type TrackerPatch struct {
	Status   *float64 `json:"status,omitempty"`
	Nickname *string  `json:"nickname,omitempty"`
}

// Coordinator validates, persists and broadcasts writes.
type Coordinator struct {
	DB  *gorm.DB
	Bus Broadcaster
	Log zerolog.Logger

	trackers keyedMutex
	chatMu   sync.Mutex
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(db *gorm.DB, bus Broadcaster, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		DB:  db,
		Bus: bus,
		Log: log.With().Str("component", "coordinator").Logger(),
	}
}

var tracer = otel.Tracer("services/Coordinator")

// CreateTracker validates in, inserts the tracker and broadcasts
// tracker:created to its room and tracker:created:global to everyone.
func (c *Coordinator) CreateTracker(ctx context.Context, actor *auth.Identity, in CreateTrackerInput) (_ *domain.Tracker, err error) {
	ctx, span := tracer.Start(ctx, "CreateTracker", trace.WithAttributes(
		attribute.Int("episode.number", in.EpisodeNumber),
		attribute.Int64("map.id", int64(in.MapID)),
		attribute.Int64("channel.id", int64(in.ChannelID)),
	))
	defer func() { endSpan(span, err) }()

	actor, err = c.authorize(ctx, actor, auth.CanWriteTracker, "create trackers")
	if err != nil {
		return nil, err
	}
	if err := validateStatus(in.Status); err != nil {
		return nil, err
	}
	nick := normalizeNickname(in.Nickname)
	if nick == "" {
		nick = actor.Nickname
	}
	if err := validateNickname("nickname", nick); err != nil {
		return nil, err
	}
	mp, err := c.resolveSlot(ctx, in.EpisodeNumber, in.MapID, in.ChannelID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	t := &domain.Tracker{
		EpisodeNumber: in.EpisodeNumber,
		MapID:         in.MapID,
		ChannelID:     in.ChannelID,
		Level:         mp.Level,
		Status:        in.Status,
		Nickname:      nick,
		UserID:        actor.UserID,
	}
	// The id lock is taken before commit so no update to this tracker can
	// broadcast ahead of its creation.
	var unlock func()
	txErr := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateTracker(ctx, tx, t); err != nil {
			return err
		}
		unlock = c.trackers.Lock(t.ID)
		return nil
	})
	if txErr != nil {
		if unlock != nil {
			unlock()
		}
		c.Log.Error().Err(txErr).Int("episode", in.EpisodeNumber).Uint("map", in.MapID).Uint("channel", in.ChannelID).Msg("create tracker")
		return nil, storeErr("create tracker", txErr)
	}
	defer unlock()

	span.SetAttributes(attribute.Int64("tracker.id", int64(t.ID)))
	c.Bus.BroadcastRoom(t.Room(), realtime.EventTrackerCreated, t)
	c.Bus.BroadcastGlobal(realtime.Global(realtime.EventTrackerCreated), t)
	return t, nil
}

// UpdateTracker applies patch to tracker id. Any editor may update any
// tracker. The broadcast carries the row as re-read after the write.
func (c *Coordinator) UpdateTracker(ctx context.Context, actor *auth.Identity, id uint, patch TrackerPatch) (_ *domain.Tracker, err error) {
	ctx, span := tracer.Start(ctx, "UpdateTracker", trace.WithAttributes(attribute.Int64("tracker.id", int64(id))))
	defer func() { endSpan(span, err) }()

	if _, err = c.authorize(ctx, actor, auth.CanWriteTracker, "update trackers"); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if patch.Status != nil {
		if err := validateStatus(*patch.Status); err != nil {
			return nil, err
		}
		fields["status"] = *patch.Status
	}
	if patch.Nickname != nil {
		nick := normalizeNickname(*patch.Nickname)
		if err := validateNickname("nickname", nick); err != nil {
			return nil, err
		}
		fields["nickname"] = nick
	}
	if len(fields) == 0 {
		return nil, invalid("patch", "no fields to update")
	}

	ctx = context.WithoutCancel(ctx)
	unlock := c.trackers.Lock(id)
	defer unlock()

	// Read before writing: an id not yet committed must not queue a write
	// behind the creating transaction.
	if _, err := repo.GetTracker(ctx, c.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("tracker")
		}
		return nil, storeErr("load tracker", err)
	}
	if err := repo.UpdateTracker(ctx, c.DB, id, fields); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("tracker")
		}
		c.Log.Error().Err(err).Uint("tracker", id).Msg("update tracker")
		return nil, storeErr("update tracker", err)
	}
	t, err := repo.GetTracker(ctx, c.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Deleted between write and re-read.
			return nil, notFound("tracker")
		}
		return nil, storeErr("reload tracker", err)
	}

	c.Bus.BroadcastRoom(t.Room(), realtime.EventTrackerChanged, t)
	c.Bus.BroadcastGlobal(realtime.Global(realtime.EventTrackerChanged), t)
	return t, nil
}

// DeleteTracker removes tracker id. Admins may delete any tracker; owners
// may delete their own while they still hold editor.
func (c *Coordinator) DeleteTracker(ctx context.Context, actor *auth.Identity, id uint) (err error) {
	ctx, span := tracer.Start(ctx, "DeleteTracker", trace.WithAttributes(attribute.Int64("tracker.id", int64(id))))
	defer func() { endSpan(span, err) }()

	actor, err = c.current(ctx, actor)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	unlock := c.trackers.Lock(id)
	defer unlock()

	t, err := repo.GetTracker(ctx, c.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("tracker")
		}
		return storeErr("load tracker", err)
	}
	ownerRole := domain.Role("")
	if owner, err := repo.GetUser(ctx, c.DB, t.UserID); err == nil {
		ownerRole = owner.Role
	} else if !errors.Is(err, repo.ErrNotFound) {
		return storeErr("load tracker owner", err)
	}
	if !auth.CanDeleteTracker(actor, t.UserID, ownerRole) {
		return forbidden("delete this tracker")
	}

	if err := repo.DeleteTracker(ctx, c.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("tracker")
		}
		c.Log.Error().Err(err).Uint("tracker", id).Msg("delete tracker")
		return storeErr("delete tracker", err)
	}

	ref := realtime.TrackerRef{ID: t.ID, EpisodeNumber: t.EpisodeNumber, MapID: t.MapID, ChannelID: t.ChannelID}
	c.Bus.BroadcastRoom(t.Room(), realtime.EventTrackerDeleted, ref)
	c.Bus.BroadcastGlobal(realtime.Global(realtime.EventTrackerDeleted), ref)
	return nil
}

// SendChatMessage posts content to the shared chat and broadcasts
// chat:message to everyone.
func (c *Coordinator) SendChatMessage(ctx context.Context, actor *auth.Identity, content string) (_ *domain.ChatMessage, err error) {
	ctx, span := tracer.Start(ctx, "SendChatMessage")
	defer func() { endSpan(span, err) }()

	actor, err = c.authorize(ctx, actor, auth.CanChat, "post messages")
	if err != nil {
		return nil, err
	}
	content = normalizeContent(content)
	if content == "" {
		return nil, invalid("content", "message cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxChatRunes {
		return nil, invalid("content", "message too long (max %d characters)", MaxChatRunes)
	}

	ctx = context.WithoutCancel(ctx)
	c.chatMu.Lock()
	defer c.chatMu.Unlock()

	m, err := repo.CreateChatMessage(ctx, c.DB, actor.UserID, content)
	if err != nil {
		c.Log.Error().Err(err).Uint("user", actor.UserID).Msg("create chat message")
		return nil, storeErr("create chat message", err)
	}
	span.SetAttributes(attribute.Int64("chat.id", int64(m.ID)))
	c.Bus.BroadcastGlobal(realtime.EventChatMessage, m)
	return m, nil
}

// DeleteChatMessage removes message id if actor authored it or is an admin,
// and broadcasts chat:deleted.
func (c *Coordinator) DeleteChatMessage(ctx context.Context, actor *auth.Identity, id uint) (err error) {
	ctx, span := tracer.Start(ctx, "DeleteChatMessage", trace.WithAttributes(attribute.Int64("chat.id", int64(id))))
	defer func() { endSpan(span, err) }()

	actor, err = c.current(ctx, actor)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	c.chatMu.Lock()
	defer c.chatMu.Unlock()

	m, err := repo.GetChatMessage(ctx, c.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("message")
		}
		return storeErr("load chat message", err)
	}
	if !auth.CanDeleteChat(actor, m.UserID) {
		return forbidden("delete this message")
	}
	if err := repo.DeleteChatMessage(ctx, c.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("message")
		}
		return storeErr("delete chat message", err)
	}
	c.Bus.BroadcastGlobal(realtime.EventChatDeleted, map[string]uint{"id": id})
	return nil
}

func (c *Coordinator) current(ctx context.Context, actor *auth.Identity) (*auth.Identity, error) {
	return loadIdentity(ctx, c.DB, actor)
}

// loadIdentity reloads actor from the store so role changes apply to
// sessions opened before the change.
func loadIdentity(ctx context.Context, db *gorm.DB, actor *auth.Identity) (*auth.Identity, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	u, err := repo.GetUser(ctx, db, actor.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, storeErr("load user", err)
	}
	return auth.FromUser(u), nil
}

func (c *Coordinator) authorize(ctx context.Context, actor *auth.Identity, allowed func(*auth.Identity) bool, action string) (*auth.Identity, error) {
	actor, err := c.current(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !allowed(actor) {
		return nil, forbidden(action)
	}
	return actor, nil
}

// resolveSlot checks the episode, map and channel exist and that the map
// belongs to the episode.
func (c *Coordinator) resolveSlot(ctx context.Context, episodeNumber int, mapID, channelID uint) (*domain.Map, error) {
	if _, err := repo.GetEpisodeByNumber(ctx, c.DB, episodeNumber); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, invalid("episode_number", "episode %d does not exist", episodeNumber)
		}
		return nil, storeErr("load episode", err)
	}
	mp, err := repo.GetMap(ctx, c.DB, mapID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, invalid("map_id", "map %d does not exist", mapID)
		}
		return nil, storeErr("load map", err)
	}
	if mp.EpisodeNumber != episodeNumber {
		return nil, invalid("map_id", "map %d does not belong to episode %d", mapID, episodeNumber)
	}
	if _, err := repo.GetChannel(ctx, c.DB, channelID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, invalid("channel_id", "channel %d does not exist", channelID)
		}
		return nil, storeErr("load channel", err)
	}
	return mp, nil
}

func validateStatus(s float64) error {
	if math.IsNaN(s) || s < domain.MinStatus || s > domain.MaxStatus {
		return invalid("status", "must be between %g and %g", domain.MinStatus, domain.MaxStatus)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
