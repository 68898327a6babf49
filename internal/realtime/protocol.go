// Package realtime implements the persistent-connection fabric of the board:
// the wire envelope, per-connection write pumps, the room router (Hub) and
// the presence registry.
//
// Wire format (JSON text frames):
//
//	client -> server  {"event": "tracker:update", "ack": 7, "data": {...}}
//	server -> client  {"event": "tracker:changed", "data": {...}}
//	ack reply         {"event": "ack", "ack": 7, "data": {"ok": true, ...}}
//	                  {"event": "ack", "ack": 7, "data": {"error": "...", "code": "..."}}
package realtime

import (
	"encoding/json"

	"github.com/tbourn/slotboard/internal/domain"
)

// Client events.
const (
	EventSubscribe       = "subscribe"
	EventUnsubscribe     = "unsubscribe"
	EventTrackerCreate   = "tracker:create"
	EventTrackerUpdate   = "tracker:update"
	EventTrackerDelete   = "tracker:delete"
	EventChatSend        = "chat:send"
	EventChatLoadHistory = "chat:loadHistory"
)

// Server events.
const (
	EventAck            = "ack"
	EventTrackerCreated = "tracker:created"
	EventTrackerChanged = "tracker:changed"
	EventTrackerDeleted = "tracker:deleted"
	EventChatMessage    = "chat:message"
	EventChatDeleted    = "chat:deleted"
	EventChatPruned     = "chat:pruned"
	EventOnlineCount    = "users:onlineCount"
)

// Global returns the board-wide counterpart of a room event.
func Global(event string) string { return event + ":global" }

// Ack error codes.
const (
	CodeBadRequest      = "bad_request"
	CodeValidation      = "validation"
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInternal        = "internal"
	CodeRateLimited     = "rate_limited"
	CodeUnknownEvent    = "unknown_event"
)

// Inbound is a client frame. Ack is optional; when present the server
// answers with exactly one ack frame carrying the same number.
type Inbound struct {
	Event string          `json:"event"`
	Ack   *uint64         `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a server frame.
type Outbound struct {
	Event string  `json:"event"`
	Ack   *uint64 `json:"ack,omitempty"`
	Data  any     `json:"data,omitempty"`
}

// AckError is the data of a failed ack.
type AckError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RoomRequest is the payload of subscribe/unsubscribe.
type RoomRequest struct {
	EpisodeNumber int  `json:"episode_number"`
	MapID         uint `json:"map_id"`
	ChannelID     uint `json:"channel_id"`
}

// TrackerRef identifies a removed tracker and the room it lived in.
type TrackerRef struct {
	ID            uint `json:"id"`
	EpisodeNumber int  `json:"episode_number"`
	MapID         uint `json:"map_id"`
	ChannelID     uint `json:"channel_id"`
}

// ChatPruned reports a retention sweep of the chat.
type ChatPruned struct {
	Deleted          int64 `json:"deleted"`
	OldestRetainedID *uint `json:"oldest_retained_id"`
}

// Encode marshals a broadcast frame.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: data})
}

// EncodeAck marshals the reply to ack number n.
func EncodeAck(n uint64, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: EventAck, Ack: &n, Data: data})
}

// OK is the "ok" field of every successful ack; it always encodes as true.
type OK struct{}

// MarshalJSON implements json.Marshaler.
func (OK) MarshalJSON() ([]byte, error) { return []byte("true"), nil }

// Successful ack bodies, one per client event.
type (
	RoomAck struct {
		OK   OK             `json:"ok"`
		Room domain.RoomKey `json:"room"`
	}
	TrackerCreatedAck struct {
		OK      OK              `json:"ok"`
		Created *domain.Tracker `json:"created"`
	}
	TrackerUpdatedAck struct {
		OK      OK              `json:"ok"`
		Updated *domain.Tracker `json:"updated"`
	}
	TrackerDeletedAck struct {
		OK OK   `json:"ok"`
		ID uint `json:"id"`
	}
	ChatSentAck struct {
		OK      OK                  `json:"ok"`
		Message *domain.ChatMessage `json:"message"`
	}
	ChatHistoryAck struct {
		OK       OK                   `json:"ok"`
		Messages []domain.ChatMessage `json:"messages"`
	}
)
