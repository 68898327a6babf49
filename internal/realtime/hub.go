package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
)

// Peer is one live connection as seen by the Hub. Send must not block; it
// returns an error when the frame was not accepted.
type Peer interface {
	ID() string
	Send(payload []byte) error
}

// closer is implemented by peers the Hub can shut down, such as *Conn.
type closer interface {
	Close(code int, reason string)
	Closed() <-chan struct{}
}

// Hub routes frames to rooms and to every attached peer, and owns the
// presence registry. All methods are safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	peers       map[string]Peer                        // connID -> peer
	rooms       map[domain.RoomKey]map[string]Peer     // room -> connID -> peer
	memberships map[string]map[domain.RoomKey]struct{} // connID -> rooms

	// presenceMu orders presence updates with their publication so clients
	// never see an older aggregate after a newer one.
	presenceMu sync.Mutex
	presence   *Presence

	log zerolog.Logger
}

// NewHub returns an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		peers:       make(map[string]Peer),
		rooms:       make(map[domain.RoomKey]map[string]Peer),
		memberships: make(map[string]map[domain.RoomKey]struct{}),
		presence:    NewPresence(),
		log:         log.With().Str("component", "hub").Logger(),
	}
}

// Presence exposes the registry for read-only snapshots.
func (h *Hub) Presence() *Presence { return h.presence }

// Attach registers p with identity id (nil for anonymous) and publishes the
// new presence aggregate to everyone, p included.
func (h *Hub) Attach(p Peer, id *auth.Identity) {
	h.mu.Lock()
	h.peers[p.ID()] = p
	if h.memberships[p.ID()] == nil {
		h.memberships[p.ID()] = make(map[domain.RoomKey]struct{})
	}
	n := len(h.peers)
	h.mu.Unlock()
	wsConnections.Set(float64(n))

	h.presenceMu.Lock()
	snap := h.presence.Register(p.ID(), id)
	h.BroadcastGlobal(EventOnlineCount, snap)
	h.presenceMu.Unlock()

	h.log.Debug().Str("conn", p.ID()).Bool("anonymous", id == nil).Int("online", snap.Total).Msg("attached")
}

// Detach drops every membership of p and its presence entry, then
// republishes presence. Detaching an unknown peer is a no-op.
func (h *Hub) Detach(p Peer) {
	h.mu.Lock()
	if _, ok := h.peers[p.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p.ID())
	for key := range h.memberships[p.ID()] {
		h.leaveLocked(key, p.ID())
	}
	delete(h.memberships, p.ID())
	n, rooms := len(h.peers), len(h.rooms)
	h.mu.Unlock()
	wsConnections.Set(float64(n))
	wsRooms.Set(float64(rooms))

	h.presenceMu.Lock()
	snap, ok := h.presence.Unregister(p.ID())
	if ok {
		h.BroadcastGlobal(EventOnlineCount, snap)
	}
	h.presenceMu.Unlock()

	h.log.Debug().Str("conn", p.ID()).Int("online", snap.Total).Msg("detached")
}

// Subscribe adds p to room key. Repeated calls are idempotent; peers that
// are not attached are ignored.
func (h *Hub) Subscribe(p Peer, key domain.RoomKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p.ID()]; !ok {
		return false
	}
	room := h.rooms[key]
	if room == nil {
		room = make(map[string]Peer)
		h.rooms[key] = room
	}
	room[p.ID()] = p
	h.memberships[p.ID()][key] = struct{}{}
	wsRooms.Set(float64(len(h.rooms)))
	return true
}

// Unsubscribe removes p from room key. Leaving a room never joined changes
// nothing.
func (h *Hub) Unsubscribe(p Peer, key domain.RoomKey) {
	h.mu.Lock()
	h.leaveLocked(key, p.ID())
	rooms := len(h.rooms)
	h.mu.Unlock()
	wsRooms.Set(float64(rooms))
}

// BroadcastRoom sends event to every subscriber of key and returns how many
// peers accepted the frame. Delivery is best effort.
func (h *Hub) BroadcastRoom(key domain.RoomKey, event string, data any) int {
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.rooms[key]))
	for _, p := range h.rooms[key] {
		targets = append(targets, p)
	}
	h.mu.RUnlock()
	return h.fanout(event, data, targets)
}

// BroadcastGlobal sends event to every attached peer.
func (h *Hub) BroadcastGlobal(event string, data any) int {
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		targets = append(targets, p)
	}
	h.mu.RUnlock()
	return h.fanout(event, data, targets)
}

// Members returns the number of subscribers of key.
func (h *Hub) Members(key domain.RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

// Rooms lists the rooms p is subscribed to.
func (h *Hub) Rooms(p Peer) []domain.RoomKey {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.RoomKey, 0, len(h.memberships[p.ID()]))
	for k := range h.memberships[p.ID()] {
		out = append(out, k)
	}
	return out
}

// Connections returns the number of attached peers.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// CloseAll closes every attached peer that supports it with code and
// waits until their sockets are released or ctx ends. It returns the
// number of peers asked to close.
func (h *Hub) CloseAll(ctx context.Context, code int, reason string) int {
	h.mu.RLock()
	targets := make([]closer, 0, len(h.peers))
	for _, p := range h.peers {
		if c, ok := p.(closer); ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Close(code, reason)
	}
	for _, c := range targets {
		select {
		case <-c.Closed():
		case <-ctx.Done():
			h.log.Warn().Err(ctx.Err()).Int("peers", len(targets)).Msg("close all interrupted")
			return len(targets)
		}
	}
	return len(targets)
}

func (h *Hub) fanout(event string, data any, targets []Peer) int {
	if len(targets) == 0 {
		return 0
	}
	payload, err := Encode(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return 0
	}
	wsBroadcasts.WithLabelValues(event).Inc()
	delivered := 0
	for _, p := range targets {
		if err := p.Send(payload); err != nil {
			wsDropped.Inc()
			continue
		}
		delivered++
	}
	wsDelivered.Add(float64(delivered))
	return delivered
}

func (h *Hub) leaveLocked(key domain.RoomKey, connID string) {
	room := h.rooms[key]
	if room == nil {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, key)
	}
	if m, ok := h.memberships[connID]; ok {
		delete(m, key)
	}
}
