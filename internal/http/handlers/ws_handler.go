// Websocket endpoint.
//
//   - GET /ws?token=   (upgrade; the token may also come as a bearer header)
//
// Each connection gets its own read goroutine (this handler) that processes
// client events one at a time, so a caller's events are applied in the order
// sent. Writes go through the Coordinator, exactly like the REST endpoints.
// A missing or invalid token connects the socket anonymously: it can watch
// rooms and presence but every write is refused.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/services"
	"github.com/tbourn/slotboard/internal/utils"
)

// WSOptions tunes the websocket endpoint.
type WSOptions struct {
	Conn realtime.ConnOptions
	// Inbound events per second per connection, and burst.
	RateRPS   float64
	RateBurst int
	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string
}

func (o WSOptions) withDefaults() WSOptions {
	if o.RateRPS <= 0 {
		o.RateRPS = 20
	}
	if o.RateBurst < 1 {
		o.RateBurst = 40
	}
	return o
}

func (o WSOptions) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(o.AllowedOrigins))
	for _, origin := range o.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// history request of chat:loadHistory; before is RFC 3339 or unix millis,
// as a string or a number.
type historyRequest struct {
	Limit  int             `json:"limit"`
	Before json.RawMessage `json:"before"`
}

type trackerUpdateRequest struct {
	ID       uint     `json:"id"`
	Status   *float64 `json:"status"`
	Nickname *string  `json:"nickname"`
}

type idRequest struct {
	ID uint `json:"id"`
}

type chatSendRequest struct {
	Content string `json:"content"`
}

// errBadPayload marks a frame whose data does not decode.
var errBadPayload = errors.New("malformed event data")

// ServeWS godoc
// @ID          websocket
// @Summary     Realtime connection
// @Description Upgrades to a websocket speaking the JSON event protocol (subscribe, tracker:*, chat:*).
// @Tags        Realtime
// @Param       token  query  string  false  "Session token; invalid tokens connect anonymously"
// @Success     101  {string} string "Switching Protocols"
// @Router      /ws [get]
func (h *Handlers) ServeWS(c *gin.Context) {
	id := h.wsIdentity(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := realtime.NewConn(ws, h.ws.Conn)
	conn.Start()
	defer conn.Close(websocket.CloseNormalClosure, "")

	h.fabric.Attach(conn, id)
	defer h.fabric.Detach(conn)

	s := &wsSession{
		h:       h,
		conn:    conn,
		id:      id,
		limiter: rate.NewLimiter(rate.Limit(h.ws.RateRPS), h.ws.RateBurst),
		log:     h.log.With().Str("conn", conn.ID()).Logger(),
	}
	s.run(context.WithoutCancel(c.Request.Context()))
}

// wsIdentity resolves the handshake token; failures yield nil (anonymous).
func (h *Handlers) wsIdentity(c *gin.Context) *auth.Identity {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		return nil
	}
	id, err := h.accounts.Resolve(c.Request.Context(), token)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket token rejected, connecting anonymously")
		return nil
	}
	return id
}

type wsSession struct {
	h       *Handlers
	conn    *realtime.Conn
	id      *auth.Identity
	limiter *rate.Limiter
	log     zerolog.Logger
}

func (s *wsSession) run(ctx context.Context) {
	for {
		raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		var in realtime.Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			realtime.InboundEvents.WithLabelValues("invalid", realtime.CodeBadRequest).Inc()
			s.ackError(in.Ack, realtime.CodeBadRequest, "frame must be a JSON object with an event")
			continue
		}
		label := eventLabel(in.Event)
		if !s.limiter.Allow() {
			realtime.InboundEvents.WithLabelValues(label, realtime.CodeRateLimited).Inc()
			s.ackError(in.Ack, realtime.CodeRateLimited, "too many events")
			continue
		}

		data, err := s.dispatch(ctx, in)
		if err != nil {
			code, msg := ackCode(err)
			if code == realtime.CodeInternal {
				s.log.Error().Err(err).Str("event", in.Event).Msg("websocket event failed")
			}
			realtime.InboundEvents.WithLabelValues(label, code).Inc()
			s.ackError(in.Ack, code, msg)
			continue
		}
		realtime.InboundEvents.WithLabelValues(label, "ok").Inc()
		s.ack(in.Ack, data)
	}
}

func (s *wsSession) dispatch(ctx context.Context, in realtime.Inbound) (any, error) {
	h := s.h
	switch in.Event {
	case realtime.EventSubscribe, realtime.EventUnsubscribe:
		var req realtime.RoomRequest
		if err := decodeData(in.Data, &req); err != nil {
			return nil, err
		}
		if req.EpisodeNumber <= 0 || req.MapID == 0 || req.ChannelID == 0 {
			return nil, errBadPayload
		}
		key := domain.NewRoomKey(req.EpisodeNumber, req.MapID, req.ChannelID)
		if in.Event == realtime.EventSubscribe {
			h.fabric.Subscribe(s.conn, key)
		} else {
			h.fabric.Unsubscribe(s.conn, key)
		}
		return realtime.RoomAck{Room: key}, nil

	case realtime.EventTrackerCreate:
		var req services.CreateTrackerInput
		if err := decodeData(in.Data, &req); err != nil {
			return nil, err
		}
		t, err := h.writer.CreateTracker(ctx, s.id, req)
		if err != nil {
			return nil, err
		}
		return realtime.TrackerCreatedAck{Created: t}, nil

	case realtime.EventTrackerUpdate:
		var req trackerUpdateRequest
		if err := decodeData(in.Data, &req); err != nil {
			return nil, err
		}
		t, err := h.writer.UpdateTracker(ctx, s.id, req.ID, services.TrackerPatch{Status: req.Status, Nickname: req.Nickname})
		if err != nil {
			return nil, err
		}
		return realtime.TrackerUpdatedAck{Updated: t}, nil

	case realtime.EventTrackerDelete:
		var req idRequest
		if err := decodeData(in.Data, &req); err != nil {
			return nil, err
		}
		if err := h.writer.DeleteTracker(ctx, s.id, req.ID); err != nil {
			return nil, err
		}
		return realtime.TrackerDeletedAck{ID: req.ID}, nil

	case realtime.EventChatSend:
		var req chatSendRequest
		if err := decodeData(in.Data, &req); err != nil {
			return nil, err
		}
		m, err := h.writer.SendChatMessage(ctx, s.id, req.Content)
		if err != nil {
			return nil, err
		}
		return realtime.ChatSentAck{Message: m}, nil

	case realtime.EventChatLoadHistory:
		var req historyRequest
		if len(in.Data) > 0 {
			if err := decodeData(in.Data, &req); err != nil {
				return nil, err
			}
		}
		before, err := utils.ParseTimestamp(strings.Trim(string(req.Before), `"`))
		if err != nil && string(req.Before) != "null" {
			return nil, errBadPayload
		}
		items, err := h.reader.ChatHistory(ctx, req.Limit, before)
		if err != nil {
			return nil, err
		}
		return realtime.ChatHistoryAck{Messages: items}, nil
	}
	return nil, errUnknownEvent
}

var errUnknownEvent = errors.New("unknown event")

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadPayload
	}
	return nil
}

// ackCode maps a dispatch error to an ack code and a client-safe message.
func ackCode(err error) (code, msg string) {
	switch {
	case errors.Is(err, errBadPayload):
		return realtime.CodeBadRequest, err.Error()
	case errors.Is(err, errUnknownEvent):
		return realtime.CodeUnknownEvent, err.Error()
	case errors.Is(err, services.ErrValidation):
		return realtime.CodeValidation, err.Error()
	case errors.Is(err, services.ErrUnauthenticated):
		return realtime.CodeUnauthenticated, err.Error()
	case errors.Is(err, services.ErrForbidden):
		return realtime.CodeForbidden, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return realtime.CodeNotFound, err.Error()
	case errors.Is(err, services.ErrConflict):
		return realtime.CodeConflict, err.Error()
	default:
		return realtime.CodeInternal, "internal error"
	}
}

// eventLabel bounds the metrics label to protocol event names.
func eventLabel(event string) string {
	switch event {
	case realtime.EventSubscribe, realtime.EventUnsubscribe,
		realtime.EventTrackerCreate, realtime.EventTrackerUpdate, realtime.EventTrackerDelete,
		realtime.EventChatSend, realtime.EventChatLoadHistory:
		return event
	}
	return "unknown"
}

func (s *wsSession) ack(n *uint64, data any) {
	if n == nil {
		return
	}
	payload, err := realtime.EncodeAck(*n, data)
	if err != nil {
		s.log.Error().Err(err).Msg("encode ack")
		return
	}
	_ = s.conn.Send(payload)
}

func (s *wsSession) ackError(n *uint64, code, msg string) {
	s.ack(n, realtime.AckError{Error: msg, Code: code})
}
