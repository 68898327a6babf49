// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they parse input, call application services
// and translate results (or classified errors) into HTTP responses. Every
// write goes through the same Writer the websocket endpoint uses, so a
// tracker created over REST produces the same broadcasts as one created
// over a socket.
package handlers

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/repo"
	"github.com/tbourn/slotboard/internal/retention"
	"github.com/tbourn/slotboard/internal/services"
)

//
// Service contracts (context-aware)
//

// Accounts authenticates callers and manages accounts.
type Accounts interface {
	Login(ctx context.Context, username, password string) (*services.Session, error)
	Resolve(ctx context.Context, token string) (*auth.Identity, error)
	Me(ctx context.Context, actor *auth.Identity) (*domain.User, error)
	ListUsers(ctx context.Context, actor *auth.Identity) ([]domain.User, error)
	CreateUser(ctx context.Context, actor *auth.Identity, in services.NewUserInput) (*domain.User, error)
	SetRole(ctx context.Context, actor *auth.Identity, userID uint, role string) (*domain.User, error)
	RequireAdmin(ctx context.Context, actor *auth.Identity, action string) error
}

// Catalog serves episodes, maps and channels.
type Catalog interface {
	Episodes(ctx context.Context) ([]domain.Episode, error)
	Maps(ctx context.Context, episodeNumber *int) ([]domain.Map, error)
	Channels(ctx context.Context) ([]domain.Channel, error)
	CreateEpisode(ctx context.Context, actor *auth.Identity, number int, name string) (*domain.Episode, bool, error)
	CreateMap(ctx context.Context, actor *auth.Identity, m domain.Map) (*domain.Map, bool, error)
}

// Writer is the single write path for trackers and chat.
// *services.Coordinator implements it.
type Writer interface {
	CreateTracker(ctx context.Context, actor *auth.Identity, in services.CreateTrackerInput) (*domain.Tracker, error)
	UpdateTracker(ctx context.Context, actor *auth.Identity, id uint, patch services.TrackerPatch) (*domain.Tracker, error)
	DeleteTracker(ctx context.Context, actor *auth.Identity, id uint) error
	SendChatMessage(ctx context.Context, actor *auth.Identity, content string) (*domain.ChatMessage, error)
	DeleteChatMessage(ctx context.Context, actor *auth.Identity, id uint) error
}

// Reader serves read-only views. *services.QueryService implements it.
type Reader interface {
	ListTrackers(ctx context.Context, q repo.TrackerQuery) ([]domain.Tracker, error)
	TrackersStats(ctx context.Context, episodeNumber *int) (int64, *time.Time, error)
	Tracker(ctx context.Context, id uint) (*domain.Tracker, error)
	ChatMessage(ctx context.Context, id uint) (*domain.ChatMessage, error)
	ChatHistory(ctx context.Context, limit int, before *time.Time) ([]domain.ChatMessage, error)
	ChatStats(ctx context.Context) (services.ChatStats, error)
}

// Housekeeper runs one retention sweep. *retention.Engine implements it.
type Housekeeper interface {
	Run(ctx context.Context) (retention.Result, error)
}

// IdempotencyStore remembers the outcome of a keyed create.
type IdempotencyStore interface {
	Remember(ctx context.Context, userID uint, scope, key string, resourceID uint, status int) error
}

// Fabric is the realtime room router. *realtime.Hub implements it.
type Fabric interface {
	Attach(p realtime.Peer, id *auth.Identity)
	Detach(p realtime.Peer)
	Subscribe(p realtime.Peer, key domain.RoomKey) bool
	Unsubscribe(p realtime.Peer, key domain.RoomKey)
	Presence() *realtime.Presence
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Housekeeper and Idempotency are
// optional.
type Deps struct {
	Accounts    Accounts
	Catalog     Catalog
	Writer      Writer
	Reader      Reader
	Housekeeper Housekeeper
	Idempotency IdempotencyStore
	Fabric      Fabric
	WS          WSOptions
	Log         zerolog.Logger
}

// Handlers groups the HTTP and websocket endpoints.
type Handlers struct {
	accounts    Accounts
	catalog     Catalog
	writer      Writer
	reader      Reader
	housekeeper Housekeeper
	idem        IdempotencyStore
	fabric      Fabric
	ws          WSOptions
	upgrader    *websocket.Upgrader
	log         zerolog.Logger
}

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	ws := d.WS.withDefaults()
	return &Handlers{
		accounts:    d.Accounts,
		catalog:     d.Catalog,
		writer:      d.Writer,
		reader:      d.Reader,
		housekeeper: d.Housekeeper,
		idem:        d.Idempotency,
		fabric:      d.Fabric,
		ws:          ws,
		upgrader:    ws.upgrader(),
		log:         d.Log,
	}
}
