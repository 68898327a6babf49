package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/domain"
	"github.com/tbourn/slotboard/internal/http/middleware"
	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/repo"
	"github.com/tbourn/slotboard/internal/retention"
	"github.com/tbourn/slotboard/internal/services"
)

const testPassword = "correct horse battery"

// fakeHousekeeper records runs and returns a canned outcome.
type fakeHousekeeper struct {
	mu   sync.Mutex
	runs int
	res  retention.Result
	err  error
}

func (f *fakeHousekeeper) Run(ctx context.Context) (retention.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.res, f.err
}

// dbIdempotency stores keyed outcomes in the test database.
type dbIdempotency struct{ db *gorm.DB }

func (s dbIdempotency) Remember(ctx context.Context, userID uint, scope, key string, resourceID uint, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, time.Hour)
	return err
}

func (s dbIdempotency) lookup(ctx context.Context, userID uint, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// env is a fully wired API over a temp-file SQLite database and a live Hub.
type env struct {
	t       *testing.T
	db      *gorm.DB
	hub     *realtime.Hub
	tokens  *auth.Tokens
	keeper  *fakeHousekeeper
	router  *gin.Engine
	mapID   uint
	channel uint

	viewer, chatter, editor, editor2, admin *domain.User
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newEnv seeds episode 10 with map "Harbor" (level 40), channel 3 and one
// account per role, all sharing testPassword.
func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := newTestDB(t)

	if _, _, err := repo.EnsureEpisode(ctx, db, 10, "Ten"); err != nil {
		t.Fatalf("episode: %v", err)
	}
	mp, _, err := repo.EnsureMap(ctx, db, domain.Map{EpisodeNumber: 10, Name: "Harbor", Level: 40})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	ch, _, err := repo.EnsureChannel(ctx, db, 3, "Ch 3")
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	mk := func(name string, role domain.Role) *domain.User {
		u, err := repo.CreateUser(ctx, db, name, hash, name, role)
		if err != nil {
			t.Fatalf("user %s: %v", name, err)
		}
		return u
	}

	e := &env{
		t:       t,
		db:      db,
		hub:     realtime.NewHub(zerolog.Nop()),
		tokens:  auth.NewTokens("handlers-test-secret", time.Hour),
		keeper:  &fakeHousekeeper{res: retention.Result{Success: true, TrackersDeleted: 2}},
		mapID:   mp.ID,
		channel: ch.ID,
		viewer:  mk("vera", domain.RoleViewer),
		chatter: mk("chad", domain.RoleChatter),
		editor:  mk("eddie", domain.RoleEditor),
		editor2: mk("emma", domain.RoleEditor),
		admin:   mk("ada", domain.RoleAdmin),
	}
	e.router = e.buildRouter(e.keeper)
	return e
}

func (e *env) handlers(keeper Housekeeper) (*Handlers, *services.AuthService, dbIdempotency) {
	accounts := services.NewAuthService(e.db, e.tokens)
	idem := dbIdempotency{db: e.db}
	deps := Deps{
		Accounts:    accounts,
		Catalog:     services.NewCatalogService(e.db),
		Writer:      services.NewCoordinator(e.db, e.hub, zerolog.Nop()),
		Reader:      services.NewQueryService(e.db),
		Idempotency: idem,
		Fabric:      e.hub,
		WS:          WSOptions{RateRPS: 1000, RateBurst: 1000},
		Log:         zerolog.Nop(),
	}
	if keeper != nil {
		deps.Housekeeper = keeper
	}
	return New(deps), accounts, idem
}

// buildRouter mirrors the production route table under /api.
func (e *env) buildRouter(keeper Housekeeper) *gin.Engine {
	h, accounts, idem := e.handlers(keeper)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/ws", h.ServeWS)

	api := r.Group("/api")
	api.Use(
		middleware.Authenticate(accounts.Resolve),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.lookup),
	)
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me)
	api.GET("/auth/users", h.ListUsers)
	api.POST("/auth/users", h.CreateUser)
	api.PATCH("/auth/users/:id/role", h.SetRole)
	api.GET("/episodes", h.ListEpisodes)
	api.POST("/episodes", h.CreateEpisode)
	api.GET("/maps", h.ListMaps)
	api.POST("/maps", h.CreateMap)
	api.GET("/channels", h.ListChannels)
	api.GET("/trackers", h.ListTrackers)
	api.POST("/trackers", h.CreateTracker)
	api.PATCH("/trackers/:id", h.UpdateTracker)
	api.DELETE("/trackers/:id", h.DeleteTracker)
	api.GET("/chat/history", h.ChatHistory)
	api.GET("/chat/stats", h.ChatStats)
	api.POST("/chat/messages", h.SendChatMessage)
	api.DELETE("/chat/messages/:id", h.DeleteChatMessage)
	api.GET("/online", h.Online)
	api.POST("/admin/housekeeping", h.RunHousekeeping)
	return r
}

func (e *env) token(u *domain.User) string {
	e.t.Helper()
	tok, _, err := e.tokens.Issue(auth.FromUser(u))
	if err != nil {
		e.t.Fatalf("issue token: %v", err)
	}
	return tok
}

// do sends a request as u (nil for anonymous). body is JSON-encoded unless it
// is already a string.
func (e *env) do(u *domain.User, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(u))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// trackerBody is a valid create payload for the seeded slot.
func (e *env) trackerBody(status float64) map[string]any {
	return map[string]any{
		"episode_number": 10,
		"map_id":         e.mapID,
		"channel_id":     e.channel,
		"status":         status,
	}
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want %d body=%s", w.Code, want, w.Body.String())
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, w, status)
	er := decodeJSON[ErrorResponse](t, w)
	if er.Code != code {
		t.Fatalf("code=%q want %q (message %q)", er.Code, code, er.Message)
	}
	if er.RequestID == "" {
		t.Fatalf("missing request_id in %+v", er)
	}
}
