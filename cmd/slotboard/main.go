// Command slotboard serves the live slot-status board: the REST API, the
// realtime websocket and the scheduled housekeeping sweep.
//
//	@title						slotboard API
//	@version					1.0
//	@description				Live slot-status board: trackers, chat, presence and housekeeping. Realtime events are served on /ws.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the session token.
package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/slotboard/internal/auth"
	"github.com/tbourn/slotboard/internal/config"
	httpapi "github.com/tbourn/slotboard/internal/http"
	"github.com/tbourn/slotboard/internal/observability"
	"github.com/tbourn/slotboard/internal/realtime"
	"github.com/tbourn/slotboard/internal/repo"
	"github.com/tbourn/slotboard/internal/retention"
	"github.com/tbourn/slotboard/internal/services"
	"github.com/tbourn/slotboard/internal/sysutil"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	logger := sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName)
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("slotboard stopped")
	}
	logger.Info().Msg("slotboard stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	version := sysutil.Version()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err := bootstrap(ctx, db, tokens, cfg, logger); err != nil {
		return err
	}

	hub := realtime.NewHub(logger)
	app := httpapi.App{DB: db, Hub: hub, Tokens: tokens, Log: logger}

	var sched *retention.Scheduler
	if cfg.Retention.Enabled {
		engine := retention.NewEngine(db, hub, retention.Options{
			TrackerMaxAge: cfg.Retention.TrackerMaxAge,
			ChatMaxAge:    cfg.Retention.ChatMaxAge,
			ChatMaxCount:  cfg.Retention.ChatMaxCount,
			Parallelism:   cfg.Retention.Parallelism,
			Notify:        cfg.Retention.Notify,
		}, logger)
		app.Housekeeper = engine
		sched, err = retention.NewScheduler(cfg.Retention.Schedule, cfg.Retention.Timezone, engine, logger)
		if err != nil {
			return err
		}
		sched.Start(cfg.Retention.RunOnStart)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, app, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Str("db", cfg.DB.Driver).Msg("slotboard listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sched != nil {
		if err := sched.Stop(sctx); err != nil {
			logger.Warn().Err(err).Msg("housekeeping did not stop in time")
		}
	}
	// Shutdown does not track hijacked connections, so websocket peers are
	// closed here first.
	if n := hub.CloseAll(sctx, websocket.CloseGoingAway, "server shutting down"); n > 0 {
		logger.Info().Int("peers", n).Msg("websocket sessions closed")
	}
	return srv.Shutdown(sctx)
}

func openStore(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// bootstrap applies the optional catalog seed and admin account.
func bootstrap(ctx context.Context, db *gorm.DB, tokens *auth.Tokens, cfg config.Config, logger zerolog.Logger) error {
	if cfg.SeedPath != "" {
		seed, err := repo.LoadSeed(cfg.SeedPath)
		if err != nil {
			return err
		}
		res, err := repo.ApplySeed(ctx, db, seed)
		if err != nil {
			return err
		}
		logger.Info().Str("path", cfg.SeedPath).
			Int("episodes", res.Episodes).Int("maps", res.Maps).Int("channels", res.Channels).
			Msg("catalog seeded")
	}
	if cfg.Auth.AdminUsername != "" {
		created, err := services.NewAuthService(db, tokens).
			BootstrapAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, cfg.Auth.AdminNickname)
		if err != nil {
			return err
		}
		if created {
			logger.Info().Str("username", cfg.Auth.AdminUsername).Msg("admin account created")
		}
	}
	return nil
}
