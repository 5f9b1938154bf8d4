// Command server runs the session store HTTP API.
//
// @title        Session Store API
// @version      0.1.0
// @description  Conversation threads, message history and audit trail for multi-agent assistants.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-session-store/docs"
	"github.com/tbourn/go-session-store/internal/config"
	httpapi "github.com/tbourn/go-session-store/internal/http"
	"github.com/tbourn/go-session-store/internal/observability"
	"github.com/tbourn/go-session-store/internal/repo"
	"github.com/tbourn/go-session-store/internal/services"
	"github.com/tbourn/go-session-store/internal/sysutil"
)

// turnPurgeInterval is how often expired turn records are swept.
const turnPurgeInterval = 10 * time.Minute

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	logger := sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, cfg.AppVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	session := services.NewSessionService(db, logger, services.SessionOptions{
		HistoryDefaultLimit: cfg.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.HistoryMaxLimit,
		TurnTTL:             cfg.IdempotencyTTL,
		AuditTimeout:        cfg.AuditTimeout,
	})

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The limiter fails open, so an unreachable Redis degrades rather than blocks startup.
			logger.Warn().Err(err).Msg("redis unreachable at startup")
		}
	}

	docs.SwaggerInfo.Title = cfg.AppName + " API"
	docs.SwaggerInfo.Version = cfg.AppVersion
	docs.SwaggerInfo.BasePath = cfg.APIBasePath

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Session: session, Redis: rdb}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeTurns(ctx, session, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db_driver", cfg.DBDriver).Bool("redis", rdb != nil).Msg("listening")
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
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	// Drain background audit writes before the pool closes.
	return session.Close(sctx)
}

// purgeTurns sweeps expired turn records until ctx ends.
func purgeTurns(ctx context.Context, session *services.SessionService, logger zerolog.Logger) {
	t := time.NewTicker(turnPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := session.PurgeExpiredTurns(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("purge expired turns")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("purged", n).Msg("expired turns removed")
			}
		}
	}
}
