// Command server runs the report HTTP API.
//
//	@title						Report Backend API
//	@version					1.0
//	@description				Signed-session report generation with idempotent caching.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	InitData
//	@in							header
//	@name						Authorization
//	@description				"tma <init data>" signed by the platform bot token.
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
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-report-backend/docs"
	"github.com/tbourn/go-report-backend/internal/config"
	"github.com/tbourn/go-report-backend/internal/generation"
	httpapi "github.com/tbourn/go-report-backend/internal/http"
	"github.com/tbourn/go-report-backend/internal/observability"
	"github.com/tbourn/go-report-backend/internal/repo"
	"github.com/tbourn/go-report-backend/internal/services"
	"github.com/tbourn/go-report-backend/internal/sysutil"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments pass the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.SetupLogger(os.Stderr, "info", false)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	dsn := cfg.DBPath
	if cfg.DBDriver == repo.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	db, err := repo.Open(cfg.DBDriver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	gw, err := generation.NewClient(generation.Config{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Timeout:     cfg.Generation.Timeout,
		MaxRetries:  cfg.Generation.MaxRetries,
		Temperature: cfg.Generation.Temperature,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("generation client")
	}

	// The interface stays nil when Redis is not configured.
	var cache services.ResultCache
	if cfg.RedisURL != "" {
		rc, err := services.NewRedisResultCache(cfg.RedisURL, cfg.ResultCacheTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis result cache")
		}
		defer rc.Close()
		cache = rc
		log.Info().Dur("ttl", cfg.ResultCacheTTL).Msg("result cache enabled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, gw, cache, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	if cfg.WriteTimeout <= cfg.Generation.Timeout {
		log.Warn().
			Dur("write_timeout", cfg.WriteTimeout).
			Dur("generation_timeout", cfg.Generation.Timeout).
			Msg("write timeout does not outlast generation; slow reports will be cut off")
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DBDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
