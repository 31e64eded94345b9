// Command server runs the report backend HTTP API.
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/visionary-ai/go-report-backend/internal/agent"
	"github.com/visionary-ai/go-report-backend/internal/assets"
	"github.com/visionary-ai/go-report-backend/internal/config"
	"github.com/visionary-ai/go-report-backend/internal/events"
	httpapi "github.com/visionary-ai/go-report-backend/internal/http"
	"github.com/visionary-ai/go-report-backend/internal/observability"
	"github.com/visionary-ai/go-report-backend/internal/repo"
	"github.com/visionary-ai/go-report-backend/internal/services"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	agentClient := agent.New(cfg.Agent.BaseURL, cfg.Agent.Timeout)

	var store services.AssetStore
	switch cfg.Assets.Backend {
	case "supabase":
		store = assets.NewSupabaseStore(cfg.Assets.URL, cfg.Assets.Key, cfg.Assets.Bucket)
	default:
		store = assets.NewMemoryStore()
	}

	var publisher services.EventPublisher
	if cfg.Events.URL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connect failed")
		}
		defer pub.Close()
		publisher = pub
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, httpapi.Dependencies{
		Analyzer: agentClient,
		Replier:  agentClient,
		Assets:   store,
		Events:   publisher,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
