package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenMined/network-ensemble-extras/clients/go/syftrpc"
	"github.com/OpenMined/network-ensemble-extras/internal/api"
	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/config"
	"github.com/OpenMined/network-ensemble-extras/internal/contact"
	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
	"github.com/OpenMined/network-ensemble-extras/internal/proxy"
	"github.com/OpenMined/network-ensemble-extras/internal/store"
)

// turnSlack is added to the turn budget for the write deadline and the
// session lock, so a turn times out before either expires.
const turnSlack = 30 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Router directory: PostgreSQL when configured, SQLite otherwise
	var routers store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		routers = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		routers = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer routers.Close()

	if cfg.RoutersFile != "" {
		seed, err := store.LoadSeed(cfg.RoutersFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("router seed failed")
		}
		if err := store.Seed(ctx, routers, seed); err != nil {
			logger.Fatal().Err(err).Msg("router seed failed")
		}
		logger.Info().Int("routers", len(seed)).Str("file", cfg.RoutersFile).Msg("routers seeded")
	}

	// Sessions: Redis when configured, process memory otherwise
	var sessions store.SessionStore
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		redisStore.SetLockTTL(cfg.TurnBudget() + turnSlack)
		sessions = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		sessions = store.NewMemoryStore()
		logger.Warn().Msg("redis not configured, sessions kept in memory")
	}

	// Directory and dispatch client
	client := syftrpc.NewClient(cfg.DirectoryURL)
	client.Model = cfg.ChatModel
	client.Logger = logger.With().Str("component", "syftrpc").Logger()
	client.Polling.MaxAttempts = cfg.PollMaxAttempts
	client.Polling.Interval = cfg.PollInterval
	client.Polling.OnAttempt = func(_ int, state syftrpc.PollState) {
		metrics.PollAttempts.WithLabelValues(state.String()).Inc()
	}
	client.SetRateLimit(cfg.DispatchRate, 1)

	orch := chat.NewOrchestrator(client, client, chat.Options{
		Logger:         logger.With().Str("component", "chat").Logger(),
		ParallelSearch: cfg.ParallelSearch,
	})

	deps := api.Deps{
		Routers:  routers,
		Sessions: sessions,
		Redis:    redisStore,
		Chat:     orch,
	}

	if cfg.ContactEnabled() {
		deps.Contact = contact.NewClient(cfg.HubSpotPortalID, cfg.HubSpotFormGUID)
	}

	if cfg.ProxyUpstream != "" {
		px, err := proxy.New(cfg.ProxyUpstream, logger.With().Str("component", "proxy").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid proxy upstream")
		}
		deps.Proxy = px
	}

	// Create router
	router := api.NewRouter(logger, cfg, deps)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TurnBudget() + turnSlack,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("directory", cfg.DirectoryURL).
			Dur("turn_budget", cfg.TurnBudget()).
			Msg("starting routerchat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
