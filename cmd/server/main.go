package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carewire/hospital-router/internal/agents/appointment"
	"github.com/carewire/hospital-router/internal/agents/general"
	"github.com/carewire/hospital-router/internal/agents/medical"
	"github.com/carewire/hospital-router/internal/api"
	"github.com/carewire/hospital-router/internal/classifier"
	"github.com/carewire/hospital-router/internal/config"
	"github.com/carewire/hospital-router/internal/contextmgr"
	"github.com/carewire/hospital-router/internal/dispatch"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/handoff"
	"github.com/carewire/hospital-router/internal/oracle"
	oracleGemini "github.com/carewire/hospital-router/internal/oracle/gemini"
	"github.com/carewire/hospital-router/internal/repository/postgres"
	redisrepo "github.com/carewire/hospital-router/internal/repository/redis"
	"github.com/carewire/hospital-router/internal/router"
	"github.com/carewire/hospital-router/internal/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting hospital call router")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Call log database. Optional: without it the router serves calls but
	// keeps no durable transcript.
	var (
		db         *postgres.DB
		transcript domain.TranscriptRepository
	)
	if pg, err := postgres.NewDB(ctx, cfg.Database); err != nil {
		log.Warn().Err(err).Msg("Call log database unavailable, transcripts disabled")
	} else {
		db = pg
		defer db.Close()
		transcript = postgres.NewTranscriptRepository(db.Pool)
	}

	// Redis for context snapshots and rate limiting. Optional: context
	// falls back to local snapshot files.
	var (
		redisClient   *redisrepo.Client
		snapshotStore domain.SnapshotStore
	)
	if rc, err := redisrepo.NewClient(ctx, cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using file snapshots and no rate limiting")
		fs, err := contextmgr.NewFileStore("./data/context")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create snapshot directory")
		}
		snapshotStore = fs
	} else {
		redisClient = rc
		defer redisClient.Close()
		snapshotStore = redisrepo.NewContextStore(redisClient, 0)
	}

	// Medical knowledge base. The medical handler is required, so this
	// connection is not optional.
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())
	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping MongoDB")
	}

	// Classification oracle.
	var provider oracle.Provider
	if cfg.Oracle.Gemini.APIKey != "" {
		provider = oracleGemini.NewProvider(cfg.Oracle.Gemini)
		log.Info().Str("model", cfg.Oracle.Gemini.Model).Msg("Registered Gemini classification oracle")
	} else {
		log.Warn().Msg("No oracle API key configured, ambiguous queries fall back to general")
	}
	cls := classifier.New(provider, cfg.Oracle.Timeout, cfg.Router.FuzzyThreshold)

	// Conversation state.
	contexts := contextmgr.NewManager(snapshotStore)
	sessions := session.NewStore(cfg.Router.IdleTimeout, cfg.Router.HardCleanup)
	sessions.StartSweeper(ctx, cfg.Router.SweepInterval, func(evicted []string) {
		contexts.ReleaseAll(context.Background(), evicted)
	})

	// Domain handlers.
	apptAgent, err := appointment.New(ctx, cfg.Appointment.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open appointment store")
	}
	defer apptAgent.Close()

	medAgent, err := medical.New(ctx, mongoClient.Database(cfg.Mongo.Database))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize medical knowledge base")
	}

	dispatcher := dispatch.NewDispatcher(cfg.Router.HandlerTimeout)
	for _, h := range []dispatch.DomainHandler{apptAgent, medAgent, general.New()} {
		if err := dispatcher.Register(h); err != nil {
			log.Fatal().Err(err).Msg("Failed to register handler")
		}
	}

	protocol := handoff.NewProtocol(contexts, cfg.Router.HandoffConfidence)

	callRouter, err := router.New(cls, sessions, contexts, dispatcher, protocol, transcript, router.Options{
		HistoryWindow:      cfg.Router.HistoryWindow,
		MaxHandoffsPerTurn: cfg.Router.MaxHandoffsPerTurn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize router")
	}

	httpRouter := api.NewRouter(cfg, callRouter, transcript, db, redisClient)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
