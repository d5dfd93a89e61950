package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	"github.com/illegalcall/swift-letter/internal/api"
	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/config"
	"github.com/illegalcall/swift-letter/internal/events"
	"github.com/illegalcall/swift-letter/internal/functions"
	"github.com/illegalcall/swift-letter/internal/metrics"
	"github.com/illegalcall/swift-letter/internal/pkg/supabase"
	"github.com/illegalcall/swift-letter/internal/ratelimit"
	"github.com/illegalcall/swift-letter/internal/storage"
	"github.com/illegalcall/swift-letter/pkg/database"
	"github.com/illegalcall/swift-letter/pkg/kafka"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file loaded", "error", err)
	}

	// Load configuration
	cfg := config.LoadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg.Database.URL, cfg.Redis)
	if err != nil {
		slog.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.VerifySchema(ctx); err != nil {
		slog.Error("Database schema check failed", "error", err)
		os.Exit(1)
	}

	supa, err := supabase.NewClients(cfg.Supabase)
	if err != nil {
		slog.Warn("Supabase service client unavailable", "error", err)
		supa = nil
	}

	deps := api.Deps{
		Metrics: metrics.New(),
		Logger:  logger,
	}

	if store, err := db.Store(supa, cfg.Worker.StatsRPC); err == nil {
		deps.Store = store
	} else {
		slog.Warn("Persistence disabled", "error", err)
	}

	switch {
	case supa != nil:
		deps.Storage = storage.NewSupabaseStorage(supa.Service.Storage)
		deps.Verifier = auth.NewGoTrueVerifier(supa.Auth)
		deps.Sessions = auth.NewGoTrueSessions(supa.Auth)
	case !cfg.IsProduction():
		local, err := storage.NewLocalStorage(cfg.Storage.TempDir, cfg.Server.BaseURL)
		if err != nil {
			slog.Error("Failed to initialize local storage", "error", err)
			os.Exit(1)
		}
		deps.Storage = local
		deps.FilesDir = cfg.Storage.TempDir
	}

	if cfg.Supabase.HasPublic() {
		deps.Functions = functions.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey,
			cfg.Functions.Timeout, cfg.Functions.RetryBackoff)
	}

	if db.Redis != nil {
		deps.WaitlistLimiter = ratelimit.NewRedisLimiter(db.Redis, "waitlist", cfg.Limits.WaitlistMax, cfg.Limits.WaitlistWindow)
		deps.FeedbackLimiter = ratelimit.NewRedisLimiter(db.Redis, "feedback", cfg.Limits.FeedbackMax, cfg.Limits.FeedbackWindow)
	} else {
		waitlist := ratelimit.NewMemoryLimiter(cfg.Limits.WaitlistMax, cfg.Limits.WaitlistWindow)
		feedback := ratelimit.NewMemoryLimiter(cfg.Limits.FeedbackMax, cfg.Limits.FeedbackWindow)
		go waitlist.Run(ctx, cfg.Limits.PruneInterval)
		go feedback.Run(ctx, cfg.Limits.PruneInterval)
		deps.WaitlistLimiter = waitlist
		deps.FeedbackLimiter = feedback
	}

	// Initialize Kafka producer
	var producer sarama.SyncProducer
	if cfg.Kafka.Broker != "" {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			slog.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		deps.Events = events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
		slog.Info("Connected to Kafka", "topic", cfg.Kafka.Topic)
	}

	server := api.NewServer(cfg, deps)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
	if err := server.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
