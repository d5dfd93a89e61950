package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/swift-letter/internal/config"
	"github.com/illegalcall/swift-letter/internal/metrics"
	"github.com/illegalcall/swift-letter/internal/pkg/supabase"
	"github.com/illegalcall/swift-letter/internal/repository"
	"github.com/illegalcall/swift-letter/internal/worker"
	"github.com/illegalcall/swift-letter/pkg/database"
	"github.com/illegalcall/swift-letter/pkg/kafka"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file loaded", "error", err)
	}

	// Load configuration
	cfg := config.LoadConfig()
	ctx := context.Background()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg.Database.URL, cfg.Redis)
	if err != nil {
		slog.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	var rdb redis.UniversalClient
	if db.Redis != nil {
		rdb = db.Redis
	} else {
		slog.Warn("REDIS_ADDR not set; usage tallies are disabled")
	}

	supa, err := supabase.NewClients(cfg.Supabase)
	if err != nil {
		supa = nil
	}
	var stats repository.StatsRepository
	if store, err := db.Store(supa, cfg.Worker.StatsRPC); err == nil {
		stats = store.Stats
	} else {
		slog.Warn("Stats refresh disabled", "error", err)
	}

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(cfg.Kafka)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	slog.Info("Connected to Kafka", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.Group)

	// Create and start worker
	w := worker.NewWorker(cfg, rdb, stats, consumer, metrics.New(), slog.Default())
	if err := w.Start(ctx); err != nil {
		slog.Error("Worker error", "error", err)
		os.Exit(1)
	}
}
