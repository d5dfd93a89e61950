// Package worker consumes usage events from Kafka, keeps running tallies in
// Redis and refreshes the public stats view.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/swift-letter/internal/config"
	"github.com/illegalcall/swift-letter/internal/metrics"
	"github.com/illegalcall/swift-letter/internal/models"
	"github.com/illegalcall/swift-letter/internal/repository"
)

const (
	keyTotals      = "usage:totals"
	keyDailyPrefix = "usage:daily:"
	keyUserPrefix  = "usage:user:"

	dailyRetention = 35 * 24 * time.Hour
)

var errInvalidEvent = errors.New("invalid usage event")

type Worker struct {
	cfg      *config.Config
	redis    redis.UniversalClient
	stats    repository.StatsRepository
	consumer sarama.ConsumerGroup
	metrics  *metrics.Metrics
	logger   *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}

	// dirty is set by every tallied event and cleared by a stats refresh
	dirty atomic.Bool
	sleep func(time.Duration)
}

// NewWorker wires the consumer. A nil redis client skips tallies; a nil stats
// repository skips refreshes.
func NewWorker(cfg *config.Config, rdb redis.UniversalClient, stats repository.StatsRepository,
	consumer sarama.ConsumerGroup, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	logger.Info("Initializing new Worker", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.Group)
	return &Worker{
		cfg:      cfg,
		redis:    rdb,
		stats:    stats,
		consumer: consumer,
		metrics:  m,
		logger:   logger,
		ready:    make(chan struct{}),
		sleep:    time.Sleep,
	}
}

// Start consumes until ctx is cancelled or the process receives SIGINT or
// SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	topics := []string{w.cfg.Kafka.Topic}
	w.logger.Info("Starting worker", "topics", topics)

	go func() {
		for err := range w.consumer.Errors() {
			w.logger.Error("Kafka consumer error received", "error", err)
		}
	}()

	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				w.logger.Error("Error from consumer.Consume", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go w.refreshLoop(ctx)

	select {
	case <-w.ready:
		w.logger.Info("Worker setup complete; consumer ready")
	case <-ctx.Done():
	}

	<-ctx.Done()
	w.logger.Info("Worker shutting down gracefully")
	<-consumeDone

	// flush tallies that arrived since the last tick
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	w.refreshIfDirty(flushCtx)
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	w.logger.Info("Consumer group session setup complete")
	w.readyOnce.Do(func() { close(w.ready) })
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	w.logger.Info("Consumer group session cleanup complete")
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
// Messages are marked even when they fail so a poison event cannot stall the
// partition.
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := w.processMessage(session.Context(), message); err != nil {
				w.logger.Error("Failed to process usage event",
					"error", err, "offset", message.Offset, "partition", message.Partition)
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	if event.Type == "" {
		return fmt.Errorf("%w: missing type", errInvalidEvent)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = msg.Timestamp
	}

	var err error
	attempts := max(w.cfg.Kafka.RetryMax, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = w.tally(ctx, event); err == nil {
			break
		}
		w.logger.Warn("Tally failed", "type", event.Type, "attempt", attempt, "error", err)
		if attempt < attempts {
			w.sleep(w.cfg.Kafka.RetryBackoff)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to tally %s: %w", event.Type, err)
	}

	w.metrics.Events.WithLabelValues(string(event.Type)).Inc()
	w.dirty.Store(true)
	return nil
}

// tally bumps the all-time, daily and per-user counters in one round trip.
func (w *Worker) tally(ctx context.Context, e models.Event) error {
	if w.redis == nil {
		return nil
	}
	field := string(e.Type)
	day := keyDailyPrefix + e.OccurredAt.UTC().Format(time.DateOnly)

	_, err := w.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, keyTotals, field, 1)
		pipe.HIncrBy(ctx, day, field, 1)
		pipe.Expire(ctx, day, dailyRetention)
		if e.UserID != "" {
			pipe.HIncrBy(ctx, keyUserPrefix+e.UserID, field, 1)
		}
		return nil
	})
	return err
}

// Totals returns the all-time counter per event type.
func (w *Worker) Totals(ctx context.Context) (map[models.EventType]int64, error) {
	if w.redis == nil {
		return map[models.EventType]int64{}, nil
	}
	raw, err := w.redis.HGetAll(ctx, keyTotals).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage totals: %w", err)
	}
	out := make(map[models.EventType]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			continue
		}
		out[models.EventType(k)] = n
	}
	return out, nil
}

func (w *Worker) refreshLoop(ctx context.Context) {
	interval := w.cfg.Worker.StatsRefreshInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refreshIfDirty(ctx)
		}
	}
}

// refreshIfDirty recomputes the stats view when events arrived since the last
// refresh. Bursts of events collapse into one refresh per tick.
func (w *Worker) refreshIfDirty(ctx context.Context) bool {
	if w.stats == nil || !w.dirty.Swap(false) {
		return false
	}
	if err := w.stats.Refresh(ctx); err != nil {
		w.dirty.Store(true)
		w.metrics.StatsRefresh.WithLabelValues("error").Inc()
		w.logger.Error("Failed to refresh stats", "error", err)
		return false
	}
	w.metrics.StatsRefresh.WithLabelValues("ok").Inc()
	w.logger.Info("Stats refreshed")
	return true
}
