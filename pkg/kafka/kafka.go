package kafka

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/illegalcall/swift-letter/internal/config"
)

const (
	maxRetries = 10
	retryDelay = 3 * time.Second
)

// Brokers splits a comma separated broker list.
func Brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func waitForKafka(brokers []string) error {
	for i := 0; i < maxRetries; i++ {
		cfg := sarama.NewConfig()
		cfg.Net.DialTimeout = 1 * time.Second
		client, err := sarama.NewClient(brokers, cfg)
		if err == nil {
			client.Close()
			return nil
		}
		slog.Info("Waiting for Kafka to be ready...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	return fmt.Errorf("kafka not available after %d attempts", maxRetries)
}

func producerConfig(cfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = "swift-letter-api"
	c.Producer.Return.Successes = true
	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Retry.Max = cfg.RetryMax
	c.Producer.Retry.Backoff = cfg.RetryBackoff
	return c
}

func consumerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = "swift-letter-worker"
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	c.Consumer.Offsets.Initial = sarama.OffsetOldest
	c.Consumer.Return.Errors = true
	return c
}

func NewProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	brokers := Brokers(cfg.Broker)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if err := waitForKafka(brokers); err != nil {
		return nil, err
	}
	return sarama.NewSyncProducer(brokers, producerConfig(cfg))
}

func NewConsumer(cfg config.KafkaConfig) (sarama.ConsumerGroup, error) {
	brokers := Brokers(cfg.Broker)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if err := waitForKafka(brokers); err != nil {
		return nil, err
	}
	return sarama.NewConsumerGroup(brokers, cfg.Group, consumerConfig())
}
