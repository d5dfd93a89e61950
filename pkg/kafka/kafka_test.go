package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"

	"github.com/illegalcall/swift-letter/internal/config"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka:9092"}, Brokers("kafka:9092"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers(" a:9092, ,b:9092 "))
	assert.Empty(t, Brokers(""))
}

func TestProducerConfig(t *testing.T) {
	c := producerConfig(config.KafkaConfig{RetryMax: 7, RetryBackoff: 250 * time.Millisecond})

	assert.True(t, c.Producer.Return.Successes)
	assert.Equal(t, 7, c.Producer.Retry.Max)
	assert.Equal(t, 250*time.Millisecond, c.Producer.Retry.Backoff)
	assert.NoError(t, c.Validate())
}

func TestConsumerConfig(t *testing.T) {
	c := consumerConfig()

	assert.Equal(t, sarama.OffsetOldest, c.Consumer.Offsets.Initial)
	assert.True(t, c.Consumer.Return.Errors)
	assert.NoError(t, c.Validate())
}

func TestNewProducerWithoutBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{})
	assert.Error(t, err)
	_, err = NewConsumer(config.KafkaConfig{Broker: " , "})
	assert.Error(t, err)
}
