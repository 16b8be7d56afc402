package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaProducerConfig contains configuration for the delta outbox producer
type KafkaProducerConfig struct {
	Brokers          []string
	DeltaTopic       string
	InstanceID       string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		DeltaTopic:       "seat-status-deltas",
		RetryMax:         3,
		TimeoutMs:        10000,             // 10 seconds
		RequiredAcks:     sarama.WaitForAll, // Wait for all in-sync replicas
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000, // 1MB
	}
}

// KafkaDeltaProducer mirrors every seat-status transition onto the broker so
// subscribers attached to a different engine instance still see it.
type KafkaDeltaProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
}

// NewKafkaDeltaProducer creates a new delta outbox producer
func NewKafkaDeltaProducer(config *KafkaProducerConfig) (*KafkaDeltaProducer, error) {
	saramaConfig := sarama.NewConfig()

	// Producer configuration
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes

	// Enable idempotent producer
	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keyed by venue:seat keeps one seat's timeline ordered
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaDeltaProducer{
		producer: producer,
		config:   config,
	}, nil
}

// Publish sends deltas to the outbox topic
func (p *KafkaDeltaProducer) Publish(ctx context.Context, deltas ...Delta) error {
	for i := range deltas {
		d := deltas[i]
		d.Origin = p.config.InstanceID
		if d.At.IsZero() {
			d.At = time.Now().UTC()
		}

		payload, err := d.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to marshal delta: %w", err)
		}

		message := &sarama.ProducerMessage{
			Topic:     p.config.DeltaTopic,
			Key:       sarama.StringEncoder(d.PartitionKey()),
			Value:     sarama.ByteEncoder(payload),
			Timestamp: d.At,
			Headers: []sarama.RecordHeader{
				{Key: []byte("status"), Value: []byte(d.NewStatus)},
				{Key: []byte("origin"), Value: []byte(d.Origin)},
			},
		}

		if _, _, err := p.producer.SendMessage(message); err != nil {
			return fmt.Errorf("failed to publish delta: %w", err)
		}
	}
	return nil
}

// Close shuts the underlying producer down
func (p *KafkaDeltaProducer) Close() error {
	return p.producer.Close()
}

// HealthCheck verifies broker connectivity
func (p *KafkaDeltaProducer) HealthCheck(ctx context.Context) error {
	if p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	return nil
}
