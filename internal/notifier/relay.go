package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seatly/pkg/logger"

	"github.com/IBM/sarama"
)

// RelayConfig contains consumer-group configuration for the delta relay
type RelayConfig struct {
	Brokers          []string
	GroupID          string
	DeltaTopic       string
	InstanceID       string
	SessionTimeoutMs int
	HeartbeatMs      int
	RetryBackoffMs   int
	OffsetOldest     bool
}

// DefaultRelayConfig returns a default relay configuration
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Brokers:          []string{"localhost:9092"},
		GroupID:          "seatly-delta-relay",
		DeltaTopic:       "seat-status-deltas",
		SessionTimeoutMs: 30000,
		HeartbeatMs:      3000,
		RetryBackoffMs:   100,
		OffsetOldest:     false,
	}
}

// Relay consumes seat-status deltas other engine instances publish to the
// broker and feeds them into the local hub. Deltas this instance produced
// are skipped; the hub already delivered them synchronously.
type Relay struct {
	consumerGroup sarama.ConsumerGroup
	config        *RelayConfig
	sink          Publisher
	log           *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay creates a delta relay feeding the given sink, typically a Fanout
// of the local hub and the availability index.
func NewRelay(config *RelayConfig, sink Publisher, log *logger.Logger) (*Relay, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.Retry.Backoff = time.Duration(config.RetryBackoffMs) * time.Millisecond
	saramaConfig.Consumer.Return.Errors = true

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	if log == nil {
		log = logger.GetDefault()
	}

	return &Relay{
		consumerGroup: consumerGroup,
		config:        config,
		sink:          sink,
		log:           log,
	}, nil
}

// Start begins consuming; it returns immediately and runs until Stop
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range r.consumerGroup.Errors() {
			r.log.WithError(err).Warn("delta relay consumer error")
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		handler := &relayHandler{relay: r}
		for {
			if err := r.consumerGroup.Consume(ctx, []string{r.config.DeltaTopic}, handler); err != nil {
				r.log.WithError(err).Warn("delta relay consume loop error")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

// Stop shuts the relay down and waits for the consume loop to exit
func (r *Relay) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	err := r.consumerGroup.Close()
	r.wg.Wait()
	return err
}

// relayHandler implements sarama.ConsumerGroupHandler
type relayHandler struct {
	relay *Relay
}

func (h *relayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *relayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *relayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		delta, err := DeltaFromJSON(message.Value)
		if err != nil {
			h.relay.log.WithError(err).Warn("discarding malformed delta message")
			session.MarkMessage(message, "")
			continue
		}

		// Skip deltas this instance emitted; the local fanout already saw them.
		if delta.Origin != "" && delta.Origin == h.relay.config.InstanceID {
			session.MarkMessage(message, "")
			continue
		}

		if err := h.relay.sink.Publish(session.Context(), delta); err != nil {
			h.relay.log.WithError(err).Warn("failed to fan relayed delta out")
		}
		session.MarkMessage(message, "")
	}
	return nil
}
