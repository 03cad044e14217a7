package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/schemafleet/schemafleet/internal/shared/events"
)

// EventPublisher publishes batch lifecycle events to Kafka. Delivery is
// asynchronous and best-effort: Publish only hands the message to the
// producer, and broker-side failures are logged by the error drainer
// rather than surfaced to callers.
type EventPublisher struct {
	producer sarama.AsyncProducer
	config   *Config
	log      logger.Logger
}

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// NewEventPublisher creates a new Kafka event publisher
func NewEventPublisher(config *Config, log logger.Logger) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Version = sarama.V3_3_1_0

	producer, err := sarama.NewAsyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	publisher := &EventPublisher{
		producer: producer,
		config:   config,
		log:      log,
	}

	go publisher.handleErrors()
	go publisher.handleSuccesses()

	return publisher, nil
}

// Publish enqueues an event for delivery
func (p *EventPublisher) Publish(ctx context.Context, event *events.Event) error {
	// Set event metadata
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Extract correlation ID from context
	if correlationID := ctx.Value("correlationID"); correlationID != nil {
		event.CorrelationID = correlationID.(string)
	}

	// Serialize event
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	// Create Kafka message
	message := &sarama.ProducerMessage{
		Topic: p.config.Topic,
		Key:   sarama.StringEncoder(event.AggregateID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("eventType"),
				Value: []byte(event.EventType),
			},
			{
				Key:   []byte("aggregateType"),
				Value: []byte(event.AggregateType),
			},
		},
		Timestamp: event.Timestamp,
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the publisher. The drain goroutines exit when the
// producer closes its channels.
func (p *EventPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	return nil
}

// handleErrors logs delivery failures
func (p *EventPublisher) handleErrors() {
	for err := range p.producer.Errors() {
		p.log.Warn("event delivery failed",
			"topic", err.Msg.Topic, "error", err.Err)
	}
}

// handleSuccesses drains the success channel
func (p *EventPublisher) handleSuccesses() {
	for range p.producer.Successes() {
	}
}
