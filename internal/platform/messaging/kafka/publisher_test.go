package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/schemafleet/schemafleet/internal/shared/events"
	"github.com/stretchr/testify/require"
)

func newMockPublisher(t *testing.T) (*EventPublisher, *mocks.AsyncProducer) {
	t.Helper()

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer := mocks.NewAsyncProducer(t, cfg)

	p := &EventPublisher{
		producer: producer,
		config:   &Config{Topic: "migration-events"},
		log:      logger.NewNop(),
	}
	go p.handleErrors()
	go p.handleSuccesses()

	return p, producer
}

func batchEvent(t *testing.T, batchID string) *events.Event {
	t.Helper()

	event, err := events.NewEvent(batchID, "migration_batch",
		events.EventTypeBatchStarted, events.BatchStarted{BatchID: batchID})
	require.NoError(t, err)
	return event
}

func TestPublishDeliversEvent(t *testing.T) {
	p, producer := newMockPublisher(t)
	producer.ExpectInputAndSucceed()

	require.NoError(t, p.Publish(context.Background(), batchEvent(t, "batch-1")))
	require.NoError(t, p.Close())
}

func TestPublishUnaffectedByEarlierDeliveryFailure(t *testing.T) {
	p, producer := newMockPublisher(t)
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectInputAndSucceed()

	require.NoError(t, p.Publish(context.Background(), batchEvent(t, "batch-1")))

	// Let the first message's delivery failure surface; it belongs to
	// the error drainer, not to the next Publish call.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, p.Publish(context.Background(), batchEvent(t, "batch-2")))
	require.NoError(t, p.Close())
}

func TestCloseAfterDeliveryFailure(t *testing.T) {
	p, producer := newMockPublisher(t)
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	require.NoError(t, p.Publish(context.Background(), batchEvent(t, "batch-1")))
	require.NoError(t, p.Close())
}
