package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	AggregateID   string                 `json:"aggregateId"`
	AggregateType string                 `json:"aggregateType"`
	EventType     string                 `json:"eventType"`
	EventVersion  int                    `json:"eventVersion"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlationId"`
	Metadata      map[string]interface{} `json:"metadata"`
	Payload       json.RawMessage        `json:"payload"`
}

// NewEvent creates a new event
func NewEvent(aggregateID, aggregateType, eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventVersion:  1,
		Timestamp:     time.Now(),
		Metadata:      make(map[string]interface{}),
		Payload:       payloadBytes,
	}, nil
}

// Migration batch event types
const (
	EventTypeBatchStarted   = "migration.batch.started"
	EventTypeBatchCompleted = "migration.batch.completed"
	EventTypeBatchFailed    = "migration.batch.failed"
)

// BatchStarted is published when a migration batch begins execution
type BatchStarted struct {
	BatchID         string    `json:"batchId"`
	TotalOperations int       `json:"totalOperations"`
	DatabaseCount   int       `json:"databaseCount"`
	ExecutedBy      string    `json:"executedBy"`
	StartedAt       time.Time `json:"startedAt"`
}

// BatchCompleted is published when every schema in the batch migrated successfully
type BatchCompleted struct {
	BatchID         string    `json:"batchId"`
	TotalOperations int       `json:"totalOperations"`
	CompletedAt     time.Time `json:"completedAt"`
}

// BatchFailed is published when a batch aborts
type BatchFailed struct {
	BatchID          string    `json:"batchId"`
	Error            string    `json:"error"`
	RollbacksPlanned int       `json:"rollbacksPlanned"`
	FailedAt         time.Time `json:"failedAt"`
}
