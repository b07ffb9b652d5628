package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

// Topic suffixes; the configured prefix is joined with a dot.
const (
	TopicIteration = "expansion.iteration"
	TopicOutcome   = "expansion.outcome"
)

// Event types.
const (
	EventIteration = "expansion.iteration.recorded"
	EventOutcome   = "expansion.run.finished"
)

const (
	schemaVersion = "v1"
	eventSource   = "lsoma"
)

// TopicName joins prefix and suffix.
func TopicName(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return strings.TrimSuffix(prefix, ".") + "." + suffix
}

// EventEnvelope wraps every payload on the wire.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	RunID         string            `json:"run_id"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType, runID string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		RunID:         runID,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

// ToMessage renders the envelope keyed by run ID so one run's events stay
// ordered on a single partition.
func (e *EventEnvelope) ToMessage(topic string) (Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return Message{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return Message{
		Topic: topic,
		Key:   []byte(e.RunID),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source":         e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// decodeEnvelope parses a message value.
func decodeEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// Conn abstracts the admin calls of *kafka.Conn.
type Conn interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the run topics.
type TopicManager struct {
	conn   Conn
	logger logging.Logger
}

// DialTopicManager connects to the first broker.
func DialTopicManager(ctx context.Context, brokers []string, log logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "kafka brokers required")
	}
	var d kafka.Dialer
	conn, err := d.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to dial kafka")
	}
	return NewTopicManager(conn, log), nil
}

// NewTopicManager wraps conn.
func NewTopicManager(conn Conn, log logging.Logger) *TopicManager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &TopicManager{conn: conn, logger: log.Named("kafka")}
}

// EnsureTopics creates the iteration and outcome topics under prefix when
// missing.
func (m *TopicManager) EnsureTopics(prefix string, partitions, replication int) error {
	for _, suffix := range []string{TopicIteration, TopicOutcome} {
		name := TopicName(prefix, suffix)
		if parts, err := m.conn.ReadPartitions(name); err == nil && len(parts) > 0 {
			continue
		}
		err := m.conn.CreateTopics(kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
		if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create topic").WithDetailf("topic=%s", name)
		}
		m.logger.Info("topic ensured", logging.String("topic", name))
	}
	return nil
}

// Close closes the admin connection.
func (m *TopicManager) Close() error { return m.conn.Close() }
