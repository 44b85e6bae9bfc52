// Package events publishes admission changes to Kafka so downstream systems
// can follow the patient list without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
)

const (
	EventAdmissionUpserted = "admission.upserted"
	EventSource            = "imaging-gateway"
)

// Event is the envelope written to the topic.
type Event struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Source    string           `json:"source"`
	Timestamp time.Time        `json:"timestamp"`
	Data      admission.Record `json:"data"`
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one event per stored admission. It satisfies
// admission.Publisher.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaPublisher returns a synchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "kafka").Str("topic", topic).Logger(),
	}
}

// PublishAdmission keys the message by admission id so updates to one patient
// stay ordered within a partition.
func (p *KafkaPublisher) PublishAdmission(ctx context.Context, rec admission.Record) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      EventAdmissionUpserted,
		Source:    EventSource,
		Timestamp: time.Now().UTC(),
		Data:      rec,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID).Str("admission", rec.ID).Msg("failed to publish event")
		return fmt.Errorf("publish admission %s: %w", rec.ID, err)
	}

	p.logger.Debug().Str("event_id", event.ID).Str("admission", rec.ID).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
