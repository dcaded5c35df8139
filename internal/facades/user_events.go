package facades

import (
	"context"
	"encoding/json"

	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"github.com/sbilibin2017/user-bootstrap/internal/models"
	"github.com/segmentio/kafka-go"
)

// EventTypeUserSeeded is sent in the "event-type" header of seed events.
const EventTypeUserSeeded = "user.seeded"

// MessageWriter is the subset of *kafka.Writer the facade relies on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// UserEventsKafkaFacade publishes bootstrap events to Kafka.
type UserEventsKafkaFacade struct {
	writer MessageWriter
}

// NewUserEventsKafkaFacade creates a new facade with a Kafka writer.
func NewUserEventsKafkaFacade(writer MessageWriter) *UserEventsKafkaFacade {
	return &UserEventsKafkaFacade{writer: writer}
}

// NewKafkaWriter builds a writer for the topic that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// PublishUserSeeded sends the event keyed by username.
func (f *UserEventsKafkaFacade) PublishUserSeeded(ctx context.Context, event models.UserSeededEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Username),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeUserSeeded)},
			{Key: "run-id", Value: []byte(event.RunID)},
		},
		Time: event.SeededAt,
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		logger.Log.Errorw("failed to publish event via kafka",
			"event", EventTypeUserSeeded, "username", event.Username, "error", err)
		return err
	}

	logger.Log.Infow("event published", "event", EventTypeUserSeeded, "username", event.Username)
	return nil
}
