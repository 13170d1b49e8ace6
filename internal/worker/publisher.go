package worker

import (
	"context"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/kafka"
	"github.com/polyphonica/booking/pkg/logger"
	"go.uber.org/zap"
)

// EventPublisher delivers one outbox message to the event bus
type EventPublisher interface {
	Publish(ctx context.Context, msg *domain.OutboxMessage) error
}

func messageHeaders(msg *domain.OutboxMessage) map[string]string {
	return map[string]string{
		"event_type":     msg.EventType,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"message_id":     msg.ID,
		"content_type":   "application/json",
		"source":         "polyphonica-booking",
	}
}

type recordProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// KafkaPublisher keys records by event so one event's changes stay ordered
type KafkaPublisher struct {
	producer recordProducer
}

func NewKafkaPublisher(producer recordProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	return p.producer.Produce(ctx, &kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.PartitionKey),
		Value:   msg.Payload,
		Headers: messageHeaders(msg),
	})
}

type amqpPublisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte, headers map[string]string) error
}

// RabbitPublisher routes on the event type, e.g. order.paid
type RabbitPublisher struct {
	publisher amqpPublisher
}

func NewRabbitPublisher(publisher amqpPublisher) *RabbitPublisher {
	return &RabbitPublisher{publisher: publisher}
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	return p.publisher.Publish(ctx, msg.EventType, msg.ID, msg.Payload, messageHeaders(msg))
}

// LogPublisher only logs each event. It drains the outbox when no bus is configured.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.Get().Named("event-log")}
}

func (p *LogPublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	p.log.Info("ledger event",
		zap.String("event_type", msg.EventType),
		zap.String("aggregate_id", msg.AggregateID),
		zap.String("partition_key", msg.PartitionKey),
		zap.ByteString("payload", msg.Payload),
	)
	return nil
}
