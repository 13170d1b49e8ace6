package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ProducerConfig holds Kafka producer settings
type ProducerConfig struct {
	Brokers       []string
	ClientID      string
	MaxRetries    int
	RetryInterval time.Duration
}

// Message is a record to produce
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer produces records synchronously with idempotent writes
type Producer struct {
	client *kgo.Client
}

// NewProducer creates a client and waits until a broker answers
func NewProducer(ctx context.Context, cfg *ProducerConfig) (*Producer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(cfg.RetryInterval)
		}
		if lastErr = client.Ping(ctx); lastErr == nil {
			return &Producer{client: client}, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to reach kafka after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// Produce writes msg and waits for the broker acknowledgement
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	record := &kgo.Record{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// ProduceJSON marshals value and produces it under key
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka payload: %w", err)
	}
	return p.Produce(ctx, &Message{Topic: topic, Key: []byte(key), Value: data, Headers: headers})
}

// Close flushes and closes the client
func (p *Producer) Close() {
	p.client.Close()
}
