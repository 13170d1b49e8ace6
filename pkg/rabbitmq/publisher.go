package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ publisher settings
type Config struct {
	URL string
	// Exchange is declared as a durable topic exchange
	Exchange string
}

// Publisher publishes persistent messages to one topic exchange, redialing after a broker drop
type Publisher struct {
	cfg  Config
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the exchange
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.URL == "" || cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq url and exchange are required")
	}
	p := &Publisher{cfg: cfg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq confirm mode: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends body under routingKey and waits for the broker confirm
func (p *Publisher) Publish(ctx context.Context, routingKey, messageID string, body []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq nacked message %s", messageID)
	}
	return nil
}

// Close closes the channel and connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
