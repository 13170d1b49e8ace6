package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/metrics"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/logger"
)

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to claim in each poll
	BatchSize int
	// Lease is how long a claimed message stays hidden from other workers
	Lease time.Duration
	// RetryInterval is the interval between retrying failed messages
	RetryInterval time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// CleanupRetentionDays is the number of days to retain published messages
	CleanupRetentionDays int
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:         2 * time.Second,
		BatchSize:            100,
		Lease:                30 * time.Second,
		RetryInterval:        30 * time.Second,
		CleanupInterval:      1 * time.Hour,
		CleanupRetentionDays: 7,
	}
}

// OutboxWorker relays ledger events from the outbox to the event bus.
// Delivery is at least once; consumers dedupe on the payload's event_id.
type OutboxWorker struct {
	outbox    repository.OutboxRepository
	publisher EventPublisher
	bus       string
	config    *OutboxWorkerConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	published atomic.Int64
	failed    atomic.Int64
	cleaned   atomic.Int64
}

// NewOutboxWorker creates a new outbox worker; bus labels the publish metric
func NewOutboxWorker(
	outbox repository.OutboxRepository,
	publisher EventPublisher,
	bus string,
	config *OutboxWorkerConfig,
) *OutboxWorker {
	if config == nil {
		config = DefaultOutboxWorkerConfig()
	}

	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		bus:       bus,
		config:    config,
		log:       logger.Get().Named("outbox-worker"),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the outbox worker
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting outbox worker (bus=%s)", w.bus))

	w.wg.Add(3)
	go w.loop(ctx, w.config.PollInterval, w.processPending)
	go w.loop(ctx, w.config.RetryInterval, w.processFailed)
	go w.loop(ctx, w.config.CleanupInterval, w.cleanup)

	return nil
}

// Stop stops the outbox worker and waits for in-flight batches
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Outbox worker stopped")
}

func (w *OutboxWorker) loop(ctx context.Context, every time.Duration, fn func(context.Context)) {
	defer w.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (w *OutboxWorker) processPending(ctx context.Context) {
	messages, err := w.outbox.ClaimPending(ctx, w.config.BatchSize, w.config.Lease)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to claim pending messages: %v", err))
		return
	}
	for _, msg := range messages {
		w.deliver(ctx, msg)
	}
}

func (w *OutboxWorker) processFailed(ctx context.Context) {
	messages, err := w.outbox.ClaimFailed(ctx, w.config.BatchSize, w.config.Lease)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to claim failed messages: %v", err))
		return
	}
	for _, msg := range messages {
		if w.deliver(ctx, msg) {
			w.log.Info(fmt.Sprintf("Retried message %s after %d failed attempts", msg.ID, msg.RetryCount))
		}
	}
}

// deliver publishes msg and records the result, reporting success
func (w *OutboxWorker) deliver(ctx context.Context, msg *domain.OutboxMessage) bool {
	if err := w.publisher.Publish(ctx, msg); err != nil {
		w.failed.Add(1)
		w.log.Error(fmt.Sprintf("Failed to publish message %s (attempt %d/%d): %v", msg.ID, msg.RetryCount+1, msg.MaxRetries, err))
		if markErr := w.outbox.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			w.log.Error(fmt.Sprintf("Failed to mark message as failed %s: %v", msg.ID, markErr))
		}
		return false
	}

	w.published.Add(1)
	metrics.RecordEventPublished(ctx, msg.EventType, w.bus)
	if err := w.outbox.MarkPublished(ctx, msg.ID); err != nil {
		// the lease runs out and the message goes again
		w.log.Error(fmt.Sprintf("Failed to mark message as published %s: %v", msg.ID, err))
	}
	return true
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -w.config.CleanupRetentionDays)
	deleted, err := w.outbox.DeletePublished(ctx, cutoff)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to cleanup old messages: %v", err))
		return
	}
	if deleted > 0 {
		w.cleaned.Add(deleted)
		w.log.Info(fmt.Sprintf("Cleaned up %d old published messages", deleted))
	}
}

// GetStats returns worker statistics
func (w *OutboxWorker) GetStats() *OutboxWorkerStats {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	return &OutboxWorkerStats{
		IsRunning: running,
		Bus:       w.bus,
		Published: w.published.Load(),
		Failed:    w.failed.Load(),
		Cleaned:   w.cleaned.Load(),
	}
}

// OutboxWorkerStats contains worker statistics
type OutboxWorkerStats struct {
	IsRunning bool   `json:"is_running"`
	Bus       string `json:"bus"`
	Published int64  `json:"published"`
	Failed    int64  `json:"failed"`
	Cleaned   int64  `json:"cleaned"`
}
