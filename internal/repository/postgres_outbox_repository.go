package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresOutboxRepository implements OutboxRepository using PostgreSQL
type PostgresOutboxRepository struct {
	db *database.PostgresDB
}

// NewPostgresOutboxRepository creates a new PostgresOutboxRepository
func NewPostgresOutboxRepository(db *database.PostgresDB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// insertOutbox writes msg with q, which is the ledger transaction in every caller
func insertOutbox(ctx context.Context, q querier, msg *domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	query := `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type,
			payload, topic, partition_key, status,
			retry_count, max_retries, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := q.Exec(ctx, query,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Payload,
		msg.Topic,
		msg.PartitionKey,
		string(msg.Status),
		msg.RetryCount,
		msg.MaxRetries,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

const outboxReturning = `
	RETURNING id, aggregate_type, aggregate_id, event_type,
		payload, topic, partition_key, status,
		retry_count, max_retries, last_error,
		created_at, published_at
`

// ClaimPending leases pending messages in creation order
func (r *PostgresOutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	query := `
		UPDATE outbox SET locked_until = $2
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)` + outboxReturning

	return r.claim(ctx, query, limit, lease)
}

// ClaimFailed leases failed messages that still have retries left
func (r *PostgresOutboxRepository) ClaimFailed(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	query := `
		UPDATE outbox SET locked_until = $2
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'failed' AND retry_count < max_retries
				AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)` + outboxReturning

	return r.claim(ctx, query, limit, lease)
}

func (r *PostgresOutboxRepository) claim(ctx context.Context, query string, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	rows, err := r.db.Pool().Query(ctx, query, limit, time.Now().Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery's order
	sortOutbox(messages)
	return messages, nil
}

// MarkPublished marks a message as successfully published
func (r *PostgresOutboxRepository) MarkPublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox SET
			status = 'published',
			locked_until = NULL,
			processed_at = $2,
			published_at = $2
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark message as published: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errors.New("outbox message not found")
	}
	return nil
}

// MarkFailed records a failed publish attempt
func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE outbox SET
			status = 'failed',
			last_error = $2,
			retry_count = retry_count + 1,
			locked_until = NULL,
			processed_at = $3
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return errors.New("outbox message not found")
	}
	return nil
}

// DeletePublished deletes published messages older than the cutoff
func (r *PostgresOutboxRepository) DeletePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM outbox WHERE status = 'published' AND published_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published messages: %w", err)
	}
	return result.RowsAffected(), nil
}

// scanOutboxMessages scans rows into OutboxMessage slice
func scanOutboxMessages(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var status string
		var lastError *string

		err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
			&msg.Topic,
			&msg.PartitionKey,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&lastError,
			&msg.CreatedAt,
			&msg.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		msg.Status = domain.OutboxStatus(status)
		msg.LastError = derefString(lastError)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

var _ OutboxRepository = (*PostgresOutboxRepository)(nil)
