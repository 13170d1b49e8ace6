package repository

import (
	"context"
	"errors"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

type memoryOutboxRow struct {
	msg         domain.OutboxMessage
	lockedUntil time.Time
}

func (s *MemoryStore) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	return s.claim(limit, lease, func(m *domain.OutboxMessage) bool {
		return m.Status == domain.OutboxStatusPending
	}), nil
}

func (s *MemoryStore) ClaimFailed(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error) {
	return s.claim(limit, lease, func(m *domain.OutboxMessage) bool {
		return m.CanRetry()
	}), nil
}

// claim walks rows in insertion order, which is creation order
func (s *MemoryStore) claim(limit int, lease time.Duration, want func(*domain.OutboxMessage) bool) []*domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var claimed []*domain.OutboxMessage
	for _, row := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		if !want(&row.msg) || row.lockedUntil.After(now) {
			continue
		}
		row.lockedUntil = now.Add(lease)
		cp := row.msg
		claimed = append(claimed, &cp)
	}
	return claimed
}

func (s *MemoryStore) MarkPublished(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.outboxRowLocked(id)
	if row == nil {
		return errors.New("outbox message not found")
	}
	now := time.Now()
	row.msg.Status = domain.OutboxStatusPublished
	row.msg.PublishedAt = &now
	row.lockedUntil = time.Time{}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.outboxRowLocked(id)
	if row == nil {
		return errors.New("outbox message not found")
	}
	row.msg.Status = domain.OutboxStatusFailed
	row.msg.LastError = errMsg
	row.msg.RetryCount++
	row.lockedUntil = time.Time{}
	return nil
}

func (s *MemoryStore) DeletePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.outbox[:0]
	var deleted int64
	for _, row := range s.outbox {
		if row.msg.Status == domain.OutboxStatusPublished && row.msg.PublishedAt != nil && row.msg.PublishedAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.outbox = kept
	return deleted, nil
}

func (s *MemoryStore) outboxRowLocked(id string) *memoryOutboxRow {
	for _, row := range s.outbox {
		if row.msg.ID == id {
			return row
		}
	}
	return nil
}

// OutboxMessages returns a snapshot of every message, oldest first
func (s *MemoryStore) OutboxMessages() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]domain.OutboxMessage, len(s.outbox))
	for i, row := range s.outbox {
		msgs[i] = row.msg
	}
	return msgs
}

// Enqueue appends msg as written, outside any ledger change
func (s *MemoryStore) Enqueue(msg *domain.OutboxMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, &memoryOutboxRow{msg: *msg})
}
