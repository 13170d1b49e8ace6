package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/polyphonica/booking/internal/domain"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// nullString returns nil if string is empty, otherwise returns pointer to string
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pgTime(c domain.ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * 60_000_000, Valid: true}
}

func pgTimePtr(c *domain.ClockTime) pgtype.Time {
	if c == nil {
		return pgtype.Time{}
	}
	return pgTime(*c)
}

func clockFrom(t pgtype.Time) domain.ClockTime {
	return domain.ClockTime(t.Microseconds / 60_000_000)
}

func clockPtrFrom(t pgtype.Time) *domain.ClockTime {
	if !t.Valid {
		return nil
	}
	c := clockFrom(t)
	return &c
}

func penceArg(p *domain.Pence) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

func pencePtr(v *int64) *domain.Pence {
	if v == nil {
		return nil
	}
	p := domain.Pence(*v)
	return &p
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// ledgerTable maps a kind to its table and event foreign key
func ledgerTable(kind domain.EventKind) (table, eventColumn string, err error) {
	switch kind {
	case domain.KindWorkshop:
		return "workshop_registrations", "workshop_id", nil
	case domain.KindConcert:
		return "concert_ticket_orders", "concert_id", nil
	}
	return "", "", domain.ErrUnknownEventKind
}

func sortOutbox(messages []*domain.OutboxMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}
