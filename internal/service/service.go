package service

import (
	"context"
	"strings"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

// Config holds the booking policy shared by the services
type Config struct {
	// PublicBaseURL is where the processor sends buyers back to
	PublicBaseURL      string
	Currency           string
	HoldWindow         time.Duration
	HoldGrace          time.Duration
	RefundCutoffDays   int
	MaxTicketsPerOrder int
	OrgName            string
}

// DefaultConfig matches the production defaults in pkg/config
func DefaultConfig() Config {
	return Config{
		PublicBaseURL:      "http://localhost:8080",
		Currency:           "gbp",
		HoldWindow:         35 * time.Minute,
		HoldGrace:          5 * time.Minute,
		RefundCutoffDays:   7,
		MaxTicketsPerOrder: domain.MaxTicketsPerOrder,
		OrgName:            "Polyphonica",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = d.PublicBaseURL
	}
	c.PublicBaseURL = strings.TrimSuffix(c.PublicBaseURL, "/")
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.HoldWindow <= 0 {
		c.HoldWindow = d.HoldWindow
	}
	if c.HoldGrace < 0 {
		c.HoldGrace = 0
	}
	if c.RefundCutoffDays <= 0 {
		c.RefundCutoffDays = d.RefundCutoffDays
	}
	if c.MaxTicketsPerOrder <= 0 {
		c.MaxTicketsPerOrder = d.MaxTicketsPerOrder
	}
	if c.OrgName == "" {
		c.OrgName = d.OrgName
	}
	return c
}

// Notifier sends buyer emails and staff alerts. Implemented by notify.Notifier.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, w *domain.Workshop, r *domain.WorkshopRegistration) error
	TicketsConfirmed(ctx context.Context, c *domain.Concert, o *domain.ConcertTicketOrder) error
	RegistrationCancelled(ctx context.Context, w *domain.Workshop, r *domain.WorkshopRegistration, refund domain.Pence, cutoffDays int) error
	PaymentReceived(ctx context.Context, e domain.LedgerEntry) error
	BookingCancelled(ctx context.Context, e domain.LedgerEntry, reason string) error
}

// NoopNotifier drops every message
type NoopNotifier struct{}

func (NoopNotifier) RegistrationConfirmed(context.Context, *domain.Workshop, *domain.WorkshopRegistration) error {
	return nil
}

func (NoopNotifier) TicketsConfirmed(context.Context, *domain.Concert, *domain.ConcertTicketOrder) error {
	return nil
}

func (NoopNotifier) RegistrationCancelled(context.Context, *domain.Workshop, *domain.WorkshopRegistration, domain.Pence, int) error {
	return nil
}

func (NoopNotifier) PaymentReceived(context.Context, domain.LedgerEntry) error { return nil }

func (NoopNotifier) BookingCancelled(context.Context, domain.LedgerEntry, string) error { return nil }

// Clock returns the current time; tests replace it
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
