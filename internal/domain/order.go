package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTicketsPerOrder caps the quantity of a single concert order
const MaxTicketsPerOrder = 10

// ConcertTicketOrder is one buyer's purchase of N tickets of one tier
type ConcertTicketOrder struct {
	ID                string       `json:"id"`
	ConcertID         string       `json:"concert_id"`
	UserID            string       `json:"user_id,omitempty"`
	Email             string       `json:"email"`
	Name              string       `json:"name"`
	Phone             string       `json:"phone,omitempty"`
	TicketType        TicketType   `json:"ticket_type"`
	Quantity          int          `json:"quantity"`
	UnitPrice         Pence        `json:"unit_price"`
	TotalPrice        Pence        `json:"total_price"`
	Status            LedgerStatus `json:"status"`
	PaymentIntentID   string       `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string       `json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	HoldExpiresAt     *time.Time   `json:"hold_expires_at,omitempty"`
	ConfirmationSent  bool         `json:"confirmation_sent"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// NewConcertTicketOrder prices a pending order; maxQty <= 0 means MaxTicketsPerOrder
func NewConcertTicketOrder(c *Concert, buyer Buyer, ticketType TicketType, quantity, maxQty int, now time.Time, hold time.Duration) (*ConcertTicketOrder, error) {
	if maxQty <= 0 {
		maxQty = MaxTicketsPerOrder
	}
	if quantity < 1 || quantity > maxQty {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, maxQty)
	}
	email, err := NormalizeEmail(buyer.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(buyer.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	unit, err := c.PriceFor(ticketType)
	if err != nil {
		return nil, err
	}

	expires := now.Add(hold)
	return &ConcertTicketOrder{
		ID:            uuid.New().String(),
		ConcertID:     c.ID,
		UserID:        buyer.UserID,
		Email:         email,
		Name:          name,
		Phone:         strings.TrimSpace(buyer.Phone),
		TicketType:    ticketType,
		Quantity:      quantity,
		UnitPrice:     unit,
		TotalPrice:    unit * Pence(quantity),
		Status:        StatusPending,
		HoldExpiresAt: &expires,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// HoldLive reports whether the order still reserves its tickets at now
func (o *ConcertTicketOrder) HoldLive(now time.Time) bool {
	return o.Status == StatusPending && o.HoldExpiresAt != nil && o.HoldExpiresAt.After(now)
}

// Entry is the ledger view of the order
func (o *ConcertTicketOrder) Entry(c *Concert) LedgerEntry {
	e := LedgerEntry{
		Kind:              KindConcert,
		ID:                o.ID,
		EventID:           o.ConcertID,
		UserID:            o.UserID,
		BuyerEmail:        o.Email,
		BuyerName:         o.Name,
		Quantity:          o.Quantity,
		Amount:            o.TotalPrice,
		Status:            o.Status,
		PaymentIntentID:   o.PaymentIntentID,
		CheckoutSessionID: o.CheckoutSessionID,
		PaidAt:            o.PaidAt,
		ConfirmationSent:  o.ConfirmationSent,
		CreatedAt:         o.CreatedAt,
	}
	if c != nil {
		e.EventTitle = c.Title
		e.EventDate = c.Date
	}
	return e
}
