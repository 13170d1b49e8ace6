package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind distinguishes the two kinds of sellable event
type EventKind string

const (
	KindWorkshop EventKind = "workshop"
	KindConcert  EventKind = "concert"
)

// ParseEventKind accepts "workshop" or "concert"
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindWorkshop:
		return KindWorkshop, nil
	case KindConcert:
		return KindConcert, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
}

// LedgerStatus is the lifecycle shared by workshop registrations and concert orders
type LedgerStatus string

const (
	StatusPending   LedgerStatus = "pending"
	StatusPaid      LedgerStatus = "paid"
	StatusAttended  LedgerStatus = "attended"
	StatusRefunded  LedgerStatus = "refunded"
	StatusCancelled LedgerStatus = "cancelled"
)

func (s LedgerStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusAttended, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

// Confirmed reports whether the row holds a place: paid, or attended for workshops
func (s LedgerStatus) Confirmed() bool {
	return s == StatusPaid || s == StatusAttended
}

// CanTransition is the ledger state machine:
//
//	pending -> paid | cancelled
//	paid    -> refunded | cancelled | attended (workshops only)
func CanTransition(kind EventKind, from, to LedgerStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusCancelled
	case StatusPaid:
		return to == StatusRefunded || to == StatusCancelled || (to == StatusAttended && kind == KindWorkshop)
	}
	return false
}

// PaymentConfirmation is what the processor tells us about a completed checkout
type PaymentConfirmation struct {
	Kind            EventKind
	SessionID       string
	PaymentIntentID string
	AmountTotal     Pence
	PaidAt          time.Time
	// Source is the path that observed the payment: "success_redirect" or "webhook"
	Source string
}

// MarkPaidOutcome says what MarkPaid did
type MarkPaidOutcome string

const (
	// Transitioned means this call moved the row from pending to paid
	Transitioned MarkPaidOutcome = "transitioned"
	// AlreadyPaid means another path got there first; nothing changed
	AlreadyPaid MarkPaidOutcome = "already_paid"
	// NotPending means the row was cancelled or refunded before payment arrived; nothing changed
	NotPending MarkPaidOutcome = "not_pending"
)

// MarkPaidResult carries the outcome and the row as it stands afterwards
type MarkPaidResult struct {
	Outcome MarkPaidOutcome
	Entry   LedgerEntry
}

// LedgerEntry is the kind-independent view of a registration or order
type LedgerEntry struct {
	Kind              EventKind    `json:"kind"`
	ID                string       `json:"id"`
	EventID           string       `json:"event_id"`
	EventTitle        string       `json:"event_title"`
	EventDate         time.Time    `json:"event_date"`
	UserID            string       `json:"user_id,omitempty"`
	BuyerEmail        string       `json:"buyer_email"`
	BuyerName         string       `json:"buyer_name"`
	Quantity          int          `json:"quantity"`
	Amount            Pence        `json:"amount"`
	Status            LedgerStatus `json:"status"`
	PaymentIntentID   string       `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string       `json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	ConfirmationSent  bool         `json:"confirmation_sent"`
	CreatedAt         time.Time    `json:"created_at"`
}

// HasStripePayment reports whether fees can be looked up for this row
func (e LedgerEntry) HasStripePayment() bool {
	return strings.HasPrefix(e.PaymentIntentID, "pi_")
}

// DisplayName is the buyer's name, falling back to their email
func (e LedgerEntry) DisplayName() string {
	if strings.TrimSpace(e.BuyerName) != "" {
		return e.BuyerName
	}
	return e.BuyerEmail
}

// Transition requests a status change on one row, chosen by ID or, when ID is empty, by checkout session
type Transition struct {
	Kind      EventKind
	ID        string
	SessionID string
	From      []LedgerStatus
	To        LedgerStatus
	Reason    string
}

// Allows reports whether the current status is one the transition starts from
func (t Transition) Allows(current LedgerStatus) bool {
	for _, s := range t.From {
		if s == current && CanTransition(t.Kind, current, t.To) {
			return true
		}
	}
	return false
}

// CancelReason values recorded on transitions and outbox events
const (
	ReasonHoldExpired     = "hold_expired"
	ReasonSessionExpired  = "session_expired"
	ReasonUserCancelled   = "user_cancelled"
	ReasonStaffRefund     = "staff_refund"
	ReasonCheckoutAborted = "checkout_aborted"
)
