package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

// PaymentGateway defines the hosted-checkout operations the booking flow needs
type PaymentGateway interface {
	// CreateCheckoutSession opens a hosted payment page
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)

	// GetCheckoutSession retrieves a session with its payment intent expanded
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// ExpireCheckoutSession closes an open session so it can no longer be paid
	ExpireCheckoutSession(ctx context.Context, sessionID string) error

	// Refund returns money on a payment intent; zero Amount refunds in full
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// GetPaymentFees follows payment intent -> latest charge -> balance transaction
	GetPaymentFees(ctx context.Context, paymentIntentID string) (*PaymentFees, error)

	// ParseWebhook verifies and decodes a webhook delivery
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)

	// Name returns the gateway name
	Name() string
}

// Checkout session and payment states reported by the processor
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Webhook event types handled by the reconciler
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// Checkout metadata keys
const (
	MetaType           = "type"
	MetaWorkshopID     = "workshop_id"
	MetaConcertID      = "concert_id"
	MetaUserID         = "user_id"
	MetaRegistrationID = "registration_id"
	MetaOrderID        = "order_id"
	MetaTicketType     = "ticket_type"
	MetaQuantity       = "quantity"
	MetaReason         = "reason"
)

// CheckoutRequest describes a single-line-item payment page
type CheckoutRequest struct {
	ProductName        string
	ProductDescription string
	UnitAmount         domain.Pence
	Quantity           int
	Currency           string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
	ExpiresAt          time.Time
	Metadata           map[string]string
	// PaymentDescription is copied onto the payment intent along with Metadata
	PaymentDescription string
}

// CheckoutSession is the processor's view of a hosted payment page
type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     domain.Pence
	CustomerEmail   string
	Metadata        map[string]string
	Created         time.Time
	ExpiresAt       time.Time
}

// Paid reports whether the processor has taken the money
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// Open reports whether the buyer can still pay
func (s *CheckoutSession) Open() bool {
	return s.Status == SessionStatusOpen
}

// Kind reads the event kind from the session metadata
func (s *CheckoutSession) Kind() (domain.EventKind, error) {
	return domain.ParseEventKind(s.Metadata[MetaType])
}

// Confirmation builds the ledger's view of a completed payment
func (s *CheckoutSession) Confirmation(kind domain.EventKind, source string, now time.Time) domain.PaymentConfirmation {
	return domain.PaymentConfirmation{
		Kind:            kind,
		SessionID:       s.ID,
		PaymentIntentID: s.PaymentIntentID,
		AmountTotal:     s.AmountTotal,
		PaidAt:          now,
		Source:          source,
	}
}

// RefundRequest asks for money back on a payment intent
type RefundRequest struct {
	PaymentIntentID string
	Amount          domain.Pence
	Metadata        map[string]string
}

// RefundResult is the processor's refund record
type RefundResult struct {
	ID     string
	Status string
	Amount domain.Pence
}

// PaymentFees is the balance transaction behind a payment
type PaymentFees struct {
	PaymentIntentID      string
	ChargeID             string
	BalanceTransactionID string
	Gross                domain.Pence
	Fee                  domain.Pence
	Net                  domain.Pence
	Created              time.Time
}

// WebhookEvent is a parsed webhook delivery
type WebhookEvent struct {
	ID   string
	Type string
	// Session is set for checkout.session.* events
	Session *CheckoutSession
	// Verified is false when no signing secret is configured; the session
	// must then be re-read from the processor before it is acted on.
	Verified bool
}

// Fee lookups on payments that have not settled yet
var (
	ErrNoCharge             = errors.New("payment intent has no charge")
	ErrNoBalanceTransaction = errors.New("charge has no balance transaction")
)

// Error is a failed processor call
type Error struct {
	Op string
	// StatusCode is the processor's HTTP status, 0 when the call never got an answer
	StatusCode int
	Code       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: processor returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match any processor failure with domain.ErrPaymentGateway
func (e *Error) Is(target error) bool {
	return target == domain.ErrPaymentGateway
}

// Retryable is false for client errors other than rate limiting
func (e *Error) Retryable() bool {
	if e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// IsRetryable reports whether err is a processor failure worth retrying
func IsRetryable(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Retryable()
	}
	return false
}

// IsNotFound reports whether the processor answered 404
func IsNotFound(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound
}
