package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Buyer identifies whoever is paying: a signed-in user for workshops, a guest or user for concerts
type Buyer struct {
	UserID string
	Email  string
	Name   string
	Phone  string
}

// RegistrationDetails are the attendee answers collected with a workshop registration
type RegistrationDetails struct {
	Phone               string `json:"phone"`
	SpecialRequirements string `json:"special_requirements"`
	EmergencyContact    string `json:"emergency_contact"`
	Instruments         string `json:"instruments"`
	TermsAccepted       bool   `json:"terms_accepted"`
}

// WorkshopRegistration is one user's place on one workshop
type WorkshopRegistration struct {
	ID         string `json:"id"`
	WorkshopID string `json:"workshop_id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`

	RegistrationDetails

	AmountPaid        Pence        `json:"amount_paid"`
	Status            LedgerStatus `json:"status"`
	PaymentIntentID   string       `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string       `json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	// HoldExpiresAt bounds how long a pending registration counts against capacity
	HoldExpiresAt    *time.Time `json:"hold_expires_at,omitempty"`
	TermsAcceptedAt  *time.Time `json:"terms_accepted_at,omitempty"`
	ConfirmationSent bool       `json:"confirmation_sent"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewWorkshopRegistration creates a pending registration holding one place until now+hold
func NewWorkshopRegistration(w *Workshop, buyer Buyer, details RegistrationDetails, now time.Time, hold time.Duration) (*WorkshopRegistration, error) {
	if !details.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}
	email, err := NormalizeEmail(buyer.Email)
	if err != nil {
		return nil, err
	}

	r := &WorkshopRegistration{
		ID:         uuid.New().String(),
		WorkshopID: w.ID,
		UserID:     buyer.UserID,
		Email:      email,
		Name:       strings.TrimSpace(buyer.Name),
		CreatedAt:  now,
	}
	r.Renew(w, details, now, hold)
	return r, nil
}

// Renew puts a pending, cancelled or refunded registration back into a fresh pending hold.
// The old payment intent is kept until a new payment replaces it.
func (r *WorkshopRegistration) Renew(w *Workshop, details RegistrationDetails, now time.Time, hold time.Duration) {
	expires := now.Add(hold)
	accepted := now
	r.RegistrationDetails = details
	r.AmountPaid = w.Price
	r.Status = StatusPending
	r.CheckoutSessionID = ""
	r.PaidAt = nil
	r.HoldExpiresAt = &expires
	r.TermsAcceptedAt = &accepted
	r.ConfirmationSent = false
	r.UpdatedAt = now
}

// Reusable reports whether a new checkout may take over this row instead of inserting another
func (r *WorkshopRegistration) Reusable() bool {
	return r.Status == StatusPending || r.Status == StatusCancelled || r.Status == StatusRefunded
}

// HoldLive reports whether the row still reserves a place at now
func (r *WorkshopRegistration) HoldLive(now time.Time) bool {
	return r.Status == StatusPending && r.HoldExpiresAt != nil && r.HoldExpiresAt.After(now)
}

// Entry is the ledger view of the registration
func (r *WorkshopRegistration) Entry(w *Workshop) LedgerEntry {
	e := LedgerEntry{
		Kind:              KindWorkshop,
		ID:                r.ID,
		EventID:           r.WorkshopID,
		UserID:            r.UserID,
		BuyerEmail:        r.Email,
		BuyerName:         r.Name,
		Quantity:          1,
		Amount:            r.AmountPaid,
		Status:            r.Status,
		PaymentIntentID:   r.PaymentIntentID,
		CheckoutSessionID: r.CheckoutSessionID,
		PaidAt:            r.PaidAt,
		ConfirmationSent:  r.ConfirmationSent,
		CreatedAt:         r.CreatedAt,
	}
	if w != nil {
		e.EventTitle = w.Title
		e.EventDate = w.Date
	}
	return e
}

// RefundEligible reports whether a self-service cancellation at now still earns a refund
func (r *WorkshopRegistration) RefundEligible(w *Workshop, now time.Time, cutoffDays int) bool {
	if r.Status != StatusPaid {
		return false
	}
	cutoff := w.Date.AddDate(0, 0, -cutoffDays)
	return !CivilDate(now).After(cutoff)
}
