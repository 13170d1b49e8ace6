package dto

import (
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/service"
)

// WorkshopCheckoutRequest is the registration form. Buyer identity comes from the token.
type WorkshopCheckoutRequest struct {
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	SpecialRequirements string `json:"special_requirements"`
	EmergencyContact    string `json:"emergency_contact"`
	Instruments         string `json:"instruments"`
	TermsAccepted       bool   `json:"terms_accepted"`
}

func (r *WorkshopCheckoutRequest) ToService(workshopID string, caller Caller) *service.WorkshopCheckoutRequest {
	return &service.WorkshopCheckoutRequest{
		WorkshopID: workshopID,
		UserID:     caller.UserID,
		Email:      caller.Email,
		Name:       r.Name,
		IsStaff:    caller.IsStaff,
		Details: domain.RegistrationDetails{
			Phone:               r.Phone,
			SpecialRequirements: r.SpecialRequirements,
			EmergencyContact:    r.EmergencyContact,
			Instruments:         r.Instruments,
			TermsAccepted:       r.TermsAccepted,
		},
	}
}

// ConcertCheckoutRequest buys tickets as a guest or signed-in user
type ConcertCheckoutRequest struct {
	Email      string            `json:"email" binding:"required"`
	Name       string            `json:"name" binding:"required"`
	Phone      string            `json:"phone"`
	TicketType domain.TicketType `json:"ticket_type" binding:"required"`
	Quantity   int               `json:"quantity" binding:"required,min=1"`
}

func (r *ConcertCheckoutRequest) ToService(concertID string, caller Caller) *service.ConcertCheckoutRequest {
	return &service.ConcertCheckoutRequest{
		ConcertID:  concertID,
		UserID:     caller.UserID,
		Email:      r.Email,
		Name:       r.Name,
		Phone:      r.Phone,
		TicketType: r.TicketType,
		Quantity:   r.Quantity,
	}
}

// Caller is the authenticated user, empty for guests
type Caller struct {
	UserID  string
	Email   string
	IsStaff bool
}

// ReasonRequest carries an optional free-text reason for cancellations and refunds
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// WebhookAck is the body every accepted webhook delivery gets
type WebhookAck struct {
	Received bool   `json:"received"`
	Action   string `json:"action,omitempty"`
}
