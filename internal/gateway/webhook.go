package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// constructEvent verifies payload against secret. An empty secret skips verification.
func constructEvent(payload []byte, signature, secret string) (*WebhookEvent, error) {
	var event stripe.Event
	if secret == "" {
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	} else {
		var err error
		event, err = webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type), Verified: secret != ""}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		if event.Data == nil {
			return nil, fmt.Errorf("%w: event has no data", domain.ErrInvalidPayload)
		}
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		out.Session = fromStripeSession(&s)
	}
	return out, nil
}

func fromStripeSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   domain.Pence(s.AmountTotal),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Created != 0 {
		out.Created = time.Unix(s.Created, 0).UTC()
	}
	if s.ExpiresAt != 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return out
}
