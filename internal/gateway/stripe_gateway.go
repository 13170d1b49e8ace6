package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/balancetransaction"
	"github.com/stripe/stripe-go/v82/charge"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
)

// minSessionLifetime is the shortest expires_at Stripe accepts
const minSessionLifetime = 30 * time.Minute

// StripeGateway implements PaymentGateway using Stripe Checkout
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.Currency == "" {
		config.Currency = "gbp"
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	if config.WebhookSecret == "" {
		logger.Get().Named("stripe").Warn("STRIPE_WEBHOOK_SECRET is empty: webhooks are accepted unsigned and every session is re-read from Stripe")
	}

	return &StripeGateway{
		config: config,
	}, nil
}

// CreateCheckoutSession opens a payment-mode Checkout Session with one line item
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}
	currency := req.Currency
	if currency == "" {
		currency = g.config.Currency
	}

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.ProductName),
	}
	if req.ProductDescription != "" {
		product.Description = stripe.String(req.ProductDescription)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(currency),
					UnitAmount:  stripe.Int64(int64(req.UnitAmount)),
					ProductData: product,
				},
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	if req.PaymentDescription != "" {
		params.PaymentIntentData.Description = stripe.String(req.PaymentDescription)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		expires := req.ExpiresAt
		if floor := time.Now().Add(minSessionLifetime); expires.Before(floor) {
			expires = floor
		}
		params.ExpiresAt = stripe.Int64(expires.Unix())
	}

	s, err := session.New(params)
	if err != nil {
		return nil, wrapStripeError("create checkout session", err)
	}
	return fromStripeSession(s), nil
}

// GetCheckoutSession retrieves a session with the payment intent expanded
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, wrapStripeError("get checkout session", err)
	}
	return fromStripeSession(s), nil
}

// ExpireCheckoutSession closes an open session
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := session.Expire(sessionID, params); err != nil {
		return wrapStripeError("expire checkout session", err)
	}
	return nil
}

// Refund processes a refund through Stripe
func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if req == nil || req.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata:      req.Metadata,
	}
	params.Context = ctx
	if req.Amount > 0 {
		params.Amount = stripe.Int64(int64(req.Amount))
	}

	r, err := refund.New(params)
	if err != nil {
		return nil, wrapStripeError("create refund", err)
	}
	return &RefundResult{ID: r.ID, Status: string(r.Status), Amount: domain.Pence(r.Amount)}, nil
}

// GetPaymentFees expands the latest charge and its balance transaction in one call,
// falling back to direct lookups when an expansion comes back as a bare id
func (g *StripeGateway) GetPaymentFees(ctx context.Context, paymentIntentID string) (*PaymentFees, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge.balance_transaction")

	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return nil, wrapStripeError("get payment intent", err)
	}
	if pi.LatestCharge == nil || pi.LatestCharge.ID == "" {
		return nil, ErrNoCharge
	}

	ch := pi.LatestCharge
	if ch.BalanceTransaction == nil {
		chParams := &stripe.ChargeParams{}
		chParams.Context = ctx
		ch, err = charge.Get(ch.ID, chParams)
		if err != nil {
			return nil, wrapStripeError("get charge", err)
		}
		if ch.BalanceTransaction == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoBalanceTransaction, ch.ID)
		}
	}

	bt := ch.BalanceTransaction
	if bt.Created == 0 {
		btParams := &stripe.BalanceTransactionParams{}
		btParams.Context = ctx
		bt, err = balancetransaction.Get(bt.ID, btParams)
		if err != nil {
			return nil, wrapStripeError("get balance transaction", err)
		}
	}

	return &PaymentFees{
		PaymentIntentID:      pi.ID,
		ChargeID:             ch.ID,
		BalanceTransactionID: bt.ID,
		Gross:                domain.Pence(bt.Amount),
		Fee:                  domain.Pence(bt.Fee),
		Net:                  domain.Pence(bt.Net),
		Created:              time.Unix(bt.Created, 0).UTC(),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return constructEvent(payload, signature, g.config.WebhookSecret)
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

func wrapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if strings.TrimSpace(msg) == "" {
			msg = string(se.Type)
		}
		return &Error{Op: op, StatusCode: se.HTTPStatusCode, Code: string(se.Code), Err: errors.New(msg)}
	}
	return &Error{Op: op, Err: err}
}
