package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

// alphanumericChars for generating Stripe-compatible IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomAlphanumeric generates a random alphanumeric string of given length
func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGateway implements PaymentGateway in memory for tests and local runs
type MockGateway struct {
	config   *MockGatewayConfig
	sessions map[string]*CheckoutSession
	fees     map[string]*PaymentFees
	refunds  []RefundRequest
	failures map[string]error
	calls    map[string]int
	mu       sync.Mutex
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// BaseURL prefixes the fake hosted page URLs
	BaseURL       string
	WebhookSecret string
	// FeeRate is the fraction of gross charged as a fee when no fees were set
	FeeRate float64
	// FixedFee is added to every derived fee
	FixedFee domain.Pence
}

// DefaultMockGatewayConfig mirrors UK card pricing: 1.5% + 20p
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		BaseURL:  "https://checkout.stripe.test/pay",
		FeeRate:  0.015,
		FixedFee: 20,
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	return &MockGateway{
		config:   config,
		sessions: make(map[string]*CheckoutSession),
		fees:     make(map[string]*PaymentFees),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Operation names accepted by FailNext and Calls
const (
	OpCreateSession = "create_session"
	OpGetSession    = "get_session"
	OpExpireSession = "expire_session"
	OpRefund        = "refund"
	OpGetFees       = "get_fees"
)

// FailNext makes the next call to op return err
func (g *MockGateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = err
}

// Calls returns how many times op was invoked
func (g *MockGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// enter records a call and pops an injected failure. Caller holds mu.
func (g *MockGateway) enter(op string) error {
	g.calls[op]++
	if err, ok := g.failures[op]; ok {
		delete(g.failures, op)
		return err
	}
	return nil
}

// CreateCheckoutSession stores an open, unpaid session
func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCreateSession); err != nil {
		return nil, err
	}

	id := "cs_test_" + randomAlphanumeric(24)
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	s := &CheckoutSession{
		ID:            id,
		URL:           g.config.BaseURL + "/" + id,
		Status:        SessionStatusOpen,
		PaymentStatus: PaymentStatusUnpaid,
		AmountTotal:   req.UnitAmount * domain.Pence(req.Quantity),
		CustomerEmail: req.CustomerEmail,
		Metadata:      meta,
		Created:       time.Now().UTC(),
		ExpiresAt:     req.ExpiresAt,
	}
	g.sessions[id] = s
	cp := *s
	return &cp, nil
}

// GetCheckoutSession returns the stored session
func (g *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpGetSession); err != nil {
		return nil, err
	}

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, &Error{Op: "get checkout session", StatusCode: 404, Err: fmt.Errorf("no such checkout session: %s", sessionID)}
	}
	cp := *s
	return &cp, nil
}

// ExpireCheckoutSession fails on a completed session like Stripe does
func (g *MockGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpExpireSession); err != nil {
		return err
	}

	s, ok := g.sessions[sessionID]
	if !ok {
		return &Error{Op: "expire checkout session", StatusCode: 404, Err: fmt.Errorf("no such checkout session: %s", sessionID)}
	}
	if s.Status != SessionStatusOpen {
		return &Error{Op: "expire checkout session", StatusCode: 400, Err: fmt.Errorf("session %s is %s", sessionID, s.Status)}
	}
	s.Status = SessionStatusExpired
	return nil
}

// CompleteSession simulates the buyer paying: the session becomes complete and paid
func (g *MockGateway) CompleteSession(sessionID string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", sessionID)
	}
	s.Status = SessionStatusComplete
	s.PaymentStatus = PaymentStatusPaid
	if s.PaymentIntentID == "" {
		s.PaymentIntentID = "pi_mock_" + randomAlphanumeric(24)
	}
	cp := *s
	return &cp, nil
}

// Session returns a stored session without counting a call
func (g *MockGateway) Session(sessionID string) (*CheckoutSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Refund records the request
func (g *MockGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if req == nil || req.PaymentIntentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRefund); err != nil {
		return nil, err
	}

	g.refunds = append(g.refunds, *req)
	amount := req.Amount
	if amount == 0 {
		for _, s := range g.sessions {
			if s.PaymentIntentID == req.PaymentIntentID {
				amount = s.AmountTotal
			}
		}
	}
	return &RefundResult{ID: "re_mock_" + randomAlphanumeric(24), Status: "succeeded", Amount: amount}, nil
}

// Refunds lists every refund requested so far
func (g *MockGateway) Refunds() []RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RefundRequest(nil), g.refunds...)
}

// SetFees fixes the balance transaction returned for a payment intent
func (g *MockGateway) SetFees(fees *PaymentFees) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *fees
	g.fees[fees.PaymentIntentID] = &cp
}

// GetPaymentFees returns set fees, or derives them from a paid session
func (g *MockGateway) GetPaymentFees(ctx context.Context, paymentIntentID string) (*PaymentFees, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpGetFees); err != nil {
		return nil, err
	}

	if f, ok := g.fees[paymentIntentID]; ok {
		cp := *f
		return &cp, nil
	}
	for _, s := range g.sessions {
		if s.PaymentIntentID == paymentIntentID && s.Paid() {
			fee := domain.Pence(float64(s.AmountTotal)*g.config.FeeRate+0.5) + g.config.FixedFee
			return &PaymentFees{
				PaymentIntentID:      paymentIntentID,
				ChargeID:             "ch_mock_" + randomAlphanumeric(24),
				BalanceTransactionID: "txn_mock_" + randomAlphanumeric(24),
				Gross:                s.AmountTotal,
				Fee:                  fee,
				Net:                  s.AmountTotal - fee,
				Created:              s.Created,
			}, nil
		}
	}
	return nil, &Error{Op: "get payment intent", StatusCode: 404, Err: fmt.Errorf("no such payment_intent: %s", paymentIntentID)}
}

// ParseWebhook accepts Stripe-shaped events, verifying them when a secret is configured
func (g *MockGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return constructEvent(payload, signature, g.config.WebhookSecret)
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}
