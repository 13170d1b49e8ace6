package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testNow falls in tax year 2024-25
var testNow = time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func newMockNotifier() *MockNotifier {
	n := &MockNotifier{}
	for _, method := range []string{"RegistrationConfirmed", "TicketsConfirmed"} {
		n.On(method, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	n.On("RegistrationCancelled", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("PaymentReceived", mock.Anything, mock.Anything).Return(nil).Maybe()
	n.On("BookingCancelled", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return n
}

func (m *MockNotifier) RegistrationConfirmed(ctx context.Context, w *domain.Workshop, r *domain.WorkshopRegistration) error {
	return m.Called(ctx, w, r).Error(0)
}

func (m *MockNotifier) TicketsConfirmed(ctx context.Context, c *domain.Concert, o *domain.ConcertTicketOrder) error {
	return m.Called(ctx, c, o).Error(0)
}

func (m *MockNotifier) RegistrationCancelled(ctx context.Context, w *domain.Workshop, r *domain.WorkshopRegistration, refund domain.Pence, cutoffDays int) error {
	return m.Called(ctx, w, r, refund, cutoffDays).Error(0)
}

func (m *MockNotifier) PaymentReceived(ctx context.Context, e domain.LedgerEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockNotifier) BookingCancelled(ctx context.Context, e domain.LedgerEntry, reason string) error {
	return m.Called(ctx, e, reason).Error(0)
}

type testEnv struct {
	repos    *repository.Repositories
	store    *repository.MemoryStore
	gw       *gateway.MockGateway
	notifier *MockNotifier
	clock    *testClock
	config   Config

	catalog   CatalogService
	checkout  CheckoutService
	reconcile ReconcileService
	booking   BookingService
	finance   FinanceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos, store := repository.NewMemoryRepositories("polyphonica.ledger")
	env := &testEnv{
		repos:    repos,
		store:    store,
		gw:       gateway.NewMockGateway(nil),
		notifier: newMockNotifier(),
		clock:    &testClock{now: testNow},
		config: Config{
			PublicBaseURL: "https://polyphonica.test/",
			HoldWindow:    35 * time.Minute,
			HoldGrace:     5 * time.Minute,
		},
	}
	env.catalog = NewCatalogService(repos.Catalog, repos.Ledger, env.clock.Now)
	env.checkout = NewCheckoutService(repos, env.gw, env.notifier, env.config, env.clock.Now)
	env.reconcile = NewReconcileService(repos, env.gw, env.notifier, env.config, env.clock.Now)
	env.booking = NewBookingService(repos, env.gw, env.notifier, env.config, env.clock.Now)
	env.finance = NewFinanceService(repos, env.clock.Now)
	return env
}

func (e *testEnv) workshop(t *testing.T, edit func(w *domain.Workshop)) *domain.Workshop {
	t.Helper()
	w := &domain.Workshop{
		Title:           "Renaissance Consort Day",
		Date:            domain.Date(2025, time.March, 22),
		StartTime:       domain.NewClockTime(10, 0),
		EndTime:         domain.NewClockTime(16, 0),
		Venue:           domain.Venue{Name: "St Mary's Hall", Address: "1 Church Lane", Postcode: "OX1 1AA"},
		Price:           4500,
		MaxParticipants: 2,
		Status:          domain.EventStatusPublished,
	}
	if edit != nil {
		edit(w)
	}
	created, err := e.catalog.CreateWorkshop(context.Background(), w)
	require.NoError(t, err)
	return created
}

func (e *testEnv) concert(t *testing.T, edit func(c *domain.Concert)) *domain.Concert {
	t.Helper()
	capacity := 5
	discount := domain.Pence(1000)
	c := &domain.Concert{
		Title:         "Music for a While",
		Date:          domain.Date(2025, time.March, 15),
		Time:          domain.NewClockTime(19, 30),
		TicketSource:  domain.TicketSourceInternal,
		FullPrice:     1500,
		DiscountPrice: &discount,
		Capacity:      &capacity,
		Status:        domain.EventStatusPublished,
	}
	if edit != nil {
		edit(c)
	}
	created, err := e.catalog.CreateConcert(context.Background(), c)
	require.NoError(t, err)
	return created
}

func (e *testEnv) user(id, email, first, last string) *domain.User {
	u := &domain.User{ID: id, Username: id, Email: email, FirstName: first, LastName: last, CreatedAt: testNow}
	e.store.SaveUser(u)
	return u
}

func workshopRequest(workshopID, userID string) *WorkshopCheckoutRequest {
	return &WorkshopCheckoutRequest{
		WorkshopID: workshopID,
		UserID:     userID,
		Email:      userID + "@example.com",
		Name:       "Test " + userID,
		Details:    domain.RegistrationDetails{TermsAccepted: true, Instruments: "treble"},
	}
}

// paidWorkshopBooking runs a checkout and a success-return for userID
func (e *testEnv) paidWorkshopBooking(t *testing.T, workshopID, userID string) *CheckoutResult {
	t.Helper()
	ctx := context.Background()
	res, err := e.checkout.StartWorkshopCheckout(ctx, workshopRequest(workshopID, userID))
	require.NoError(t, err)
	_, err = e.gw.CompleteSession(res.SessionID)
	require.NoError(t, err)
	_, err = e.reconcile.ConfirmCheckoutReturn(ctx, res.SessionID)
	require.NoError(t, err)
	return res
}

// webhookPayload builds an unsigned checkout.session.* event as the mock gateway accepts it
func webhookPayload(t *testing.T, eventID, eventType string, sess *gateway.CheckoutSession) []byte {
	t.Helper()
	object := map[string]any{
		"id":             sess.ID,
		"object":         "checkout.session",
		"status":         sess.Status,
		"payment_status": sess.PaymentStatus,
		"amount_total":   int64(sess.AmountTotal),
		"metadata":       sess.Metadata,
	}
	if sess.PaymentIntentID != "" {
		object["payment_intent"] = sess.PaymentIntentID
	}
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}
