package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/polyphonica/booking/pkg/response"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)

var testAuth = middleware.AuthConfig{Secret: "handler-test-secret", Issuer: "polyphonica"}

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	repos   *repository.Repositories
	store   *repository.MemoryStore
	gw      *gateway.MockGateway
	catalog service.CatalogService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repos, store := repository.NewMemoryRepositories("polyphonica.ledger")
	gw := gateway.NewMockGateway(nil)
	now := func() time.Time { return testNow }
	cfg := service.Config{PublicBaseURL: "https://polyphonica.test"}
	notifier := service.NoopNotifier{}

	catalog := service.NewCatalogService(repos.Catalog, repos.Ledger, now)
	reconcile := service.NewReconcileService(repos, gw, notifier, cfg, now)
	finance := service.NewFinanceService(repos, now)

	h := &Handlers{
		Health:     NewHealthHandler("test", map[string]HealthChecker{"postgres": nil}),
		Catalog:    NewCatalogHandler(catalog),
		Checkout:   NewCheckoutHandler(service.NewCheckoutService(repos, gw, notifier, cfg, now), reconcile),
		Webhook:    NewWebhookHandler(reconcile),
		Booking:    NewBookingHandler(service.NewBookingService(repos, gw, notifier, cfg, now)),
		Finance:    NewFinanceHandler(finance, nil, 30),
		Expense:    NewExpenseHandler(service.NewExpenseService(repos, now), finance),
		Import:     NewImportHandler(service.NewImportService(repos, now)),
		Repertoire: NewRepertoireHandler(service.NewRepertoireService(repos.Repertoire, now)),
	}

	r := gin.New()
	RegisterRoutes(r, h, RouteOptions{Auth: testAuth})
	return &testServer{router: r, repos: repos, store: store, gw: gw, catalog: catalog}
}

func (s *testServer) workshop(t *testing.T) *domain.Workshop {
	t.Helper()
	w, err := s.catalog.CreateWorkshop(context.Background(), &domain.Workshop{
		Title:           "Renaissance Consort Day",
		Date:            domain.Date(2025, time.March, 22),
		StartTime:       domain.NewClockTime(10, 0),
		EndTime:         domain.NewClockTime(16, 0),
		Venue:           domain.Venue{Name: "St Mary's Hall", Address: "1 Church Lane", Postcode: "OX1 1AA"},
		Price:           4500,
		MaxParticipants: 10,
		Status:          domain.EventStatusPublished,
	})
	require.NoError(t, err)
	return w
}

func (s *testServer) concert(t *testing.T) *domain.Concert {
	t.Helper()
	capacity := 5
	c, err := s.catalog.CreateConcert(context.Background(), &domain.Concert{
		Title:        "Music for a While",
		Date:         domain.Date(2025, time.March, 15),
		Time:         domain.NewClockTime(19, 30),
		TicketSource: domain.TicketSourceInternal,
		FullPrice:    1500,
		Capacity:     &capacity,
		Status:       domain.EventStatusPublished,
	})
	require.NoError(t, err)
	return c
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	raw, err := middleware.SignToken(testAuth, middleware.Identity{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   role,
	}, time.Hour)
	require.NoError(t, err)
	return raw
}

// do sends body as JSON unless it is already a reader
func (s *testServer) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorData `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, w, nil)
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	w = s.do(http.MethodGet, "/ready", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	if ready.Components["postgres"] != "not configured" {
		t.Errorf("postgres = %q, want %q", ready.Components["postgres"], "not configured")
	}
}

type failingChecker struct{}

func (failingChecker) HealthCheck(ctx context.Context) error { return context.DeadlineExceeded }

func TestReady_UnhealthyComponent(t *testing.T) {
	h := NewHealthHandler("test", map[string]HealthChecker{"redis": failingChecker{}})
	r := gin.New()
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}
