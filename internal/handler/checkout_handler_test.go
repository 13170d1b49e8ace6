package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registrationForm = map[string]interface{}{
	"name":           "Ada Lovelace",
	"instruments":    "treble, tenor",
	"terms_accepted": true,
}

func (s *testServer) startWorkshopCheckout(t *testing.T, workshopID, userID string) service.CheckoutResult {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/workshops/"+workshopID+"/checkout", token(t, userID, middleware.RoleUser), registrationForm)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result service.CheckoutResult
	decode(t, w, &result)
	return result
}

func TestStartWorkshopCheckout(t *testing.T) {
	s := newTestServer(t)
	ws := s.workshop(t)
	path := "/api/v1/workshops/" + ws.ID + "/checkout"

	tests := []struct {
		name       string
		bearer     string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no token",
			body:       registrationForm,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "staff cannot register",
			bearer:     token(t, "staff-1", middleware.RoleStaff),
			body:       registrationForm,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "terms not accepted",
			bearer:     token(t, "user-1", middleware.RoleUser),
			body:       map[string]interface{}{"name": "Ada Lovelace"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			bearer:     token(t, "user-1", middleware.RoleUser),
			body:       []byte(`{"terms_accepted":`),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, path, tt.bearer, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	t.Run("opens a session", func(t *testing.T) {
		result := s.startWorkshopCheckout(t, ws.ID, "user-1")

		assert.Equal(t, domain.KindWorkshop, result.Kind)
		assert.Equal(t, domain.Pence(4500), result.Amount)
		assert.NotEmpty(t, result.SessionID)
		assert.NotEmpty(t, result.CheckoutURL)

		reg, err := s.repos.Ledger.GetRegistration(t.Context(), result.LedgerID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, reg.Status)
	})

	t.Run("unknown workshop", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/workshops/missing/checkout", token(t, "user-2", middleware.RoleUser), registrationForm)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestStartConcertCheckout(t *testing.T) {
	s := newTestServer(t)
	c := s.concert(t)
	path := "/api/v1/concerts/" + c.ID + "/checkout"

	t.Run("guest buys tickets", func(t *testing.T) {
		w := s.do(http.MethodPost, path, "", map[string]interface{}{
			"email":       "guest@example.com",
			"name":        "Grace Hopper",
			"ticket_type": "full",
			"quantity":    2,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var result service.CheckoutResult
		decode(t, w, &result)
		assert.Equal(t, domain.Pence(3000), result.Amount)
	})

	t.Run("missing email", func(t *testing.T) {
		w := s.do(http.MethodPost, path, "", map[string]interface{}{
			"name":        "Grace Hopper",
			"ticket_type": "full",
			"quantity":    1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("more than remaining capacity", func(t *testing.T) {
		w := s.do(http.MethodPost, path, "", map[string]interface{}{
			"email":       "late@example.com",
			"name":        "Late Comer",
			"ticket_type": "full",
			"quantity":    4,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "SOLD_OUT", errorCode(t, w))
	})

	t.Run("bad token is refused", func(t *testing.T) {
		w := s.do(http.MethodPost, path, "not-a-token", map[string]interface{}{
			"email":       "guest@example.com",
			"name":        "Grace Hopper",
			"ticket_type": "full",
			"quantity":    1,
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCheckoutSuccess(t *testing.T) {
	s := newTestServer(t)
	ws := s.workshop(t)
	result := s.startWorkshopCheckout(t, ws.ID, "user-1")

	w := s.do(http.MethodGet, "/api/v1/checkout/success", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "session_id is required")

	w = s.do(http.MethodGet, "/api/v1/checkout/success?session_id=cs_unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RECONCILIATION_NOT_FOUND", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/v1/checkout/success?session_id="+result.SessionID, "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PAYMENT_NOT_COMPLETED", errorCode(t, w))

	_, err := s.gw.CompleteSession(result.SessionID)
	require.NoError(t, err)

	w = s.do(http.MethodGet, "/api/v1/checkout/success?session_id="+result.SessionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmed service.ConfirmResult
	decode(t, w, &confirmed)
	assert.Equal(t, domain.StatusPaid, confirmed.Entry.Status)
	assert.False(t, confirmed.AlreadyProcessed)

	w = s.do(http.MethodGet, "/api/v1/checkout/success?session_id="+result.SessionID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &confirmed)
	assert.True(t, confirmed.AlreadyProcessed, "a reload reports the earlier confirmation")
}

func TestCancelRegistration(t *testing.T) {
	s := newTestServer(t)
	ws := s.workshop(t)
	result := s.startWorkshopCheckout(t, ws.ID, "user-1")
	path := "/api/v1/registrations/" + result.LedgerID + "/cancel"

	w := s.do(http.MethodPost, path, token(t, "user-2", middleware.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "only the owner may cancel")

	w = s.do(http.MethodPost, path, token(t, "user-1", middleware.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	reg, err := s.repos.Ledger.GetRegistration(t.Context(), result.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, reg.Status)

	w = s.do(http.MethodGet, "/api/v1/me/bookings", token(t, "user-1", middleware.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []domain.LedgerEntry
	decode(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StatusCancelled, entries[0].Status)
}

// webhookPayload builds an unsigned checkout.session.* event as the mock gateway accepts it
func webhookPayload(t *testing.T, eventID, eventType string, sess *gateway.CheckoutSession) []byte {
	t.Helper()
	object := map[string]interface{}{
		"id":             sess.ID,
		"object":         "checkout.session",
		"status":         sess.Status,
		"payment_status": sess.PaymentStatus,
		"amount_total":   int64(sess.AmountTotal),
		"metadata":       sess.Metadata,
		"payment_intent": sess.PaymentIntentID,
	}
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"id":     eventID,
		"object": "event",
		"type":   eventType,
		"data":   map[string]interface{}{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func TestStripeWebhook(t *testing.T) {
	s := newTestServer(t)
	ws := s.workshop(t)
	result := s.startWorkshopCheckout(t, ws.ID, "user-1")
	sess, err := s.gw.CompleteSession(result.SessionID)
	require.NoError(t, err)

	t.Run("unreadable payload", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", []byte("not json"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_PAYLOAD", errorCode(t, w))
	})

	t.Run("other events are acknowledged", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", []byte(`{"id":"evt_1","object":"event","type":"customer.created","data":{"object":{}}}`))
		require.Equal(t, http.StatusOK, w.Code)
		var ack map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
		assert.Equal(t, true, ack["received"])
		assert.Equal(t, service.WebhookIgnored, ack["action"])
	})

	t.Run("completed checkout marks the booking paid", func(t *testing.T) {
		payload := webhookPayload(t, "evt_2", gateway.EventCheckoutCompleted, sess)
		w := s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", payload)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var ack map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
		assert.Equal(t, service.WebhookMarkedPaid, ack["action"])

		reg, err := s.repos.Ledger.GetRegistration(t.Context(), result.LedgerID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, reg.Status)
	})

	t.Run("redelivery is harmless", func(t *testing.T) {
		payload := webhookPayload(t, "evt_2", gateway.EventCheckoutCompleted, sess)
		w := s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", payload)
		require.Equal(t, http.StatusOK, w.Code)

		var ack map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
		assert.Equal(t, service.WebhookAlreadyPaid, ack["action"])
	})
}

func TestStripeWebhook_UnsignedPaymentClaim(t *testing.T) {
	s := newTestServer(t)
	ws := s.workshop(t)
	result := s.startWorkshopCheckout(t, ws.ID, "user-1")

	sess, ok := s.gw.Session(result.SessionID)
	require.True(t, ok)
	forged := *sess
	forged.Status = gateway.SessionStatusComplete
	forged.PaymentStatus = gateway.PaymentStatusPaid
	forged.PaymentIntentID = "pi_forged"

	w := s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", webhookPayload(t, "evt_forged", gateway.EventCheckoutCompleted, &forged))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, service.WebhookIgnored, ack["action"])

	reg, err := s.repos.Ledger.GetRegistration(t.Context(), result.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, reg.Status, "the processor still reports the session unpaid")
}
