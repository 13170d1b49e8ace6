package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaffRoutes_RequireStaffRole(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		bearer     string
		wantStatus int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"attendee", token(t, "user-1", middleware.RoleUser), http.StatusForbidden},
		{"staff", token(t, "staff-1", middleware.RoleStaff), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/v1/staff/finance", tt.bearer, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestCreateWorkshop(t *testing.T) {
	s := newTestServer(t)
	staff := token(t, "staff-1", middleware.RoleStaff)

	w := s.do(http.MethodPost, "/api/v1/staff/workshops", staff, map[string]interface{}{
		"title":            "Consort Day",
		"date":             "2025-04-05",
		"start_time":       "10:00",
		"end_time":         "16:30",
		"venue":            map[string]string{"name": "St Mary's Hall", "address": "1 Church Lane", "postcode": "OX1 1AA"},
		"price":            "45.00",
		"max_participants": 12,
		"status":           "published",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID              string       `json:"id"`
		Slug            string       `json:"slug"`
		Price           domain.Pence `json:"price"`
		PlacesRemaining int          `json:"places_remaining"`
	}
	decode(t, w, &created)
	assert.Equal(t, "consort-day", created.Slug)
	assert.Equal(t, domain.Pence(4500), created.Price)
	assert.Equal(t, 12, created.PlacesRemaining)

	w = s.do(http.MethodGet, "/api/v1/workshops/consort-day", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "published workshops are public")

	w = s.do(http.MethodPost, "/api/v1/staff/workshops", staff, map[string]interface{}{
		"title":      "Bad Price",
		"date":       "2025-04-05",
		"start_time": "10:00",
		"end_time":   "16:30",
		"price":      "forty",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailability(t *testing.T) {
	s := newTestServer(t)
	ws := s.workshop(t)

	w := s.do(http.MethodGet, "/api/v1/events/workshop/"+ws.ID+"/availability", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/events/recital/"+ws.ID+"/availability", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown event kind")
}

func TestExpenses(t *testing.T) {
	s := newTestServer(t)
	staff := token(t, "staff-1", middleware.RoleStaff)

	w := s.do(http.MethodPost, "/api/v1/staff/expenses", staff, map[string]interface{}{
		"date":        "2025-02-10",
		"category":    "venue_hire",
		"description": "Hall hire",
		"amount":      "120.00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.Expense
	decode(t, w, &created)
	assert.Equal(t, domain.Pence(12000), created.Amount)
	assert.Equal(t, "staff-1", created.CreatedBy)

	w = s.do(http.MethodPost, "/api/v1/staff/expenses", staff, map[string]interface{}{
		"date":        "2025-02-10",
		"category":    "travel",
		"description": "Train",
		"amount":      "30.00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown category")

	w = s.do(http.MethodGet, "/api/v1/staff/expenses?tax_year=2024", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Expense
	decode(t, w, &list)
	assert.Len(t, list, 1)

	w = s.do(http.MethodDelete, "/api/v1/staff/expenses/"+created.ID, staff, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/v1/staff/expenses/"+created.ID, staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFinanceExportCSV(t *testing.T) {
	s := newTestServer(t)
	staff := token(t, "staff-1", middleware.RoleStaff)

	w := s.do(http.MethodGet, "/api/v1/staff/finance/export?tax_year=2024", staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	w = s.do(http.MethodGet, "/api/v1/staff/finance/export?start=2025-04-01&end=2025-01-01", staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "end before start")
}

func (s *testServer) upload(t *testing.T, path, bearer, csv string, dryRun bool) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	if dryRun {
		require.NoError(t, mw.WriteField("dry_run", "true"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const legacyExport = "Customer Email,Card Name,Amount,Fee,PaymentIntent ID,Created date (UTC)\n" +
	"ada@example.com,Ada Lovelace,45.00,0.88,pi_aaa111,2024-11-02 09:15:00\n" +
	"grace@example.com,Grace Hopper,45.00,0.88,pi_bbb222,2024-11-03 10:30:00\n"

func TestImportLegacy(t *testing.T) {
	s := newTestServer(t)
	staff := token(t, "staff-1", middleware.RoleStaff)
	ws := s.workshop(t)
	path := "/api/v1/staff/workshops/" + ws.ID + "/import"

	t.Run("dry run previews", func(t *testing.T) {
		w := s.upload(t, path, staff, legacyExport, true)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var report service.ImportReport
		decode(t, w, &report)
		assert.True(t, report.DryRun)
		assert.Equal(t, 2, report.New)
		assert.Nil(t, report.Outcome)
	})

	t.Run("invalid rows are listed", func(t *testing.T) {
		bad := "email,amount,fee,payment_intent_id,date\n" +
			"not-an-email,45.00,0.88,pi_ccc,2024-11-02\n"
		w := s.upload(t, path, staff, bad, false)
		require.Equal(t, http.StatusBadRequest, w.Code)

		env := decode(t, w, nil)
		require.NotNil(t, env.Error)
		assert.Equal(t, "IMPORT_INVALID", env.Error.Code)
		assert.True(t, strings.Contains(env.Error.Details, "not-an-email"), env.Error.Details)
	})

	t.Run("import writes registrations", func(t *testing.T) {
		w := s.upload(t, path, staff, legacyExport, false)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var report service.ImportReport
		decode(t, w, &report)
		require.NotNil(t, report.Outcome)
		assert.Equal(t, 2, report.Outcome.RegistrationsCreated)

		w = s.do(http.MethodGet, "/api/v1/staff/workshops/"+ws.ID+"/attendees", staff, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var attendees struct {
			Total int `json:"total"`
		}
		decode(t, w, &attendees)
		assert.Equal(t, 2, attendees.Total)
	})

	t.Run("missing file", func(t *testing.T) {
		w := s.do(http.MethodPost, path, staff, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProgrammes(t *testing.T) {
	s := newTestServer(t)
	staff := token(t, "staff-1", middleware.RoleStaff)

	w := s.do(http.MethodPost, "/api/v1/staff/composers", staff, map[string]interface{}{"name": "Henry Purcell", "birth_year": 1659, "death_year": 1695})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var composer dto.ComposerResponse
	decode(t, w, &composer)

	w = s.do(http.MethodPost, "/api/v1/staff/pieces", staff, map[string]interface{}{
		"title":            "Chacony in G minor",
		"composer_id":      composer.ID,
		"duration_minutes": 7,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var piece domain.Piece
	decode(t, w, &piece)

	w = s.do(http.MethodPost, "/api/v1/staff/programmes", staff, map[string]interface{}{"title": "Spring concert"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var programme service.ProgrammeView
	decode(t, w, &programme)
	itemsPath := "/api/v1/staff/programmes/" + programme.ID + "/items"

	w = s.do(http.MethodPost, itemsPath, staff, map[string]interface{}{"item_type": "piece", "piece_id": piece.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPost, itemsPath, staff, map[string]interface{}{"item_type": "interval", "title": "Interval", "custom_duration": 15})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPost, itemsPath, staff, map[string]interface{}{"item_type": "talk"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "a talk needs a title")

	w = s.do(http.MethodGet, "/api/v1/programmes/"+programme.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &programme)
	assert.Equal(t, 22, programme.TotalDuration)
	assert.Equal(t, 1, programme.PieceCount)
	require.Len(t, programme.Items, 2)
	assert.Equal(t, 1, programme.Items[0].Order)
}
