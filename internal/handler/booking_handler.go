package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/polyphonica/booking/pkg/response"
)

// BookingHandler serves attendee self-service and the staff ledger actions
type BookingHandler struct {
	bookings service.BookingService
}

func NewBookingHandler(bookings service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CancelRegistration handles POST /registrations/:id/cancel
func (h *BookingHandler) CancelRegistration(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	result, err := h.bookings.CancelRegistration(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// MyBookings handles GET /me/bookings
func (h *BookingHandler) MyBookings(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	entries, err := h.bookings.ListUserBookings(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entries)
}

func kindParam(c *gin.Context) (domain.EventKind, bool) {
	kind, err := domain.ParseEventKind(c.Param("kind"))
	if err != nil {
		handleError(c, err)
		return "", false
	}
	return kind, true
}

// statusQuery reads ?status=, empty meaning every status
func statusQuery(c *gin.Context) (domain.LedgerStatus, bool) {
	status := domain.LedgerStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		handleError(c, domain.ErrInvalidStatus)
		return "", false
	}
	return status, true
}

// GetEntry handles GET /staff/ledger/:kind/:id
func (h *BookingHandler) GetEntry(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	entry, err := h.bookings.GetEntry(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entry)
}

// RefundEntry handles POST /staff/ledger/:kind/:id/refund
func (h *BookingHandler) RefundEntry(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.bookings.RefundEntry(c.Request.Context(), kind, c.Param("id"), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// MarkAttended handles POST /staff/registrations/:id/attended
func (h *BookingHandler) MarkAttended(c *gin.Context) {
	entry, err := h.bookings.MarkAttended(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entry)
}

// ListAttendees handles GET /staff/workshops/:id/attendees?status=
func (h *BookingHandler) ListAttendees(c *gin.Context) {
	status, ok := statusQuery(c)
	if !ok {
		return
	}
	regs, err := h.bookings.ListAttendees(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"attendees": regs, "total": len(regs)})
}

// ListConcertOrders handles GET /staff/concerts/:id/orders?status=
func (h *BookingHandler) ListConcertOrders(c *gin.Context) {
	status, ok := statusQuery(c)
	if !ok {
		return
	}
	orders, err := h.bookings.ListConcertOrders(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		handleError(c, err)
		return
	}

	tickets := 0
	for _, o := range orders {
		tickets += o.Quantity
	}
	response.Success(c, gin.H{"orders": orders, "total": len(orders), "tickets": tickets})
}
