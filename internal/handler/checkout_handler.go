package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/polyphonica/booking/pkg/response"
)

// CheckoutHandler opens hosted checkout sessions and handles the buyer's return
type CheckoutHandler struct {
	checkout  service.CheckoutService
	reconcile service.ReconcileService
}

func NewCheckoutHandler(checkout service.CheckoutService, reconcile service.ReconcileService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, reconcile: reconcile}
}

func callerOf(c *gin.Context) dto.Caller {
	id := middleware.GetIdentity(c)
	return dto.Caller{UserID: id.UserID, Email: id.Email, IsStaff: id.IsStaff()}
}

// StartWorkshopCheckout handles POST /workshops/:id/checkout
func (h *CheckoutHandler) StartWorkshopCheckout(c *gin.Context) {
	var req dto.WorkshopCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.checkout.StartWorkshopCheckout(c.Request.Context(), req.ToService(c.Param("id"), callerOf(c)))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, result)
}

// StartConcertCheckout handles POST /concerts/:id/checkout. Guests may buy.
func (h *CheckoutHandler) StartConcertCheckout(c *gin.Context) {
	var req dto.ConcertCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.checkout.StartConcertCheckout(c.Request.Context(), req.ToService(c.Param("id"), callerOf(c)))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, result)
}

// CheckoutSuccess handles GET /checkout/success?session_id=...
func (h *CheckoutHandler) CheckoutSuccess(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}

	result, err := h.reconcile.ConfirmCheckoutReturn(c.Request.Context(), sessionID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
