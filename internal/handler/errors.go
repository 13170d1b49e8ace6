package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/response"
)

// handleError maps a service error onto the response envelope
func handleError(c *gin.Context, err error) {
	var importErr *service.ImportValidationError
	switch {
	case errors.As(err, &importErr):
		response.Error(c, http.StatusBadRequest, "IMPORT_INVALID", "Import file failed validation", strings.Join(importErr.Problems, "\n"))
	case errors.Is(err, domain.ErrAuthenticationRequired):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrStaffCannotRegister), errors.Is(err, domain.ErrNotOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrReconciliationNotFound):
		response.Error(c, http.StatusNotFound, "RECONCILIATION_NOT_FOUND", err.Error(), "")
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrSoldOut), errors.Is(err, domain.ErrInsufficientSpace):
		response.Conflict(c, "SOLD_OUT", err.Error())
	case errors.Is(err, domain.ErrAlreadyRegistered):
		response.Conflict(c, "ALREADY_REGISTERED", err.Error())
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		response.Conflict(c, "PAYMENT_NOT_COMPLETED", err.Error())
	case errors.Is(err, domain.ErrNoPaymentIntent):
		response.Conflict(c, "NO_PAYMENT", err.Error())
	case domain.IsConflictError(err):
		response.Conflict(c, "CONFLICT", err.Error())
	case errors.Is(err, domain.ErrNotSoldOnline):
		response.Error(c, http.StatusUnprocessableEntity, "NOT_SOLD_ONLINE", err.Error(), "")
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	case errors.Is(err, domain.ErrPaymentGateway):
		_ = c.Error(err)
		response.Error(c, http.StatusBadGateway, "PAYMENT_PROCESSOR_ERROR", "Payment processor unavailable, please try again", "")
	default:
		response.InternalError(c, err)
	}
}

func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
}
