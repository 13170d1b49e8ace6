package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/response"
	"go.uber.org/zap"
)

// maxWebhookBody caps what is read from the processor
const maxWebhookBody = 1 << 16

// WebhookHandler receives processor webhooks
type WebhookHandler struct {
	reconcile service.ReconcileService
	log       *logger.Logger
}

func NewWebhookHandler(reconcile service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{
		reconcile: reconcile,
		log:       logger.Get().Named("webhook"),
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe. Only a bad signature or an
// unreadable payload is refused; every other delivery is acknowledged so the
// processor stops retrying, and the hold sweep recovers anything missed.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "Failed to read request body")
		return
	}

	result, err := h.reconcile.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid signature", "")
		return
	case errors.Is(err, domain.ErrInvalidPayload):
		response.Error(c, http.StatusBadRequest, "INVALID_PAYLOAD", "Invalid payload", "")
		return
	case err != nil:
		fields := []zap.Field{zap.Error(err)}
		if result != nil {
			fields = append(fields, zap.String("event_id", result.EventID), zap.String("event_type", result.EventType))
		}
		h.log.Error("webhook processing failed", fields...)
	}

	ack := dto.WebhookAck{Received: true}
	if err == nil && result != nil {
		ack.Action = result.Action
	}
	c.JSON(http.StatusOK, ack)
}
