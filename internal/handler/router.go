package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/pkg/middleware"
)

// Handlers groups every HTTP handler the API serves
type Handlers struct {
	Health     *HealthHandler
	Catalog    *CatalogHandler
	Checkout   *CheckoutHandler
	Webhook    *WebhookHandler
	Booking    *BookingHandler
	Finance    *FinanceHandler
	Expense    *ExpenseHandler
	Import     *ImportHandler
	Repertoire *RepertoireHandler
}

// RouteOptions carries the middleware settings routes depend on
type RouteOptions struct {
	Auth middleware.AuthConfig
	// Idempotency guards checkout POSTs; nil when Redis is unavailable
	Idempotency *middleware.IdempotencyConfig
}

// RegisterRoutes mounts health probes at the root and the API under /api/v1
func RegisterRoutes(r *gin.Engine, h *Handlers, opts RouteOptions) {
	r.GET("/health", h.Health.Health)
	r.GET("/ready", h.Health.Ready)

	auth := middleware.Auth(opts.Auth)
	guarded := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		if opts.Idempotency == nil {
			return handlers
		}
		last := len(handlers) - 1
		chain := append([]gin.HandlerFunc{}, handlers[:last]...)
		return append(chain, middleware.Idempotency(opts.Idempotency), handlers[last])
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/workshops", h.Catalog.ListWorkshops)
		v1.GET("/workshops/:slug", h.Catalog.GetWorkshop)
		v1.GET("/concerts", h.Catalog.ListConcerts)
		v1.GET("/concerts/:slug", h.Catalog.GetConcert)
		v1.GET("/events/:kind/:id/availability", h.Catalog.Availability)
		v1.GET("/programmes/:id", h.Repertoire.GetProgramme)

		v1.POST("/workshops/:id/checkout", guarded(auth, h.Checkout.StartWorkshopCheckout)...)
		v1.POST("/concerts/:id/checkout", guarded(middleware.OptionalAuth(opts.Auth), h.Checkout.StartConcertCheckout)...)
		v1.GET("/checkout/success", h.Checkout.CheckoutSuccess)

		v1.POST("/webhooks/stripe", h.Webhook.HandleStripeWebhook)

		v1.POST("/registrations/:id/cancel", auth, h.Booking.CancelRegistration)
		v1.GET("/me/bookings", auth, h.Booking.MyBookings)

		staff := v1.Group("/staff", auth, middleware.RequireStaff())
		{
			staff.POST("/workshops", h.Catalog.CreateWorkshop)
			staff.GET("/workshops/:id", h.Catalog.GetWorkshopByID)
			staff.PUT("/workshops/:id", h.Catalog.UpdateWorkshop)
			staff.GET("/workshops/:id/attendees", h.Booking.ListAttendees)
			staff.POST("/workshops/:id/import", h.Import.ImportLegacy)

			staff.POST("/concerts", h.Catalog.CreateConcert)
			staff.GET("/concerts/:id", h.Catalog.GetConcertByID)
			staff.PUT("/concerts/:id", h.Catalog.UpdateConcert)
			staff.GET("/concerts/:id/orders", h.Booking.ListConcertOrders)

			staff.GET("/ledger/:kind/:id", h.Booking.GetEntry)
			staff.POST("/ledger/:kind/:id/refund", h.Booking.RefundEntry)
			staff.POST("/registrations/:id/attended", h.Booking.MarkAttended)

			staff.GET("/finance", h.Finance.Dashboard)
			staff.GET("/finance/events", h.Finance.EventsComparison)
			staff.GET("/finance/events/:kind/:id", h.Finance.EventFinancials)
			staff.GET("/finance/export", h.Finance.ExportCSV)
			staff.POST("/finance/sync-fees", h.Finance.SyncFees)

			staff.GET("/expenses", h.Expense.List)
			staff.POST("/expenses", h.Expense.Create)
			staff.GET("/expenses/:id", h.Expense.Get)
			staff.PUT("/expenses/:id", h.Expense.Update)
			staff.DELETE("/expenses/:id", h.Expense.Delete)

			staff.GET("/composers", h.Repertoire.ListComposers)
			staff.POST("/composers", h.Repertoire.CreateComposer)
			staff.POST("/pieces", h.Repertoire.CreatePiece)
			staff.GET("/pieces/:id", h.Repertoire.GetPiece)
			staff.POST("/programmes", h.Repertoire.CreateProgramme)
			staff.POST("/programmes/:id/items", h.Repertoire.AddItem)
		}
	}
}
