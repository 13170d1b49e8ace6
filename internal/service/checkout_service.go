package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/metrics"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// successPath receives the buyer back from the hosted page; the processor fills in the session id
const successPath = "/api/v1/checkout/success?session_id={CHECKOUT_SESSION_ID}"

// CheckoutService opens hosted checkout sessions against a pending ledger row
type CheckoutService interface {
	StartWorkshopCheckout(ctx context.Context, req *WorkshopCheckoutRequest) (*CheckoutResult, error)
	StartConcertCheckout(ctx context.Context, req *ConcertCheckoutRequest) (*CheckoutResult, error)
}

// WorkshopCheckoutRequest is a signed-in user asking for a place
type WorkshopCheckoutRequest struct {
	WorkshopID string
	UserID     string
	Email      string
	Name       string
	IsStaff    bool
	Details    domain.RegistrationDetails
}

// ConcertCheckoutRequest is a guest or user buying tickets
type ConcertCheckoutRequest struct {
	ConcertID  string
	UserID     string
	Email      string
	Name       string
	Phone      string
	TicketType domain.TicketType
	Quantity   int
}

// CheckoutResult points the buyer at the hosted payment page
type CheckoutResult struct {
	Kind        domain.EventKind `json:"kind"`
	LedgerID    string           `json:"ledger_id"`
	SessionID   string           `json:"session_id"`
	CheckoutURL string           `json:"checkout_url"`
	Amount      domain.Pence     `json:"amount"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

type checkoutService struct {
	*settler
	users  repository.UserRepository
	config Config
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(
	repos *repository.Repositories,
	gw gateway.PaymentGateway,
	notifier Notifier,
	config Config,
	now Clock,
) CheckoutService {
	s := newSettler(repos.Catalog, repos.Ledger, gw, notifier, now)
	s.log = logger.Get().Named("checkout")
	return &checkoutService{settler: s, users: repos.Users, config: config.withDefaults()}
}

func (s *checkoutService) reject(ctx context.Context, kind domain.EventKind, reason string, err error) error {
	metrics.RecordCheckoutRejected(ctx, string(kind), reason)
	return err
}

// StartWorkshopCheckout holds one place for the user and opens a session for it
func (s *checkoutService) StartWorkshopCheckout(ctx context.Context, req *WorkshopCheckoutRequest) (*CheckoutResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.workshop")
	defer span.End()

	kind := domain.KindWorkshop
	if req == nil || req.UserID == "" {
		return nil, s.reject(ctx, kind, "unauthenticated", domain.ErrAuthenticationRequired)
	}
	span.SetAttributes(attribute.String("workshop_id", req.WorkshopID), attribute.String("user_id", req.UserID))
	if req.IsStaff {
		return nil, s.reject(ctx, kind, "staff", domain.ErrStaffCannotRegister)
	}
	if !req.Details.TermsAccepted {
		return nil, s.reject(ctx, kind, "terms", domain.ErrTermsNotAccepted)
	}

	now := s.now()
	w, err := s.catalog.GetWorkshop(ctx, req.WorkshopID)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.EventStatusPublished {
		return nil, s.reject(ctx, kind, "not_open", domain.ErrEventNotOpen)
	}
	if w.IsPast(now) {
		return nil, s.reject(ctx, kind, "past", domain.ErrEventInPast)
	}

	buyer := s.workshopBuyer(ctx, req)
	if err := s.settlePrevious(ctx, w.ID, req.UserID); err != nil {
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			return nil, s.reject(ctx, kind, "already_registered", err)
		}
		return nil, err
	}

	hold, err := s.ledger.PlaceWorkshopHold(ctx, repository.WorkshopHoldRequest{
		WorkshopID: w.ID,
		Buyer:      buyer,
		Details:    req.Details,
		Now:        now,
		Window:     s.config.HoldWindow,
	})
	if err != nil {
		if domain.IsConflictError(err) {
			return nil, s.reject(ctx, kind, "capacity", err)
		}
		return nil, err
	}

	reg := hold.Registration
	expires := now.Add(s.config.HoldWindow)
	checkout := &gateway.CheckoutRequest{
		ProductName:        w.Title,
		ProductDescription: w.ScheduleLine(),
		UnitAmount:         w.Price,
		Quantity:           1,
		Currency:           s.config.Currency,
		CustomerEmail:      reg.Email,
		SuccessURL:         s.config.PublicBaseURL + successPath,
		CancelURL:          s.config.PublicBaseURL + "/workshops/" + url.PathEscape(w.Slug),
		ExpiresAt:          expires,
		PaymentDescription: fmt.Sprintf("Workshop registration: %s (%s)", w.Title, w.Date.Format("02 Jan 2006")),
		Metadata: map[string]string{
			gateway.MetaType:           string(domain.KindWorkshop),
			gateway.MetaWorkshopID:     w.ID,
			gateway.MetaUserID:         req.UserID,
			gateway.MetaRegistrationID: reg.ID,
		},
	}
	return s.open(ctx, hold, checkout)
}

// workshopBuyer fills the buyer from the account when the token carried no name
func (s *checkoutService) workshopBuyer(ctx context.Context, req *WorkshopCheckoutRequest) domain.Buyer {
	buyer := domain.Buyer{UserID: req.UserID, Email: req.Email, Name: req.Name, Phone: req.Details.Phone}
	if s.users == nil || (buyer.Email != "" && buyer.Name != "") {
		return buyer
	}
	u, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return buyer
	}
	if buyer.Email == "" {
		buyer.Email = u.Email
	}
	if buyer.Name == "" {
		buyer.Name = u.FullName()
	}
	return buyer
}

// settlePrevious deals with the user's earlier attempt before its row is reused.
// An abandoned session is closed so it cannot be paid after the row moves on;
// a session paid in the meantime is recorded and the user is already registered.
func (s *checkoutService) settlePrevious(ctx context.Context, workshopID, userID string) error {
	prev, err := s.ledger.GetRegistrationForUser(ctx, workshopID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			return nil
		}
		return err
	}
	if prev.Status.Confirmed() {
		return domain.ErrAlreadyRegistered
	}
	if prev.Status != domain.StatusPending || prev.CheckoutSessionID == "" {
		return nil
	}

	paid, err := s.closeSession(ctx, prev.CheckoutSessionID, SourceCheckoutRetry)
	if err != nil {
		return fmt.Errorf("close previous checkout session: %w", err)
	}
	if paid {
		return domain.ErrAlreadyRegistered
	}
	return nil
}

// StartConcertCheckout holds the tickets and opens a session for them
func (s *checkoutService) StartConcertCheckout(ctx context.Context, req *ConcertCheckoutRequest) (*CheckoutResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkout.concert")
	defer span.End()

	kind := domain.KindConcert
	if req == nil {
		return nil, s.reject(ctx, kind, "invalid", domain.ErrInvalidQuantity)
	}
	span.SetAttributes(attribute.String("concert_id", req.ConcertID), attribute.Int("quantity", req.Quantity))

	now := s.now()
	c, err := s.catalog.GetConcert(ctx, req.ConcertID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.EventStatusPublished {
		return nil, s.reject(ctx, kind, "not_open", domain.ErrEventNotOpen)
	}
	if !c.SellsOnline() {
		return nil, s.reject(ctx, kind, "not_sold_online", domain.ErrNotSoldOnline)
	}
	if c.IsPast(now) {
		return nil, s.reject(ctx, kind, "past", domain.ErrEventInPast)
	}
	if req.TicketType != domain.TicketFull && req.TicketType != domain.TicketDiscount {
		return nil, s.reject(ctx, kind, "ticket_type", fmt.Errorf("%w: %q", domain.ErrInvalidTicketType, req.TicketType))
	}

	order, err := domain.NewConcertTicketOrder(c, domain.Buyer{
		UserID: req.UserID,
		Email:  req.Email,
		Name:   req.Name,
		Phone:  req.Phone,
	}, req.TicketType, req.Quantity, s.config.MaxTicketsPerOrder, now, s.config.HoldWindow)
	if err != nil {
		return nil, s.reject(ctx, kind, "invalid", err)
	}

	hold, err := s.ledger.PlaceConcertHold(ctx, order)
	if err != nil {
		if domain.IsConflictError(err) {
			return nil, s.reject(ctx, kind, "capacity", err)
		}
		return nil, err
	}

	label := c.TierLabel(order.TicketType)
	checkout := &gateway.CheckoutRequest{
		ProductName:        fmt.Sprintf("%s - %s", c.Title, label),
		ProductDescription: fmt.Sprintf("%s at %s", c.Date.Format("Monday 2 January 2006"), c.Time),
		UnitAmount:         order.UnitPrice,
		Quantity:           order.Quantity,
		Currency:           s.config.Currency,
		CustomerEmail:      order.Email,
		SuccessURL:         s.config.PublicBaseURL + successPath,
		CancelURL:          s.config.PublicBaseURL + "/concerts/" + url.PathEscape(c.Slug),
		ExpiresAt:          *order.HoldExpiresAt,
		PaymentDescription: fmt.Sprintf("%d x %s ticket(s): %s (%s)", order.Quantity, label, c.Title, c.Date.Format("02 Jan 2006")),
		Metadata: map[string]string{
			gateway.MetaType:       string(domain.KindConcert),
			gateway.MetaConcertID:  c.ID,
			gateway.MetaOrderID:    order.ID,
			gateway.MetaTicketType: string(order.TicketType),
			gateway.MetaQuantity:   strconv.Itoa(order.Quantity),
		},
	}
	if req.UserID != "" {
		checkout.Metadata[gateway.MetaUserID] = req.UserID
	}
	return s.open(ctx, hold, checkout)
}

// open creates the session and attaches it to the hold. The hold is released
// when the processor refuses, so no pending row outlives a failed checkout.
func (s *checkoutService) open(ctx context.Context, hold *repository.HoldResult, req *gateway.CheckoutRequest) (*CheckoutResult, error) {
	kind := hold.Entry.Kind
	sess, err := s.gw.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.release(ctx, hold)
		telemetry.SetSpanError(ctx, err)
		s.log.Error("create checkout session failed",
			zap.String("kind", string(kind)),
			zap.String("ledger_id", hold.Entry.ID),
			zap.Error(err),
		)
		return nil, s.reject(ctx, kind, "processor", fmt.Errorf("create checkout session: %w", err))
	}

	if err := s.ledger.AttachSession(ctx, kind, hold.Entry.ID, sess.ID); err != nil {
		if expErr := s.gw.ExpireCheckoutSession(ctx, sess.ID); expErr != nil {
			s.log.Warn("could not expire orphaned checkout session", zap.String("session_id", sess.ID), zap.Error(expErr))
		}
		s.release(ctx, hold)
		return nil, fmt.Errorf("attach checkout session: %w", err)
	}

	metrics.RecordCheckoutStarted(ctx, string(kind))
	s.log.Info("checkout session opened",
		zap.String("kind", string(kind)),
		zap.String("ledger_id", hold.Entry.ID),
		zap.String("session_id", sess.ID),
		zap.Bool("reused_row", !hold.Created),
	)

	return &CheckoutResult{
		Kind:        kind,
		LedgerID:    hold.Entry.ID,
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
		Amount:      req.UnitAmount * domain.Pence(req.Quantity),
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

func (s *checkoutService) release(ctx context.Context, hold *repository.HoldResult) {
	if err := s.ledger.ReleaseHold(ctx, hold); err != nil {
		s.log.Error("release hold failed",
			zap.String("kind", string(hold.Entry.Kind)),
			zap.String("ledger_id", hold.Entry.ID),
			zap.Error(err),
		)
	}
}
