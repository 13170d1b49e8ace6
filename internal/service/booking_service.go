package service

import (
	"context"
	"fmt"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/metrics"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BookingService covers what happens to a booking after checkout: cancellation,
// refunds, attendance and the rosters staff read
type BookingService interface {
	// CancelRegistration is the attendee cancelling their own workshop place
	CancelRegistration(ctx context.Context, registrationID, userID string) (*CancelResult, error)
	// RefundEntry refunds a paid row in full on behalf of staff
	RefundEntry(ctx context.Context, kind domain.EventKind, id, reason string) (*CancelResult, error)
	MarkAttended(ctx context.Context, registrationID string) (*domain.LedgerEntry, error)

	GetEntry(ctx context.Context, kind domain.EventKind, id string) (*domain.LedgerEntry, error)
	ListAttendees(ctx context.Context, workshopID string, status domain.LedgerStatus) ([]*domain.WorkshopRegistration, error)
	ListConcertOrders(ctx context.Context, concertID string, status domain.LedgerStatus) ([]*domain.ConcertTicketOrder, error)
	ListUserBookings(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
}

// CancelResult is the row after a cancellation or refund
type CancelResult struct {
	Entry    domain.LedgerEntry `json:"booking"`
	Refunded domain.Pence       `json:"refunded"`
	RefundID string             `json:"refund_id,omitempty"`
}

type bookingService struct {
	*settler
	config Config
}

// NewBookingService creates a new BookingService
func NewBookingService(
	repos *repository.Repositories,
	gw gateway.PaymentGateway,
	notifier Notifier,
	config Config,
	now Clock,
) BookingService {
	s := newSettler(repos.Catalog, repos.Ledger, gw, notifier, now)
	s.log = logger.Get().Named("booking")
	return &bookingService{settler: s, config: config.withDefaults()}
}

// CancelRegistration refunds in full when cancelled at least RefundCutoffDays
// before the workshop; later cancellations keep the payment
func (s *bookingService) CancelRegistration(ctx context.Context, registrationID, userID string) (*CancelResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel_registration", attribute.String("registration_id", registrationID))
	defer span.End()

	reg, err := s.ledger.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	w, err := s.catalog.GetWorkshop(ctx, reg.WorkshopID)
	if err != nil {
		return nil, err
	}

	if reg.Status == domain.StatusPending && reg.CheckoutSessionID != "" {
		paid, err := s.closeSession(ctx, reg.CheckoutSessionID, SourceCancellation)
		if err != nil {
			return nil, fmt.Errorf("close checkout session: %w", err)
		}
		if paid {
			if reg, err = s.ledger.GetRegistration(ctx, registrationID); err != nil {
				return nil, err
			}
		}
	}

	switch reg.Status {
	case domain.StatusPending:
		entry, err := s.ledger.Transition(ctx, domain.Transition{
			Kind:   domain.KindWorkshop,
			ID:     reg.ID,
			From:   []domain.LedgerStatus{domain.StatusPending},
			To:     domain.StatusCancelled,
			Reason: domain.ReasonUserCancelled,
		})
		if err != nil {
			return nil, err
		}
		return &CancelResult{Entry: *entry}, nil

	case domain.StatusPaid:
		result := &CancelResult{}
		to := domain.StatusCancelled
		if reg.RefundEligible(w, s.now(), s.config.RefundCutoffDays) {
			refund, err := s.refund(ctx, reg.Entry(w), domain.ReasonUserCancelled)
			if err != nil {
				return nil, err
			}
			result.Refunded = refund.Amount
			result.RefundID = refund.ID
			to = domain.StatusRefunded
		}

		entry, err := s.transitionAfterRefund(ctx, domain.Transition{
			Kind:   domain.KindWorkshop,
			ID:     reg.ID,
			From:   []domain.LedgerStatus{domain.StatusPaid},
			To:     to,
			Reason: domain.ReasonUserCancelled,
		}, result.RefundID)
		if err != nil {
			return nil, err
		}
		result.Entry = *entry

		if err := s.notifier.RegistrationCancelled(ctx, w, reg, result.Refunded, s.config.RefundCutoffDays); err != nil {
			s.log.Warn("cancellation email failed", zap.String("registration_id", reg.ID), zap.Error(err))
		}
		if err := s.notifier.BookingCancelled(ctx, *entry, "cancelled by attendee"); err != nil {
			s.log.Warn("staff alert failed", zap.String("registration_id", reg.ID), zap.Error(err))
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: registration is %s", domain.ErrInvalidTransition, reg.Status)
}

func (s *bookingService) RefundEntry(ctx context.Context, kind domain.EventKind, id, reason string) (*CancelResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.refund", attribute.String("kind", string(kind)), attribute.String("ledger_id", id))
	defer span.End()

	entry, err := s.ledger.GetEntry(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != domain.StatusPaid {
		return nil, fmt.Errorf("%w: only paid bookings can be refunded, this one is %s", domain.ErrInvalidTransition, entry.Status)
	}
	if reason == "" {
		reason = domain.ReasonStaffRefund
	}

	refund, err := s.refund(ctx, *entry, reason)
	if err != nil {
		return nil, err
	}
	updated, err := s.transitionAfterRefund(ctx, domain.Transition{
		Kind:   kind,
		ID:     id,
		From:   []domain.LedgerStatus{domain.StatusPaid},
		To:     domain.StatusRefunded,
		Reason: reason,
	}, refund.ID)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.BookingCancelled(ctx, *updated, "refunded by staff: "+reason); err != nil {
		s.log.Warn("staff alert failed", zap.String("ledger_id", id), zap.Error(err))
	}
	return &CancelResult{Entry: *updated, Refunded: refund.Amount, RefundID: refund.ID}, nil
}

func (s *bookingService) refund(ctx context.Context, e domain.LedgerEntry, reason string) (*gateway.RefundResult, error) {
	if !e.HasStripePayment() {
		return nil, domain.ErrNoPaymentIntent
	}

	meta := map[string]string{
		gateway.MetaType:   string(e.Kind),
		gateway.MetaReason: reason,
	}
	if e.Kind == domain.KindWorkshop {
		meta[gateway.MetaRegistrationID] = e.ID
	} else {
		meta[gateway.MetaOrderID] = e.ID
	}

	refund, err := s.gw.Refund(ctx, &gateway.RefundRequest{
		PaymentIntentID: e.PaymentIntentID,
		Amount:          e.Amount,
		Metadata:        meta,
	})
	if err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	metrics.RecordRefund(ctx, string(e.Kind), reason)
	return refund, nil
}

// transitionAfterRefund logs loudly when money went back but the row did not move
func (s *bookingService) transitionAfterRefund(ctx context.Context, tr domain.Transition, refundID string) (*domain.LedgerEntry, error) {
	entry, err := s.ledger.Transition(ctx, tr)
	if err != nil && refundID != "" {
		s.log.Error("refund issued but booking status not updated",
			zap.String("kind", string(tr.Kind)),
			zap.String("ledger_id", tr.ID),
			zap.String("refund_id", refundID),
			zap.Error(err),
		)
	}
	return entry, err
}

func (s *bookingService) MarkAttended(ctx context.Context, registrationID string) (*domain.LedgerEntry, error) {
	return s.ledger.Transition(ctx, domain.Transition{
		Kind: domain.KindWorkshop,
		ID:   registrationID,
		From: []domain.LedgerStatus{domain.StatusPaid},
		To:   domain.StatusAttended,
	})
}

func (s *bookingService) GetEntry(ctx context.Context, kind domain.EventKind, id string) (*domain.LedgerEntry, error) {
	return s.ledger.GetEntry(ctx, kind, id)
}

func (s *bookingService) ListAttendees(ctx context.Context, workshopID string, status domain.LedgerStatus) ([]*domain.WorkshopRegistration, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	if _, err := s.catalog.GetWorkshop(ctx, workshopID); err != nil {
		return nil, err
	}
	return s.ledger.ListRegistrations(ctx, workshopID, status)
}

func (s *bookingService) ListConcertOrders(ctx context.Context, concertID string, status domain.LedgerStatus) ([]*domain.ConcertTicketOrder, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	if _, err := s.catalog.GetConcert(ctx, concertID); err != nil {
		return nil, err
	}
	return s.ledger.ListOrders(ctx, concertID, status)
}

func (s *bookingService) ListUserBookings(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	return s.ledger.ListUserEntries(ctx, userID)
}
