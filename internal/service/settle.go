package service

import (
	"context"
	"errors"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/metrics"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/logger"
	"go.uber.org/zap"
)

// Paths that can observe a completed payment
const (
	SourceSuccessRedirect = "success_redirect"
	SourceWebhook         = "webhook"
	SourceHoldSweep       = "hold_sweep"
	SourceCheckoutRetry   = "checkout_retry"
	SourceCancellation    = "cancellation"
)

// settler turns processor sessions into ledger changes. Every path that learns
// a session was paid goes through markPaid so the follow-up runs once per row.
type settler struct {
	catalog  repository.CatalogRepository
	ledger   repository.LedgerRepository
	gw       gateway.PaymentGateway
	notifier Notifier
	log      *logger.Logger
	now      Clock
}

func newSettler(catalog repository.CatalogRepository, ledger repository.LedgerRepository, gw gateway.PaymentGateway, notifier Notifier, now Clock) *settler {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &settler{
		catalog:  catalog,
		ledger:   ledger,
		gw:       gw,
		notifier: notifier,
		log:      logger.Get().Named("settle"),
		now:      clockOrSystem(now),
	}
}

// markPaid records a paid session. Only the call that moves the row sends the confirmation.
func (s *settler) markPaid(ctx context.Context, sess *gateway.CheckoutSession, source string) (*domain.MarkPaidResult, error) {
	kind, err := sess.Kind()
	if err != nil {
		// the session id alone identifies the row
		kind = ""
	}

	res, err := s.ledger.MarkPaid(ctx, sess.Confirmation(kind, source, s.now()))
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case domain.Transitioned:
		s.afterPaid(ctx, res.Entry, source)
	case domain.NotPending:
		s.log.Warn("payment received for a booking that is no longer pending",
			zap.String("kind", string(res.Entry.Kind)),
			zap.String("ledger_id", res.Entry.ID),
			zap.String("status", string(res.Entry.Status)),
			zap.String("session_id", sess.ID),
			zap.String("payment_intent_id", sess.PaymentIntentID),
			zap.String("source", source),
		)
		if err := s.notifier.BookingCancelled(ctx, res.Entry, "payment received after the booking was "+string(res.Entry.Status)+", refund manually"); err != nil {
			s.log.Warn("staff alert failed", zap.Error(err))
		}
	}
	return res, nil
}

// afterPaid sends the buyer confirmation, flags it sent, then alerts staff. Failures are logged only.
func (s *settler) afterPaid(ctx context.Context, e domain.LedgerEntry, source string) {
	metrics.RecordPaymentConfirmed(ctx, string(e.Kind), source)
	s.log.Info("booking paid",
		zap.String("kind", string(e.Kind)),
		zap.String("ledger_id", e.ID),
		zap.String("event_id", e.EventID),
		zap.Int("quantity", e.Quantity),
		zap.String("source", source),
	)

	if err := s.sendConfirmation(ctx, e); err != nil {
		s.log.Warn("confirmation email failed", zap.String("ledger_id", e.ID), zap.Error(err))
	} else if err := s.ledger.SetConfirmationSent(ctx, e.Kind, e.ID); err != nil {
		s.log.Warn("could not flag confirmation as sent", zap.String("ledger_id", e.ID), zap.Error(err))
	}

	if err := s.notifier.PaymentReceived(ctx, e); err != nil {
		s.log.Warn("staff alert failed", zap.String("ledger_id", e.ID), zap.Error(err))
	}
}

func (s *settler) sendConfirmation(ctx context.Context, e domain.LedgerEntry) error {
	switch e.Kind {
	case domain.KindWorkshop:
		reg, err := s.ledger.GetRegistration(ctx, e.ID)
		if err != nil {
			return err
		}
		w, err := s.catalog.GetWorkshop(ctx, reg.WorkshopID)
		if err != nil {
			return err
		}
		return s.notifier.RegistrationConfirmed(ctx, w, reg)
	case domain.KindConcert:
		o, err := s.ledger.GetOrder(ctx, e.ID)
		if err != nil {
			return err
		}
		c, err := s.catalog.GetConcert(ctx, o.ConcertID)
		if err != nil {
			return err
		}
		return s.notifier.TicketsConfirmed(ctx, c, o)
	}
	return domain.ErrUnknownEventKind
}

// closeSession makes sure a session can no longer take money. It reports
// paid=true when the buyer paid before the session could be closed, in which
// case the payment has already been recorded.
func (s *settler) closeSession(ctx context.Context, sessionID, source string) (paid bool, err error) {
	sess, err := s.gw.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if gateway.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if sess.Paid() {
		return true, s.recordPaid(ctx, sess, source)
	}
	if !sess.Open() {
		return false, nil
	}

	expireErr := s.gw.ExpireCheckoutSession(ctx, sessionID)
	if expireErr == nil {
		return false, nil
	}

	// the buyer may have paid between the read and the expire
	sess, err = s.gw.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return false, expireErr
	}
	if sess.Paid() {
		return true, s.recordPaid(ctx, sess, source)
	}
	if sess.Open() {
		return false, expireErr
	}
	return false, nil
}

func (s *settler) recordPaid(ctx context.Context, sess *gateway.CheckoutSession, source string) error {
	_, err := s.markPaid(ctx, sess, source)
	if errors.Is(err, domain.ErrReconciliationNotFound) {
		s.log.Error("paid session has no booking",
			zap.String("session_id", sess.ID),
			zap.String("payment_intent_id", sess.PaymentIntentID),
		)
	}
	return err
}
