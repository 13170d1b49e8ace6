package service

import (
	"context"
	"errors"
	"fmt"
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

// defaultSweepBatch bounds one hold-expiry pass
const defaultSweepBatch = 100

// ReconcileService records payments reported by the buyer's redirect, the
// processor's webhooks, and the hold-expiry sweep
type ReconcileService interface {
	// ConfirmCheckoutReturn checks the session with the processor; the redirect alone proves nothing
	ConfirmCheckoutReturn(ctx context.Context, sessionID string) (*ConfirmResult, error)
	// HandleWebhook verifies and applies one webhook delivery
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
	// ExpireStaleHolds cancels pending rows whose hold ended more than the grace period ago
	ExpireStaleHolds(ctx context.Context, limit int) (*SweepResult, error)
}

// ConfirmResult is the row after a success-return
type ConfirmResult struct {
	Entry   domain.LedgerEntry     `json:"booking"`
	Outcome domain.MarkPaidOutcome `json:"outcome"`
	// AlreadyProcessed is true when another path recorded the payment first
	AlreadyProcessed bool `json:"already_processed"`
}

// Webhook actions
const (
	WebhookMarkedPaid   = "marked_paid"
	WebhookAlreadyPaid  = "already_paid"
	WebhookNotPending   = "not_pending"
	WebhookCancelled    = "cancelled"
	WebhookIgnored      = "ignored"
	WebhookNoMatchingID = "no_matching_booking"
)

// WebhookResult says what one delivery did
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Action    string `json:"action"`
	LedgerID  string `json:"ledger_id,omitempty"`
}

// SweepResult counts one hold-expiry pass
type SweepResult struct {
	Cancelled int `json:"cancelled"`
	// Paid counts stale holds whose session turned out to be paid
	Paid    int `json:"paid"`
	Skipped int `json:"skipped"`
}

type reconcileService struct {
	*settler
	config Config
}

// NewReconcileService creates a new ReconcileService
func NewReconcileService(
	repos *repository.Repositories,
	gw gateway.PaymentGateway,
	notifier Notifier,
	config Config,
	now Clock,
) ReconcileService {
	s := newSettler(repos.Catalog, repos.Ledger, gw, notifier, now)
	s.log = logger.Get().Named("reconcile")
	return &reconcileService{settler: s, config: config.withDefaults()}
}

func (s *reconcileService) ConfirmCheckoutReturn(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.success_return", attribute.String("session_id", sessionID))
	defer span.End()

	if sessionID == "" {
		return nil, domain.ErrReconciliationNotFound
	}

	// a reload after confirmation is answered from the ledger
	entry, err := s.ledger.GetEntryBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if entry.Status.Confirmed() {
		return &ConfirmResult{Entry: *entry, Outcome: domain.AlreadyPaid, AlreadyProcessed: true}, nil
	}

	sess, err := s.gw.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, domain.ErrReconciliationNotFound
		}
		telemetry.SetSpanError(ctx, err)
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	if !sess.Paid() {
		return nil, fmt.Errorf("%w: payment status is %q", domain.ErrPaymentNotCompleted, sess.PaymentStatus)
	}

	res, err := s.markPaid(ctx, sess, SourceSuccessRedirect)
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{
		Entry:            res.Entry,
		Outcome:          res.Outcome,
		AlreadyProcessed: res.Outcome != domain.Transitioned,
	}, nil
}

// HandleWebhook returns ErrInvalidSignature or ErrInvalidPayload for deliveries
// that should be refused; anything else is acknowledged by the caller
func (s *reconcileService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.webhook")
	defer span.End()

	start := time.Now()
	event, err := s.gw.ParseWebhook(payload, signature)
	if err != nil {
		reason := "payload"
		if errors.Is(err, domain.ErrInvalidSignature) {
			reason = "signature"
		}
		metrics.RecordWebhookRejected(ctx, reason)
		s.log.Warn("webhook rejected", zap.String("reason", reason), zap.Error(err))
		return nil, err
	}
	metrics.RecordWebhookReceived(ctx, event.Type)
	span.SetAttributes(attribute.String("event_id", event.ID), attribute.String("event_type", event.Type))
	defer func() {
		metrics.RecordWebhookProcessed(ctx, event.Type, time.Since(start).Seconds())
	}()

	result := &WebhookResult{EventID: event.ID, EventType: event.Type, Action: WebhookIgnored}
	switch event.Type {
	case gateway.EventCheckoutCompleted:
		err = s.applyCompleted(ctx, event, result)
	case gateway.EventCheckoutExpired:
		err = s.applyExpired(ctx, event, result)
	default:
		s.log.Debug("webhook event ignored", zap.String("event_type", event.Type), zap.String("event_id", event.ID))
	}
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return result, err
	}
	return result, nil
}

// trustedSession returns the event's session, re-read from the processor when
// the delivery was not signed. A nil session with a nil error means no such session.
func (s *reconcileService) trustedSession(ctx context.Context, event *gateway.WebhookEvent) (*gateway.CheckoutSession, error) {
	if event.Verified {
		return event.Session, nil
	}
	sess, err := s.gw.GetCheckoutSession(ctx, event.Session.ID)
	if err != nil {
		if gateway.IsNotFound(err) {
			s.log.Warn("unsigned webhook names an unknown session", zap.String("event_id", event.ID), zap.String("session_id", event.Session.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("re-read unsigned webhook session: %w", err)
	}
	return sess, nil
}

func (s *reconcileService) applyCompleted(ctx context.Context, event *gateway.WebhookEvent, result *WebhookResult) error {
	sess := event.Session
	if sess == nil {
		return nil
	}
	if _, err := sess.Kind(); err != nil {
		s.log.Warn("checkout completed with unknown booking type",
			zap.String("session_id", sess.ID),
			zap.String("type", sess.Metadata[gateway.MetaType]),
		)
		return nil
	}
	if !sess.Paid() {
		s.log.Info("checkout completed without payment", zap.String("session_id", sess.ID), zap.String("payment_status", sess.PaymentStatus))
		return nil
	}

	sess, err := s.trustedSession(ctx, event)
	if err != nil {
		return err
	}
	if sess == nil {
		result.Action = WebhookNoMatchingID
		return nil
	}
	if !sess.Paid() {
		s.log.Warn("unsigned webhook claims a payment the processor does not report",
			zap.String("event_id", event.ID),
			zap.String("session_id", sess.ID),
			zap.String("payment_status", sess.PaymentStatus),
		)
		return nil
	}

	res, err := s.markPaid(ctx, sess, SourceWebhook)
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationNotFound) {
			s.log.Warn("no booking for completed checkout", zap.String("session_id", sess.ID))
			result.Action = WebhookNoMatchingID
			return nil
		}
		return err
	}

	result.LedgerID = res.Entry.ID
	switch res.Outcome {
	case domain.Transitioned:
		result.Action = WebhookMarkedPaid
	case domain.AlreadyPaid:
		result.Action = WebhookAlreadyPaid
	default:
		result.Action = WebhookNotPending
	}
	return nil
}

func (s *reconcileService) applyExpired(ctx context.Context, event *gateway.WebhookEvent, result *WebhookResult) error {
	if event.Session == nil {
		return nil
	}
	kind, err := event.Session.Kind()
	if err != nil {
		return nil
	}
	sess, err := s.trustedSession(ctx, event)
	if err != nil {
		return err
	}
	if sess == nil {
		result.Action = WebhookNoMatchingID
		return nil
	}
	if sess.Status != gateway.SessionStatusExpired {
		s.log.Warn("unsigned webhook claims an expiry the processor does not report",
			zap.String("event_id", event.ID),
			zap.String("session_id", sess.ID),
			zap.String("status", sess.Status),
		)
		return nil
	}

	entry, err := s.ledger.Transition(ctx, domain.Transition{
		Kind:      kind,
		SessionID: sess.ID,
		From:      []domain.LedgerStatus{domain.StatusPending},
		To:        domain.StatusCancelled,
		Reason:    domain.ReasonSessionExpired,
	})
	switch {
	case errors.Is(err, domain.ErrReconciliationNotFound):
		result.Action = WebhookNoMatchingID
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		// already paid or cancelled by another path
		return nil
	case err != nil:
		return err
	}

	result.Action = WebhookCancelled
	result.LedgerID = entry.ID
	metrics.RecordHoldsExpired(ctx, 1)
	s.log.Info("pending booking cancelled after session expiry", zap.String("ledger_id", entry.ID), zap.String("session_id", sess.ID))
	return nil
}

// ExpireStaleHolds checks each stale hold's session before cancelling it, so a
// payment that beat the sweep is recorded instead of lost
func (s *reconcileService) ExpireStaleHolds(ctx context.Context, limit int) (*SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.expire_holds")
	defer span.End()

	if limit <= 0 {
		limit = defaultSweepBatch
	}
	cutoff := s.now().Add(-s.config.HoldGrace)
	stale, err := s.ledger.ListStaleHolds(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, e := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if e.CheckoutSessionID != "" {
			paid, err := s.closeSession(ctx, e.CheckoutSessionID, SourceHoldSweep)
			if err != nil {
				s.log.Warn("stale hold left for next sweep", zap.String("ledger_id", e.ID), zap.Error(err))
				result.Skipped++
				continue
			}
			if paid {
				result.Paid++
				continue
			}
		}

		_, err := s.ledger.Transition(ctx, domain.Transition{
			Kind:   e.Kind,
			ID:     e.ID,
			From:   []domain.LedgerStatus{domain.StatusPending},
			To:     domain.StatusCancelled,
			Reason: domain.ReasonHoldExpired,
		})
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				s.log.Warn("could not cancel stale hold", zap.String("ledger_id", e.ID), zap.Error(err))
			}
			result.Skipped++
			continue
		}
		result.Cancelled++
	}

	if result.Cancelled > 0 {
		metrics.RecordHoldsExpired(ctx, result.Cancelled)
	}
	if len(stale) > 0 {
		s.log.Info("hold sweep finished",
			zap.Int("stale", len(stale)),
			zap.Int("cancelled", result.Cancelled),
			zap.Int("paid", result.Paid),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}
