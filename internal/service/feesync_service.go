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
	"github.com/polyphonica/booking/pkg/retry"
	"github.com/polyphonica/booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultFeeLookbackDays = 30

// FeeSyncService copies the processor's fee breakdown onto paid bookings
type FeeSyncService interface {
	Sync(ctx context.Context, opts FeeSyncOptions) (*FeeSyncResult, error)
}

// FeeSyncOptions selects which paid rows to look at
type FeeSyncOptions struct {
	// Days is the lookback on paid_at; ignored when All is set
	Days int
	All  bool
	// Force refetches rows that already have a fee record
	Force  bool
	DryRun bool
}

// FeePreview is one fetched breakdown
type FeePreview struct {
	Kind            domain.EventKind `json:"kind"`
	LedgerID        string           `json:"ledger_id"`
	PaymentIntentID string           `json:"payment_intent_id"`
	Gross           domain.Pence     `json:"gross"`
	Fee             domain.Pence     `json:"fee"`
	Net             domain.Pence     `json:"net"`
}

// FeeSyncResult counts one run
type FeeSyncResult struct {
	DryRun     bool         `json:"dry_run"`
	Workshop   int          `json:"workshop_payments"`
	Concert    int          `json:"concert_payments"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Skipped    int          `json:"skipped"`
	Errors     int          `json:"errors"`
	Previews   []FeePreview `json:"previews,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Total is the number of payments processed
func (r *FeeSyncResult) Total() int { return r.Workshop + r.Concert }

func (r *FeeSyncResult) String() string {
	if r.DryRun {
		return fmt.Sprintf("would process %d transactions", r.Total())
	}
	return fmt.Sprintf("%d created, %d updated, %d skipped, %d errors", r.Created, r.Updated, r.Skipped, r.Errors)
}

type feeSyncService struct {
	finance repository.FinanceRepository
	gw      gateway.PaymentGateway
	policy  retry.Policy
	log     *logger.Logger
	now     Clock
}

// NewFeeSyncService creates a new FeeSyncService
func NewFeeSyncService(finance repository.FinanceRepository, gw gateway.PaymentGateway, policy retry.Policy, now Clock) FeeSyncService {
	return &feeSyncService{
		finance: finance,
		gw:      gw,
		policy:  policy,
		log:     logger.Get().Named("feesync"),
		now:     clockOrSystem(now),
	}
}

func (s *feeSyncService) Sync(ctx context.Context, opts FeeSyncOptions) (*FeeSyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.feesync.sync",
		attribute.Bool("all", opts.All),
		attribute.Bool("force", opts.Force),
		attribute.Bool("dry_run", opts.DryRun),
	)
	defer span.End()

	q := repository.FeeSyncQuery{IncludeSynced: opts.Force}
	if !opts.All {
		days := opts.Days
		if days <= 0 {
			days = defaultFeeLookbackDays
		}
		since := s.now().AddDate(0, 0, -days)
		q.PaidSince = &since
	}

	candidates, err := s.finance.FeeSyncCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list fee sync candidates: %w", err)
	}

	result := &FeeSyncResult{DryRun: opts.DryRun}
	for _, e := range candidates {
		if e.Kind == domain.KindWorkshop {
			result.Workshop++
		} else {
			result.Concert++
		}
	}
	s.log.Info("fee sync started",
		zap.Int("workshop_payments", result.Workshop),
		zap.Int("concert_payments", result.Concert),
		zap.Bool("dry_run", opts.DryRun),
	)

	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.syncOne(ctx, e, opts, result)
	}

	result.FinishedAt = s.now()
	if !opts.DryRun {
		metrics.RecordFeeSync(ctx, result.Created, result.Updated, result.Skipped, result.Errors)
	}
	s.log.Info("fee sync finished", zap.String("summary", result.String()))
	return result, nil
}

func (s *feeSyncService) syncOne(ctx context.Context, e domain.LedgerEntry, opts FeeSyncOptions, result *FeeSyncResult) {
	log := s.log.With(
		zap.String("kind", string(e.Kind)),
		zap.String("ledger_id", e.ID),
		zap.String("payment_intent_id", e.PaymentIntentID),
	)

	fees, err := s.fetchFees(ctx, e.PaymentIntentID)
	if err != nil {
		if errors.Is(err, gateway.ErrNoCharge) || errors.Is(err, gateway.ErrNoBalanceTransaction) {
			log.Warn("payment not settled yet", zap.Error(err))
			result.Skipped++
			return
		}
		log.Error("fee lookup failed", zap.Error(err))
		result.Errors++
		return
	}

	if opts.DryRun {
		result.Previews = append(result.Previews, FeePreview{
			Kind:            e.Kind,
			LedgerID:        e.ID,
			PaymentIntentID: e.PaymentIntentID,
			Gross:           fees.Gross,
			Fee:             fees.Fee,
			Net:             fees.Net,
		})
		return
	}

	rec, err := domain.NewFeeRecord(e.Kind, e.ID, e.PaymentIntentID, fees.Gross, fees.Fee, fees.Created)
	if err != nil {
		log.Error("processor returned an inconsistent fee breakdown", zap.Error(err))
		result.Errors++
		return
	}
	rec.ChargeID = fees.ChargeID
	rec.BalanceTransactionID = fees.BalanceTransactionID

	created, err := s.finance.UpsertFeeRecord(ctx, rec)
	if err != nil {
		log.Error("could not save fee record", zap.Error(err))
		result.Errors++
		return
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}
	log.Debug("fee record saved", zap.Bool("created", created), zap.Int64("fee", int64(fees.Fee)))
}

// fetchFees retries transient processor failures; client errors and unsettled payments fail at once
func (s *feeSyncService) fetchFees(ctx context.Context, paymentIntentID string) (*gateway.PaymentFees, error) {
	var fees *gateway.PaymentFees
	err := s.policy.DoNotify(ctx, func(ctx context.Context) error {
		f, err := s.gw.GetPaymentFees(ctx, paymentIntentID)
		if err != nil {
			if !gateway.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		fees = f
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		s.log.Debug("retrying fee lookup",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	return fees, err
}
