package metrics

import (
	"context"
	"sync"

	"github.com/polyphonica/booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	CheckoutsStarted  *telemetry.Counter
	CheckoutsRejected *telemetry.Counter
	PaymentsConfirmed *telemetry.Counter
	HoldsExpired      *telemetry.Counter
	Refunds           *telemetry.Counter

	WebhooksReceived *telemetry.Counter
	WebhooksRejected *telemetry.Counter

	FeeSyncResults  *telemetry.Counter
	EventsPublished *telemetry.Counter

	WebhookProcessingTime *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init registers every instrument. Safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		opts telemetry.MetricOpts
	}{
		{&CheckoutsStarted, telemetry.MetricOpts{Name: "booking_checkouts_started_total", Description: "Checkout sessions opened", Unit: "1"}},
		{&CheckoutsRejected, telemetry.MetricOpts{Name: "booking_checkouts_rejected_total", Description: "Checkouts refused before reaching the processor", Unit: "1"}},
		{&PaymentsConfirmed, telemetry.MetricOpts{Name: "booking_payments_confirmed_total", Description: "Ledger rows moved from pending to paid", Unit: "1"}},
		{&HoldsExpired, telemetry.MetricOpts{Name: "booking_holds_expired_total", Description: "Pending rows cancelled after their hold lapsed", Unit: "1"}},
		{&Refunds, telemetry.MetricOpts{Name: "booking_refunds_total", Description: "Refunds issued", Unit: "1"}},
		{&WebhooksReceived, telemetry.MetricOpts{Name: "booking_webhooks_received_total", Description: "Processor webhooks received", Unit: "1"}},
		{&WebhooksRejected, telemetry.MetricOpts{Name: "booking_webhooks_rejected_total", Description: "Processor webhooks rejected", Unit: "1"}},
		{&FeeSyncResults, telemetry.MetricOpts{Name: "booking_fee_sync_results_total", Description: "Fee sync outcomes", Unit: "1"}},
		{&EventsPublished, telemetry.MetricOpts{Name: "booking_events_published_total", Description: "Outbox events published", Unit: "1"}},
	}

	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	WebhookProcessingTime, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_webhook_processing_seconds",
		Description: "Webhook processing duration",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	return err
}

func RecordCheckoutStarted(ctx context.Context, kind string) {
	CheckoutsStarted.Inc(ctx, attribute.String("kind", kind))
}

func RecordCheckoutRejected(ctx context.Context, kind, reason string) {
	CheckoutsRejected.Inc(ctx, attribute.String("kind", kind), attribute.String("reason", reason))
}

// RecordPaymentConfirmed counts a paid transition by the path that performed it
func RecordPaymentConfirmed(ctx context.Context, kind, source string) {
	PaymentsConfirmed.Inc(ctx, attribute.String("kind", kind), attribute.String("source", source))
}

func RecordHoldsExpired(ctx context.Context, n int) {
	HoldsExpired.Add(ctx, int64(n))
}

func RecordRefund(ctx context.Context, kind, reason string) {
	Refunds.Inc(ctx, attribute.String("kind", kind), attribute.String("reason", reason))
}

func RecordWebhookReceived(ctx context.Context, eventType string) {
	WebhooksReceived.Inc(ctx, attribute.String("event_type", eventType))
}

func RecordWebhookRejected(ctx context.Context, reason string) {
	WebhooksRejected.Inc(ctx, attribute.String("reason", reason))
}

func RecordWebhookProcessed(ctx context.Context, eventType string, seconds float64) {
	WebhookProcessingTime.Record(ctx, seconds, attribute.String("event_type", eventType))
}

// RecordFeeSync adds one run's tallies, labelled by outcome
func RecordFeeSync(ctx context.Context, created, updated, skipped, errored int) {
	FeeSyncResults.Add(ctx, int64(created), attribute.String("outcome", "created"))
	FeeSyncResults.Add(ctx, int64(updated), attribute.String("outcome", "updated"))
	FeeSyncResults.Add(ctx, int64(skipped), attribute.String("outcome", "skipped"))
	FeeSyncResults.Add(ctx, int64(errored), attribute.String("outcome", "error"))
}

func RecordEventPublished(ctx context.Context, eventType, bus string) {
	EventsPublished.Inc(ctx, attribute.String("event_type", eventType), attribute.String("bus", bus))
}
