package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func (e *testEnv) feeSync() FeeSyncService {
	return NewFeeSyncService(e.repos.Finance, e.gw, fastRetry(), e.clock.Now)
}

func TestFeeSync_CreatesRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")

	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Workshop)
	assert.Equal(t, 0, out.Concert)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, "1 created, 0 updated, 0 skipped, 0 errors", out.String())

	rec, err := env.repos.Finance.GetFeeRecord(ctx, domain.KindWorkshop, res.LedgerID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	// 1.5% of 45.00 is 68p, plus 20p
	assert.Equal(t, domain.Pence(4500), rec.Gross)
	assert.Equal(t, domain.Pence(88), rec.Fee)
	assert.Equal(t, domain.Pence(4412), rec.Net)
	assert.NotEmpty(t, rec.ChargeID)

	counts, err := env.repos.Finance.UnsyncedCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Total)

	// synced rows are left alone without force
	again, err := env.feeSync().Sync(ctx, FeeSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total())
}

func TestFeeSync_ForceUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")
	_, err := env.feeSync().Sync(ctx, FeeSyncOptions{})
	require.NoError(t, err)

	reg, err := env.repos.Ledger.GetRegistration(ctx, res.LedgerID)
	require.NoError(t, err)
	env.gw.SetFees(&gateway.PaymentFees{
		PaymentIntentID: reg.PaymentIntentID,
		Gross:           4500,
		Fee:             100,
		Net:             4400,
		Created:         testNow,
	})

	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Created)
	assert.Equal(t, 1, out.Updated)

	rec, err := env.repos.Finance.GetFeeRecord(ctx, domain.KindWorkshop, res.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, domain.Pence(100), rec.Fee)
}

func TestFeeSync_UnsettledPaymentIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	env.gw.FailNext(gateway.OpGetFees, gateway.ErrNoCharge)
	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 0, out.Errors)
	assert.Equal(t, 1, env.gw.Calls(gateway.OpGetFees), "unsettled payments are not retried")
}

func TestFeeSync_RetriesServerErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	env.gw.FailNext(gateway.OpGetFees, &gateway.Error{Op: "get payment intent", StatusCode: 502, Err: errors.New("bad gateway")})
	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 2, env.gw.Calls(gateway.OpGetFees))
}

func TestFeeSync_ClientErrorCountsAsError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	env.gw.FailNext(gateway.OpGetFees, &gateway.Error{Op: "get payment intent", StatusCode: 404, Err: errors.New("no such payment_intent")})
	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Errors)
	assert.Equal(t, 1, env.gw.Calls(gateway.OpGetFees))
}

func TestFeeSync_DryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	c := env.concert(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	order, err := env.checkout.StartConcertCheckout(ctx, &ConcertCheckoutRequest{
		ConcertID: c.ID, Email: "guest@example.com", Name: "Guest", TicketType: domain.TicketFull, Quantity: 1,
	})
	require.NoError(t, err)
	_, err = env.gw.CompleteSession(order.SessionID)
	require.NoError(t, err)
	_, err = env.reconcile.ConfirmCheckoutReturn(ctx, order.SessionID)
	require.NoError(t, err)

	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, "would process 2 transactions", out.String())
	assert.Len(t, out.Previews, 2)
	assert.Equal(t, 0, out.Created)

	counts, err := env.repos.Finance.UnsyncedCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.UnsyncedCounts{Workshop: 1, Concert: 1, Total: 2}, counts)
}

func TestFeeSync_Lookback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	env.clock.Advance(10 * 24 * time.Hour)

	out, err := env.feeSync().Sync(ctx, FeeSyncOptions{Days: 7, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Total())

	out, err = env.feeSync().Sync(ctx, FeeSyncOptions{All: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total())
}
