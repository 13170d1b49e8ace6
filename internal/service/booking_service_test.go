package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCancelRegistration_Pending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)

	res, err := env.checkout.StartWorkshopCheckout(ctx, workshopRequest(w.ID, "user-1"))
	require.NoError(t, err)

	out, err := env.booking.CancelRegistration(ctx, res.LedgerID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, out.Entry.Status)
	assert.Zero(t, out.Refunded)
	assert.Empty(t, env.gw.Refunds())

	sess, _ := env.gw.Session(res.SessionID)
	assert.Equal(t, gateway.SessionStatusExpired, sess.Status)
}

func TestCancelRegistration_PaidBeforeCutoffRefunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")

	out, err := env.booking.CancelRegistration(ctx, res.LedgerID, "user-1")
	require.NoError(t, err)

	if out.Entry.Status != domain.StatusRefunded {
		t.Errorf("Expected refunded, got %s", out.Entry.Status)
	}
	assert.Equal(t, domain.Pence(4500), out.Refunded)
	assert.NotEmpty(t, out.RefundID)

	refunds := env.gw.Refunds()
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.Pence(4500), refunds[0].Amount)
	assert.Equal(t, res.LedgerID, refunds[0].Metadata[gateway.MetaRegistrationID])

	env.notifier.AssertCalled(t, "RegistrationCancelled", mock.Anything, mock.Anything, mock.Anything, domain.Pence(4500), 7)

	got, err := env.catalog.GetWorkshop(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentRegistrations, "the place is released")
}

func TestCancelRegistration_PaidAfterCutoffKeepsPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")

	// five days before the workshop
	env.clock.Advance(16 * 24 * time.Hour)
	out, err := env.booking.CancelRegistration(ctx, res.LedgerID, "user-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Entry.Status)
	assert.Zero(t, out.Refunded)
	assert.Empty(t, env.gw.Refunds())
	env.notifier.AssertCalled(t, "RegistrationCancelled", mock.Anything, mock.Anything, mock.Anything, domain.Pence(0), 7)
}

func TestCancelRegistration_NotOwner(t *testing.T) {
	env := newTestEnv(t)
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")

	_, err := env.booking.CancelRegistration(context.Background(), res.LedgerID, "user-2")
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
}

func TestCancelRegistration_AlreadyCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res, err := env.checkout.StartWorkshopCheckout(ctx, workshopRequest(w.ID, "user-1"))
	require.NoError(t, err)
	_, err = env.booking.CancelRegistration(ctx, res.LedgerID, "user-1")
	require.NoError(t, err)

	_, err = env.booking.CancelRegistration(ctx, res.LedgerID, "user-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelRegistration_RefundFailureLeavesRowPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")

	env.gw.FailNext(gateway.OpRefund, &gateway.Error{Op: "refund", StatusCode: 500, Err: errors.New("boom")})
	_, err := env.booking.CancelRegistration(ctx, res.LedgerID, "user-1")
	require.ErrorIs(t, err, domain.ErrPaymentGateway)

	reg, err := env.repos.Ledger.GetRegistration(ctx, res.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, reg.Status)
}

func TestRefundEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.concert(t, nil)

	res, err := env.checkout.StartConcertCheckout(ctx, &ConcertCheckoutRequest{
		ConcertID: c.ID, Email: "guest@example.com", Name: "Guest", TicketType: domain.TicketFull, Quantity: 2,
	})
	require.NoError(t, err)

	t.Run("pending rows cannot be refunded", func(t *testing.T) {
		_, err := env.booking.RefundEntry(ctx, domain.KindConcert, res.LedgerID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	_, err = env.gw.CompleteSession(res.SessionID)
	require.NoError(t, err)
	_, err = env.reconcile.ConfirmCheckoutReturn(ctx, res.SessionID)
	require.NoError(t, err)

	t.Run("paid order", func(t *testing.T) {
		out, err := env.booking.RefundEntry(ctx, domain.KindConcert, res.LedgerID, "concert cancelled")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunded, out.Entry.Status)
		assert.Equal(t, domain.Pence(3000), out.Refunded)

		refunds := env.gw.Refunds()
		require.Len(t, refunds, 1)
		assert.Equal(t, res.LedgerID, refunds[0].Metadata[gateway.MetaOrderID])
		assert.Equal(t, "concert cancelled", refunds[0].Metadata[gateway.MetaReason])
	})

	got, err := env.catalog.GetConcert(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TicketsSold)
}

func TestRefundEntry_ImportedBookingHasNoPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	res := env.paidWorkshopBooking(t, w.ID, "user-1")

	// a row whose payment reference was never a processor intent
	require.NoError(t, env.store.SetPaymentIntent(domain.KindWorkshop, res.LedgerID, "manual-transfer"))

	_, err := env.booking.RefundEntry(ctx, domain.KindWorkshop, res.LedgerID, "")
	if !errors.Is(err, domain.ErrNoPaymentIntent) {
		t.Errorf("Expected ErrNoPaymentIntent, got %v", err)
	}
}

func TestMarkAttended(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	paid := env.paidWorkshopBooking(t, w.ID, "user-1")
	pending, err := env.checkout.StartWorkshopCheckout(ctx, workshopRequest(w.ID, "user-2"))
	require.NoError(t, err)

	entry, err := env.booking.MarkAttended(ctx, paid.LedgerID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAttended, entry.Status)

	_, err = env.booking.MarkAttended(ctx, pending.LedgerID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestListAttendees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")
	_, err := env.checkout.StartWorkshopCheckout(ctx, workshopRequest(w.ID, "user-2"))
	require.NoError(t, err)

	all, err := env.booking.ListAttendees(ctx, w.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paid, err := env.booking.ListAttendees(ctx, w.ID, domain.StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "user-1", paid[0].UserID)

	_, err = env.booking.ListAttendees(ctx, w.ID, "confirmed")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.booking.ListAttendees(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrWorkshopNotFound)
}

func TestListUserBookings(t *testing.T) {
	env := newTestEnv(t)
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	entries, err := env.booking.ListUserBookings(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, w.Title, entries[0].EventTitle)
}
