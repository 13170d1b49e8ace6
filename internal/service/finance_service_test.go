package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) feeRecord(t *testing.T, kind domain.EventKind, ledgerID string, gross, fee domain.Pence, at time.Time) {
	t.Helper()
	entry, err := e.repos.Ledger.GetEntry(context.Background(), kind, ledgerID)
	require.NoError(t, err)
	rec, err := domain.NewFeeRecord(kind, ledgerID, entry.PaymentIntentID, gross, fee, at)
	require.NoError(t, err)
	_, err = e.repos.Finance.UpsertFeeRecord(context.Background(), rec)
	require.NoError(t, err)
}

type financeFixture struct {
	env      *testEnv
	workshop *domain.Workshop
	concert  *domain.Concert
}

// newFinanceFixture books one workshop place and two concert tickets in
// tax year 2024-25, and records three expenses, one of them in 2025-26
func newFinanceFixture(t *testing.T) *financeFixture {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, nil)
	c := env.concert(t, nil)

	reg := env.paidWorkshopBooking(t, w.ID, "user-1")
	env.feeRecord(t, domain.KindWorkshop, reg.LedgerID, 4500, 88, testNow)

	order, err := env.checkout.StartConcertCheckout(ctx, &ConcertCheckoutRequest{
		ConcertID: c.ID, Email: "guest@example.com", Name: "Guest Buyer", TicketType: domain.TicketFull, Quantity: 2,
	})
	require.NoError(t, err)
	_, err = env.gw.CompleteSession(order.SessionID)
	require.NoError(t, err)
	_, err = env.reconcile.ConfirmCheckoutReturn(ctx, order.SessionID)
	require.NoError(t, err)
	env.feeRecord(t, domain.KindConcert, order.LedgerID, 3000, 65, testNow.Add(24*time.Hour))

	expenses := NewExpenseService(env.repos, env.clock.Now)
	for _, in := range []ExpenseInput{
		{Date: domain.Date(2025, time.February, 10), Category: domain.CategoryVenueHire, Description: "Hall deposit", Amount: "120.00", WorkshopID: w.ID},
		{Date: domain.Date(2025, time.March, 2), Category: domain.CategoryRefreshments, Description: "Tea and biscuits", Amount: "15.50", Notes: "receipt filed"},
		{Date: domain.Date(2025, time.April, 10), Category: domain.CategoryOther, Description: "Music stands", Amount: "10"},
	} {
		_, err := expenses.Create(ctx, in)
		require.NoError(t, err)
	}
	return &financeFixture{env: env, workshop: w, concert: c}
}

func TestFinanceDefaultRange(t *testing.T) {
	env := newTestEnv(t)

	r := env.finance.DefaultRange()
	assert.Equal(t, domain.Date(2024, time.April, 6), r.Start)
	assert.Equal(t, domain.Date(2025, time.April, 5), r.End)
}

func TestIncomeSummary(t *testing.T) {
	f := newFinanceFixture(t)
	ctx := context.Background()
	r := f.env.finance.DefaultRange()

	s, err := f.env.finance.IncomeSummary(ctx, r, domain.FinanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StreamTotals{Gross: 4500, Fees: 88, Net: 4412, Count: 1}, s.Workshops)
	assert.Equal(t, domain.StreamTotals{Gross: 3000, Fees: 65, Net: 2935, Count: 1}, s.Concerts)
	assert.Equal(t, domain.StreamTotals{Gross: 7500, Fees: 153, Net: 7347, Count: 2}, s.Total)

	t.Run("filtered to one concert", func(t *testing.T) {
		s, err := f.env.finance.IncomeSummary(ctx, r, domain.FinanceFilter{Kind: domain.KindConcert, EventID: f.concert.ID})
		require.NoError(t, err)
		assert.Equal(t, domain.Pence(3000), s.Total.Gross)
	})

	t.Run("next tax year is empty", func(t *testing.T) {
		s, err := f.env.finance.IncomeSummary(ctx, domain.TaxYearStarting(2025), domain.FinanceFilter{})
		require.NoError(t, err)
		assert.Zero(t, s.Total.Count)
	})
}

func TestExpenseSummary(t *testing.T) {
	f := newFinanceFixture(t)

	s, err := f.env.finance.ExpenseSummary(context.Background(), f.env.finance.DefaultRange(), domain.FinanceFilter{})
	require.NoError(t, err)

	if s.Total != 13550 {
		t.Errorf("Expected expenses of 13550 in range, got %d", s.Total)
	}
	assert.Equal(t, domain.Pence(12000), s.WorkshopTotal)
	assert.Equal(t, domain.Pence(0), s.ConcertTotal)
	assert.Equal(t, domain.Pence(1550), s.GeneralTotal)
	require.Len(t, s.ByCategory, len(domain.ExpenseCategories))
	assert.Equal(t, "Venue Hire", s.ByCategory[0].Label)
	assert.Equal(t, domain.Pence(0), s.ByCategory[2].Total, "the April expense falls in the next tax year")
}

func TestProfitSummary(t *testing.T) {
	f := newFinanceFixture(t)

	p, err := f.env.finance.ProfitSummary(context.Background(), f.env.finance.DefaultRange())
	require.NoError(t, err)

	assert.Equal(t, "2024-25", p.TaxYear)
	assert.Equal(t, domain.Pence(7347-13550), p.NetProfit)
}

func TestEventFinancials(t *testing.T) {
	f := newFinanceFixture(t)
	ctx := context.Background()

	ef, err := f.env.finance.EventFinancials(ctx, domain.KindWorkshop, f.workshop.ID)
	require.NoError(t, err)

	assert.Equal(t, f.workshop.Title, ef.Title)
	assert.Equal(t, 1, ef.TransactionCount)
	assert.Equal(t, domain.Pence(4412), ef.Net)
	assert.Equal(t, domain.Pence(12000), ef.ExpenseTotal)
	assert.Equal(t, domain.Pence(4412-12000), ef.Profit)
	require.Len(t, ef.ExpenseByCategory, 1, "only categories with spending are listed")
	assert.Equal(t, domain.CategoryVenueHire, ef.ExpenseByCategory[0].Category)

	_, err = f.env.finance.EventFinancials(ctx, domain.KindConcert, "missing")
	assert.ErrorIs(t, err, domain.ErrConcertNotFound)
}

func TestEventsComparison(t *testing.T) {
	f := newFinanceFixture(t)
	older := f.env.workshop(t, func(w *domain.Workshop) {
		w.Title = "Winter Vespers"
		w.Date = domain.Date(2025, time.January, 11)
	})
	f.env.concert(t, func(c *domain.Concert) {
		c.Title = "Ticketed Elsewhere"
		c.TicketSource = domain.TicketSourceExternal
		c.ExternalTicketURL = "https://tickets.example.com/vespers"
		c.Capacity = nil
	})

	cmp, err := f.env.finance.EventsComparison(context.Background(), f.env.finance.DefaultRange())
	require.NoError(t, err)

	require.Len(t, cmp.Workshops, 2)
	assert.Equal(t, f.workshop.ID, cmp.Workshops[0].EventID, "newest first")
	assert.Equal(t, older.ID, cmp.Workshops[1].EventID)
	assert.Zero(t, cmp.Workshops[1].TransactionCount)

	require.Len(t, cmp.Concerts, 1, "externally ticketed concerts are left out")
	assert.Equal(t, domain.Pence(2935), cmp.Concerts[0].Net)
}

func TestExportCSV(t *testing.T) {
	f := newFinanceFixture(t)
	var buf bytes.Buffer

	name, err := f.env.finance.ExportCSV(context.Background(), f.env.finance.DefaultRange(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "polyphonica-finance-2024-25.csv", name)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "Polyphonica Financial Report - Tax Year 2024-25", lines[0])
	assert.Equal(t, "Period: 06 April 2024 to 05 April 2025", lines[1])
	assert.Equal(t, "", lines[2])
	assert.Equal(t, "INCOME", lines[3])

	out := buf.String()
	wantLines := []string{
		"Date,Type,Description,Gross (GBP),Stripe Fee (GBP),Net (GBP)",
		"2025-03-01,Workshop Registration,Workshop: Renaissance Consort Day (Test user-1),45.00,0.88,44.12",
		"2025-03-02,Concert Ticket,Concert: Music for a While (Guest Buyer),30.00,0.65,29.35",
		",,INCOME TOTALS,75.00,1.53,73.47",
		"2025-02-10,Venue Hire,Hall deposit,120.00,Renaissance Consort Day,",
		"2025-03-02,Refreshments,Tea and biscuits,15.50,,receipt filed",
		",,EXPENSES TOTAL,135.50",
		"Total Net Income,73.47",
		"Net Profit/Loss,-62.03",
	}
	for _, want := range wantLines {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("Expected report to contain %q", want)
		}
	}
	assert.NotContains(t, out, "Music stands")
	assert.Less(t, strings.Index(out, "Hall deposit"), strings.Index(out, "Tea and biscuits"), "expenses run oldest first")
}

func TestUnsyncedPayments(t *testing.T) {
	env := newTestEnv(t)
	w := env.workshop(t, nil)
	env.paidWorkshopBooking(t, w.ID, "user-1")

	counts, err := env.finance.UnsyncedPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.UnsyncedCounts{Workshop: 1, Total: 1}, counts)
}

func TestFinanceReport_IncomeDatesInLondonTime(t *testing.T) {
	report := &financeReport{
		Range: domain.TaxYearStarting(2025),
		Income: []domain.IncomeRow{{
			// 00:30 BST on 6 April, the first day of the 2025-26 tax year
			Date:       time.Date(2025, time.April, 5, 23, 30, 0, 0, time.UTC),
			Kind:       domain.KindWorkshop,
			EventTitle: "Renaissance Consort Day",
			BuyerName:  "Ada Lovelace",
			Gross:      4500,
			Fee:        88,
			Net:        4412,
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf))

	out := buf.String()
	assert.Contains(t, out, "Period: 06 April 2025 to 05 April 2026\n")
	assert.Contains(t, out, "2025-04-06,Workshop Registration,Workshop: Renaissance Consort Day (Ada Lovelace),45.00,0.88,44.12\n")
	assert.NotContains(t, out, "2025-04-05,Workshop")
}
