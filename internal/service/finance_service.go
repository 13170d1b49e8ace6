package service

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/telemetry"
)

// FinanceService reports income, fees, expenses and profit
type FinanceService interface {
	// DefaultRange is the UK tax year containing today
	DefaultRange() domain.DateRange
	IncomeSummary(ctx context.Context, r domain.DateRange, f domain.FinanceFilter) (*domain.IncomeSummary, error)
	ExpenseSummary(ctx context.Context, r domain.DateRange, f domain.FinanceFilter) (*domain.ExpenseSummary, error)
	ProfitSummary(ctx context.Context, r domain.DateRange) (*domain.ProfitSummary, error)
	EventFinancials(ctx context.Context, kind domain.EventKind, id string) (*domain.EventFinancials, error)
	EventsComparison(ctx context.Context, r domain.DateRange) (*domain.EventsComparison, error)
	UnsyncedPayments(ctx context.Context) (domain.UnsyncedCounts, error)
	// ExportCSV writes the tax-year report and returns the download filename
	ExportCSV(ctx context.Context, r domain.DateRange, w io.Writer) (string, error)
}

type financeService struct {
	catalog  repository.CatalogRepository
	finance  repository.FinanceRepository
	expenses repository.ExpenseRepository
	now      Clock
}

// NewFinanceService creates a new FinanceService
func NewFinanceService(repos *repository.Repositories, now Clock) FinanceService {
	return &financeService{
		catalog:  repos.Catalog,
		finance:  repos.Finance,
		expenses: repos.Expenses,
		now:      clockOrSystem(now),
	}
}

func (s *financeService) DefaultRange() domain.DateRange {
	return domain.TaxYearFor(s.now())
}

func (s *financeService) IncomeSummary(ctx context.Context, r domain.DateRange, f domain.FinanceFilter) (*domain.IncomeSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.finance.income_summary")
	defer span.End()

	workshops, concerts, err := s.finance.IncomeTotals(ctx, r, f)
	if err != nil {
		return nil, err
	}
	return &domain.IncomeSummary{
		Range:     r,
		Workshops: workshops,
		Concerts:  concerts,
		Total:     workshops.Add(concerts),
	}, nil
}

func (s *financeService) ExpenseSummary(ctx context.Context, r domain.DateRange, f domain.FinanceFilter) (*domain.ExpenseSummary, error) {
	expenses, err := s.expenses.ListExpenses(ctx, &r, f)
	if err != nil {
		return nil, err
	}
	summary := domain.SummarizeExpenses(r, expenses)
	return &summary, nil
}

func (s *financeService) ProfitSummary(ctx context.Context, r domain.DateRange) (*domain.ProfitSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.finance.profit_summary")
	defer span.End()

	income, err := s.IncomeSummary(ctx, r, domain.FinanceFilter{})
	if err != nil {
		return nil, err
	}
	expenses, err := s.ExpenseSummary(ctx, r, domain.FinanceFilter{})
	if err != nil {
		return nil, err
	}
	return &domain.ProfitSummary{
		Range:     r,
		TaxYear:   r.TaxYearLabel(),
		Income:    *income,
		Expenses:  *expenses,
		NetProfit: income.Total.Net - expenses.Total,
	}, nil
}

func (s *financeService) EventFinancials(ctx context.Context, kind domain.EventKind, id string) (*domain.EventFinancials, error) {
	title, date, err := eventTitle(ctx, s.catalog, kind, id)
	if err != nil {
		return nil, err
	}
	return s.eventFinancials(ctx, kind, id, title, date)
}

func (s *financeService) eventFinancials(ctx context.Context, kind domain.EventKind, id, title string, date time.Time) (*domain.EventFinancials, error) {
	rows, err := s.finance.EventIncomeRows(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenses.ListExpenses(ctx, nil, domain.FinanceFilter{Kind: kind, EventID: id})
	if err != nil {
		return nil, err
	}
	f := domain.NewEventFinancials(kind, id, title, date, rows, expenses)
	return &f, nil
}

// EventsComparison covers every workshop and internally sold concert dated in r
func (s *financeService) EventsComparison(ctx context.Context, r domain.DateRange) (*domain.EventsComparison, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.finance.events_comparison")
	defer span.End()

	workshops, err := s.catalog.ListWorkshops(ctx, repository.EventQuery{From: &r.Start, To: &r.End})
	if err != nil {
		return nil, err
	}
	concerts, err := s.catalog.ListConcerts(ctx, repository.EventQuery{From: &r.Start, To: &r.End, InternalOnly: true})
	if err != nil {
		return nil, err
	}

	out := &domain.EventsComparison{Range: r}
	for _, w := range workshops {
		f, err := s.eventFinancials(ctx, domain.KindWorkshop, w.ID, w.Title, w.Date)
		if err != nil {
			return nil, err
		}
		out.Workshops = append(out.Workshops, *f)
	}
	for _, c := range concerts {
		f, err := s.eventFinancials(ctx, domain.KindConcert, c.ID, c.Title, c.Date)
		if err != nil {
			return nil, err
		}
		out.Concerts = append(out.Concerts, *f)
	}
	newestFirst(out.Workshops)
	newestFirst(out.Concerts)
	return out, nil
}

func newestFirst(events []domain.EventFinancials) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.After(events[j].Date) })
}

func (s *financeService) UnsyncedPayments(ctx context.Context) (domain.UnsyncedCounts, error) {
	return s.finance.UnsyncedCounts(ctx)
}

func (s *financeService) ExportCSV(ctx context.Context, r domain.DateRange, w io.Writer) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.finance.export_csv")
	defer span.End()

	rows, err := s.finance.IncomeRows(ctx, r)
	if err != nil {
		return "", err
	}
	expenses, err := s.expenses.ListExpenses(ctx, &r, domain.FinanceFilter{})
	if err != nil {
		return "", err
	}

	report := &financeReport{Range: r, Income: rows, Expenses: expenses}
	if err := report.WriteCSV(w); err != nil {
		return "", err
	}
	return report.Filename(), nil
}
