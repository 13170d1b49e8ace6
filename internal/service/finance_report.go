package service

import (
	"encoding/csv"
	"io"
	"sort"

	"github.com/polyphonica/booking/internal/domain"
)

const (
	reportDateFormat   = "2006-01-02"
	reportPeriodFormat = "02 January 2006"
)

// financeReport is the tax-year CSV accountants receive
type financeReport struct {
	Range    domain.DateRange
	Income   []domain.IncomeRow
	Expenses []*domain.Expense
}

func (r *financeReport) Filename() string {
	return "polyphonica-finance-" + r.Range.TaxYearLabel() + ".csv"
}

func incomeType(k domain.EventKind) string {
	if k == domain.KindConcert {
		return "Concert Ticket"
	}
	return "Workshop Registration"
}

func (r *financeReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	blank := []string{}

	records := [][]string{
		{"Polyphonica Financial Report - Tax Year " + r.Range.TaxYearLabel()},
		{"Period: " + r.Range.Start.Format(reportPeriodFormat) + " to " + r.Range.End.Format(reportPeriodFormat)},
		blank,
		{"INCOME"},
		{"Date", "Type", "Description", "Gross (GBP)", "Stripe Fee (GBP)", "Net (GBP)"},
	}

	var gross, fees, net domain.Pence
	for _, row := range r.Income {
		records = append(records, []string{
			domain.CivilDate(row.Date).Format(reportDateFormat),
			incomeType(row.Kind),
			row.Description(),
			row.Gross.Pounds(),
			row.Fee.Pounds(),
			row.Net.Pounds(),
		})
		gross += row.Gross
		fees += row.Fee
		net += row.Net
	}
	records = append(records,
		blank,
		[]string{"", "", "INCOME TOTALS", gross.Pounds(), fees.Pounds(), net.Pounds()},
		blank,
		[]string{"EXPENSES"},
		[]string{"Date", "Category", "Description", "Amount (GBP)", "Linked Event", "Notes"},
	)

	expenses := make([]*domain.Expense, len(r.Expenses))
	copy(expenses, r.Expenses)
	sort.SliceStable(expenses, func(i, j int) bool { return expenses[i].Date.Before(expenses[j].Date) })

	var spent domain.Pence
	for _, e := range expenses {
		records = append(records, []string{
			e.Date.Format(reportDateFormat),
			e.Category.Label(),
			e.Description,
			e.Amount.Pounds(),
			e.LinkedTitle,
			e.Notes,
		})
		spent += e.Amount
	}
	records = append(records,
		blank,
		[]string{"", "", "EXPENSES TOTAL", spent.Pounds()},
		blank,
		[]string{"SUMMARY"},
		[]string{"Description", "Amount (GBP)"},
		[]string{"Total Gross Income", gross.Pounds()},
		[]string{"Total Stripe Fees", fees.Pounds()},
		[]string{"Total Net Income", net.Pounds()},
		[]string{"Total Expenses", spent.Pounds()},
		[]string{"Net Profit/Loss", (net - spent).Pounds()},
	)

	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}
