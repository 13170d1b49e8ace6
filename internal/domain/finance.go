package domain

import "time"

// FinanceFilter narrows a summary to one event; the zero value means everything
type FinanceFilter struct {
	Kind    EventKind
	EventID string
}

func (f FinanceFilter) IsZero() bool { return f.EventID == "" }

// StreamTotals aggregates fee records for one revenue stream
type StreamTotals struct {
	Gross Pence `json:"gross"`
	Fees  Pence `json:"fees"`
	Net   Pence `json:"net"`
	Count int   `json:"count"`
}

// Add combines two totals
func (s StreamTotals) Add(o StreamTotals) StreamTotals {
	return StreamTotals{
		Gross: s.Gross + o.Gross,
		Fees:  s.Fees + o.Fees,
		Net:   s.Net + o.Net,
		Count: s.Count + o.Count,
	}
}

// IncomeSummary is income per stream and combined over a date range
type IncomeSummary struct {
	Range     DateRange    `json:"range"`
	Workshops StreamTotals `json:"workshops"`
	Concerts  StreamTotals `json:"concerts"`
	Total     StreamTotals `json:"total"`
}

// CategoryTotal is the amount spent in one category
type CategoryTotal struct {
	Category ExpenseCategory `json:"category"`
	Label    string          `json:"label"`
	Total    Pence           `json:"total"`
}

// ExpenseSummary groups expenses by category and by what they are linked to
type ExpenseSummary struct {
	Range         DateRange       `json:"range"`
	ByCategory    []CategoryTotal `json:"by_category"`
	WorkshopTotal Pence           `json:"workshop_total"`
	ConcertTotal  Pence           `json:"concert_total"`
	GeneralTotal  Pence           `json:"general_total"`
	Total         Pence           `json:"total"`
}

// SummarizeExpenses folds a list of expenses into an ExpenseSummary with every category present
func SummarizeExpenses(r DateRange, expenses []*Expense) ExpenseSummary {
	s := ExpenseSummary{Range: r}
	byCat := make(map[ExpenseCategory]Pence, len(ExpenseCategories))
	for _, e := range expenses {
		byCat[e.Category] += e.Amount
		s.Total += e.Amount
		switch e.LinkedKind() {
		case KindWorkshop:
			s.WorkshopTotal += e.Amount
		case KindConcert:
			s.ConcertTotal += e.Amount
		default:
			s.GeneralTotal += e.Amount
		}
	}
	for _, c := range ExpenseCategories {
		s.ByCategory = append(s.ByCategory, CategoryTotal{Category: c, Label: c.Label(), Total: byCat[c]})
	}
	return s
}

// ProfitSummary is net income less expenses
type ProfitSummary struct {
	Range     DateRange      `json:"range"`
	TaxYear   string         `json:"tax_year"`
	Income    IncomeSummary  `json:"income"`
	Expenses  ExpenseSummary `json:"expenses"`
	NetProfit Pence          `json:"net_profit"`
}

// EventFinancials is the all-time drill-down for a single event
type EventFinancials struct {
	Kind              EventKind       `json:"kind"`
	EventID           string          `json:"event_id"`
	Title             string          `json:"title"`
	Date              time.Time       `json:"date"`
	Transactions      []IncomeRow     `json:"transactions"`
	TransactionCount  int             `json:"transaction_count"`
	Gross             Pence           `json:"gross_income"`
	Fees              Pence           `json:"stripe_fees"`
	Net               Pence           `json:"net_income"`
	Expenses          []*Expense      `json:"expenses"`
	ExpenseByCategory []CategoryTotal `json:"expense_by_category"`
	ExpenseTotal      Pence           `json:"expense_total"`
	Profit            Pence           `json:"profit"`
}

// NewEventFinancials totals the rows and keeps only categories with spending
func NewEventFinancials(kind EventKind, id, title string, date time.Time, rows []IncomeRow, expenses []*Expense) EventFinancials {
	f := EventFinancials{
		Kind:             kind,
		EventID:          id,
		Title:            title,
		Date:             date,
		Transactions:     rows,
		TransactionCount: len(rows),
		Expenses:         expenses,
	}
	for _, r := range rows {
		f.Gross += r.Gross
		f.Fees += r.Fee
		f.Net += r.Net
	}
	summary := SummarizeExpenses(DateRange{}, expenses)
	for _, c := range summary.ByCategory {
		if c.Total > 0 {
			f.ExpenseByCategory = append(f.ExpenseByCategory, c)
		}
	}
	f.ExpenseTotal = summary.Total
	f.Profit = f.Net - f.ExpenseTotal
	return f
}

// EventsComparison lists every event in a range with its financials, newest first
type EventsComparison struct {
	Range     DateRange         `json:"range"`
	Workshops []EventFinancials `json:"workshops"`
	Concerts  []EventFinancials `json:"concerts"`
}

// UnsyncedCounts counts paid rows still waiting for a fee record
type UnsyncedCounts struct {
	Workshop int `json:"workshop"`
	Concert  int `json:"concert"`
	Total    int `json:"total"`
}
