package dto

import (
	"fmt"
	"strconv"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/service"
)

// RangeQuery selects a reporting period: an explicit start and end, a tax
// year by its starting year, or the current tax year when neither is given
type RangeQuery struct {
	Start   string `form:"start"`
	End     string `form:"end"`
	TaxYear string `form:"tax_year"`
	Kind    string `form:"kind"`
	EventID string `form:"event_id"`
}

func (q *RangeQuery) Range(fallback domain.DateRange) (domain.DateRange, error) {
	if q.TaxYear != "" {
		year, err := strconv.Atoi(q.TaxYear)
		if err != nil || year < 2000 || year > 2100 {
			return domain.DateRange{}, fmt.Errorf("%w: bad tax_year %q", domain.ErrInvalidDateRange, q.TaxYear)
		}
		return domain.TaxYearStarting(year), nil
	}
	if q.Start == "" && q.End == "" {
		return fallback, nil
	}

	start, end := fallback.Start, fallback.End
	var err error
	if q.Start != "" {
		if start, err = ParseDate(q.Start); err != nil {
			return domain.DateRange{}, err
		}
	}
	if q.End != "" {
		if end, err = ParseDate(q.End); err != nil {
			return domain.DateRange{}, err
		}
	}
	return domain.NewDateRange(start, end)
}

// Filter narrows a summary to one event; both kind and event_id must be set
func (q *RangeQuery) Filter() (domain.FinanceFilter, error) {
	if q.Kind == "" && q.EventID == "" {
		return domain.FinanceFilter{}, nil
	}
	kind, err := domain.ParseEventKind(q.Kind)
	if err != nil {
		return domain.FinanceFilter{}, err
	}
	if q.EventID == "" {
		return domain.FinanceFilter{}, fmt.Errorf("%w: event_id is required with kind", domain.ErrInvalidEvent)
	}
	return domain.FinanceFilter{Kind: kind, EventID: q.EventID}, nil
}

// ExpenseRequest is an expense as staff enter it, amount in pounds
type ExpenseRequest struct {
	Date        string                 `json:"date" binding:"required"`
	Category    domain.ExpenseCategory `json:"category"`
	Description string                 `json:"description" binding:"required"`
	Notes       string                 `json:"notes"`
	Amount      string                 `json:"amount" binding:"required"`
	WorkshopID  string                 `json:"workshop_id"`
	ConcertID   string                 `json:"concert_id"`
}

func (r *ExpenseRequest) ToInput(createdBy string) (service.ExpenseInput, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return service.ExpenseInput{}, fmt.Errorf("%w: %v", domain.ErrInvalidExpense, err)
	}
	return service.ExpenseInput{
		Date:        date,
		Category:    r.Category,
		Description: r.Description,
		Notes:       r.Notes,
		Amount:      r.Amount,
		WorkshopID:  r.WorkshopID,
		ConcertID:   r.ConcertID,
		CreatedBy:   createdBy,
	}, nil
}

// FeeSyncRequest mirrors the sync-fees command flags
type FeeSyncRequest struct {
	Days   int  `json:"days"`
	All    bool `json:"all"`
	Force  bool `json:"force"`
	DryRun bool `json:"dry_run"`
}

func (r *FeeSyncRequest) Options(defaultDays int) service.FeeSyncOptions {
	days := r.Days
	if days <= 0 {
		days = defaultDays
	}
	return service.FeeSyncOptions{Days: days, All: r.All, Force: r.Force, DryRun: r.DryRun}
}

// FeeSyncResponse pairs the counts with their one-line summary
type FeeSyncResponse struct {
	*service.FeeSyncResult
	Summary string `json:"summary"`
}
