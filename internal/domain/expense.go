package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExpenseCategory classifies spending
type ExpenseCategory string

const (
	CategoryVenueHire    ExpenseCategory = "venue_hire"
	CategoryRefreshments ExpenseCategory = "refreshments"
	CategoryOther        ExpenseCategory = "other"
)

// ExpenseCategories lists every category in report order
var ExpenseCategories = []ExpenseCategory{CategoryVenueHire, CategoryRefreshments, CategoryOther}

func (c ExpenseCategory) IsValid() bool {
	switch c {
	case CategoryVenueHire, CategoryRefreshments, CategoryOther:
		return true
	}
	return false
}

func (c ExpenseCategory) Label() string {
	switch c {
	case CategoryVenueHire:
		return "Venue Hire"
	case CategoryRefreshments:
		return "Refreshments"
	case CategoryOther:
		return "Other"
	}
	return string(c)
}

// Expense is a manually entered cost, optionally tied to one event
type Expense struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Category    ExpenseCategory `json:"category"`
	Description string          `json:"description"`
	Notes       string          `json:"notes,omitempty"`
	Amount      Pence           `json:"amount"`
	WorkshopID  *string         `json:"workshop_id,omitempty"`
	ConcertID   *string         `json:"concert_id,omitempty"`
	// LinkedTitle is filled on reads for display
	LinkedTitle string    `json:"linked_title,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewExpense validates and stamps a new expense
func NewExpense(e Expense, now time.Time) (*Expense, error) {
	e.ID = uuid.New().String()
	if e.Category == "" {
		e.Category = CategoryOther
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Expense) Validate() error {
	if !e.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	if e.WorkshopID != nil && e.ConcertID != nil {
		return ErrExpenseLinkedTwice
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidExpense)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidExpense)
	}
	if e.Amount < 0 {
		return fmt.Errorf("%w: amount cannot be negative", ErrInvalidAmount)
	}
	return nil
}

// LinkedKind is the kind of the linked event, or "" for a general expense
func (e *Expense) LinkedKind() EventKind {
	switch {
	case e.WorkshopID != nil:
		return KindWorkshop
	case e.ConcertID != nil:
		return KindConcert
	}
	return ""
}

// LinkedLabel reads "Workshop: Title", "Concert: Title" or ""
func (e *Expense) LinkedLabel() string {
	switch e.LinkedKind() {
	case KindWorkshop:
		return "Workshop: " + e.LinkedTitle
	case KindConcert:
		return "Concert: " + e.LinkedTitle
	}
	return ""
}
