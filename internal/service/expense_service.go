package service

import (
	"context"
	"fmt"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/logger"
	"go.uber.org/zap"
)

// ExpenseService manages manually entered costs
type ExpenseService interface {
	Create(ctx context.Context, in ExpenseInput) (*domain.Expense, error)
	Update(ctx context.Context, id string, in ExpenseInput) (*domain.Expense, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Expense, error)
	// List returns expenses dated in r, or all of them when r is nil, newest first
	List(ctx context.Context, r *domain.DateRange, f domain.FinanceFilter) ([]*domain.Expense, error)
}

// ExpenseInput is an expense as staff type it: the amount is in pounds
type ExpenseInput struct {
	Date        time.Time
	Category    domain.ExpenseCategory
	Description string
	Notes       string
	Amount      string
	WorkshopID  string
	ConcertID   string
	CreatedBy   string
}

type expenseService struct {
	catalog  repository.CatalogRepository
	expenses repository.ExpenseRepository
	log      *logger.Logger
	now      Clock
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(repos *repository.Repositories, now Clock) ExpenseService {
	return &expenseService{
		catalog:  repos.Catalog,
		expenses: repos.Expenses,
		log:      logger.Get().Named("expenses"),
		now:      clockOrSystem(now),
	}
}

func (s *expenseService) Create(ctx context.Context, in ExpenseInput) (*domain.Expense, error) {
	e, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	created, err := domain.NewExpense(*e, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.expenses.CreateExpense(ctx, created); err != nil {
		return nil, err
	}
	s.log.Info("expense recorded",
		zap.String("expense_id", created.ID),
		zap.String("category", string(created.Category)),
		zap.Int64("amount", int64(created.Amount)),
	)
	return s.expenses.GetExpense(ctx, created.ID)
}

func (s *expenseService) Update(ctx context.Context, id string, in ExpenseInput) (*domain.Expense, error) {
	existing, err := s.expenses.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	e, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	e.ID = existing.ID
	e.CreatedBy = existing.CreatedBy
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = s.now()
	if e.Category == "" {
		e.Category = existing.Category
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.expenses.UpdateExpense(ctx, e); err != nil {
		return nil, err
	}
	return s.expenses.GetExpense(ctx, id)
}

func (s *expenseService) Delete(ctx context.Context, id string) error {
	if err := s.expenses.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.log.Info("expense deleted", zap.String("expense_id", id))
	return nil
}

func (s *expenseService) Get(ctx context.Context, id string) (*domain.Expense, error) {
	return s.expenses.GetExpense(ctx, id)
}

func (s *expenseService) List(ctx context.Context, r *domain.DateRange, f domain.FinanceFilter) ([]*domain.Expense, error) {
	return s.expenses.ListExpenses(ctx, r, f)
}

// build parses the amount and checks the linked event exists
func (s *expenseService) build(ctx context.Context, in ExpenseInput) (*domain.Expense, error) {
	if in.WorkshopID != "" && in.ConcertID != "" {
		return nil, domain.ErrExpenseLinkedTwice
	}
	amount, err := domain.ParsePounds(in.Amount)
	if err != nil {
		return nil, err
	}

	e := &domain.Expense{
		Category:    in.Category,
		Description: in.Description,
		Notes:       in.Notes,
		Amount:      amount,
		CreatedBy:   in.CreatedBy,
	}
	if !in.Date.IsZero() {
		e.Date = domain.Date(in.Date.Year(), in.Date.Month(), in.Date.Day())
	}

	switch {
	case in.WorkshopID != "":
		if _, err := s.catalog.GetWorkshop(ctx, in.WorkshopID); err != nil {
			return nil, fmt.Errorf("linked workshop: %w", err)
		}
		id := in.WorkshopID
		e.WorkshopID = &id
	case in.ConcertID != "":
		if _, err := s.catalog.GetConcert(ctx, in.ConcertID); err != nil {
			return nil, fmt.Errorf("linked concert: %w", err)
		}
		id := in.ConcertID
		e.ConcertID = &id
	}
	return e, nil
}
