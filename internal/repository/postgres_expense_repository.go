package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresExpenseRepository implements ExpenseRepository using PostgreSQL
type PostgresExpenseRepository struct {
	db *database.PostgresDB
}

// NewPostgresExpenseRepository creates a new PostgresExpenseRepository
func NewPostgresExpenseRepository(db *database.PostgresDB) *PostgresExpenseRepository {
	return &PostgresExpenseRepository{db: db}
}

const expenseSelect = `
	SELECT e.id, e.expense_date, e.category, e.description, e.notes, e.amount_pence,
		e.workshop_id::text, e.concert_id::text, COALESCE(w.title, c.title, ''),
		COALESCE(e.created_by::text, ''), e.created_at, e.updated_at
	FROM expenses e
	LEFT JOIN workshops w ON w.id = e.workshop_id
	LEFT JOIN concerts c ON c.id = e.concert_id
`

// CreateExpense inserts an expense
func (r *PostgresExpenseRepository) CreateExpense(ctx context.Context, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO expenses (
			id, expense_date, category, description, notes, amount_pence,
			workshop_id, concert_id, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		e.ID, e.Date, string(e.Category), e.Description, e.Notes, int64(e.Amount),
		e.WorkshopID, e.ConcertID, nullString(e.CreatedBy), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// UpdateExpense rewrites every editable field
func (r *PostgresExpenseRepository) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE expenses SET
			expense_date = $2, category = $3, description = $4, notes = $5,
			amount_pence = $6, workshop_id = $7, concert_id = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := r.db.Pool().Exec(ctx, query,
		e.ID, e.Date, string(e.Category), e.Description, e.Notes,
		int64(e.Amount), e.WorkshopID, e.ConcertID, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrExpenseNotFound
	}
	return nil
}

// DeleteExpense removes an expense
func (r *PostgresExpenseRepository) DeleteExpense(ctx context.Context, id string) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrExpenseNotFound
	}
	return nil
}

// GetExpense retrieves an expense with its linked event title
func (r *PostgresExpenseRepository) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	e, err := scanExpense(r.db.Pool().QueryRow(ctx, expenseSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrExpenseNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListExpenses lists expenses newest first
func (r *PostgresExpenseRepository) ListExpenses(ctx context.Context, dr *domain.DateRange, f domain.FinanceFilter) ([]*domain.Expense, error) {
	query := expenseSelect + ` WHERE TRUE`
	var args []any

	if dr != nil {
		args = append(args, dr.Start, dr.End)
		query += ` AND e.expense_date BETWEEN $1 AND $2`
	}
	if !f.IsZero() {
		column := "e.workshop_id"
		if f.Kind == domain.KindConcert {
			column = "e.concert_id"
		}
		args = append(args, f.EventID)
		query += fmt.Sprintf(` AND %s = $%d`, column, len(args))
	}
	query += ` ORDER BY e.expense_date DESC, e.created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var e domain.Expense
	var category string
	var amount int64

	err := row.Scan(
		&e.ID, &e.Date, &category, &e.Description, &e.Notes, &amount,
		&e.WorkshopID, &e.ConcertID, &e.LinkedTitle,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}
	e.Category = domain.ExpenseCategory(category)
	e.Amount = domain.Pence(amount)
	return &e, nil
}

var _ ExpenseRepository = (*PostgresExpenseRepository)(nil)
