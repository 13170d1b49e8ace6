package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresUserRepository implements UserRepository and ImportRepository using PostgreSQL
type PostgresUserRepository struct {
	db *database.PostgresDB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *database.PostgresDB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, username, email, first_name, last_name, password_hash, is_staff, created_at`

// GetUser retrieves a user by ID
func (r *PostgresUserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.Pool().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail matches case-insensitively
func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return getUserByEmail(ctx, r.db.Pool(), email)
}

func getUserByEmail(ctx context.Context, q querier, email string) (*domain.User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// RegisteredEmails reports which emails already belong to a registration on the workshop
func (r *PostgresUserRepository) RegisteredEmails(ctx context.Context, workshopID string, emails []string) (map[string]bool, error) {
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}

	query := `
		SELECT DISTINCT LOWER(u.email)
		FROM workshop_registrations r
		JOIN users u ON u.id = r.user_id
		WHERE r.workshop_id = $1 AND LOWER(u.email) = ANY($2)
	`
	rows, err := r.db.Pool().Query(ctx, query, workshopID, lowered)
	if err != nil {
		return nil, fmt.Errorf("failed to query registered emails: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		found[email] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registered emails: %w", err)
	}
	return found, nil
}

// ImportLegacyBookings writes users, paid registrations and fee records for every non-skipped row,
// then releases the matching legacy bookings and recounts, all in one transaction.
func (r *PostgresUserRepository) ImportLegacyBookings(ctx context.Context, workshopID string, rows []domain.LegacyBooking, now time.Time) (*domain.ImportOutcome, error) {
	outcome := &domain.ImportOutcome{}

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		w, err := scanWorkshop(tx.QueryRow(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE id = $1 FOR UPDATE`, workshopID))
		if err != nil {
			return err
		}

		for _, row := range rows {
			if row.Skip {
				continue
			}

			user, created, err := getOrCreateUser(ctx, tx, row, now)
			if err != nil {
				return fmt.Errorf("row %d: %w", row.Row, err)
			}
			if created {
				outcome.UsersCreated++
			}

			regID, err := insertLegacyRegistration(ctx, tx, w.ID, user, row, now)
			if err != nil {
				return fmt.Errorf("row %d: %w", row.Row, err)
			}
			if regID == "" {
				continue
			}
			outcome.RegistrationsCreated++

			rec, err := domain.NewFeeRecord(domain.KindWorkshop, regID, row.PaymentIntentID, row.Gross, row.Fee, row.Date)
			if err != nil {
				return fmt.Errorf("row %d: %w", row.Row, err)
			}
			rec.ChargeID = row.ChargeID
			rec.BalanceTransactionID = row.BalanceTransactionID
			if err := insertFeeRecord(ctx, tx, rec); err != nil {
				return fmt.Errorf("row %d: %w", row.Row, err)
			}
			outcome.FeeRecordsCreated++
		}

		created := outcome.RegistrationsCreated
		err = tx.QueryRow(ctx, `
			UPDATE workshops SET
				legacy_bookings = CASE WHEN legacy_bookings >= $2 THEN legacy_bookings - $2 ELSE legacy_bookings END
			WHERE id = $1
			RETURNING legacy_bookings`,
			w.ID, created,
		).Scan(&outcome.LegacyBookingsLeft)
		if err != nil {
			return fmt.Errorf("failed to release legacy bookings: %w", err)
		}

		_, err = recount(ctx, tx, domain.KindWorkshop, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func getOrCreateUser(ctx context.Context, tx pgx.Tx, row domain.LegacyBooking, now time.Time) (*domain.User, bool, error) {
	user, err := getUserByEmail(ctx, tx, row.Email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, err
	}

	base := domain.UsernameBase(row.Email)
	var username string
	for attempt := 0; ; attempt++ {
		candidate := domain.UsernameCandidate(base, attempt)
		var taken bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, candidate).Scan(&taken); err != nil {
			return nil, false, fmt.Errorf("failed to check username: %w", err)
		}
		if !taken {
			username = candidate
			break
		}
	}

	user = domain.NewImportedUser(row.Email, username, row.FirstName, row.LastName, now)
	_, err = tx.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsStaff, user.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

// insertLegacyRegistration returns "" when the user is already registered
func insertLegacyRegistration(ctx context.Context, tx pgx.Tx, workshopID string, user *domain.User, row domain.LegacyBooking, now time.Time) (string, error) {
	name := row.Name
	if name == "" {
		name = user.FullName()
	}

	id := uuid.New().String()
	query := `
		INSERT INTO workshop_registrations (
			id, workshop_id, user_id, email, name, phone, amount_paid_pence, status,
			payment_intent_id, paid_at, terms_accepted, terms_accepted_at, confirmation_sent,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'paid', $8, $9, TRUE, $9, TRUE, $10, $10)
		ON CONFLICT ON CONSTRAINT workshop_registrations_workshop_user_key DO NOTHING
	`
	result, err := tx.Exec(ctx, query,
		id, workshopID, user.ID, user.Email, name, row.Phone, int64(row.Gross),
		row.PaymentIntentID, row.Date, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create registration: %w", err)
	}
	if result.RowsAffected() == 0 {
		return "", nil
	}
	return id, nil
}

func insertFeeRecord(ctx context.Context, q querier, rec *domain.FeeRecord) error {
	query := `
		INSERT INTO fee_records (
			id, transaction_type, workshop_registration_id, concert_order_id,
			payment_intent_id, charge_id, balance_transaction_id,
			gross_pence, fee_pence, net_pence, transaction_date, synced_at, updated_at
		) VALUES ($1, $2, $3, NULL, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := q.Exec(ctx, query,
		rec.ID, string(rec.Kind), rec.LedgerID,
		rec.PaymentIntentID, rec.ChargeID, rec.BalanceTransactionID,
		int64(rec.Gross), int64(rec.Fee), int64(rec.Net), rec.TransactionDate, rec.SyncedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fee record: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsStaff, &u.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

var (
	_ UserRepository   = (*PostgresUserRepository)(nil)
	_ ImportRepository = (*PostgresUserRepository)(nil)
)
