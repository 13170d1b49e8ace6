package repository

import (
	"context"
	"fmt"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresFinanceRepository implements FinanceRepository using PostgreSQL
type PostgresFinanceRepository struct {
	db *database.PostgresDB
}

// NewPostgresFinanceRepository creates a new PostgresFinanceRepository
func NewPostgresFinanceRepository(db *database.PostgresDB) *PostgresFinanceRepository {
	return &PostgresFinanceRepository{db: db}
}

// transaction_date is an instant; reports bucket it by London calendar date
const feeDateInRange = `(f.transaction_date AT TIME ZONE 'Europe/London')::date BETWEEN $1 AND $2`

// IncomeTotals sums fee records per stream. A filter narrows only its own stream.
func (r *PostgresFinanceRepository) IncomeTotals(ctx context.Context, dr domain.DateRange, f domain.FinanceFilter) (domain.StreamTotals, domain.StreamTotals, error) {
	workshopQuery := `
		SELECT COALESCE(SUM(f.gross_pence), 0), COALESCE(SUM(f.fee_pence), 0), COALESCE(SUM(f.net_pence), 0), COUNT(*)
		FROM fee_records f
		JOIN workshop_registrations r ON r.id = f.workshop_registration_id
		WHERE ` + feeDateInRange + ` AND ($3::uuid IS NULL OR r.workshop_id = $3)`

	concertQuery := `
		SELECT COALESCE(SUM(f.gross_pence), 0), COALESCE(SUM(f.fee_pence), 0), COALESCE(SUM(f.net_pence), 0), COUNT(*)
		FROM fee_records f
		JOIN concert_ticket_orders o ON o.id = f.concert_order_id
		WHERE ` + feeDateInRange + ` AND ($3::uuid IS NULL OR o.concert_id = $3)`

	var workshopID, concertID *string
	switch f.Kind {
	case domain.KindWorkshop:
		workshopID = nullString(f.EventID)
	case domain.KindConcert:
		concertID = nullString(f.EventID)
	}

	workshops, err := r.streamTotals(ctx, workshopQuery, dr, workshopID)
	if err != nil {
		return domain.StreamTotals{}, domain.StreamTotals{}, err
	}
	concerts, err := r.streamTotals(ctx, concertQuery, dr, concertID)
	if err != nil {
		return domain.StreamTotals{}, domain.StreamTotals{}, err
	}
	return workshops, concerts, nil
}

func (r *PostgresFinanceRepository) streamTotals(ctx context.Context, query string, dr domain.DateRange, eventID *string) (domain.StreamTotals, error) {
	var gross, fees, net int64
	var count int
	err := r.db.Pool().QueryRow(ctx, query, dr.Start, dr.End, eventID).Scan(&gross, &fees, &net, &count)
	if err != nil {
		return domain.StreamTotals{}, fmt.Errorf("failed to sum income: %w", err)
	}
	return domain.StreamTotals{Gross: domain.Pence(gross), Fees: domain.Pence(fees), Net: domain.Pence(net), Count: count}, nil
}

const incomeRowsSelect = `
	SELECT f.transaction_date, 'workshop', w.title, r.name, r.email, f.gross_pence, f.fee_pence, f.net_pence
	FROM fee_records f
	JOIN workshop_registrations r ON r.id = f.workshop_registration_id
	JOIN workshops w ON w.id = r.workshop_id
	WHERE %s
	UNION ALL
	SELECT f.transaction_date, 'concert', c.title, o.name, o.email, f.gross_pence, f.fee_pence, f.net_pence
	FROM fee_records f
	JOIN concert_ticket_orders o ON o.id = f.concert_order_id
	JOIN concerts c ON c.id = o.concert_id
	WHERE %s
	ORDER BY 1, 3
`

// IncomeRows lists fee records dated in the range, oldest first
func (r *PostgresFinanceRepository) IncomeRows(ctx context.Context, dr domain.DateRange) ([]domain.IncomeRow, error) {
	query := fmt.Sprintf(incomeRowsSelect, feeDateInRange, feeDateInRange)
	return r.queryIncomeRows(ctx, query, dr.Start, dr.End)
}

// EventIncomeRows lists all fee records for one event, oldest first
func (r *PostgresFinanceRepository) EventIncomeRows(ctx context.Context, kind domain.EventKind, eventID string) ([]domain.IncomeRow, error) {
	var query string
	switch kind {
	case domain.KindWorkshop:
		query = fmt.Sprintf(incomeRowsSelect, "r.workshop_id = $1", "FALSE")
	case domain.KindConcert:
		query = fmt.Sprintf(incomeRowsSelect, "FALSE", "o.concert_id = $1")
	default:
		return nil, domain.ErrUnknownEventKind
	}
	return r.queryIncomeRows(ctx, query, eventID)
}

func (r *PostgresFinanceRepository) queryIncomeRows(ctx context.Context, query string, args ...any) ([]domain.IncomeRow, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query income: %w", err)
	}
	defer rows.Close()

	var result []domain.IncomeRow
	for rows.Next() {
		var row domain.IncomeRow
		var kind string
		var gross, fee, net int64
		if err := rows.Scan(&row.Date, &kind, &row.EventTitle, &row.BuyerName, &row.BuyerEmail, &gross, &fee, &net); err != nil {
			return nil, fmt.Errorf("failed to scan income row: %w", err)
		}
		row.Kind = domain.EventKind(kind)
		row.Gross = domain.Pence(gross)
		row.Fee = domain.Pence(fee)
		row.Net = domain.Pence(net)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate income rows: %w", err)
	}
	return result, nil
}

// UnsyncedCounts counts paid rows with a processor payment and no fee record
func (r *PostgresFinanceRepository) UnsyncedCounts(ctx context.Context) (domain.UnsyncedCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM workshop_registrations r
			 WHERE r.status = 'paid' AND r.payment_intent_id LIKE 'pi\_%'
			   AND NOT EXISTS (SELECT 1 FROM fee_records f WHERE f.workshop_registration_id = r.id)),
			(SELECT COUNT(*) FROM concert_ticket_orders o
			 WHERE o.status = 'paid' AND o.payment_intent_id LIKE 'pi\_%'
			   AND NOT EXISTS (SELECT 1 FROM fee_records f WHERE f.concert_order_id = o.id))
	`

	var counts domain.UnsyncedCounts
	if err := r.db.Pool().QueryRow(ctx, query).Scan(&counts.Workshop, &counts.Concert); err != nil {
		return domain.UnsyncedCounts{}, fmt.Errorf("failed to count unsynced payments: %w", err)
	}
	counts.Total = counts.Workshop + counts.Concert
	return counts, nil
}

// FeeSyncCandidates lists paid rows with a processor payment, oldest payment first
func (r *PostgresFinanceRepository) FeeSyncCandidates(ctx context.Context, q FeeSyncQuery) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for _, kind := range []domain.EventKind{domain.KindWorkshop, domain.KindConcert} {
		alias := entryAlias(kind)
		feeColumn := "workshop_registration_id"
		statuses := "('paid', 'attended')"
		if kind == domain.KindConcert {
			feeColumn = "concert_order_id"
			statuses = "('paid')"
		}

		query := entrySelect(kind) + `
			WHERE ` + alias + `.status IN ` + statuses + `
			  AND ` + alias + `.payment_intent_id LIKE 'pi\_%'
			  AND ($1::timestamptz IS NULL OR ` + alias + `.paid_at >= $1)
			  AND ($2 OR NOT EXISTS (SELECT 1 FROM fee_records f WHERE f.` + feeColumn + ` = ` + alias + `.id))
			ORDER BY ` + alias + `.paid_at`

		rows, err := r.db.Pool().Query(ctx, query, q.PaidSince, q.IncludeSynced)
		if err != nil {
			return nil, fmt.Errorf("failed to query fee sync candidates: %w", err)
		}
		for rows.Next() {
			e, err := scanEntry(rows, kind)
			if err != nil {
				rows.Close()
				return nil, err
			}
			entries = append(entries, *e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate fee sync candidates: %w", err)
		}
	}
	return entries, nil
}

// UpsertFeeRecord inserts the record or overwrites the existing one for the same ledger row
func (r *PostgresFinanceRepository) UpsertFeeRecord(ctx context.Context, rec *domain.FeeRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	conflict := "workshop_registration_id"
	var registrationID, orderID *string
	if rec.Kind == domain.KindConcert {
		conflict = "concert_order_id"
		orderID = &rec.LedgerID
	} else {
		registrationID = &rec.LedgerID
	}

	// xmax = 0 only for freshly inserted tuples
	query := `
		INSERT INTO fee_records (
			id, transaction_type, workshop_registration_id, concert_order_id,
			payment_intent_id, charge_id, balance_transaction_id,
			gross_pence, fee_pence, net_pence, transaction_date, synced_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (` + conflict + `) DO UPDATE SET
			payment_intent_id = EXCLUDED.payment_intent_id,
			charge_id = EXCLUDED.charge_id,
			balance_transaction_id = EXCLUDED.balance_transaction_id,
			gross_pence = EXCLUDED.gross_pence,
			fee_pence = EXCLUDED.fee_pence,
			net_pence = EXCLUDED.net_pence,
			transaction_date = EXCLUDED.transaction_date,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0)
	`

	var created bool
	err := r.db.Pool().QueryRow(ctx, query,
		rec.ID, string(rec.Kind), registrationID, orderID,
		rec.PaymentIntentID, rec.ChargeID, rec.BalanceTransactionID,
		int64(rec.Gross), int64(rec.Fee), int64(rec.Net), rec.TransactionDate, rec.SyncedAt, rec.UpdatedAt,
	).Scan(&rec.ID, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert fee record: %w", err)
	}
	return created, nil
}

// GetFeeRecord retrieves the fee record of one ledger row, or nil if it has none
func (r *PostgresFinanceRepository) GetFeeRecord(ctx context.Context, kind domain.EventKind, ledgerID string) (*domain.FeeRecord, error) {
	column := "workshop_registration_id"
	if kind == domain.KindConcert {
		column = "concert_order_id"
	} else if kind != domain.KindWorkshop {
		return nil, domain.ErrUnknownEventKind
	}

	query := `
		SELECT id, payment_intent_id, charge_id, balance_transaction_id,
			gross_pence, fee_pence, net_pence, transaction_date, synced_at, updated_at
		FROM fee_records WHERE ` + column + ` = $1`

	rec := domain.FeeRecord{Kind: kind, LedgerID: ledgerID}
	var gross, fee, net int64
	err := r.db.Pool().QueryRow(ctx, query, ledgerID).Scan(
		&rec.ID, &rec.PaymentIntentID, &rec.ChargeID, &rec.BalanceTransactionID,
		&gross, &fee, &net, &rec.TransactionDate, &rec.SyncedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fee record: %w", err)
	}
	rec.Gross = domain.Pence(gross)
	rec.Fee = domain.Pence(fee)
	rec.Net = domain.Pence(net)
	return &rec, nil
}

var _ FinanceRepository = (*PostgresFinanceRepository)(nil)
