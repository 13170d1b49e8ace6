package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresLedgerRepository implements LedgerRepository using PostgreSQL
type PostgresLedgerRepository struct {
	db    *database.PostgresDB
	topic string
}

// NewPostgresLedgerRepository creates a ledger repository writing outbox messages for topic
func NewPostgresLedgerRepository(db *database.PostgresDB, topic string) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db, topic: topic}
}

const registrationColumns = `
	id, workshop_id, user_id, email, name, phone, special_requirements,
	emergency_contact, instruments, amount_paid_pence, status,
	payment_intent_id, checkout_session_id, paid_at, hold_expires_at,
	terms_accepted, terms_accepted_at, confirmation_sent, created_at, updated_at
`

const orderColumns = `
	id, concert_id, user_id, email, name, phone, ticket_type, quantity,
	unit_price_pence, total_price_pence, status, payment_intent_id,
	checkout_session_id, paid_at, hold_expires_at, confirmation_sent,
	created_at, updated_at
`

const workshopEntrySelect = `
	SELECT r.id, r.workshop_id, w.title, w.date, r.user_id::text, r.email, r.name,
		1, r.amount_paid_pence, r.status, COALESCE(r.payment_intent_id, ''),
		COALESCE(r.checkout_session_id, ''), r.paid_at, r.confirmation_sent, r.created_at
	FROM workshop_registrations r
	JOIN workshops w ON w.id = r.workshop_id
`

const concertEntrySelect = `
	SELECT o.id, o.concert_id, c.title, c.date, COALESCE(o.user_id::text, ''), o.email, o.name,
		o.quantity, o.total_price_pence, o.status, COALESCE(o.payment_intent_id, ''),
		COALESCE(o.checkout_session_id, ''), o.paid_at, o.confirmation_sent, o.created_at
	FROM concert_ticket_orders o
	JOIN concerts c ON c.id = o.concert_id
`

func entrySelect(kind domain.EventKind) string {
	if kind == domain.KindConcert {
		return concertEntrySelect
	}
	return workshopEntrySelect
}

func entryAlias(kind domain.EventKind) string {
	if kind == domain.KindConcert {
		return "o"
	}
	return "r"
}

// PlaceWorkshopHold locks the workshop, admits one place against confirmed bookings and
// other users' live holds, then inserts the user's pending row or takes over their old one.
func (r *PostgresLedgerRepository) PlaceWorkshopHold(ctx context.Context, req WorkshopHoldRequest) (*HoldResult, error) {
	var result *HoldResult

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		w, err := scanWorkshop(tx.QueryRow(ctx, `SELECT `+workshopColumns+` FROM workshops WHERE id = $1 FOR UPDATE`, req.WorkshopID))
		if err != nil {
			return err
		}
		if w.Status != domain.EventStatusPublished {
			return domain.ErrEventNotOpen
		}

		existing, err := scanRegistration(tx.QueryRow(ctx,
			`SELECT `+registrationColumns+` FROM workshop_registrations WHERE workshop_id = $1 AND user_id = $2 FOR UPDATE`,
			w.ID, req.Buyer.UserID))
		if err != nil && !errors.Is(err, domain.ErrRegistrationNotFound) {
			return err
		}
		if existing != nil && existing.Status.Confirmed() {
			return domain.ErrAlreadyRegistered
		}

		var held int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM workshop_registrations
			WHERE workshop_id = $1 AND status = 'pending' AND hold_expires_at > $2 AND user_id <> $3`,
			w.ID, req.Now, req.Buyer.UserID,
		).Scan(&held)
		if err != nil {
			return fmt.Errorf("failed to count held places: %w", err)
		}
		if err := admit(w.Availability(held), 1); err != nil {
			return err
		}

		if existing != nil {
			previous := existing.Status
			existing.Renew(w, req.Details, req.Now, req.Window)
			if err := updateRenewedRegistration(ctx, tx, existing); err != nil {
				return err
			}
			result = &HoldResult{Entry: existing.Entry(w), Registration: existing, PreviousStatus: previous}
			return nil
		}

		reg, err := domain.NewWorkshopRegistration(w, req.Buyer, req.Details, req.Now, req.Window)
		if err != nil {
			return err
		}
		if err := insertRegistration(ctx, tx, reg); err != nil {
			return err
		}
		result = &HoldResult{Entry: reg.Entry(w), Registration: reg, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PlaceConcertHold locks the concert and inserts the order if its quantity fits alongside live holds
func (r *PostgresLedgerRepository) PlaceConcertHold(ctx context.Context, order *domain.ConcertTicketOrder) (*HoldResult, error) {
	var result *HoldResult

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		c, err := scanConcert(tx.QueryRow(ctx, `SELECT `+concertColumns+` FROM concerts WHERE id = $1 FOR UPDATE`, order.ConcertID))
		if err != nil {
			return err
		}
		if c.Status != domain.EventStatusPublished {
			return domain.ErrEventNotOpen
		}
		if !c.SellsOnline() {
			return domain.ErrNotSoldOnline
		}

		var held int
		err = tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(quantity), 0) FROM concert_ticket_orders
			WHERE concert_id = $1 AND status = 'pending' AND hold_expires_at > $2`,
			c.ID, order.CreatedAt,
		).Scan(&held)
		if err != nil {
			return fmt.Errorf("failed to count held tickets: %w", err)
		}
		if err := admit(c.Availability(held), order.Quantity); err != nil {
			return err
		}

		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		result = &HoldResult{Entry: order.Entry(c), Order: order, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// admit maps a failed capacity check to the error the buyer sees
func admit(a domain.Availability, n int) error {
	if a.Admits(n) {
		return nil
	}
	bookable, _ := a.Bookable()
	if bookable == 0 {
		return domain.ErrSoldOut
	}
	return fmt.Errorf("%w: only %d available", domain.ErrInsufficientSpace, bookable)
}

// AttachSession records the checkout session on a pending row
func (r *PostgresLedgerRepository) AttachSession(ctx context.Context, kind domain.EventKind, id, sessionID string) error {
	table, _, err := ledgerTable(kind)
	if err != nil {
		return err
	}
	query := `UPDATE ` + table + ` SET checkout_session_id = $2, updated_at = NOW() WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Pool().Exec(ctx, query, id, sessionID)
	if err != nil {
		return fmt.Errorf("failed to attach checkout session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: row %s is no longer pending", domain.ErrInvalidTransition, id)
	}
	return nil
}

// ReleaseHold removes a hold that never reached the processor
func (r *PostgresLedgerRepository) ReleaseHold(ctx context.Context, hold *HoldResult) error {
	table, _, err := ledgerTable(hold.Entry.Kind)
	if err != nil {
		return err
	}

	if hold.Created {
		_, err = r.db.Pool().Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND status = 'pending'`, hold.Entry.ID)
	} else {
		restore := domain.StatusCancelled
		if hold.PreviousStatus == domain.StatusRefunded {
			restore = domain.StatusRefunded
		}
		_, err = r.db.Pool().Exec(ctx,
			`UPDATE `+table+` SET status = $2, hold_expires_at = NULL, updated_at = NOW() WHERE id = $1 AND status = 'pending'`,
			hold.Entry.ID, string(restore))
	}
	if err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}
	return nil
}

// MarkPaid is the only pending to paid transition. Whichever caller's compare-and-swap
// succeeds first performs the recount and writes the outbox message; later callers see AlreadyPaid.
func (r *PostgresLedgerRepository) MarkPaid(ctx context.Context, conf domain.PaymentConfirmation) (*domain.MarkPaidResult, error) {
	kind, id, err := r.findBySession(ctx, r.db.Pool(), conf.Kind, conf.SessionID)
	if err != nil {
		return nil, err
	}

	var result *domain.MarkPaidResult
	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		change := statusChange{
			kind:     kind,
			id:       id,
			from:     []domain.LedgerStatus{domain.StatusPending},
			to:       domain.StatusPaid,
			paidAt:   conf.PaidAt,
			intentID: conf.PaymentIntentID,
			reason:   conf.Source,
		}
		entry, ok, err := r.applyChange(ctx, tx, change)
		if err != nil {
			return err
		}

		outcome := domain.Transitioned
		if !ok {
			outcome = domain.NotPending
			if entry.Status.Confirmed() {
				outcome = domain.AlreadyPaid
			}
		}
		result = &domain.MarkPaidResult{Outcome: outcome, Entry: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Transition applies any other allowed status change
func (r *PostgresLedgerRepository) Transition(ctx context.Context, tr domain.Transition) (*domain.LedgerEntry, error) {
	from := allowedFrom(tr)
	if len(from) == 0 {
		return nil, domain.ErrInvalidTransition
	}

	kind, id := tr.Kind, tr.ID
	if id == "" {
		var err error
		kind, id, err = r.findBySession(ctx, r.db.Pool(), tr.Kind, tr.SessionID)
		if err != nil {
			return nil, err
		}
	}

	var entry *domain.LedgerEntry
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var ok bool
		var err error
		entry, ok, err = r.applyChange(ctx, tx, statusChange{kind: kind, id: id, from: from, to: tr.To, reason: tr.Reason})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is %s", domain.ErrInvalidTransition, id, entry.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func allowedFrom(tr domain.Transition) []domain.LedgerStatus {
	var from []domain.LedgerStatus
	for _, s := range tr.From {
		if domain.CanTransition(tr.Kind, s, tr.To) {
			from = append(from, s)
		}
	}
	return from
}

type statusChange struct {
	kind     domain.EventKind
	id       string
	from     []domain.LedgerStatus
	to       domain.LedgerStatus
	paidAt   time.Time
	intentID string
	reason   string
}

// applyChange locks the event row, compare-and-swaps the ledger row status, recounts the
// event's confirmed bookings and writes the outbox message. ok is false when the row was not
// in one of the from states; entry then holds its current state and nothing was written.
func (r *PostgresLedgerRepository) applyChange(ctx context.Context, tx pgx.Tx, ch statusChange) (*domain.LedgerEntry, bool, error) {
	table, eventColumn, err := ledgerTable(ch.kind)
	if err != nil {
		return nil, false, err
	}

	var eventID, current string
	err = tx.QueryRow(ctx, `SELECT `+eventColumn+`, status FROM `+table+` WHERE id = $1`, ch.id).Scan(&eventID, &current)
	if err != nil {
		if isNoRows(err) {
			return nil, false, notFound(ch.kind)
		}
		return nil, false, fmt.Errorf("failed to load ledger row: %w", err)
	}

	// Event row first, ledger row second: the same order PlaceWorkshopHold takes its locks in.
	eventTable := "workshops"
	if ch.kind == domain.KindConcert {
		eventTable = "concerts"
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM `+eventTable+` WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		return nil, false, fmt.Errorf("failed to lock event: %w", err)
	}

	from := make([]string, len(ch.from))
	for i, s := range ch.from {
		from[i] = string(s)
	}

	now := time.Now().UTC()
	var result pgconn.CommandTag
	if ch.to == domain.StatusPaid {
		paidAt := ch.paidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		result, err = tx.Exec(ctx, `
			UPDATE `+table+` SET
				status = 'paid',
				paid_at = $3,
				payment_intent_id = COALESCE(NULLIF($4, ''), payment_intent_id),
				hold_expires_at = NULL,
				updated_at = $5
			WHERE id = $1 AND status = ANY($2)`,
			ch.id, from, paidAt, ch.intentID, now)
	} else {
		result, err = tx.Exec(ctx, `
			UPDATE `+table+` SET status = $3, hold_expires_at = NULL, updated_at = $4
			WHERE id = $1 AND status = ANY($2)`,
			ch.id, from, string(ch.to), now)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update ledger status: %w", err)
	}

	if result.RowsAffected() == 0 {
		entry, err := r.getEntry(ctx, tx, ch.kind, ch.id)
		return entry, false, err
	}

	confirmed, err := recount(ctx, tx, ch.kind, eventID)
	if err != nil {
		return nil, false, err
	}

	entry, err := r.getEntry(ctx, tx, ch.kind, ch.id)
	if err != nil {
		return nil, false, err
	}

	msg, err := domain.NewLedgerOutboxMessage(r.topic, *entry, domain.LedgerStatus(current), ch.reason, confirmed, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build outbox message: %w", err)
	}
	if err := insertOutbox(ctx, tx, msg); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// recount refreshes the event's cached confirmed count from the ledger
func recount(ctx context.Context, q querier, kind domain.EventKind, eventID string) (int, error) {
	var query string
	if kind == domain.KindConcert {
		query = `
			UPDATE concerts SET tickets_sold = (
				SELECT COALESCE(SUM(quantity), 0) FROM concert_ticket_orders
				WHERE concert_id = $1 AND status = 'paid'
			), updated_at = NOW()
			WHERE id = $1
			RETURNING tickets_sold`
	} else {
		query = `
			UPDATE workshops SET current_registrations = (
				SELECT COUNT(*) FROM workshop_registrations
				WHERE workshop_id = $1 AND status IN ('paid', 'attended')
			), updated_at = NOW()
			WHERE id = $1
			RETURNING current_registrations`
	}

	var confirmed int
	if err := q.QueryRow(ctx, query, eventID).Scan(&confirmed); err != nil {
		return 0, fmt.Errorf("failed to recount %s %s: %w", kind, eventID, err)
	}
	return confirmed, nil
}

func notFound(kind domain.EventKind) error {
	if kind == domain.KindConcert {
		return domain.ErrOrderNotFound
	}
	return domain.ErrRegistrationNotFound
}

// findBySession resolves a checkout session to its row, searching both tables when kind is empty
func (r *PostgresLedgerRepository) findBySession(ctx context.Context, q querier, kind domain.EventKind, sessionID string) (domain.EventKind, string, error) {
	if sessionID == "" {
		return "", "", domain.ErrReconciliationNotFound
	}
	kinds := []domain.EventKind{kind}
	if kind == "" {
		kinds = []domain.EventKind{domain.KindWorkshop, domain.KindConcert}
	}

	for _, k := range kinds {
		table, _, err := ledgerTable(k)
		if err != nil {
			return "", "", err
		}
		var id string
		err = q.QueryRow(ctx, `SELECT id FROM `+table+` WHERE checkout_session_id = $1`, sessionID).Scan(&id)
		if err == nil {
			return k, id, nil
		}
		if !isNoRows(err) {
			return "", "", fmt.Errorf("failed to find checkout session: %w", err)
		}
	}
	return "", "", domain.ErrReconciliationNotFound
}

// SetConfirmationSent flags that the buyer has been emailed
func (r *PostgresLedgerRepository) SetConfirmationSent(ctx context.Context, kind domain.EventKind, id string) error {
	table, _, err := ledgerTable(kind)
	if err != nil {
		return err
	}
	result, err := r.db.Pool().Exec(ctx, `UPDATE `+table+` SET confirmation_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to set confirmation sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notFound(kind)
	}
	return nil
}

// GetEntry retrieves the ledger view of one row
func (r *PostgresLedgerRepository) GetEntry(ctx context.Context, kind domain.EventKind, id string) (*domain.LedgerEntry, error) {
	if _, _, err := ledgerTable(kind); err != nil {
		return nil, err
	}
	return r.getEntry(ctx, r.db.Pool(), kind, id)
}

func (r *PostgresLedgerRepository) getEntry(ctx context.Context, q querier, kind domain.EventKind, id string) (*domain.LedgerEntry, error) {
	query := entrySelect(kind) + ` WHERE ` + entryAlias(kind) + `.id = $1`
	entry, err := scanEntry(q.QueryRow(ctx, query, id), kind)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound(kind)
		}
		return nil, err
	}
	return entry, nil
}

// GetEntryBySession retrieves the row opened with a checkout session
func (r *PostgresLedgerRepository) GetEntryBySession(ctx context.Context, sessionID string) (*domain.LedgerEntry, error) {
	kind, id, err := r.findBySession(ctx, r.db.Pool(), "", sessionID)
	if err != nil {
		return nil, err
	}
	return r.getEntry(ctx, r.db.Pool(), kind, id)
}

// GetRegistration retrieves a registration by ID
func (r *PostgresLedgerRepository) GetRegistration(ctx context.Context, id string) (*domain.WorkshopRegistration, error) {
	return scanRegistration(r.db.Pool().QueryRow(ctx, `SELECT `+registrationColumns+` FROM workshop_registrations WHERE id = $1`, id))
}

// GetRegistrationForUser retrieves a user's registration for a workshop
func (r *PostgresLedgerRepository) GetRegistrationForUser(ctx context.Context, workshopID, userID string) (*domain.WorkshopRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM workshop_registrations WHERE workshop_id = $1 AND user_id = $2`
	return scanRegistration(r.db.Pool().QueryRow(ctx, query, workshopID, userID))
}

// GetOrder retrieves a concert order by ID
func (r *PostgresLedgerRepository) GetOrder(ctx context.Context, id string) (*domain.ConcertTicketOrder, error) {
	return scanOrder(r.db.Pool().QueryRow(ctx, `SELECT `+orderColumns+` FROM concert_ticket_orders WHERE id = $1`, id))
}

// ListRegistrations lists a workshop's registrations, optionally with one status
func (r *PostgresLedgerRepository) ListRegistrations(ctx context.Context, workshopID string, status domain.LedgerStatus) ([]*domain.WorkshopRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM workshop_registrations
		WHERE workshop_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, workshopID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	var regs []*domain.WorkshopRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}

// ListOrders lists a concert's orders, optionally with one status
func (r *PostgresLedgerRepository) ListOrders(ctx context.Context, concertID string, status domain.LedgerStatus) ([]*domain.ConcertTicketOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM concert_ticket_orders
		WHERE concert_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY created_at`

	rows, err := r.db.Pool().Query(ctx, query, concertID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.ConcertTicketOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// ListUserEntries lists everything a user has booked, newest first
func (r *PostgresLedgerRepository) ListUserEntries(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for _, kind := range []domain.EventKind{domain.KindWorkshop, domain.KindConcert} {
		query := entrySelect(kind) + ` WHERE ` + entryAlias(kind) + `.user_id = $1`
		found, err := r.queryEntries(ctx, kind, query, userID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, found...)
	}
	sortEntriesNewestFirst(entries)
	return entries, nil
}

// HeldPlaces counts places held by live pending rows
func (r *PostgresLedgerRepository) HeldPlaces(ctx context.Context, kind domain.EventKind, eventID string, now time.Time) (int, error) {
	var query string
	switch kind {
	case domain.KindWorkshop:
		query = `SELECT COUNT(*) FROM workshop_registrations WHERE workshop_id = $1 AND status = 'pending' AND hold_expires_at > $2`
	case domain.KindConcert:
		query = `SELECT COALESCE(SUM(quantity), 0) FROM concert_ticket_orders WHERE concert_id = $1 AND status = 'pending' AND hold_expires_at > $2`
	default:
		return 0, domain.ErrUnknownEventKind
	}

	var held int
	if err := r.db.Pool().QueryRow(ctx, query, eventID, now).Scan(&held); err != nil {
		return 0, fmt.Errorf("failed to count held places: %w", err)
	}
	return held, nil
}

// ListStaleHolds lists pending rows whose hold expired before cutoff, oldest first
func (r *PostgresLedgerRepository) ListStaleHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for _, kind := range []domain.EventKind{domain.KindWorkshop, domain.KindConcert} {
		alias := entryAlias(kind)
		query := entrySelect(kind) + ` WHERE ` + alias + `.status = 'pending' AND ` + alias + `.hold_expires_at < $1
			ORDER BY ` + alias + `.hold_expires_at LIMIT $2`
		found, err := r.queryEntries(ctx, kind, query, cutoff, limit)
		if err != nil {
			return nil, err
		}
		entries = append(entries, found...)
	}
	return entries, nil
}

func (r *PostgresLedgerRepository) queryEntries(ctx context.Context, kind domain.EventKind, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows, kind)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger: %w", err)
	}
	return entries, nil
}

func insertRegistration(ctx context.Context, q querier, reg *domain.WorkshopRegistration) error {
	query := `INSERT INTO workshop_registrations (` + registrationColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)`
	_, err := q.Exec(ctx, query,
		reg.ID, reg.WorkshopID, reg.UserID, reg.Email, reg.Name, reg.Phone, reg.SpecialRequirements,
		reg.EmergencyContact, reg.Instruments, int64(reg.AmountPaid), string(reg.Status),
		nullString(reg.PaymentIntentID), nullString(reg.CheckoutSessionID), reg.PaidAt, reg.HoldExpiresAt,
		reg.TermsAccepted, reg.TermsAcceptedAt, reg.ConfirmationSent, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "workshop_registrations_workshop_user_key") {
			return domain.ErrAlreadyRegistered
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func updateRenewedRegistration(ctx context.Context, q querier, reg *domain.WorkshopRegistration) error {
	query := `
		UPDATE workshop_registrations SET
			phone = $2, special_requirements = $3, emergency_contact = $4, instruments = $5,
			amount_paid_pence = $6, status = $7, checkout_session_id = NULL, paid_at = NULL,
			hold_expires_at = $8, terms_accepted = $9, terms_accepted_at = $10,
			confirmation_sent = FALSE, updated_at = $11
		WHERE id = $1`
	_, err := q.Exec(ctx, query,
		reg.ID, reg.Phone, reg.SpecialRequirements, reg.EmergencyContact, reg.Instruments,
		int64(reg.AmountPaid), string(reg.Status), reg.HoldExpiresAt, reg.TermsAccepted,
		reg.TermsAcceptedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to renew registration: %w", err)
	}
	return nil
}

func insertOrder(ctx context.Context, q querier, o *domain.ConcertTicketOrder) error {
	query := `INSERT INTO concert_ticket_orders (` + orderColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
	)`
	_, err := q.Exec(ctx, query,
		o.ID, o.ConcertID, nullString(o.UserID), o.Email, o.Name, o.Phone, string(o.TicketType), o.Quantity,
		int64(o.UnitPrice), int64(o.TotalPrice), string(o.Status), nullString(o.PaymentIntentID),
		nullString(o.CheckoutSessionID), o.PaidAt, o.HoldExpiresAt, o.ConfirmationSent,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// scanRegistration scans a single registration from a row
func scanRegistration(row pgx.Row) (*domain.WorkshopRegistration, error) {
	var reg domain.WorkshopRegistration
	var amount int64
	var status string
	var intentID, sessionID *string

	err := row.Scan(
		&reg.ID, &reg.WorkshopID, &reg.UserID, &reg.Email, &reg.Name, &reg.Phone, &reg.SpecialRequirements,
		&reg.EmergencyContact, &reg.Instruments, &amount, &status,
		&intentID, &sessionID, &reg.PaidAt, &reg.HoldExpiresAt,
		&reg.TermsAccepted, &reg.TermsAcceptedAt, &reg.ConfirmationSent, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to scan registration: %w", err)
	}

	reg.AmountPaid = domain.Pence(amount)
	reg.Status = domain.LedgerStatus(status)
	reg.PaymentIntentID = derefString(intentID)
	reg.CheckoutSessionID = derefString(sessionID)
	return &reg, nil
}

// scanOrder scans a single concert order from a row
func scanOrder(row pgx.Row) (*domain.ConcertTicketOrder, error) {
	var o domain.ConcertTicketOrder
	var userID, intentID, sessionID *string
	var ticketType, status string
	var unit, total int64

	err := row.Scan(
		&o.ID, &o.ConcertID, &userID, &o.Email, &o.Name, &o.Phone, &ticketType, &o.Quantity,
		&unit, &total, &status, &intentID,
		&sessionID, &o.PaidAt, &o.HoldExpiresAt, &o.ConfirmationSent,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	o.UserID = derefString(userID)
	o.TicketType = domain.TicketType(ticketType)
	o.UnitPrice = domain.Pence(unit)
	o.TotalPrice = domain.Pence(total)
	o.Status = domain.LedgerStatus(status)
	o.PaymentIntentID = derefString(intentID)
	o.CheckoutSessionID = derefString(sessionID)
	return &o, nil
}

// scanEntry scans a row produced by entrySelect; pgx.ErrNoRows is returned unwrapped
func scanEntry(row pgx.Row, kind domain.EventKind) (*domain.LedgerEntry, error) {
	e := domain.LedgerEntry{Kind: kind}
	var amount int64
	var status string

	err := row.Scan(
		&e.ID, &e.EventID, &e.EventTitle, &e.EventDate, &e.UserID, &e.BuyerEmail, &e.BuyerName,
		&e.Quantity, &amount, &status, &e.PaymentIntentID,
		&e.CheckoutSessionID, &e.PaidAt, &e.ConfirmationSent, &e.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}
	e.Amount = domain.Pence(amount)
	e.Status = domain.LedgerStatus(status)
	return &e, nil
}

func sortEntriesNewestFirst(entries []domain.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

var _ LedgerRepository = (*PostgresLedgerRepository)(nil)
