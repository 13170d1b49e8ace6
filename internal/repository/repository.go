package repository

import (
	"context"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

// EventQuery filters catalog listings; zero fields are ignored
type EventQuery struct {
	From          *time.Time
	To            *time.Time
	PublishedOnly bool
	// InternalOnly restricts concerts to those sold through checkout
	InternalOnly bool
	Limit        int
}

// CatalogRepository stores workshops and concerts
type CatalogRepository interface {
	CreateWorkshop(ctx context.Context, w *domain.Workshop) error
	UpdateWorkshop(ctx context.Context, w *domain.Workshop) error
	GetWorkshop(ctx context.Context, id string) (*domain.Workshop, error)
	GetWorkshopBySlug(ctx context.Context, slug string) (*domain.Workshop, error)
	ListWorkshops(ctx context.Context, q EventQuery) ([]*domain.Workshop, error)

	CreateConcert(ctx context.Context, c *domain.Concert) error
	UpdateConcert(ctx context.Context, c *domain.Concert) error
	GetConcert(ctx context.Context, id string) (*domain.Concert, error)
	GetConcertBySlug(ctx context.Context, slug string) (*domain.Concert, error)
	ListConcerts(ctx context.Context, q EventQuery) ([]*domain.Concert, error)

	// SlugExists checks both kinds' slug space for kind, ignoring excludeID
	SlugExists(ctx context.Context, kind domain.EventKind, slug, excludeID string) (bool, error)
}

// WorkshopHoldRequest asks for one place on a workshop for a user
type WorkshopHoldRequest struct {
	WorkshopID string
	Buyer      domain.Buyer
	Details    domain.RegistrationDetails
	Now        time.Time
	Window     time.Duration
}

// HoldResult is the pending row now holding places
type HoldResult struct {
	Entry        domain.LedgerEntry
	Registration *domain.WorkshopRegistration
	Order        *domain.ConcertTicketOrder
	// Created is false when an existing row for the same buyer was taken over
	Created bool
	// PreviousStatus is the taken-over row's status before it became pending again
	PreviousStatus domain.LedgerStatus
}

// LedgerRepository owns every status change on registrations and orders.
// Each change locks the event row, recounts its confirmed bookings and writes an outbox message in one transaction.
type LedgerRepository interface {
	PlaceWorkshopHold(ctx context.Context, req WorkshopHoldRequest) (*HoldResult, error)
	PlaceConcertHold(ctx context.Context, order *domain.ConcertTicketOrder) (*HoldResult, error)
	AttachSession(ctx context.Context, kind domain.EventKind, id, sessionID string) error
	// ReleaseHold undoes a hold whose checkout could not be opened: created rows are deleted, taken-over rows cancelled
	ReleaseHold(ctx context.Context, hold *HoldResult) error

	MarkPaid(ctx context.Context, conf domain.PaymentConfirmation) (*domain.MarkPaidResult, error)
	Transition(ctx context.Context, tr domain.Transition) (*domain.LedgerEntry, error)
	SetConfirmationSent(ctx context.Context, kind domain.EventKind, id string) error

	GetEntry(ctx context.Context, kind domain.EventKind, id string) (*domain.LedgerEntry, error)
	GetEntryBySession(ctx context.Context, sessionID string) (*domain.LedgerEntry, error)
	GetRegistration(ctx context.Context, id string) (*domain.WorkshopRegistration, error)
	GetRegistrationForUser(ctx context.Context, workshopID, userID string) (*domain.WorkshopRegistration, error)
	GetOrder(ctx context.Context, id string) (*domain.ConcertTicketOrder, error)

	ListRegistrations(ctx context.Context, workshopID string, status domain.LedgerStatus) ([]*domain.WorkshopRegistration, error)
	ListOrders(ctx context.Context, concertID string, status domain.LedgerStatus) ([]*domain.ConcertTicketOrder, error)
	ListUserEntries(ctx context.Context, userID string) ([]domain.LedgerEntry, error)

	// HeldPlaces counts places held by live pending rows at now
	HeldPlaces(ctx context.Context, kind domain.EventKind, eventID string, now time.Time) (int, error)
	// ListStaleHolds lists pending rows whose hold ended before cutoff
	ListStaleHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.LedgerEntry, error)
}

// FeeSyncQuery selects paid rows whose fees may need fetching
type FeeSyncQuery struct {
	// PaidSince nil means all time
	PaidSince *time.Time
	// IncludeSynced also returns rows that already have a fee record
	IncludeSynced bool
}

// FinanceRepository aggregates fee records
type FinanceRepository interface {
	IncomeTotals(ctx context.Context, r domain.DateRange, f domain.FinanceFilter) (workshops, concerts domain.StreamTotals, err error)
	IncomeRows(ctx context.Context, r domain.DateRange) ([]domain.IncomeRow, error)
	EventIncomeRows(ctx context.Context, kind domain.EventKind, eventID string) ([]domain.IncomeRow, error)
	UnsyncedCounts(ctx context.Context) (domain.UnsyncedCounts, error)

	FeeSyncCandidates(ctx context.Context, q FeeSyncQuery) ([]domain.LedgerEntry, error)
	// UpsertFeeRecord inserts or replaces the record for its ledger row and reports whether it was new
	UpsertFeeRecord(ctx context.Context, rec *domain.FeeRecord) (created bool, err error)
	// GetFeeRecord returns nil when the row has no record yet
	GetFeeRecord(ctx context.Context, kind domain.EventKind, ledgerID string) (*domain.FeeRecord, error)
}

// ExpenseRepository stores expenses
type ExpenseRepository interface {
	CreateExpense(ctx context.Context, e *domain.Expense) error
	UpdateExpense(ctx context.Context, e *domain.Expense) error
	DeleteExpense(ctx context.Context, id string) error
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	// ListExpenses returns expenses dated in r (all time when r is nil), newest first
	ListExpenses(ctx context.Context, r *domain.DateRange, f domain.FinanceFilter) ([]*domain.Expense, error)
}

// UserRepository is the account store seen by this service
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// ImportRepository writes legacy bookings
type ImportRepository interface {
	// RegisteredEmails returns which of emails already have a registration for the workshop
	RegisteredEmails(ctx context.Context, workshopID string, emails []string) (map[string]bool, error)
	// ImportLegacyBookings writes every non-skipped row in one transaction
	ImportLegacyBookings(ctx context.Context, workshopID string, rows []domain.LegacyBooking, now time.Time) (*domain.ImportOutcome, error)
}

// RepertoireRepository stores composers, pieces and programmes
type RepertoireRepository interface {
	CreateComposer(ctx context.Context, c *domain.Composer) error
	GetComposer(ctx context.Context, id string) (*domain.Composer, error)
	ListComposers(ctx context.Context) ([]*domain.Composer, error)
	CreatePiece(ctx context.Context, p *domain.Piece) error
	GetPiece(ctx context.Context, id string) (*domain.Piece, error)
	CreateProgramme(ctx context.Context, p *domain.Programme) error
	// GetProgramme loads items in order with their pieces and composers
	GetProgramme(ctx context.Context, id string) (*domain.Programme, error)
	AddProgrammeItem(ctx context.Context, item *domain.ProgrammeItem) error
}

// OutboxRepository feeds the outbox worker
type OutboxRepository interface {
	// ClaimPending leases up to limit pending messages so other workers skip them until lease ends
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error)
	// ClaimFailed leases failed messages that still have retries left
	ClaimFailed(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	DeletePublished(ctx context.Context, olderThan time.Time) (int64, error)
}

// Repositories bundles every store the services use
type Repositories struct {
	Catalog    CatalogRepository
	Ledger     LedgerRepository
	Finance    FinanceRepository
	Expenses   ExpenseRepository
	Users      UserRepository
	Import     ImportRepository
	Repertoire RepertoireRepository
	Outbox     OutboxRepository
}
