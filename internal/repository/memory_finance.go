package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/polyphonica/booking/internal/domain"
)

func (s *MemoryStore) IncomeTotals(ctx context.Context, r domain.DateRange, f domain.FinanceFilter) (domain.StreamTotals, domain.StreamTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var workshops, concerts domain.StreamTotals
	for key, rec := range s.fees {
		if !r.Contains(domain.CivilDate(rec.TransactionDate)) {
			continue
		}
		eventID := s.eventOfLocked(key)
		if f.Kind == key.kind && !f.IsZero() && eventID != f.EventID {
			continue
		}
		t := domain.StreamTotals{Gross: rec.Gross, Fees: rec.Fee, Net: rec.Net, Count: 1}
		if key.kind == domain.KindConcert {
			concerts = concerts.Add(t)
		} else {
			workshops = workshops.Add(t)
		}
	}
	return workshops, concerts, nil
}

func (s *MemoryStore) eventOfLocked(key ledgerKey) string {
	if key.kind == domain.KindConcert {
		if o, ok := s.orders[key.id]; ok {
			return o.ConcertID
		}
		return ""
	}
	if reg, ok := s.registrations[key.id]; ok {
		return reg.WorkshopID
	}
	return ""
}

func (s *MemoryStore) IncomeRows(ctx context.Context, r domain.DateRange) ([]domain.IncomeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incomeRowsLocked(func(key ledgerKey, rec *domain.FeeRecord) bool {
		return r.Contains(domain.CivilDate(rec.TransactionDate))
	}), nil
}

func (s *MemoryStore) EventIncomeRows(ctx context.Context, kind domain.EventKind, eventID string) ([]domain.IncomeRow, error) {
	if kind != domain.KindWorkshop && kind != domain.KindConcert {
		return nil, domain.ErrUnknownEventKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incomeRowsLocked(func(key ledgerKey, rec *domain.FeeRecord) bool {
		return key.kind == kind && s.eventOfLocked(key) == eventID
	}), nil
}

func (s *MemoryStore) incomeRowsLocked(keep func(ledgerKey, *domain.FeeRecord) bool) []domain.IncomeRow {
	var rows []domain.IncomeRow
	for key, rec := range s.fees {
		if !keep(key, rec) {
			continue
		}
		entry, err := s.entryLocked(key)
		if err != nil {
			continue
		}
		rows = append(rows, domain.IncomeRow{
			Date:       rec.TransactionDate,
			Kind:       key.kind,
			EventTitle: entry.EventTitle,
			BuyerName:  entry.BuyerName,
			BuyerEmail: entry.BuyerEmail,
			Gross:      rec.Gross,
			Fee:        rec.Fee,
			Net:        rec.Net,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].EventTitle < rows[j].EventTitle
	})
	return rows
}

func (s *MemoryStore) UnsyncedCounts(ctx context.Context) (domain.UnsyncedCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts domain.UnsyncedCounts
	for id, reg := range s.registrations {
		if reg.Status == domain.StatusPaid && strings.HasPrefix(reg.PaymentIntentID, "pi_") && s.fees[ledgerKey{domain.KindWorkshop, id}] == nil {
			counts.Workshop++
		}
	}
	for id, o := range s.orders {
		if o.Status == domain.StatusPaid && strings.HasPrefix(o.PaymentIntentID, "pi_") && s.fees[ledgerKey{domain.KindConcert, id}] == nil {
			counts.Concert++
		}
	}
	counts.Total = counts.Workshop + counts.Concert
	return counts, nil
}

func (s *MemoryStore) FeeSyncCandidates(ctx context.Context, q FeeSyncQuery) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := func(key ledgerKey, e domain.LedgerEntry) bool {
		if !e.HasStripePayment() {
			return false
		}
		if q.PaidSince != nil && (e.PaidAt == nil || e.PaidAt.Before(*q.PaidSince)) {
			return false
		}
		return q.IncludeSynced || s.fees[key] == nil
	}

	var entries []domain.LedgerEntry
	for id, reg := range s.registrations {
		e := reg.Entry(s.workshops[reg.WorkshopID])
		if reg.Status.Confirmed() && keep(ledgerKey{domain.KindWorkshop, id}, e) {
			entries = append(entries, e)
		}
	}
	for id, o := range s.orders {
		e := o.Entry(s.concerts[o.ConcertID])
		if o.Status == domain.StatusPaid && keep(ledgerKey{domain.KindConcert, id}, e) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PaidAt != nil && entries[j].PaidAt != nil && entries[i].PaidAt.Before(*entries[j].PaidAt)
	})
	return entries, nil
}

func (s *MemoryStore) UpsertFeeRecord(ctx context.Context, rec *domain.FeeRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{rec.Kind, rec.LedgerID}
	if _, err := s.entryLocked(key); err != nil {
		return false, err
	}
	cp := *rec
	existing, found := s.fees[key]
	if found {
		cp.ID = existing.ID
		cp.SyncedAt = existing.SyncedAt
		rec.ID = existing.ID
	}
	s.fees[key] = &cp
	return !found, nil
}

func (s *MemoryStore) GetFeeRecord(ctx context.Context, kind domain.EventKind, ledgerID string) (*domain.FeeRecord, error) {
	if kind != domain.KindWorkshop && kind != domain.KindConcert {
		return nil, domain.ErrUnknownEventKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.fees[ledgerKey{kind, ledgerID}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) CreateExpense(ctx context.Context, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.LinkedTitle = ""
	s.expenses[e.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateExpense(ctx context.Context, e *domain.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expenses[e.ID]
	if !ok {
		return domain.ErrExpenseNotFound
	}
	cp := *e
	cp.CreatedAt = existing.CreatedAt
	cp.CreatedBy = existing.CreatedBy
	s.expenses[e.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return domain.ErrExpenseNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *MemoryStore) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, domain.ErrExpenseNotFound
	}
	return s.expenseViewLocked(e), nil
}

func (s *MemoryStore) ListExpenses(ctx context.Context, r *domain.DateRange, f domain.FinanceFilter) ([]*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Expense
	for _, e := range s.expenses {
		if r != nil && !r.Contains(e.Date) {
			continue
		}
		if !f.IsZero() {
			linked := e.WorkshopID
			if f.Kind == domain.KindConcert {
				linked = e.ConcertID
			}
			if linked == nil || *linked != f.EventID {
				continue
			}
		}
		result = append(result, s.expenseViewLocked(e))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) expenseViewLocked(e *domain.Expense) *domain.Expense {
	cp := *e
	switch {
	case e.WorkshopID != nil:
		if w, ok := s.workshops[*e.WorkshopID]; ok {
			cp.LinkedTitle = w.Title
		}
	case e.ConcertID != nil:
		if c, ok := s.concerts[*e.ConcertID]; ok {
			cp.LinkedTitle = c.Title
		}
	}
	return &cp
}

func (s *MemoryStore) RegisteredEmails(ctx context.Context, workshopID string, emails []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[strings.ToLower(e)] = true
	}
	found := make(map[string]bool)
	for _, reg := range s.registrations {
		if reg.WorkshopID != workshopID {
			continue
		}
		u, ok := s.users[reg.UserID]
		if !ok {
			continue
		}
		email := strings.ToLower(u.Email)
		if wanted[email] {
			found[email] = true
		}
	}
	return found, nil
}

// ImportLegacyBookings validates everything before writing so a failure leaves the store untouched
func (s *MemoryStore) ImportLegacyBookings(ctx context.Context, workshopID string, rows []domain.LegacyBooking, now time.Time) (*domain.ImportOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workshops[workshopID]
	if !ok {
		return nil, domain.ErrWorkshopNotFound
	}

	type pending struct {
		user    *domain.User
		newUser bool
		reg     *domain.WorkshopRegistration
		fee     *domain.FeeRecord
	}
	var plan []pending
	newUsernames := make(map[string]bool)
	newUsers := make(map[string]*domain.User)
	registered := make(map[string]bool)

	for _, row := range rows {
		if row.Skip {
			continue
		}

		user := s.userByEmail(row.Email)
		newUser := false
		if user == nil {
			user = newUsers[row.Email]
		}
		if user == nil {
			base := domain.UsernameBase(row.Email)
			username := base
			for attempt := 1; s.usernameTaken(username) || newUsernames[username]; attempt++ {
				username = domain.UsernameCandidate(base, attempt)
			}
			newUsernames[username] = true
			user = domain.NewImportedUser(row.Email, username, row.FirstName, row.LastName, now)
			newUsers[row.Email] = user
			newUser = true
		}

		if registered[user.ID] || s.hasRegistrationLocked(w.ID, user.ID) {
			continue
		}
		registered[user.ID] = true

		name := row.Name
		if name == "" {
			name = user.FullName()
		}
		paidAt, accepted := row.Date, row.Date
		reg := &domain.WorkshopRegistration{
			ID:                  uuid.New().String(),
			WorkshopID:          w.ID,
			UserID:              user.ID,
			Email:               user.Email,
			Name:                name,
			RegistrationDetails: domain.RegistrationDetails{Phone: row.Phone, TermsAccepted: true},
			AmountPaid:          row.Gross,
			Status:              domain.StatusPaid,
			PaymentIntentID:     row.PaymentIntentID,
			PaidAt:              &paidAt,
			TermsAcceptedAt:     &accepted,
			ConfirmationSent:    true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		fee, err := domain.NewFeeRecord(domain.KindWorkshop, reg.ID, row.PaymentIntentID, row.Gross, row.Fee, row.Date)
		if err != nil {
			return nil, err
		}
		fee.ChargeID = row.ChargeID
		fee.BalanceTransactionID = row.BalanceTransactionID
		plan = append(plan, pending{user: user, newUser: newUser, reg: reg, fee: fee})
	}

	outcome := &domain.ImportOutcome{}
	for _, p := range plan {
		if p.newUser {
			s.users[p.user.ID] = p.user
			outcome.UsersCreated++
		}
		s.registrations[p.reg.ID] = p.reg
		outcome.RegistrationsCreated++
		s.fees[ledgerKey{domain.KindWorkshop, p.reg.ID}] = p.fee
		outcome.FeeRecordsCreated++
	}

	if w.LegacyBookings >= outcome.RegistrationsCreated {
		w.LegacyBookings -= outcome.RegistrationsCreated
	}
	outcome.LegacyBookingsLeft = w.LegacyBookings
	s.recountLocked(domain.KindWorkshop, w.ID)
	return outcome, nil
}

func (s *MemoryStore) hasRegistrationLocked(workshopID, userID string) bool {
	for _, reg := range s.registrations {
		if reg.WorkshopID == workshopID && reg.UserID == userID {
			return true
		}
	}
	return false
}
