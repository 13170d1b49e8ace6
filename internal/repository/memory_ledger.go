package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

// PlaceWorkshopHold admits one place and inserts or takes over the user's row
func (s *MemoryStore) PlaceWorkshopHold(ctx context.Context, req WorkshopHoldRequest) (*HoldResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workshops[req.WorkshopID]
	if !ok {
		return nil, domain.ErrWorkshopNotFound
	}
	if w.Status != domain.EventStatusPublished {
		return nil, domain.ErrEventNotOpen
	}

	var existing *domain.WorkshopRegistration
	for _, reg := range s.registrations {
		if reg.WorkshopID == w.ID && reg.UserID == req.Buyer.UserID {
			existing = reg
			break
		}
	}
	if existing != nil && existing.Status.Confirmed() {
		return nil, domain.ErrAlreadyRegistered
	}

	held := 0
	for _, reg := range s.registrations {
		if reg.WorkshopID == w.ID && reg.UserID != req.Buyer.UserID && reg.HoldLive(req.Now) {
			held++
		}
	}
	if err := admit(w.Availability(held), 1); err != nil {
		return nil, err
	}

	if existing != nil {
		previous := existing.Status
		if existing.CheckoutSessionID != "" {
			delete(s.bySession, existing.CheckoutSessionID)
		}
		existing.Renew(w, req.Details, req.Now, req.Window)
		cp := *existing
		return &HoldResult{Entry: existing.Entry(w), Registration: &cp, PreviousStatus: previous}, nil
	}

	reg, err := domain.NewWorkshopRegistration(w, req.Buyer, req.Details, req.Now, req.Window)
	if err != nil {
		return nil, err
	}
	s.registrations[reg.ID] = reg
	cp := *reg
	return &HoldResult{Entry: reg.Entry(w), Registration: &cp, Created: true}, nil
}

// PlaceConcertHold inserts the order if its quantity fits alongside live holds
func (s *MemoryStore) PlaceConcertHold(ctx context.Context, order *domain.ConcertTicketOrder) (*HoldResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.concerts[order.ConcertID]
	if !ok {
		return nil, domain.ErrConcertNotFound
	}
	if c.Status != domain.EventStatusPublished {
		return nil, domain.ErrEventNotOpen
	}
	if !c.SellsOnline() {
		return nil, domain.ErrNotSoldOnline
	}
	if err := admit(c.Availability(s.heldLocked(domain.KindConcert, c.ID, order.CreatedAt)), order.Quantity); err != nil {
		return nil, err
	}

	cp := *order
	s.orders[order.ID] = &cp
	return &HoldResult{Entry: order.Entry(c), Order: order, Created: true}, nil
}

func (s *MemoryStore) AttachSession(ctx context.Context, kind domain.EventKind, id, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{kind, id}
	switch kind {
	case domain.KindWorkshop:
		reg, ok := s.registrations[id]
		if !ok {
			return domain.ErrRegistrationNotFound
		}
		if reg.Status != domain.StatusPending {
			return fmt.Errorf("%w: row %s is no longer pending", domain.ErrInvalidTransition, id)
		}
		reg.CheckoutSessionID = sessionID
	case domain.KindConcert:
		o, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if o.Status != domain.StatusPending {
			return fmt.Errorf("%w: row %s is no longer pending", domain.ErrInvalidTransition, id)
		}
		o.CheckoutSessionID = sessionID
	default:
		return domain.ErrUnknownEventKind
	}
	s.bySession[sessionID] = key
	return nil
}

func (s *MemoryStore) ReleaseHold(ctx context.Context, hold *HoldResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hold.Entry.ID
	switch hold.Entry.Kind {
	case domain.KindWorkshop:
		reg, ok := s.registrations[id]
		if !ok || reg.Status != domain.StatusPending {
			return nil
		}
		if reg.CheckoutSessionID != "" {
			delete(s.bySession, reg.CheckoutSessionID)
		}
		if hold.Created {
			delete(s.registrations, id)
			return nil
		}
		reg.Status = domain.StatusCancelled
		if hold.PreviousStatus == domain.StatusRefunded {
			reg.Status = domain.StatusRefunded
		}
		reg.HoldExpiresAt = nil
	case domain.KindConcert:
		o, ok := s.orders[id]
		if !ok || o.Status != domain.StatusPending {
			return nil
		}
		if o.CheckoutSessionID != "" {
			delete(s.bySession, o.CheckoutSessionID)
		}
		if hold.Created {
			delete(s.orders, id)
			return nil
		}
		o.Status = domain.StatusCancelled
		o.HoldExpiresAt = nil
	default:
		return domain.ErrUnknownEventKind
	}
	return nil
}

// MarkPaid moves a pending row to paid; see PostgresLedgerRepository.MarkPaid
func (s *MemoryStore) MarkPaid(ctx context.Context, conf domain.PaymentConfirmation) (*domain.MarkPaidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.bySession[conf.SessionID]
	if !ok || conf.SessionID == "" || (conf.Kind != "" && conf.Kind != key.kind) {
		return nil, domain.ErrReconciliationNotFound
	}

	entry, changed, err := s.applyLocked(key, []domain.LedgerStatus{domain.StatusPending}, domain.StatusPaid, conf.PaidAt, conf.PaymentIntentID, conf.Source)
	if err != nil {
		return nil, err
	}

	outcome := domain.Transitioned
	if !changed {
		outcome = domain.NotPending
		if entry.Status.Confirmed() {
			outcome = domain.AlreadyPaid
		}
	}
	return &domain.MarkPaidResult{Outcome: outcome, Entry: *entry}, nil
}

func (s *MemoryStore) Transition(ctx context.Context, tr domain.Transition) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := allowedFrom(tr)
	if len(from) == 0 {
		return nil, domain.ErrInvalidTransition
	}

	key := ledgerKey{tr.Kind, tr.ID}
	if tr.ID == "" {
		var ok bool
		key, ok = s.bySession[tr.SessionID]
		if !ok || tr.SessionID == "" {
			return nil, domain.ErrReconciliationNotFound
		}
	}

	entry, changed, err := s.applyLocked(key, from, tr.To, time.Time{}, "", tr.Reason)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrInvalidTransition, key.id, entry.Status)
	}
	return entry, nil
}

// applyLocked is the in-memory counterpart of the transactional status change
func (s *MemoryStore) applyLocked(key ledgerKey, from []domain.LedgerStatus, to domain.LedgerStatus, paidAt time.Time, intentID, reason string) (*domain.LedgerEntry, bool, error) {
	current, err := s.entryLocked(key)
	if err != nil {
		return nil, false, err
	}
	if !containsStatus(from, current.Status) {
		return current, false, nil
	}

	now := time.Now().UTC()
	if paidAt.IsZero() {
		paidAt = now
	}
	set := func(status *domain.LedgerStatus, paid **time.Time, intent *string, hold **time.Time, updated *time.Time) {
		*status = to
		*hold = nil
		*updated = now
		if to == domain.StatusPaid {
			at := paidAt
			*paid = &at
			if intentID != "" {
				*intent = intentID
			}
		}
	}

	var eventID string
	switch key.kind {
	case domain.KindWorkshop:
		reg := s.registrations[key.id]
		set(&reg.Status, &reg.PaidAt, &reg.PaymentIntentID, &reg.HoldExpiresAt, &reg.UpdatedAt)
		eventID = reg.WorkshopID
	case domain.KindConcert:
		o := s.orders[key.id]
		set(&o.Status, &o.PaidAt, &o.PaymentIntentID, &o.HoldExpiresAt, &o.UpdatedAt)
		eventID = o.ConcertID
	}

	confirmed := s.recountLocked(key.kind, eventID)
	entry, err := s.entryLocked(key)
	if err != nil {
		return nil, false, err
	}

	msg, err := domain.NewLedgerOutboxMessage(s.outboxTopic, *entry, current.Status, reason, confirmed, now)
	if err != nil {
		return nil, false, err
	}
	s.outbox = append(s.outbox, &memoryOutboxRow{msg: *msg})
	return entry, true, nil
}

func containsStatus(list []domain.LedgerStatus, s domain.LedgerStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *MemoryStore) recountLocked(kind domain.EventKind, eventID string) int {
	n := 0
	if kind == domain.KindConcert {
		for _, o := range s.orders {
			if o.ConcertID == eventID && o.Status == domain.StatusPaid {
				n += o.Quantity
			}
		}
		if c, ok := s.concerts[eventID]; ok {
			c.TicketsSold = n
		}
		return n
	}
	for _, reg := range s.registrations {
		if reg.WorkshopID == eventID && reg.Status.Confirmed() {
			n++
		}
	}
	if w, ok := s.workshops[eventID]; ok {
		w.CurrentRegistrations = n
	}
	return n
}

func (s *MemoryStore) heldLocked(kind domain.EventKind, eventID string, now time.Time) int {
	n := 0
	if kind == domain.KindConcert {
		for _, o := range s.orders {
			if o.ConcertID == eventID && o.HoldLive(now) {
				n += o.Quantity
			}
		}
		return n
	}
	for _, reg := range s.registrations {
		if reg.WorkshopID == eventID && reg.HoldLive(now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) entryLocked(key ledgerKey) (*domain.LedgerEntry, error) {
	switch key.kind {
	case domain.KindWorkshop:
		reg, ok := s.registrations[key.id]
		if !ok {
			return nil, domain.ErrRegistrationNotFound
		}
		e := reg.Entry(s.workshops[reg.WorkshopID])
		return &e, nil
	case domain.KindConcert:
		o, ok := s.orders[key.id]
		if !ok {
			return nil, domain.ErrOrderNotFound
		}
		e := o.Entry(s.concerts[o.ConcertID])
		return &e, nil
	}
	return nil, domain.ErrUnknownEventKind
}

func (s *MemoryStore) SetConfirmationSent(ctx context.Context, kind domain.EventKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.KindWorkshop:
		reg, ok := s.registrations[id]
		if !ok {
			return domain.ErrRegistrationNotFound
		}
		reg.ConfirmationSent = true
	case domain.KindConcert:
		o, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o.ConfirmationSent = true
	default:
		return domain.ErrUnknownEventKind
	}
	return nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, kind domain.EventKind, id string) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(ledgerKey{kind, id})
}

func (s *MemoryStore) GetEntryBySession(ctx context.Context, sessionID string) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.bySession[sessionID]
	if !ok {
		return nil, domain.ErrReconciliationNotFound
	}
	return s.entryLocked(key)
}

func (s *MemoryStore) GetRegistration(ctx context.Context, id string) (*domain.WorkshopRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[id]
	if !ok {
		return nil, domain.ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

func (s *MemoryStore) GetRegistrationForUser(ctx context.Context, workshopID, userID string) (*domain.WorkshopRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.registrations {
		if reg.WorkshopID == workshopID && reg.UserID == userID {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, domain.ErrRegistrationNotFound
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*domain.ConcertTicketOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) ListRegistrations(ctx context.Context, workshopID string, status domain.LedgerStatus) ([]*domain.WorkshopRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.WorkshopRegistration
	for _, reg := range s.registrations {
		if reg.WorkshopID == workshopID && (status == "" || reg.Status == status) {
			cp := *reg
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, concertID string, status domain.LedgerStatus) ([]*domain.ConcertTicketOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.ConcertTicketOrder
	for _, o := range s.orders {
		if o.ConcertID == concertID && (status == "" || o.Status == status) {
			cp := *o
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *MemoryStore) ListUserEntries(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []domain.LedgerEntry
	for _, reg := range s.registrations {
		if reg.UserID == userID {
			entries = append(entries, reg.Entry(s.workshops[reg.WorkshopID]))
		}
	}
	for _, o := range s.orders {
		if o.UserID != "" && o.UserID == userID {
			entries = append(entries, o.Entry(s.concerts[o.ConcertID]))
		}
	}
	sortEntriesNewestFirst(entries)
	return entries, nil
}

func (s *MemoryStore) HeldPlaces(ctx context.Context, kind domain.EventKind, eventID string, now time.Time) (int, error) {
	if kind != domain.KindWorkshop && kind != domain.KindConcert {
		return 0, domain.ErrUnknownEventKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heldLocked(kind, eventID, now), nil
}

func (s *MemoryStore) ListStaleHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type stale struct {
		entry   domain.LedgerEntry
		expires time.Time
	}
	var found []stale
	for _, reg := range s.registrations {
		if reg.Status == domain.StatusPending && reg.HoldExpiresAt != nil && reg.HoldExpiresAt.Before(cutoff) {
			found = append(found, stale{reg.Entry(s.workshops[reg.WorkshopID]), *reg.HoldExpiresAt})
		}
	}
	for _, o := range s.orders {
		if o.Status == domain.StatusPending && o.HoldExpiresAt != nil && o.HoldExpiresAt.Before(cutoff) {
			found = append(found, stale{o.Entry(s.concerts[o.ConcertID]), *o.HoldExpiresAt})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].expires.Before(found[j].expires) })

	entries := make([]domain.LedgerEntry, 0, len(found))
	for _, f := range limitSlice(found, limit) {
		entries = append(entries, f.entry)
	}
	return entries, nil
}

// ForceHoldExpiry moves a pending row's hold into the past; used by expiry tests and local tooling
func (s *MemoryStore) ForceHoldExpiry(kind domain.EventKind, id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.KindWorkshop:
		if reg, ok := s.registrations[id]; ok {
			reg.HoldExpiresAt = &at
		}
	case domain.KindConcert:
		if o, ok := s.orders[id]; ok {
			o.HoldExpiresAt = &at
		}
	}
}

// SetPaymentIntent overwrites a row's payment reference, as an admin correction would
func (s *MemoryStore) SetPaymentIntent(kind domain.EventKind, id, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case domain.KindWorkshop:
		if reg, ok := s.registrations[id]; ok {
			reg.PaymentIntentID = intentID
			return nil
		}
		return domain.ErrRegistrationNotFound
	case domain.KindConcert:
		if o, ok := s.orders[id]; ok {
			o.PaymentIntentID = intentID
			return nil
		}
		return domain.ErrOrderNotFound
	}
	return domain.ErrUnknownEventKind
}
