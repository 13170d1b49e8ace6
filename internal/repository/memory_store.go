package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

// MemoryStore implements every repository interface using in-memory storage.
// This is useful for testing and for running without a database.
// One mutex guards everything, which gives the ledger the same all-or-nothing
// behaviour the Postgres transactions provide.
type MemoryStore struct {
	workshops     map[string]*domain.Workshop
	concerts      map[string]*domain.Concert
	registrations map[string]*domain.WorkshopRegistration
	orders        map[string]*domain.ConcertTicketOrder
	bySession     map[string]ledgerKey // checkoutSessionID -> row
	fees          map[ledgerKey]*domain.FeeRecord
	expenses      map[string]*domain.Expense
	users         map[string]*domain.User
	composers     map[string]*domain.Composer
	pieces        map[string]*domain.Piece
	programmes    map[string]*domain.Programme
	outbox        []*memoryOutboxRow
	outboxTopic   string
	mu            sync.Mutex
}

type ledgerKey struct {
	kind domain.EventKind
	id   string
}

// NewMemoryStore creates an empty store; ledger changes write outbox messages for topic
func NewMemoryStore(topic string) *MemoryStore {
	return &MemoryStore{
		workshops:     make(map[string]*domain.Workshop),
		concerts:      make(map[string]*domain.Concert),
		registrations: make(map[string]*domain.WorkshopRegistration),
		orders:        make(map[string]*domain.ConcertTicketOrder),
		bySession:     make(map[string]ledgerKey),
		fees:          make(map[ledgerKey]*domain.FeeRecord),
		expenses:      make(map[string]*domain.Expense),
		users:         make(map[string]*domain.User),
		composers:     make(map[string]*domain.Composer),
		pieces:        make(map[string]*domain.Piece),
		programmes:    make(map[string]*domain.Programme),
		outboxTopic:   topic,
	}
}

// NewMemoryRepositories wires one MemoryStore behind every interface
func NewMemoryRepositories(topic string) (*Repositories, *MemoryStore) {
	s := NewMemoryStore(topic)
	return &Repositories{
		Catalog:    s,
		Ledger:     s,
		Finance:    s,
		Expenses:   s,
		Users:      s,
		Import:     s,
		Repertoire: s,
		Outbox:     s,
	}, s
}

// CreateWorkshop stores a copy of w
func (s *MemoryStore) CreateWorkshop(ctx context.Context, w *domain.Workshop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slugTaken(domain.KindWorkshop, w.Slug, "") {
		return domain.ErrSlugTaken
	}
	cp := *w
	s.workshops[w.ID] = &cp
	return nil
}

// UpdateWorkshop keeps the cached count owned by the ledger
func (s *MemoryStore) UpdateWorkshop(ctx context.Context, w *domain.Workshop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workshops[w.ID]
	if !ok {
		return domain.ErrWorkshopNotFound
	}
	if s.slugTaken(domain.KindWorkshop, w.Slug, w.ID) {
		return domain.ErrSlugTaken
	}
	cp := *w
	cp.CurrentRegistrations = existing.CurrentRegistrations
	cp.CreatedAt = existing.CreatedAt
	s.workshops[w.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWorkshop(ctx context.Context, id string) (*domain.Workshop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workshops[id]
	if !ok {
		return nil, domain.ErrWorkshopNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) GetWorkshopBySlug(ctx context.Context, slug string) (*domain.Workshop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.workshops {
		if w.Slug == slug {
			cp := *w
			return &cp, nil
		}
	}
	return nil, domain.ErrWorkshopNotFound
}

// ListWorkshops returns matches by date then start time
func (s *MemoryStore) ListWorkshops(ctx context.Context, q EventQuery) ([]*domain.Workshop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Workshop
	for _, w := range s.workshops {
		if !matchesEventQuery(q, w.Date, w.Status) {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartsAt().Before(result[j].StartsAt())
	})
	return limitSlice(result, q.Limit), nil
}

// CreateConcert stores a copy of c
func (s *MemoryStore) CreateConcert(ctx context.Context, c *domain.Concert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slugTaken(domain.KindConcert, c.Slug, "") {
		return domain.ErrSlugTaken
	}
	cp := *c
	s.concerts[c.ID] = &cp
	return nil
}

// UpdateConcert keeps the cached count owned by the ledger
func (s *MemoryStore) UpdateConcert(ctx context.Context, c *domain.Concert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.concerts[c.ID]
	if !ok {
		return domain.ErrConcertNotFound
	}
	if s.slugTaken(domain.KindConcert, c.Slug, c.ID) {
		return domain.ErrSlugTaken
	}
	cp := *c
	cp.TicketsSold = existing.TicketsSold
	cp.CreatedAt = existing.CreatedAt
	s.concerts[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConcert(ctx context.Context, id string) (*domain.Concert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.concerts[id]
	if !ok {
		return nil, domain.ErrConcertNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetConcertBySlug(ctx context.Context, slug string) (*domain.Concert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.concerts {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrConcertNotFound
}

func (s *MemoryStore) ListConcerts(ctx context.Context, q EventQuery) ([]*domain.Concert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Concert
	for _, c := range s.concerts {
		if !matchesEventQuery(q, c.Date, c.Status) {
			continue
		}
		if q.InternalOnly && !c.SellsOnline() {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartsAt().Before(result[j].StartsAt())
	})
	return limitSlice(result, q.Limit), nil
}

func (s *MemoryStore) SlugExists(ctx context.Context, kind domain.EventKind, slug, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slugTaken(kind, slug, excludeID), nil
}

func (s *MemoryStore) slugTaken(kind domain.EventKind, slug, excludeID string) bool {
	if kind == domain.KindConcert {
		for id, c := range s.concerts {
			if c.Slug == slug && id != excludeID {
				return true
			}
		}
		return false
	}
	for id, w := range s.workshops {
		if w.Slug == slug && id != excludeID {
			return true
		}
	}
	return false
}

func matchesEventQuery(q EventQuery, date time.Time, status domain.EventStatus) bool {
	if q.From != nil && date.Before(*q.From) {
		return false
	}
	if q.To != nil && date.After(*q.To) {
		return false
	}
	if q.PublishedOnly && status != domain.EventStatusPublished {
		return false
	}
	return true
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// SaveUser adds or replaces an account; the account store lives outside this service
func (s *MemoryStore) SaveUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u := s.userByEmail(email); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

func (s *MemoryStore) userByEmail(email string) *domain.User {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) usernameTaken(username string) bool {
	for _, u := range s.users {
		if u.Username == username {
			return true
		}
	}
	return false
}

var _ interface {
	CatalogRepository
	LedgerRepository
	FinanceRepository
	ExpenseRepository
	UserRepository
	ImportRepository
	RepertoireRepository
	OutboxRepository
} = (*MemoryStore)(nil)
