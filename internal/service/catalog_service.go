package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// maxSlugAttempts bounds the -1, -2, ... suffix search
const maxSlugAttempts = 100

// CatalogService defines the interface for workshop and concert management
type CatalogService interface {
	CreateWorkshop(ctx context.Context, w *domain.Workshop) (*domain.Workshop, error)
	UpdateWorkshop(ctx context.Context, w *domain.Workshop) (*domain.Workshop, error)
	GetWorkshop(ctx context.Context, id string) (*domain.Workshop, error)
	GetWorkshopBySlug(ctx context.Context, slug string) (*domain.Workshop, error)
	// ListUpcomingWorkshops returns published workshops from today on
	ListUpcomingWorkshops(ctx context.Context, limit int) ([]*domain.Workshop, error)
	ListWorkshopsInRange(ctx context.Context, r domain.DateRange) ([]*domain.Workshop, error)

	CreateConcert(ctx context.Context, c *domain.Concert) (*domain.Concert, error)
	UpdateConcert(ctx context.Context, c *domain.Concert) (*domain.Concert, error)
	GetConcert(ctx context.Context, id string) (*domain.Concert, error)
	GetConcertBySlug(ctx context.Context, slug string) (*domain.Concert, error)
	ListUpcomingConcerts(ctx context.Context, limit int) ([]*domain.Concert, error)
	ListConcertsInRange(ctx context.Context, r domain.DateRange) ([]*domain.Concert, error)

	// Availability reports confirmed bookings and live holds for one event
	Availability(ctx context.Context, kind domain.EventKind, id string) (*EventAvailability, error)
}

// EventAvailability is what a buyer sees before checkout
type EventAvailability struct {
	Kind    domain.EventKind    `json:"kind"`
	EventID string              `json:"event_id"`
	Counts  domain.Availability `json:"counts"`
	// Remaining is nil when capacity is unlimited
	Remaining *int `json:"remaining"`
	// Bookable is Remaining net of other buyers' live holds
	Bookable *int `json:"bookable"`
	SoldOut  bool `json:"is_sold_out"`
	// Hidden asks pages not to show the numbers
	Hidden bool `json:"hide_availability"`
}

type catalogService struct {
	catalog repository.CatalogRepository
	ledger  repository.LedgerRepository
	now     Clock
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(catalog repository.CatalogRepository, ledger repository.LedgerRepository, now Clock) CatalogService {
	return &catalogService{catalog: catalog, ledger: ledger, now: clockOrSystem(now)}
}

// assignSlug slugifies title, appending -1, -2, ... until the slug is free
func (s *catalogService) assignSlug(ctx context.Context, kind domain.EventKind, requested, title, excludeID string) (string, error) {
	base := domain.Slugify(requested)
	if base == "" {
		base = domain.Slugify(title)
	}
	if base == "" {
		return "", fmt.Errorf("%w: title must contain letters or digits", domain.ErrInvalidEvent)
	}

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		candidate := domain.SlugCandidate(base, attempt)
		taken, err := s.catalog.SlugExists(ctx, kind, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrSlugTaken, base)
}

func (s *catalogService) CreateWorkshop(ctx context.Context, w *domain.Workshop) (*domain.Workshop, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.create_workshop")
	defer span.End()

	if w == nil {
		return nil, fmt.Errorf("%w: workshop is required", domain.ErrInvalidEvent)
	}
	now := s.now()
	w.ID = uuid.New().String()
	if w.MaxParticipants == 0 {
		w.MaxParticipants = domain.DefaultMaxParticipants
	}
	if w.Status == "" {
		w.Status = domain.EventStatusDraft
	}
	if w.Delivery == "" {
		w.Delivery = domain.DeliveryInPerson
	}
	w.CurrentRegistrations = 0
	w.CreatedAt = now
	w.UpdatedAt = now
	if err := w.Validate(); err != nil {
		return nil, err
	}

	slug, err := s.assignSlug(ctx, domain.KindWorkshop, w.Slug, w.Title, "")
	if err != nil {
		return nil, err
	}
	w.Slug = slug

	if err := s.catalog.CreateWorkshop(ctx, w); err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("workshop_id", w.ID))
	return w, nil
}

func (s *catalogService) UpdateWorkshop(ctx context.Context, w *domain.Workshop) (*domain.Workshop, error) {
	existing, err := s.catalog.GetWorkshop(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	if w.MaxParticipants == 0 {
		w.MaxParticipants = existing.MaxParticipants
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	if w.Slug == "" || w.Slug != existing.Slug {
		slug, err := s.assignSlug(ctx, domain.KindWorkshop, w.Slug, w.Title, w.ID)
		if err != nil {
			return nil, err
		}
		w.Slug = slug
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = s.now()

	if err := s.catalog.UpdateWorkshop(ctx, w); err != nil {
		return nil, err
	}
	return s.catalog.GetWorkshop(ctx, w.ID)
}

func (s *catalogService) GetWorkshop(ctx context.Context, id string) (*domain.Workshop, error) {
	return s.catalog.GetWorkshop(ctx, id)
}

func (s *catalogService) GetWorkshopBySlug(ctx context.Context, slug string) (*domain.Workshop, error) {
	return s.catalog.GetWorkshopBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

func (s *catalogService) ListUpcomingWorkshops(ctx context.Context, limit int) ([]*domain.Workshop, error) {
	today := domain.CivilDate(s.now())
	return s.catalog.ListWorkshops(ctx, repository.EventQuery{From: &today, PublishedOnly: true, Limit: clampLimit(limit)})
}

func (s *catalogService) ListWorkshopsInRange(ctx context.Context, r domain.DateRange) ([]*domain.Workshop, error) {
	return s.catalog.ListWorkshops(ctx, repository.EventQuery{From: &r.Start, To: &r.End})
}

func (s *catalogService) CreateConcert(ctx context.Context, c *domain.Concert) (*domain.Concert, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.catalog.create_concert")
	defer span.End()

	if c == nil {
		return nil, fmt.Errorf("%w: concert is required", domain.ErrInvalidEvent)
	}
	now := s.now()
	c.ID = uuid.New().String()
	if c.Status == "" {
		c.Status = domain.EventStatusDraft
	}
	if c.TicketSource == "" {
		c.TicketSource = domain.TicketSourceInternal
	}
	if strings.TrimSpace(c.DiscountLabel) == "" {
		c.DiscountLabel = domain.DefaultDiscountLabel
	}
	c.TicketsSold = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := c.Validate(); err != nil {
		return nil, err
	}

	slug, err := s.assignSlug(ctx, domain.KindConcert, c.Slug, c.Title, "")
	if err != nil {
		return nil, err
	}
	c.Slug = slug

	if err := s.catalog.CreateConcert(ctx, c); err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("concert_id", c.ID))
	return c, nil
}

func (s *catalogService) UpdateConcert(ctx context.Context, c *domain.Concert) (*domain.Concert, error) {
	existing, err := s.catalog.GetConcert(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.DiscountLabel) == "" {
		c.DiscountLabel = domain.DefaultDiscountLabel
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.Slug == "" || c.Slug != existing.Slug {
		slug, err := s.assignSlug(ctx, domain.KindConcert, c.Slug, c.Title, c.ID)
		if err != nil {
			return nil, err
		}
		c.Slug = slug
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()

	if err := s.catalog.UpdateConcert(ctx, c); err != nil {
		return nil, err
	}
	return s.catalog.GetConcert(ctx, c.ID)
}

func (s *catalogService) GetConcert(ctx context.Context, id string) (*domain.Concert, error) {
	return s.catalog.GetConcert(ctx, id)
}

func (s *catalogService) GetConcertBySlug(ctx context.Context, slug string) (*domain.Concert, error) {
	return s.catalog.GetConcertBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

func (s *catalogService) ListUpcomingConcerts(ctx context.Context, limit int) ([]*domain.Concert, error) {
	today := domain.CivilDate(s.now())
	return s.catalog.ListConcerts(ctx, repository.EventQuery{From: &today, PublishedOnly: true, Limit: clampLimit(limit)})
}

func (s *catalogService) ListConcertsInRange(ctx context.Context, r domain.DateRange) ([]*domain.Concert, error) {
	return s.catalog.ListConcerts(ctx, repository.EventQuery{From: &r.Start, To: &r.End})
}

func (s *catalogService) Availability(ctx context.Context, kind domain.EventKind, id string) (*EventAvailability, error) {
	now := s.now()
	var (
		counts domain.Availability
		hidden bool
	)

	switch kind {
	case domain.KindWorkshop:
		w, err := s.catalog.GetWorkshop(ctx, id)
		if err != nil {
			return nil, err
		}
		held, err := s.ledger.HeldPlaces(ctx, kind, id, now)
		if err != nil {
			return nil, err
		}
		counts = w.Availability(held)
		hidden = w.HideAvailability
	case domain.KindConcert:
		c, err := s.catalog.GetConcert(ctx, id)
		if err != nil {
			return nil, err
		}
		held, err := s.ledger.HeldPlaces(ctx, kind, id, now)
		if err != nil {
			return nil, err
		}
		counts = c.Availability(held)
	default:
		return nil, domain.ErrUnknownEventKind
	}

	view := &EventAvailability{Kind: kind, EventID: id, Counts: counts, SoldOut: counts.SoldOut(), Hidden: hidden}
	if remaining, ok := counts.Remaining(); ok {
		view.Remaining = &remaining
	}
	if bookable, ok := counts.Bookable(); ok {
		view.Bookable = &bookable
	}
	return view, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// eventTitle loads the title and date behind a ledger row's event
func eventTitle(ctx context.Context, catalog repository.CatalogRepository, kind domain.EventKind, id string) (string, time.Time, error) {
	switch kind {
	case domain.KindWorkshop:
		w, err := catalog.GetWorkshop(ctx, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return w.Title, w.Date, nil
	case domain.KindConcert:
		c, err := catalog.GetConcert(ctx, id)
		if err != nil {
			return "", time.Time{}, err
		}
		return c.Title, c.Date, nil
	}
	return "", time.Time{}, domain.ErrUnknownEventKind
}
