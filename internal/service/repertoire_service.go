package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/repository"
)

// RepertoireService manages the composer and piece library and concert programmes
type RepertoireService interface {
	CreateComposer(ctx context.Context, c domain.Composer) (*domain.Composer, error)
	ListComposers(ctx context.Context) ([]*domain.Composer, error)
	CreatePiece(ctx context.Context, p domain.Piece) (*domain.Piece, error)
	GetPiece(ctx context.Context, id string) (*domain.Piece, error)
	CreateProgramme(ctx context.Context, p domain.Programme) (*ProgrammeView, error)
	// AddItem appends at the next free position when item.Order is zero
	AddItem(ctx context.Context, programmeID string, item domain.ProgrammeItem) (*ProgrammeView, error)
	GetProgramme(ctx context.Context, id string) (*ProgrammeView, error)
}

// ProgrammeView is a programme with its running totals
type ProgrammeView struct {
	*domain.Programme
	TotalDuration        int                 `json:"total_duration"`
	TotalDurationDisplay string              `json:"total_duration_display"`
	PieceCount           int                 `json:"piece_count"`
	Items                []ProgrammeItemView `json:"items"`
}

// ProgrammeItemView adds the rendered duration to an item
type ProgrammeItemView struct {
	domain.ProgrammeItem
	Duration        int    `json:"duration"`
	DurationDisplay string `json:"duration_display"`
}

func newProgrammeView(p *domain.Programme) *ProgrammeView {
	v := &ProgrammeView{
		Programme:            p,
		TotalDuration:        p.TotalDuration(),
		TotalDurationDisplay: domain.FormatMinutes(p.TotalDuration()),
		PieceCount:           p.PieceCount(),
		Items:                make([]ProgrammeItemView, len(p.Items)),
	}
	for i := range p.Items {
		v.Items[i] = ProgrammeItemView{
			ProgrammeItem:   p.Items[i],
			Duration:        p.Items[i].Duration(),
			DurationDisplay: p.Items[i].DurationDisplay(),
		}
	}
	return v
}

type repertoireService struct {
	repo repository.RepertoireRepository
	now  Clock
}

// NewRepertoireService creates a new RepertoireService
func NewRepertoireService(repo repository.RepertoireRepository, now Clock) RepertoireService {
	return &repertoireService{repo: repo, now: clockOrSystem(now)}
}

func (s *repertoireService) CreateComposer(ctx context.Context, c domain.Composer) (*domain.Composer, error) {
	c.ID = uuid.New().String()
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = s.now()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateComposer(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *repertoireService) ListComposers(ctx context.Context) ([]*domain.Composer, error) {
	return s.repo.ListComposers(ctx)
}

func (s *repertoireService) CreatePiece(ctx context.Context, p domain.Piece) (*domain.Piece, error) {
	p.ID = uuid.New().String()
	p.Title = strings.TrimSpace(p.Title)
	p.CreatedAt = s.now()
	for i := range p.Movements {
		if p.Movements[i].Order == 0 {
			p.Movements[i].Order = i + 1
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePiece(ctx, &p); err != nil {
		return nil, err
	}
	return s.repo.GetPiece(ctx, p.ID)
}

func (s *repertoireService) GetPiece(ctx context.Context, id string) (*domain.Piece, error) {
	return s.repo.GetPiece(ctx, id)
}

func (s *repertoireService) CreateProgramme(ctx context.Context, p domain.Programme) (*ProgrammeView, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, fmt.Errorf("%w: programme title is required", domain.ErrInvalidRepertoire)
	}
	now := s.now()
	p.ID = uuid.New().String()
	p.Items = nil
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = "draft"
	}
	if err := s.repo.CreateProgramme(ctx, &p); err != nil {
		return nil, err
	}
	return newProgrammeView(&p), nil
}

func (s *repertoireService) AddItem(ctx context.Context, programmeID string, item domain.ProgrammeItem) (*ProgrammeView, error) {
	p, err := s.repo.GetProgramme(ctx, programmeID)
	if err != nil {
		return nil, err
	}
	if item.Order == 0 {
		next := 1
		for _, existing := range p.Items {
			if existing.Order >= next {
				next = existing.Order + 1
			}
		}
		item.Order = next
	}
	if item.PieceID != nil && *item.PieceID == "" {
		item.PieceID = nil
	}
	item.ID = uuid.New().String()
	item.ProgrammeID = programmeID
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.AddProgrammeItem(ctx, &item); err != nil {
		return nil, err
	}
	return s.GetProgramme(ctx, programmeID)
}

func (s *repertoireService) GetProgramme(ctx context.Context, id string) (*ProgrammeView, error) {
	p, err := s.repo.GetProgramme(ctx, id)
	if err != nil {
		return nil, err
	}
	return newProgrammeView(p), nil
}
