package repository

import (
	"context"
	"sort"

	"github.com/polyphonica/booking/internal/domain"
)

func (s *MemoryStore) CreateComposer(ctx context.Context, c *domain.Composer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.composers[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetComposer(ctx context.Context, id string) (*domain.Composer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.composers[id]
	if !ok {
		return nil, domain.ErrComposerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListComposers(ctx context.Context) ([]*domain.Composer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Composer, 0, len(s.composers))
	for _, c := range s.composers {
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStore) CreatePiece(ctx context.Context, p *domain.Piece) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.composers[p.ComposerID]; !ok {
		return domain.ErrComposerNotFound
	}
	cp := *p
	cp.Composer = nil
	cp.Movements = append([]domain.Movement(nil), p.Movements...)
	s.pieces[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPiece(ctx context.Context, id string) (*domain.Piece, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pieces[id]
	if !ok {
		return nil, domain.ErrPieceNotFound
	}
	return s.pieceViewLocked(p), nil
}

func (s *MemoryStore) pieceViewLocked(p *domain.Piece) *domain.Piece {
	cp := *p
	cp.Movements = append([]domain.Movement(nil), p.Movements...)
	sort.Slice(cp.Movements, func(i, j int) bool { return cp.Movements[i].Order < cp.Movements[j].Order })
	if c, ok := s.composers[p.ComposerID]; ok {
		composer := *c
		cp.Composer = &composer
	}
	return &cp
}

func (s *MemoryStore) CreateProgramme(ctx context.Context, p *domain.Programme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Items = nil
	s.programmes[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProgramme(ctx context.Context, id string) (*domain.Programme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programmes[id]
	if !ok {
		return nil, domain.ErrProgrammeNotFound
	}
	cp := *p
	cp.Items = make([]domain.ProgrammeItem, len(p.Items))
	copy(cp.Items, p.Items)
	sort.Slice(cp.Items, func(i, j int) bool { return cp.Items[i].Order < cp.Items[j].Order })
	for i := range cp.Items {
		if pid := cp.Items[i].PieceID; pid != nil {
			if piece, ok := s.pieces[*pid]; ok {
				cp.Items[i].Piece = s.pieceViewLocked(piece)
			}
		}
	}
	return &cp, nil
}

func (s *MemoryStore) AddProgrammeItem(ctx context.Context, item *domain.ProgrammeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programmes[item.ProgrammeID]
	if !ok {
		return domain.ErrProgrammeNotFound
	}
	if item.PieceID != nil {
		if _, ok := s.pieces[*item.PieceID]; !ok {
			return domain.ErrPieceNotFound
		}
	}
	for _, existing := range p.Items {
		if existing.Order == item.Order {
			return domain.ErrDuplicateItemOrder
		}
	}
	cp := *item
	cp.Piece = nil
	p.Items = append(p.Items, cp)
	return nil
}
