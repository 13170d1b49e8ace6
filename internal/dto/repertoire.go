package dto

import "github.com/polyphonica/booking/internal/domain"

type ComposerRequest struct {
	Name               string               `json:"name" binding:"required"`
	BirthYear          *int                 `json:"birth_year"`
	BirthYearQualifier domain.YearQualifier `json:"birth_year_qualifier"`
	DeathYear          *int                 `json:"death_year"`
	DeathYearQualifier domain.YearQualifier `json:"death_year_qualifier"`
	Nationality        string               `json:"nationality"`
	Bio                string               `json:"bio"`
}

func (r *ComposerRequest) ToDomain() domain.Composer {
	return domain.Composer{
		Name:               r.Name,
		BirthYear:          r.BirthYear,
		BirthYearQualifier: r.BirthYearQualifier,
		DeathYear:          r.DeathYear,
		DeathYearQualifier: r.DeathYearQualifier,
		Nationality:        r.Nationality,
		Bio:                r.Bio,
	}
}

// ComposerResponse adds the display name, e.g. "J.S. Bach (1685–1750)"
type ComposerResponse struct {
	*domain.Composer
	DisplayName string `json:"display_name"`
}

func FromComposer(c *domain.Composer) ComposerResponse {
	return ComposerResponse{Composer: c, DisplayName: c.DisplayName()}
}

func FromComposers(cs []*domain.Composer) []ComposerResponse {
	out := make([]ComposerResponse, len(cs))
	for i, c := range cs {
		out[i] = FromComposer(c)
	}
	return out
}

type PieceRequest struct {
	Title           string   `json:"title" binding:"required"`
	ComposerID      string   `json:"composer_id" binding:"required"`
	DurationMinutes int      `json:"duration_minutes"`
	CatalogueNumber string   `json:"catalogue_number"`
	Instrumentation string   `json:"instrumentation"`
	Notes           string   `json:"notes"`
	Movements       []string `json:"movements"`
}

// ToDomain numbers movements in the order given
func (r *PieceRequest) ToDomain() domain.Piece {
	p := domain.Piece{
		Title:           r.Title,
		ComposerID:      r.ComposerID,
		DurationMinutes: r.DurationMinutes,
		CatalogueNumber: r.CatalogueNumber,
		Instrumentation: r.Instrumentation,
		Notes:           r.Notes,
	}
	for i, name := range r.Movements {
		p.Movements = append(p.Movements, domain.Movement{Order: i + 1, Name: name})
	}
	return p
}

type ProgrammeRequest struct {
	Title  string `json:"title" binding:"required"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (r *ProgrammeRequest) ToDomain() domain.Programme {
	return domain.Programme{Title: r.Title, Status: r.Status, Notes: r.Notes}
}

// ProgrammeItemRequest appends at the end when order is omitted
type ProgrammeItemRequest struct {
	Order          int             `json:"order"`
	Type           domain.ItemType `json:"item_type" binding:"required"`
	PieceID        *string         `json:"piece_id"`
	Title          string          `json:"title"`
	Speaker        string          `json:"speaker"`
	TalkText       string          `json:"talk_text"`
	CustomDuration *int            `json:"custom_duration"`
	Notes          string          `json:"notes"`
}

func (r *ProgrammeItemRequest) ToDomain() domain.ProgrammeItem {
	return domain.ProgrammeItem{
		Order:          r.Order,
		Type:           r.Type,
		PieceID:        r.PieceID,
		Title:          r.Title,
		Speaker:        r.Speaker,
		TalkText:       r.TalkText,
		CustomDuration: r.CustomDuration,
		Notes:          r.Notes,
	}
}
