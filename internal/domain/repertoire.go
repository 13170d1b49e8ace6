package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// YearQualifier softens a composer's birth or death year
type YearQualifier string

const (
	YearExact  YearQualifier = ""
	YearCirca  YearQualifier = "c."
	YearAfter  YearQualifier = "after"
	YearBefore YearQualifier = "before"
)

func (q YearQualifier) IsValid() bool {
	switch q {
	case YearExact, YearCirca, YearAfter, YearBefore:
		return true
	}
	return false
}

// Composer is an entry in the repertoire library
type Composer struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	BirthYear          *int          `json:"birth_year,omitempty"`
	BirthYearQualifier YearQualifier `json:"birth_year_qualifier,omitempty"`
	DeathYear          *int          `json:"death_year,omitempty"`
	DeathYearQualifier YearQualifier `json:"death_year_qualifier,omitempty"`
	Nationality        string        `json:"nationality,omitempty"`
	Bio                string        `json:"bio,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

func (c *Composer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: composer name is required", ErrInvalidRepertoire)
	}
	if !c.BirthYearQualifier.IsValid() || !c.DeathYearQualifier.IsValid() {
		return fmt.Errorf("%w: year qualifier must be c., after or before", ErrInvalidRepertoire)
	}
	return nil
}

func formatYear(q YearQualifier, year *int) string {
	if year == nil || *year == 0 {
		return ""
	}
	y := strconv.Itoa(*year)
	switch q {
	case YearExact:
		return y
	case YearCirca:
		return string(q) + y
	}
	return string(q) + " " + y
}

// Dates is "1685–1750", "b. 1960" or ""
func (c *Composer) Dates() string {
	birth := formatYear(c.BirthYearQualifier, c.BirthYear)
	death := formatYear(c.DeathYearQualifier, c.DeathYear)
	switch {
	case birth != "" && death != "":
		return birth + "–" + death
	case birth != "":
		return "b. " + birth
	}
	return ""
}

// DisplayName is the name followed by dates in parentheses when known
func (c *Composer) DisplayName() string {
	if d := c.Dates(); d != "" {
		return c.Name + " (" + d + ")"
	}
	return c.Name
}

// Movement is a titled section of a piece
type Movement struct {
	Order int    `json:"order"`
	Name  string `json:"name"`
}

// Piece is a work in the repertoire library
type Piece struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	ComposerID      string     `json:"composer_id"`
	Composer        *Composer  `json:"composer,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	CatalogueNumber string     `json:"catalogue_number,omitempty"`
	Instrumentation string     `json:"instrumentation,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Movements       []Movement `json:"movements"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (p *Piece) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: piece title is required", ErrInvalidRepertoire)
	}
	if p.ComposerID == "" {
		return fmt.Errorf("%w: composer is required", ErrInvalidRepertoire)
	}
	if p.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration cannot be negative", ErrInvalidRepertoire)
	}
	return nil
}

// ItemType is what occupies a programme slot
type ItemType string

const (
	ItemPiece    ItemType = "piece"
	ItemTalk     ItemType = "talk"
	ItemInterval ItemType = "interval"
)

// ProgrammeItem is one slot in a programme
type ProgrammeItem struct {
	ID             string   `json:"id"`
	ProgrammeID    string   `json:"programme_id"`
	Order          int      `json:"order"`
	Type           ItemType `json:"item_type"`
	PieceID        *string  `json:"piece_id,omitempty"`
	Piece          *Piece   `json:"piece,omitempty"`
	Title          string   `json:"title,omitempty"`
	Speaker        string   `json:"speaker,omitempty"`
	TalkText       string   `json:"talk_text,omitempty"`
	CustomDuration *int     `json:"custom_duration,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

// Validate enforces that pieces reference a piece and talks or intervals carry a title instead
func (i *ProgrammeItem) Validate() error {
	if i.Order < 0 {
		return fmt.Errorf("%w: order cannot be negative", ErrInvalidProgrammeItem)
	}
	switch i.Type {
	case ItemPiece:
		if i.PieceID == nil || *i.PieceID == "" {
			return fmt.Errorf("%w: a piece item needs a piece", ErrInvalidProgrammeItem)
		}
	case ItemTalk, ItemInterval:
		if i.PieceID != nil {
			return fmt.Errorf("%w: a %s cannot reference a piece", ErrInvalidProgrammeItem, i.Type)
		}
		if strings.TrimSpace(i.Title) == "" {
			return fmt.Errorf("%w: a %s needs a title", ErrInvalidProgrammeItem, i.Type)
		}
	default:
		return fmt.Errorf("%w: unknown item type %q", ErrInvalidProgrammeItem, i.Type)
	}
	if i.CustomDuration != nil && *i.CustomDuration < 0 {
		return fmt.Errorf("%w: duration cannot be negative", ErrInvalidProgrammeItem)
	}
	return nil
}

// Duration is the piece's length for piece items, otherwise the custom duration, otherwise 0
func (i *ProgrammeItem) Duration() int {
	if i.Type == ItemPiece && i.Piece != nil {
		return i.Piece.DurationMinutes
	}
	if i.CustomDuration != nil {
		return *i.CustomDuration
	}
	return 0
}

// DurationDisplay renders zero as a dash
func (i *ProgrammeItem) DurationDisplay() string {
	d := i.Duration()
	if d == 0 {
		return "—"
	}
	return FormatMinutes(d)
}

// Programme is an ordered running order for a concert
type Programme struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Status    string          `json:"status"`
	Notes     string          `json:"notes,omitempty"`
	Items     []ProgrammeItem `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TotalDuration sums item durations in minutes
func (p *Programme) TotalDuration() int {
	total := 0
	for i := range p.Items {
		total += p.Items[i].Duration()
	}
	return total
}

func (p *Programme) PieceCount() int {
	n := 0
	for _, it := range p.Items {
		if it.Type == ItemPiece {
			n++
		}
	}
	return n
}

// FormatMinutes renders "1h 5m", "1h" or "45m"
func FormatMinutes(m int) string {
	if m >= 60 {
		if m%60 != 0 {
			return fmt.Sprintf("%dh %dm", m/60, m%60)
		}
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dm", m)
}
