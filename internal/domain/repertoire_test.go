package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposer_DisplayName(t *testing.T) {
	year := func(y int) *int { return &y }

	tests := []struct {
		name     string
		composer Composer
		want     string
	}{
		{"both years", Composer{Name: "J.S. Bach", BirthYear: year(1685), DeathYear: year(1750)}, "J.S. Bach (1685–1750)"},
		{"circa birth", Composer{Name: "Anon", BirthYear: year(1500), BirthYearQualifier: YearCirca, DeathYear: year(1560)}, "Anon (c.1500–1560)"},
		{"after death", Composer{Name: "Holborne", BirthYear: year(1545), DeathYear: year(1602), DeathYearQualifier: YearAfter}, "Holborne (1545–after 1602)"},
		{"living", Composer{Name: "Living Composer", BirthYear: year(1960)}, "Living Composer (b. 1960)"},
		{"no dates", Composer{Name: "Trad."}, "Trad."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.composer.DisplayName())
		})
	}
}

func TestFormatMinutes(t *testing.T) {
	assert.Equal(t, "1h 5m", FormatMinutes(65))
	assert.Equal(t, "1h", FormatMinutes(60))
	assert.Equal(t, "45m", FormatMinutes(45))
}

func TestProgramme_TotalDuration(t *testing.T) {
	pieceID := "p1"
	ten := 10
	p := Programme{Items: []ProgrammeItem{
		{Order: 1, Type: ItemPiece, PieceID: &pieceID, Piece: &Piece{DurationMinutes: 50}},
		{Order: 2, Type: ItemInterval, Title: "Interval", CustomDuration: &ten},
		{Order: 3, Type: ItemTalk, Title: "Welcome"},
		{Order: 4, Type: ItemPiece, PieceID: &pieceID, Piece: &Piece{DurationMinutes: 5}, CustomDuration: &ten},
	}}

	assert.Equal(t, 65, p.TotalDuration())
	assert.Equal(t, 2, p.PieceCount())
	assert.Equal(t, "—", p.Items[2].DurationDisplay())
	assert.Equal(t, "50m", p.Items[0].DurationDisplay())
}

func TestProgrammeItem_Validate(t *testing.T) {
	pieceID := "p1"
	tests := []struct {
		name    string
		item    ProgrammeItem
		wantErr bool
	}{
		{"piece with reference", ProgrammeItem{Type: ItemPiece, PieceID: &pieceID}, false},
		{"piece without reference", ProgrammeItem{Type: ItemPiece}, true},
		{"talk with title", ProgrammeItem{Type: ItemTalk, Title: "Introduction"}, false},
		{"talk referencing piece", ProgrammeItem{Type: ItemTalk, Title: "Intro", PieceID: &pieceID}, true},
		{"interval without title", ProgrammeItem{Type: ItemInterval}, true},
		{"unknown type", ProgrammeItem{Type: "encore", Title: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidProgrammeItem))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
