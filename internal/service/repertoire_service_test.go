package service

import (
	"context"
	"testing"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepertoire_ProgrammeTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewRepertoireService(env.repos.Repertoire, env.clock.Now)

	born, died := 1543, 1623
	byrd, err := svc.CreateComposer(ctx, domain.Composer{Name: " William Byrd ", BirthYear: &born, BirthYearQualifier: domain.YearCirca, DeathYear: &died})
	require.NoError(t, err)
	assert.Equal(t, "William Byrd (c.1543–1623)", byrd.DisplayName())

	mass, err := svc.CreatePiece(ctx, domain.Piece{
		Title:           "Mass for Four Voices",
		ComposerID:      byrd.ID,
		DurationMinutes: 25,
		Movements:       []domain.Movement{{Name: "Kyrie"}, {Name: "Gloria"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, mass.Movements[1].Order)
	require.NotNil(t, mass.Composer)
	assert.Equal(t, "William Byrd", mass.Composer.Name)

	prog, err := svc.CreateProgramme(ctx, domain.Programme{Title: "Spring Concert"})
	require.NoError(t, err)
	assert.Equal(t, "draft", prog.Status)
	assert.Zero(t, prog.TotalDuration)

	talkMinutes, intervalMinutes := 5, 40
	_, err = svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Type: domain.ItemTalk, Title: "Welcome", CustomDuration: &talkMinutes})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Type: domain.ItemPiece, PieceID: &mass.ID})
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Type: domain.ItemInterval, Title: "Interval", CustomDuration: &intervalMinutes})
	require.NoError(t, err)

	require.Len(t, view.Items, 3)
	orders := []int{view.Items[0].Order, view.Items[1].Order, view.Items[2].Order}
	assert.Equal(t, []int{1, 2, 3}, orders)
	assert.Equal(t, 70, view.TotalDuration)
	assert.Equal(t, "1h 10m", view.TotalDurationDisplay)
	assert.Equal(t, 1, view.PieceCount)
	assert.Equal(t, "25m", view.Items[1].DurationDisplay)
}

func TestRepertoire_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewRepertoireService(env.repos.Repertoire, env.clock.Now)

	_, err := svc.CreateComposer(ctx, domain.Composer{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidRepertoire)

	_, err = svc.CreatePiece(ctx, domain.Piece{Title: "Orphan", ComposerID: "missing"})
	assert.ErrorIs(t, err, domain.ErrComposerNotFound)

	_, err = svc.CreateProgramme(ctx, domain.Programme{})
	assert.ErrorIs(t, err, domain.ErrInvalidRepertoire)

	prog, err := svc.CreateProgramme(ctx, domain.Programme{Title: "Evensong"})
	require.NoError(t, err)

	empty := ""
	_, err = svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Type: domain.ItemPiece, PieceID: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidProgrammeItem)

	missing := "missing"
	_, err = svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Type: domain.ItemPiece, PieceID: &missing})
	assert.ErrorIs(t, err, domain.ErrPieceNotFound)

	_, err = svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Order: 4, Type: domain.ItemTalk, Title: "Notes"})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, prog.ID, domain.ProgrammeItem{Order: 4, Type: domain.ItemTalk, Title: "More notes"})
	assert.ErrorIs(t, err, domain.ErrDuplicateItemOrder)

	_, err = svc.GetProgramme(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrProgrammeNotFound)
}
