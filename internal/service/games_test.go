package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/borga/internal/errs"
)

func TestGames_Search_EmptyMakesNoCall(t *testing.T) {
	t.Parallel()
	c := &fakeCatalog{}
	s := NewGameService(c)

	_, err := s.Search(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrMissingParam)
	require.Zero(t, c.calls.Load())

	gs, err := s.Search(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, gs, 1)
	require.Equal(t, []string{"root"}, c.searched)
}

func TestGames_Delegation(t *testing.T) {
	t.Parallel()
	c := &fakeCatalog{names: map[string]string{"TAAifFP590": "Root"}}
	s := NewGameService(c)
	ctx := context.Background()

	pop, err := s.MostPopular(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", pop[0].Name)

	g, err := s.GameByID(ctx, "TAAifFP590")
	require.NoError(t, err)
	require.Equal(t, "Root", g.Name)

	d, err := s.GameDetails(ctx, "TAAifFP590")
	require.NoError(t, err)
	require.Equal(t, 2018, d.YearPublished)

	_, err = s.GameByID(ctx, "")
	require.ErrorIs(t, err, errs.ErrMissingParam)
	_, err = s.GameDetails(ctx, "")
	require.ErrorIs(t, err, errs.ErrMissingParam)
	require.EqualValues(t, 3, c.calls.Load())
}
