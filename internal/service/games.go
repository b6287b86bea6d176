package service

import (
	"context"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/model"
)

// Catalog is the read-only board game source. *catalog.Client implements it.
type Catalog interface {
	Search(ctx context.Context, query string) ([]model.Game, error)
	Popular(ctx context.Context) ([]model.Game, error)
	GameByID(ctx context.Context, id string) (model.Game, error)
	GameDetails(ctx context.Context, id string) (model.Game, error)
}

// GameService exposes catalog lookups.
type GameService interface {
	// MostPopular lists games by ascending upstream rank.
	MostPopular(ctx context.Context) ([]model.Game, error)
	// Search finds games by name.
	Search(ctx context.Context, name string) ([]model.Game, error)
	// GameByID returns the base record.
	GameByID(ctx context.Context, gameID string) (model.Game, error)
	// GameDetails returns the record with mechanics, categories and year.
	GameDetails(ctx context.Context, gameID string) (model.Game, error)
}

type GameServiceImpl struct {
	catalog Catalog
}

// NewGameService constructs GameService.
func NewGameService(c Catalog) *GameServiceImpl { return &GameServiceImpl{catalog: c} }

func (s *GameServiceImpl) MostPopular(ctx context.Context) ([]model.Game, error) {
	return s.catalog.Popular(ctx)
}

func (s *GameServiceImpl) Search(ctx context.Context, name string) ([]model.Game, error) {
	if err := errs.Require("name", name); err != nil {
		return nil, err
	}
	return s.catalog.Search(ctx, name)
}

func (s *GameServiceImpl) GameByID(ctx context.Context, gameID string) (model.Game, error) {
	if err := errs.Require("gameId", gameID); err != nil {
		return model.Game{}, err
	}
	return s.catalog.GameByID(ctx, gameID)
}

func (s *GameServiceImpl) GameDetails(ctx context.Context, gameID string) (model.Game, error) {
	if err := errs.Require("gameId", gameID); err != nil {
		return model.Game{}, err
	}
	return s.catalog.GameDetails(ctx, gameID)
}
