package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
)

// detailsConcurrency caps parallel catalog lookups per Details call.
const detailsConcurrency = 8

// GameLookup resolves one game. Catalog satisfies it.
type GameLookup interface {
	GameByID(ctx context.Context, id string) (model.Game, error)
}

// GroupService manages a user's groups. Every call is scoped to the authenticated username.
type GroupService interface {
	Create(ctx context.Context, username, name, description string) (string, error)
	Delete(ctx context.Context, username, groupID string) error
	List(ctx context.Context, username string) ([]model.Group, error)
	Load(ctx context.Context, username, groupID string) (model.Group, error)
	// Details resolves member ids to game names. One failed lookup fails the whole call.
	Details(ctx context.Context, username, groupID string) (model.GroupDetails, error)
	Edit(ctx context.Context, username, groupID, name, description string) error
	AddGame(ctx context.Context, username, groupID, gameID string) error
	RemoveGame(ctx context.Context, username, groupID, gameID string) error
}

type GroupServiceImpl struct {
	store repository.Store
	games GameLookup
}

// NewGroupService constructs GroupService. Parameter validation lives in the store.
func NewGroupService(store repository.Store, games GameLookup) *GroupServiceImpl {
	return &GroupServiceImpl{store: store, games: games}
}

func (s *GroupServiceImpl) Create(ctx context.Context, username, name, description string) (string, error) {
	return s.store.CreateGroup(ctx, username, name, description)
}

func (s *GroupServiceImpl) Delete(ctx context.Context, username, groupID string) error {
	return s.store.DeleteGroup(ctx, username, groupID)
}

func (s *GroupServiceImpl) List(ctx context.Context, username string) ([]model.Group, error) {
	return s.store.ListAllGroups(ctx, username)
}

func (s *GroupServiceImpl) Load(ctx context.Context, username, groupID string) (model.Group, error) {
	return s.store.LoadGroup(ctx, username, groupID)
}

// Details loads the group and looks up every member concurrently, keeping member order.
func (s *GroupServiceImpl) Details(ctx context.Context, username, groupID string) (model.GroupDetails, error) {
	g, err := s.store.LoadGroup(ctx, username, groupID)
	if err != nil {
		return model.GroupDetails{}, err
	}

	names := make([]string, len(g.GameIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(detailsConcurrency)
	for i, id := range g.GameIDs {
		eg.Go(func() error {
			game, err := s.games.GameByID(egCtx, id)
			if err != nil {
				return err
			}
			names[i] = game.Name
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return model.GroupDetails{}, err
	}
	return model.GroupDetails{ID: g.ID, Name: g.Name, Description: g.Description, Games: names}, nil
}

func (s *GroupServiceImpl) Edit(ctx context.Context, username, groupID, name, description string) error {
	return s.store.EditGroup(ctx, username, groupID, name, description)
}

func (s *GroupServiceImpl) AddGame(ctx context.Context, username, groupID, gameID string) error {
	return s.store.AddGame(ctx, username, groupID, gameID)
}

func (s *GroupServiceImpl) RemoveGame(ctx context.Context, username, groupID, gameID string) error {
	return s.store.RemoveGame(ctx, username, groupID, gameID)
}
