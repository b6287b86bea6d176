// Package memory is an in-process Store backed by mutex-guarded maps.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/ident"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
)

type group struct {
	seq         uint64
	name        string
	description string
	gameIDs     []string
}

// Store implements repository.Store in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	users  map[string]model.User
	tokens map[string]string            // token -> username
	groups map[string]map[string]*group // username -> groupID -> group
	seq    uint64

	newID func() (string, error)
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:  map[string]model.User{},
		tokens: map[string]string{},
		groups: map[string]map[string]*group{},
		newID:  ident.NewGroupID,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// HasUser reports whether username exists.
func (s *Store) HasUser(_ context.Context, username string) (bool, error) {
	if err := errs.Require("username", username); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok, nil
}

// HasGroup reports whether the group exists.
func (s *Store) HasGroup(_ context.Context, username, groupID string) (bool, error) {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, err := s.userGroups(username)
	if err != nil {
		return false, err
	}
	_, ok := gs[groupID]
	return ok, nil
}

// HasGame reports whether gameID is in the group.
func (s *Store) HasGame(_ context.Context, username, groupID, gameID string) (bool, error) {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.group(username, groupID)
	if err != nil {
		return false, err
	}
	return slices.Contains(g.gameIDs, gameID), nil
}

// CreateUser stores the user, its token and an empty group collection.
func (s *Store) CreateUser(_ context.Context, u model.User, token string) error {
	if err := errs.Require("username", u.Username, "name", u.Name, "token", token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return errs.AlreadyExists("user '%s' already exists", u.Username)
	}
	if _, ok := s.tokens[token]; ok {
		return errs.AlreadyExists("token already in use")
	}
	u.Token = ""
	s.users[u.Username] = u
	s.tokens[token] = u.Username
	s.groups[u.Username] = map[string]*group{}
	return nil
}

// GetUser loads a user by username.
func (s *Store) GetUser(_ context.Context, username string) (model.User, error) {
	if err := errs.Require("username", username); err != nil {
		return model.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return model.User{}, errs.NotFound("user '%s' was not found", username)
	}
	return u, nil
}

// TokenToUsername resolves a token; a miss is ("", nil).
func (s *Store) TokenToUsername(_ context.Context, token string) (string, error) {
	if err := errs.Require("token", token); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.tokens[token]
	if !ok {
		return "", nil
	}
	if _, ok := s.users[username]; !ok {
		return "", nil
	}
	return username, nil
}

// UsernameToToken returns the user's token.
func (s *Store) UsernameToToken(_ context.Context, username string) (string, error) {
	if err := errs.Require("username", username); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[username]; !ok {
		return "", errs.NotFound("user '%s' was not found", username)
	}
	for tok, owner := range s.tokens {
		if owner == username {
			return tok, nil
		}
	}
	return "", errs.Failure("failed to find token for '%s'", username)
}

// CreateGroup creates an empty group.
func (s *Store) CreateGroup(_ context.Context, username, name, description string) (string, error) {
	if err := errs.Require("username", username, "name", name, "description", description); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, err := s.userGroups(username)
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < repository.MaxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", errs.Wrap(errs.KindFailure, err, nil)
		}
		if _, taken := gs[id]; taken {
			continue
		}
		s.seq++
		gs[id] = &group{seq: s.seq, name: name, description: description, gameIDs: []string{}}
		return id, nil
	}
	return "", errs.Failure("failed to allocate a group id for '%s'", username)
}

// LoadGroup returns a copy of the group.
func (s *Store) LoadGroup(_ context.Context, username, groupID string) (model.Group, error) {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return model.Group{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := s.group(username, groupID)
	if err != nil {
		return model.Group{}, err
	}
	return g.snapshot(groupID), nil
}

// EditGroup replaces name and description.
func (s *Store) EditGroup(_ context.Context, username, groupID, name, description string) error {
	if err := errs.Require("username", username, "groupId", groupID, "name", name, "description", description); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.group(username, groupID)
	if err != nil {
		return err
	}
	g.name, g.description = name, description
	return nil
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(_ context.Context, username, groupID string) error {
	if err := errs.Require("username", username, "groupId", groupID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.group(username, groupID); err != nil {
		return err
	}
	delete(s.groups[username], groupID)
	return nil
}

// ListAllGroups returns the user's groups in creation order.
func (s *Store) ListAllGroups(_ context.Context, username string) ([]model.Group, error) {
	if err := errs.Require("username", username); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, err := s.userGroups(username)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(gs))
	for id := range gs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return gs[ids[i]].seq < gs[ids[j]].seq })
	out := make([]model.Group, 0, len(ids))
	for _, id := range ids {
		out = append(out, gs[id].snapshot(id))
	}
	return out, nil
}

// AddGame appends gameID unless already present.
func (s *Store) AddGame(_ context.Context, username, groupID, gameID string) error {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.group(username, groupID)
	if err != nil {
		return err
	}
	if slices.Contains(g.gameIDs, gameID) {
		return errs.AlreadyExists("game '%s' already exists", gameID)
	}
	g.gameIDs = append(g.gameIDs, gameID)
	return nil
}

// RemoveGame removes gameID if present.
func (s *Store) RemoveGame(_ context.Context, username, groupID, gameID string) error {
	if err := errs.Require("username", username, "groupId", groupID, "gameId", gameID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.group(username, groupID)
	if err != nil {
		return err
	}
	i := slices.Index(g.gameIDs, gameID)
	if i < 0 {
		return errs.NotFound("game '%s' was not found", gameID)
	}
	g.gameIDs = slices.Delete(g.gameIDs, i, i+1)
	return nil
}

// userGroups requires s.mu held.
func (s *Store) userGroups(username string) (map[string]*group, error) {
	if _, ok := s.users[username]; !ok {
		return nil, errs.NotFound("user '%s' was not found", username)
	}
	return s.groups[username], nil
}

// group requires s.mu held.
func (s *Store) group(username, groupID string) (*group, error) {
	gs, err := s.userGroups(username)
	if err != nil {
		return nil, err
	}
	g, ok := gs[groupID]
	if !ok {
		return nil, errs.NotFound("group '%s' was not found", groupID)
	}
	return g, nil
}

func (g *group) snapshot(id string) model.Group {
	return model.Group{
		ID:          id,
		Name:        g.name,
		Description: g.description,
		GameIDs:     slices.Clone(g.gameIDs),
	}
}
