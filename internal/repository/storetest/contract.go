// Package storetest holds the behavioral contract every repository.Store backend must satisfy.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) repository.Store

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("CreateUserThenToken", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateUser(ctx, user("alice"), "tok-alice"))

		tok, err := s.UsernameToToken(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "tok-alice", tok)

		name, err := s.TokenToUsername(ctx, "tok-alice")
		require.NoError(t, err)
		require.Equal(t, "alice", name)

		name, err = s.TokenToUsername(ctx, "unknown")
		require.NoError(t, err)
		require.Empty(t, name)

		ok, err := s.HasUser(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)

		u, err := s.GetUser(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "Alice", u.Name)
		require.Equal(t, []byte("hash"), u.PwdHash)
		require.Equal(t, []byte("salt"), u.Salt)

		require.ErrorIs(t, s.CreateUser(ctx, user("alice"), "tok-other"), errs.ErrAlreadyExists)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.HasUser(ctx, "ghost")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = s.GetUser(ctx, "ghost")
		require.ErrorIs(t, err, errs.ErrNotFound)
		_, err = s.UsernameToToken(ctx, "ghost")
		require.ErrorIs(t, err, errs.ErrNotFound)
		_, err = s.HasGroup(ctx, "ghost", "g")
		require.ErrorIs(t, err, errs.ErrNotFound)
		_, err = s.HasGame(ctx, "ghost", "g", "x")
		require.ErrorIs(t, err, errs.ErrNotFound)
		_, err = s.CreateGroup(ctx, "ghost", "g", "d")
		require.ErrorIs(t, err, errs.ErrNotFound)
		_, err = s.LoadGroup(ctx, "ghost", "g")
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.ErrorIs(t, s.EditGroup(ctx, "ghost", "g", "n", "d"), errs.ErrNotFound)
		require.ErrorIs(t, s.DeleteGroup(ctx, "ghost", "g"), errs.ErrNotFound)
		_, err = s.ListAllGroups(ctx, "ghost")
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.ErrorIs(t, s.AddGame(ctx, "ghost", "g", "x"), errs.ErrNotFound)
		require.ErrorIs(t, s.RemoveGame(ctx, "ghost", "g", "x"), errs.ErrNotFound)
	})

	t.Run("MissingParams", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.HasUser(ctx, "")
		require.ErrorIs(t, err, errs.ErrMissingParam)
		_, err = s.TokenToUsername(ctx, "")
		require.ErrorIs(t, err, errs.ErrMissingParam)
		require.NoError(t, s.CreateUser(ctx, user("bob"), "tok-bob"))
		_, err = s.HasGroup(ctx, "bob", "")
		require.ErrorIs(t, err, errs.ErrMissingParam)
		_, err = s.HasGame(ctx, "bob", "g", "")
		require.ErrorIs(t, err, errs.ErrMissingParam)
		_, err = s.CreateGroup(ctx, "bob", "", "d")
		require.ErrorIs(t, err, errs.ErrMissingParam)
		require.ErrorIs(t, s.EditGroup(ctx, "bob", "g", "n", ""), errs.ErrMissingParam)
	})

	t.Run("GroupRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateUser(ctx, user("carol"), "tok-carol"))

		id, err := s.CreateGroup(ctx, "carol", "g", "d")
		require.NoError(t, err)
		require.Regexp(t, `^[a-zA-Z0-9]{16}$`, id)

		g, err := s.LoadGroup(ctx, "carol", id)
		require.NoError(t, err)
		require.Equal(t, "g", g.Name)
		require.Equal(t, "d", g.Description)
		require.Empty(t, g.GameIDs)

		ok, err := s.HasGroup(ctx, "carol", id)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.EditGroup(ctx, "carol", id, "g2", "d2"))
		g, err = s.LoadGroup(ctx, "carol", id)
		require.NoError(t, err)
		require.Equal(t, "g2", g.Name)
		require.Equal(t, "d2", g.Description)

		_, err = s.LoadGroup(ctx, "carol", "missing")
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.ErrorIs(t, s.EditGroup(ctx, "carol", "missing", "n", "d"), errs.ErrNotFound)

		require.NoError(t, s.DeleteGroup(ctx, "carol", id))
		ok, err = s.HasGroup(ctx, "carol", id)
		require.NoError(t, err)
		require.False(t, ok)
		require.ErrorIs(t, s.DeleteGroup(ctx, "carol", id), errs.ErrNotFound)
	})

	t.Run("ListAllGroups", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateUser(ctx, user("dave"), "tok-dave"))

		gs, err := s.ListAllGroups(ctx, "dave")
		require.NoError(t, err)
		require.Empty(t, gs)

		var wantIDs, wantNames []string
		for _, name := range []string{"l", "k", "j", "i", "h", "g", "f", "e", "d", "c", "b", "a"} {
			id, err := s.CreateGroup(ctx, "dave", name, "desc "+name)
			require.NoError(t, err)
			wantIDs = append(wantIDs, id)
			wantNames = append(wantNames, name)
		}
		gs, err = s.ListAllGroups(ctx, "dave")
		require.NoError(t, err)
		var gotIDs, gotNames []string
		for _, g := range gs {
			gotIDs = append(gotIDs, g.ID)
			gotNames = append(gotNames, g.Name)
		}
		require.Equal(t, wantIDs, gotIDs, "groups are listed in creation order")
		require.Equal(t, wantNames, gotNames)
	})

	t.Run("GameMembership", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateUser(ctx, user("erin"), "tok-erin"))
		id, err := s.CreateGroup(ctx, "erin", "g", "d")
		require.NoError(t, err)

		_, err = s.HasGame(ctx, "erin", "missing", "x")
		require.ErrorIs(t, err, errs.ErrNotFound)
		require.ErrorIs(t, s.AddGame(ctx, "erin", "missing", "x"), errs.ErrNotFound)

		require.NoError(t, s.AddGame(ctx, "erin", id, "TAAifFP590"))
		require.NoError(t, s.AddGame(ctx, "erin", id, "yqR4PtpO8X"))
		require.ErrorIs(t, s.AddGame(ctx, "erin", id, "TAAifFP590"), errs.ErrAlreadyExists)

		g, err := s.LoadGroup(ctx, "erin", id)
		require.NoError(t, err)
		require.Equal(t, []string{"TAAifFP590", "yqR4PtpO8X"}, g.GameIDs)

		ok, err := s.HasGame(ctx, "erin", id, "yqR4PtpO8X")
		require.NoError(t, err)
		require.True(t, ok)

		require.ErrorIs(t, s.RemoveGame(ctx, "erin", id, "nope"), errs.ErrNotFound)
		g, err = s.LoadGroup(ctx, "erin", id)
		require.NoError(t, err)
		require.Equal(t, []string{"TAAifFP590", "yqR4PtpO8X"}, g.GameIDs)

		require.NoError(t, s.RemoveGame(ctx, "erin", id, "TAAifFP590"))
		g, err = s.LoadGroup(ctx, "erin", id)
		require.NoError(t, err)
		require.Equal(t, []string{"yqR4PtpO8X"}, g.GameIDs)

		ok, err = s.HasGame(ctx, "erin", id, "TAAifFP590")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("GroupsAreScopedToOwner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateUser(ctx, user("fay"), "tok-fay"))
		require.NoError(t, s.CreateUser(ctx, user("gus"), "tok-gus"))
		id, err := s.CreateGroup(ctx, "fay", "g", "d")
		require.NoError(t, err)

		_, err = s.LoadGroup(ctx, "gus", id)
		require.ErrorIs(t, err, errs.ErrNotFound)
		gs, err := s.ListAllGroups(ctx, "gus")
		require.NoError(t, err)
		require.Empty(t, gs)
	})
}

func user(username string) model.User {
	names := map[string]string{"alice": "Alice"}
	name := names[username]
	if name == "" {
		name = username
	}
	return model.User{Username: username, Name: name, PwdHash: []byte("hash"), Salt: []byte("salt")}
}
