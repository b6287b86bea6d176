package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository"
	"github.com/and161185/borga/internal/repository/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return New() })
}

func TestStore_CreateGroup_RetriesOnCollision(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, model.User{Username: "u", Name: "U"}, "t"))

	ids := []string{"AAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAA", "BBBBBBBBBBBBBBBB"}
	s.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	first, err := s.CreateGroup(ctx, "u", "g1", "d")
	require.NoError(t, err)
	second, err := s.CreateGroup(ctx, "u", "g2", "d")
	require.NoError(t, err)
	require.Equal(t, "AAAAAAAAAAAAAAAA", first)
	require.Equal(t, "BBBBBBBBBBBBBBBB", second)

	s.newID = func() (string, error) { return "AAAAAAAAAAAAAAAA", nil }
	_, err = s.CreateGroup(ctx, "u", "g3", "d")
	require.ErrorIs(t, err, errs.ErrFailure)

	s.newID = func() (string, error) { return "", errors.New("entropy") }
	_, err = s.CreateGroup(ctx, "u", "g4", "d")
	require.ErrorIs(t, err, errs.ErrFailure)
}

func TestStore_ConcurrentAddGame(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, model.User{Username: "u", Name: "U"}, "t"))
	id, err := s.CreateGroup(ctx, "u", "g", "d")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	dup := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every game is added twice concurrently; exactly one add must win
			gameID := fmt.Sprintf("game-%d", i%(n/2))
			if err := s.AddGame(ctx, "u", id, gameID); errors.Is(err, errs.ErrAlreadyExists) {
				mu.Lock()
				dup++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	g, err := s.LoadGroup(ctx, "u", id)
	require.NoError(t, err)
	require.Len(t, g.GameIDs, n/2)
	require.Equal(t, n/2, dup)
}

func TestStore_LoadGroupReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, model.User{Username: "u", Name: "U"}, "t"))
	id, err := s.CreateGroup(ctx, "u", "g", "d")
	require.NoError(t, err)
	require.NoError(t, s.AddGame(ctx, "u", id, "x"))

	g, err := s.LoadGroup(ctx, "u", id)
	require.NoError(t, err)
	g.GameIDs[0] = "mutated"

	g, err = s.LoadGroup(ctx, "u", id)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, g.GameIDs)
}
