package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/model"
	"github.com/and161185/borga/internal/repository/memory"
)

func newAuth(t *testing.T, lim *fakeLimiter) (*AuthServiceImpl, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewAuthService(st, lim, zap.NewNop()), st
}

func TestAuth_CreateUser_TokenRoundTrip(t *testing.T) {
	t.Parallel()
	s, st := newAuth(t, &fakeLimiter{allowOK: true})
	ctx := context.Background()

	token, err := s.CreateUser(ctx, "Alice", "alice", "pwd")
	require.NoError(t, err)
	require.Len(t, token, 22)

	got, err := st.UsernameToToken(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, token, got)

	u, err := st.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotEqual(t, []byte("pwd"), u.PwdHash)
	require.Len(t, u.Salt, 16)

	_, err = s.CreateUser(ctx, "Alice", "alice", "pwd")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestAuth_CreateUser_Validation(t *testing.T) {
	t.Parallel()
	s, _ := newAuth(t, &fakeLimiter{allowOK: true})
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "", "alice", "pwd")
	require.ErrorIs(t, err, errs.ErrMissingParam)
	_, err = s.CreateUser(ctx, "Alice", "", "pwd")
	require.ErrorIs(t, err, errs.ErrMissingParam)
	_, err = s.CreateUser(ctx, "Alice", "alice", "")
	require.ErrorIs(t, err, errs.ErrMissingParam)

	for _, bad := range []string{"Alice", "_alice", "al ice", "al/ice", "al*ice"} {
		_, err = s.CreateUser(ctx, "Alice", bad, "pwd")
		require.ErrorIs(t, err, errs.ErrInvalidParam, bad)
	}
}

func TestAuth_Username(t *testing.T) {
	t.Parallel()
	s, _ := newAuth(t, &fakeLimiter{allowOK: true})
	ctx := context.Background()
	token, err := s.CreateUser(ctx, "Bob", "bob", "pwd")
	require.NoError(t, err)

	name, err := s.Username(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "bob", name)

	_, err = s.Username(ctx, "")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	_, err = s.Username(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestAuth_CheckAndGetUser_Success(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s, _ := newAuth(t, lim)
	ctx := context.Background()
	token, err := s.CreateUser(ctx, "Carol", "carol", "secret")
	require.NoError(t, err)

	u, err := s.CheckAndGetUser(ctx, "carol", "secret", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, model.User{Username: "carol", Name: "Carol", Token: token}, u)
	require.Equal(t, 1, lim.successCalls)
	require.Zero(t, lim.failureCalls)
}

func TestAuth_CheckAndGetUser_Failures(t *testing.T) {
	t.Parallel()
	lim := &fakeLimiter{allowOK: true}
	s, _ := newAuth(t, lim)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "Dave", "dave", "secret")
	require.NoError(t, err)

	_, err = s.CheckAndGetUser(ctx, "dave", "", "ip")
	require.ErrorIs(t, err, errs.ErrMissingParam)
	require.Zero(t, lim.allowCalls)

	_, err = s.CheckAndGetUser(ctx, "dave", "wrong", "ip")
	require.ErrorIs(t, err, errs.ErrInvalidParam)

	_, err = s.CheckAndGetUser(ctx, "ghost", "secret", "ip")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, 2, lim.failureCalls)
	require.Zero(t, lim.successCalls)
}

func TestAuth_CheckAndGetUser_Limited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lim := &fakeLimiter{allowOK: false}
	s, _ := newAuth(t, lim)
	_, err := s.CheckAndGetUser(ctx, "erin", "pwd", "ip")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)

	lim = &fakeLimiter{allowOK: true, failBlocked: true}
	s, _ = newAuth(t, lim)
	_, err = s.CreateUser(ctx, "Erin", "erin", "pwd")
	require.NoError(t, err)
	_, err = s.CheckAndGetUser(ctx, "erin", "bad", "ip")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)

	lim = &fakeLimiter{allowErr: errors.New("redis down")}
	s, _ = newAuth(t, lim)
	_, err = s.CheckAndGetUser(ctx, "erin", "pwd", "ip")
	require.ErrorIs(t, err, errs.ErrExtSvcFailure)
}

func TestAuth_UserAndToken(t *testing.T) {
	t.Parallel()
	s, _ := newAuth(t, &fakeLimiter{allowOK: true})
	ctx := context.Background()
	token, err := s.CreateUser(ctx, "Fay", "fay", "pwd")
	require.NoError(t, err)

	u, err := s.User(ctx, "fay")
	require.NoError(t, err)
	require.Equal(t, model.User{Username: "fay", Name: "Fay"}, u)

	got, err := s.Token(ctx, "fay")
	require.NoError(t, err)
	require.Equal(t, token, got)

	_, err = s.User(ctx, "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAuth_EnsureGuest_Idempotent(t *testing.T) {
	t.Parallel()
	s, st := newAuth(t, &fakeLimiter{allowOK: true})
	ctx := context.Background()
	guest := model.Guest{Username: "guest", Name: "Guest", Password: "guest", Token: "guest-token"}

	s.EnsureGuest(ctx, guest)
	s.EnsureGuest(ctx, guest)

	name, err := st.TokenToUsername(ctx, "guest-token")
	require.NoError(t, err)
	require.Equal(t, "guest", name)

	u, err := s.CheckAndGetUser(ctx, "guest", "guest", "ip")
	require.NoError(t, err)
	require.Equal(t, "guest-token", u.Token)
}
