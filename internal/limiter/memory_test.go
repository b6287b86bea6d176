package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_BlocksAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Config{Window: time.Minute, MaxFails: 3, BlockFor: 10 * time.Minute})
	m.now = func() time.Time { return now }
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, "alice", ip)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, dur, err := m.Failure(ctx, "alice", ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)

	ok, left, err := m.Allow(ctx, "alice", ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, left)

	// other addresses are unaffected
	ok, _, err = m.Allow(ctx, "alice", HashIP("10.0.0.2"))
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(11 * time.Minute)
	ok, _, err = m.Allow(ctx, "alice", ip)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_WindowRestartsCounter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Config{Window: time.Minute, MaxFails: 2, BlockFor: time.Hour})
	m.now = func() time.Time { return now }
	ctx := context.Background()

	blocked, _, err := m.Failure(ctx, "bob", nil)
	require.NoError(t, err)
	require.False(t, blocked)

	now = now.Add(2 * time.Minute)
	blocked, _, err = m.Failure(ctx, "bob", nil)
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestMemory_SuccessResets(t *testing.T) {
	m := NewMemory(Config{Window: time.Minute, MaxFails: 2, BlockFor: time.Hour})
	ctx := context.Background()

	_, _, err := m.Failure(ctx, "carol", nil)
	require.NoError(t, err)
	require.NoError(t, m.Success(ctx, "carol", nil))
	blocked, _, err := m.Failure(ctx, "carol", nil)
	require.NoError(t, err)
	require.False(t, blocked)
}
