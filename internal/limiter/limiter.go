// Package limiter throttles login attempts per (username, client address) pair.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and, if not, the retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; it reports whether the pair is now blocked and for how long.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// Config is shared by every implementation.
type Config struct {
	// Window is how long failures accumulate before the counter restarts.
	Window time.Duration
	// MaxFails is the failure count that triggers a block.
	MaxFails int
	// BlockFor is the lockout length.
	BlockFor time.Duration
}

// DefaultConfig allows five failures in fifteen minutes.
var DefaultConfig = Config{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
