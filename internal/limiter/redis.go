package limiter

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "borga:limiter:"

// Redis keeps counters as expiring keys, shared by every replica using the same server.
type Redis struct {
	rdb *redis.Client
	cfg Config
}

var _ Limiter = (*Redis)(nil)

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb *redis.Client, cfg Config) *Redis {
	return &Redis{rdb: rdb, cfg: cfg}
}

func redisKeys(username string, ipHash []byte) (fails, block string) {
	pair := fmt.Sprintf("%s:%s", username, hex.EncodeToString(ipHash))
	return redisPrefix + "fails:" + pair, redisPrefix + "block:" + pair
}

// Allow reports whether login is currently allowed.
func (l *Redis) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	_, block := redisKeys(username, ipHash)
	left, err := l.rdb.PTTL(ctx, block).Result()
	if err != nil {
		return false, 0, err
	}
	// PTTL is negative when the key is absent.
	if left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success drops both keys.
func (l *Redis) Success(ctx context.Context, username string, ipHash []byte) error {
	fails, block := redisKeys(username, ipHash)
	return l.rdb.Del(ctx, fails, block).Err()
}

// Failure increments the counter; the first failure starts the window.
func (l *Redis) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	fails, block := redisKeys(username, ipHash)
	n, err := l.rdb.Incr(ctx, fails).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := l.rdb.PExpire(ctx, fails, l.cfg.Window).Err(); err != nil {
			return false, 0, err
		}
	}
	if n < int64(l.cfg.MaxFails) {
		return false, 0, nil
	}
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, block, "1", l.cfg.BlockFor)
		p.Del(ctx, fails)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return true, l.cfg.BlockFor, nil
}
