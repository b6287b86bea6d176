package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"
)

type counter struct {
	fails        int
	first        time.Time
	blockedUntil time.Time
}

// Memory is a single-process limiter.
type Memory struct {
	mu    sync.Mutex
	cfg   Config
	now   func() time.Time
	state map[string]*counter
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-process limiter.
func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg, now: time.Now, state: map[string]*counter{}}
}

func memKey(username string, ipHash []byte) string {
	return username + "|" + hex.EncodeToString(ipHash)
}

// Allow reports whether login is currently allowed.
func (m *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state[memKey(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if left := c.blockedUntil.Sub(m.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (m *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, memKey(username, ipHash))
	return nil
}

// Failure counts an attempt and blocks at the threshold.
func (m *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := memKey(username, ipHash)
	c, ok := m.state[k]
	if !ok || now.Sub(c.first) > m.cfg.Window {
		c = &counter{first: now}
		m.state[k] = c
	}
	c.fails++
	if c.fails < m.cfg.MaxFails {
		return false, 0, nil
	}
	c.fails = 0
	c.first = now
	c.blockedUntil = now.Add(m.cfg.BlockFor)
	return true, m.cfg.BlockFor, nil
}
