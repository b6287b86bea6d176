package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/limiter"
	"github.com/and161185/borga/internal/model"
)

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// fakeCatalog answers from a fixed id -> name table and counts every call.
type fakeCatalog struct {
	names map[string]string
	// failOn makes GameByID fail for that id.
	failOn string
	calls  atomic.Int32

	mu       sync.Mutex
	searched []string
}

var _ Catalog = (*fakeCatalog)(nil)

func (c *fakeCatalog) Search(_ context.Context, q string) ([]model.Game, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.searched = append(c.searched, q)
	c.mu.Unlock()
	return []model.Game{{ID: "x", Name: q}}, nil
}

func (c *fakeCatalog) Popular(context.Context) ([]model.Game, error) {
	c.calls.Add(1)
	return []model.Game{{ID: "a", Name: "A", Rank: 1}, {ID: "b", Name: "B", Rank: 2}}, nil
}

func (c *fakeCatalog) GameByID(_ context.Context, id string) (model.Game, error) {
	c.calls.Add(1)
	if id == c.failOn {
		return model.Game{}, errs.ExtSvcFailure("upstream broke on '%s'", id)
	}
	name, ok := c.names[id]
	if !ok {
		return model.Game{}, errs.NotFound("game '%s' was not found", id)
	}
	return model.Game{ID: id, Name: name}, nil
}

func (c *fakeCatalog) GameDetails(ctx context.Context, id string) (model.Game, error) {
	g, err := c.GameByID(ctx, id)
	if err != nil {
		return model.Game{}, err
	}
	g.YearPublished = 2018
	return g, nil
}
