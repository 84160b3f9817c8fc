package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// IdempotencyStore is the subset of Client the guard needs.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

var _ IdempotencyStore = (*Client)(nil)

// IdempotencyGuard remembers processed ids within a scope for ttl.
type IdempotencyGuard struct {
	store IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard creates a guard for scope.
func NewIdempotencyGuard(store IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark marks id as processed and reports whether it already was.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, id), "1", g.ttl)
	if err != nil {
		return false, errors.Wrap(err, "set idempotency key")
	}
	return !set, nil
}

// Delete forgets id so that a failed attempt can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, id))
}
