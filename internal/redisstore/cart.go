// Package redisstore keeps in-progress carts in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/tableside/internal/domain/cart"
	redispkg "github.com/xenking/tableside/pkg/redis"
)

// Defaults for NewCartStore.
const (
	DefaultCartTTL      = 6 * time.Hour
	DefaultCartAttempts = 10
)

var _ cart.Repository = (*CartStore)(nil)

// CartStore implements cart.Repository with one JSON value per cart. Updates
// use WATCH/MULTI and are retried when another writer touched the key.
type CartStore struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewCartStore creates a CartStore. Every write refreshes the cart's ttl.
func NewCartStore(rdb *redis.Client, ttl time.Duration, maxAttempts int) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultCartAttempts
	}
	return &CartStore{rdb: rdb, ttl: ttl, maxAttempts: maxAttempts, now: time.Now}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Get returns the stored cart or a new empty one.
func (s *CartStore) Get(ctx context.Context, key cart.Key) (*cart.Cart, error) {
	return s.load(ctx, s.rdb, key)
}

// Update applies fn to the current cart and stores the result atomically.
func (s *CartStore) Update(ctx context.Context, key cart.Key, fn func(*cart.Cart) error) (*cart.Cart, error) {
	k := redispkg.CartKey(key.TableID, key.CustomerID)

	var out *cart.Cart
	txf := func(tx *redis.Tx) error {
		c, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()

		data, err := json.Marshal(c)
		if err != nil {
			return errors.Wrap(err, "encode cart")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		out = c
		return err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, k)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		zctx.From(ctx).Debug("Cart update conflict, retrying",
			zap.String("cart", k),
			zap.Int("attempt", attempt),
		)
	}
	return nil, cart.ErrConflict
}

// Delete discards the cart.
func (s *CartStore) Delete(ctx context.Context, key cart.Key) error {
	if err := s.rdb.Del(ctx, redispkg.CartKey(key.TableID, key.CustomerID)).Err(); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

func (s *CartStore) load(ctx context.Context, r getter, key cart.Key) (*cart.Cart, error) {
	data, err := r.Get(ctx, redispkg.CartKey(key.TableID, key.CustomerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.NewCart(key, s.now()), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	var c cart.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return &c, nil
}
