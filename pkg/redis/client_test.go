package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expireCall struct {
	key string
	ttl time.Duration
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
	err         error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "1.2.3.4", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
	require.Len(t, mock.expireCalls, 1)
	assert.Equal(t, "tableside:rate_limit:1.2.3.4", mock.expireCalls[0].key)

	allowed, count, err = client.FixedWindowAllow(ctx, "1.2.3.4", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(2), count)
	assert.Len(t, mock.expireCalls, 1, "expire is only set on the first hit")

	allowed, _, err = client.FixedWindowAllow(ctx, "1.2.3.4", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestFixedWindowAllow_Error(t *testing.T) {
	mock := newMockCmdable()
	mock.err = errors.New("connection refused")
	client := &Client{store: mock}

	_, _, err := client.FixedWindowAllow(context.Background(), "scope", 1, time.Second)
	require.Error(t, err)
}

func TestIdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	guard, err := NewIdempotencyGuard(client, time.Hour, "stripe")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	require.Error(t, err)
}

func TestNewIdempotencyGuard_Validation(t *testing.T) {
	client := &Client{store: newMockCmdable()}

	_, err := NewIdempotencyGuard(nil, time.Hour, "s")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(client, -time.Second, "s")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(client, time.Hour, "")
	require.Error(t, err)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}

	assert.Equal(t, "tableside:idempotency:stripe:evt", client.IdempotencyKey("stripe", "evt"))
	assert.Equal(t, "tableside:rate_limit:ip", client.RateLimitKey("ip"))
	assert.Equal(t, "tableside:cart:t1:c1", CartKey("t1", " c1 "))
}

func TestUninitialized(t *testing.T) {
	client := &Client{}

	require.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.Get(context.Background(), "k")
	require.ErrorIs(t, err, errNotInitialized)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(Config{URL: "redis://:secret@cache:6380/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	_, err = optionsFromConfig(Config{})
	require.Error(t, err)
}
