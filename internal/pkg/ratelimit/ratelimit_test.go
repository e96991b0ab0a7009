package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(client, cfg).WithClock(clock.Now), mr, clock
}

func TestAllowEightPerMinute(t *testing.T) {
	l, _, clock := newTestLimiter(t, Config{Limit: 8, Window: 60 * time.Second})
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		d, err := l.Allow(ctx, "user-1", "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, int64(i), d.Count)
		clock.t = clock.t.Add(time.Second)
	}

	d, err := l.Allow(ctx, "user-1", "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 8, d.Limit)
	// Oldest attempt was at +0s, now is +8s.
	assert.Equal(t, 52*time.Second, d.RetryAfter)

	// Another origin has its own window.
	d, err = l.Allow(ctx, "user-1", "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAllowRecoversAfterWindow(t *testing.T) {
	l, _, clock := newTestLimiter(t, Config{Limit: 2, Window: 10 * time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "u", "o")
		require.NoError(t, err)
	}
	d, err := l.Allow(ctx, "u", "o")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.t = clock.t.Add(11 * time.Second)
	d, err = l.Allow(ctx, "u", "o")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestAllowSetsExpiry(t *testing.T) {
	l, mr, _ := newTestLimiter(t, Config{Limit: 8, Window: 60 * time.Second})
	_, err := l.Allow(context.Background(), "u", "")
	require.NoError(t, err)

	key := l.Key("u", "")
	assert.Equal(t, "ratelimit:generate:u:unknown", key)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 60*time.Second, mr.TTL(key))
}

func TestAllowFailsWhenRedisIsDown(t *testing.T) {
	l, mr, _ := newTestLimiter(t, Config{})
	mr.Close()

	_, err := l.Allow(context.Background(), "u", "o")
	assert.Error(t, err)
}

func TestFirstHop(t *testing.T) {
	assert.Equal(t, "9.9.9.9", FirstHop("9.9.9.9, 10.0.0.1"))
	assert.Equal(t, "127.0.0.1", FirstHop(" 127.0.0.1 "))
	assert.Equal(t, UnknownOrigin, FirstHop(" , 10.0.0.1"))
	assert.Equal(t, UnknownOrigin, FirstHop(""))
}
