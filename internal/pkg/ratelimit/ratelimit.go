package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit  = 8
	DefaultWindow = 60 * time.Second
	DefaultPrefix = "ratelimit:generate"
	UnknownOrigin = "unknown"
)

type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// ConfigFromEnv reads GENERATION_RATE_LIMIT and GENERATION_RATE_WINDOW.
func ConfigFromEnv() Config {
	return Config{
		Limit:  env.GetEnvInt("GENERATION_RATE_LIMIT", DefaultLimit),
		Window: env.GetEnvDuration("GENERATION_RATE_WINDOW", DefaultWindow),
		Prefix: DefaultPrefix,
	}
}

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter is a sliding-window limiter over a Redis sorted set. Every attempt
// is recorded, denied ones included, so hammering keeps the caller limited.
type Limiter struct {
	client redis.Cmdable
	cfg    Config
	now    func() time.Time
}

func New(client redis.Cmdable, cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Limiter{client: client, cfg: cfg, now: time.Now}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Key(identity, origin string) string {
	return fmt.Sprintf("%s:%s:%s", l.cfg.Prefix, identity, NormalizeOrigin(origin))
}

// Allow records an attempt for identity+origin and reports whether it fits in
// the window. Errors mean the decision is unknown; callers fail closed.
func (l *Limiter) Allow(ctx context.Context, identity, origin string) (Decision, error) {
	now := l.now()
	key := l.Key(identity, origin)
	nowScore := now.UnixMicro()
	windowStart := now.Add(-l.cfg.Window).UnixMicro()
	member := strconv.FormatInt(nowScore, 10) + ":" + uuid.NewString()

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowScore), Member: member})
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, l.cfg.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit: %w", err)
	}

	count := card.Val()
	d := Decision{Allowed: count <= int64(l.cfg.Limit), Count: count, Limit: l.cfg.Limit}
	if !d.Allowed {
		d.RetryAfter = l.cfg.Window
		if zs := oldest.Val(); len(zs) > 0 {
			expires := time.UnixMicro(int64(zs[0].Score)).Add(l.cfg.Window)
			if wait := expires.Sub(now); wait > 0 {
				d.RetryAfter = wait
			}
		}
	}
	return d, nil
}

// FirstHop reduces a forwarded address list to its first entry.
func FirstHop(addr string) string {
	return NormalizeOrigin(strings.Split(addr, ",")[0])
}

func NormalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return UnknownOrigin
	}
	return origin
}
