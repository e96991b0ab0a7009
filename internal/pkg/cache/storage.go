package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
)

// LimiterDatabase keeps fiber limiter counters apart from cache keys (DB 0).
const LimiterDatabase = 1

// NewFiberStorage returns a fiber.Storage on the cache server, for fiber
// middlewares that keep state such as the request limiter.
func NewFiberStorage(database int) fiber.Storage {
	// Get Redis client configuration from existing cache setup
	cacheClient := GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
