package controllers

import (
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

// clientOrigin is the client address as resolved by the app's proxy
// settings. Forwarding headers only count when fiber.Config.ProxyHeader is
// set and the peer is one of the trusted proxies.
func clientOrigin(c *fiber.Ctx) string {
	ip := c.IP()
	// For ::ffff: IPv4-mapped-IPv6 addresses
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		ip = strings.TrimPrefix(ip, "::ffff:")
	}
	if origin := ratelimit.FirstHop(ip); origin != ratelimit.UnknownOrigin {
		return origin
	}
	return ratelimit.NormalizeOrigin(c.Context().RemoteIP().String())
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
