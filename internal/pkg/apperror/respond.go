package apperror

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Respond writes err as {"error": code, "message": message}. Wrapped causes
// are logged, never rendered.
func Respond(c *fiber.Ctx, err error) error {
	e := From(err)
	if e.Kind == KindInternal {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	return c.Status(e.Status()).JSON(fiber.Map{
		"error":   e.Code,
		"message": e.Message,
	})
}
