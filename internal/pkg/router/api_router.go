package router

import (
	"strings"
	"time"

	apiv1 "github.com/ManuelReschke/ReplyFox/internal/api/v1"

	"github.com/ManuelReschke/ReplyFox/app/controllers"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Dependencies are the collaborators of the API routes.
type Dependencies struct {
	API      *controllers.API
	Verifier middleware.TokenVerifier
	Wallets  repository.WalletRepository

	// LimiterStorage backs the coarse per-IP limiter; nil keeps counters in
	// memory.
	LimiterStorage fiber.Storage
}

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
		Storage:    h.deps.LimiterStorage,
		// Webhook deliveries are exempt.
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/v1/webhooks/")
		},
		LimitReached: func(c *fiber.Ctx) error {
			return apperror.Respond(c, apperror.RateLimited(0))
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.deps.API)
	apiv1.RegisterHandlers(v1, apiServer,
		middleware.RequireIdentity(h.deps.Verifier),
		middleware.EnsureWallet(h.deps.Wallets),
	)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
