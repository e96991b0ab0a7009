package apiv1

import "github.com/gofiber/fiber/v2"

// ServerInterface represents all server handlers of the v1 API.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (POST /generate)
	PostGenerate(c *fiber.Ctx) error
	// (GET /wallet)
	GetWallet(c *fiber.Ctx) error
	// (GET /ledger)
	GetLedger(c *fiber.Ctx) error
	// (POST /invite/redeem)
	PostInviteRedeem(c *fiber.Ctx) error
	// (POST /checkout)
	PostCheckout(c *fiber.Ctx) error
	// (GET /options)
	GetOptions(c *fiber.Ctx) error
	// (POST /webhooks/lemon)
	PostLemonWebhook(c *fiber.Ctx) error
}

// RegisterHandlers mounts the v1 routes on router. The protected handlers
// run in front of every route that needs a verified caller.
func RegisterHandlers(router fiber.Router, si ServerInterface, protected ...fiber.Handler) {
	withAuth := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, protected...), h)
	}

	router.Get("/ping", si.GetPing)
	router.Get("/options", si.GetOptions)
	router.Post("/webhooks/lemon", si.PostLemonWebhook)

	router.Post("/generate", withAuth(si.PostGenerate)...)
	router.Get("/wallet", withAuth(si.GetWallet)...)
	router.Get("/ledger", withAuth(si.GetLedger)...)
	router.Post("/invite/redeem", withAuth(si.PostInviteRedeem)...)
	router.Post("/checkout", withAuth(si.PostCheckout)...)
}
