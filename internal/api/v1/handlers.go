package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/ManuelReschke/ReplyFox/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	api *controllers.API
}

// NewAPIServer creates a new API server instance
func NewAPIServer(api *controllers.API) *APIServer {
	return &APIServer{api: api}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) PostGenerate(c *fiber.Ctx) error {
	return s.api.HandleGenerate(c)
}

func (s *APIServer) GetWallet(c *fiber.Ctx) error {
	return s.api.HandleGetWallet(c)
}

func (s *APIServer) GetLedger(c *fiber.Ctx) error {
	return s.api.HandleGetLedger(c)
}

func (s *APIServer) PostInviteRedeem(c *fiber.Ctx) error {
	return s.api.HandleRedeemInvite(c)
}

func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return s.api.HandleCreateCheckout(c)
}

// GetOptions is public; the composer loads presets before sign-in.
func (s *APIServer) GetOptions(c *fiber.Ctx) error {
	return s.api.HandleGetOptions(c)
}

// PostLemonWebhook is authenticated by the payload signature, not a bearer
// token.
func (s *APIServer) PostLemonWebhook(c *fiber.Ctx) error {
	return s.api.HandleLemonWebhook(c)
}
