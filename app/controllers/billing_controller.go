package controllers

import (
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

type checkoutBody struct {
	PlanCode string `json:"plan_code"`
}

// HandleCreateCheckout returns a hosted checkout URL for a plan.
func (a *API) HandleCreateCheckout(c *fiber.Ctx) error {
	var body checkoutBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.Respond(c, apperror.Validation("Request body must be valid JSON."))
	}

	uc := usercontext.GetUserContext(c)
	url, err := a.Checkout.CreateCheckout(c.UserContext(), uc.UserID, uc.Email, body.PlanCode)
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"checkout_url": url})
}

// HandleLemonWebhook verifies the signature over the raw body before
// anything else reads it.
func (a *API) HandleLemonWebhook(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)
	outcome, err := a.Webhooks.HandleWebhook(c.UserContext(), raw, c.Get(billing.SignatureHeader))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(outcome.Response())
}
