package controllers

import (
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/generation"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// HandleGenerate charges credits and returns model replies.
func (a *API) HandleGenerate(c *fiber.Ctx) error {
	var req generation.Request
	if err := c.BodyParser(&req); err != nil {
		return apperror.Respond(c, apperror.Validation("Request body must be valid JSON."))
	}

	caller := generation.Caller{
		UserID: usercontext.GetUserID(c),
		Origin: clientOrigin(c),
	}
	res, err := a.Generator.Generate(c.UserContext(), caller, req)
	if err != nil {
		return apperror.Respond(c, err)
	}

	return c.JSON(fiber.Map{
		"request_id":                  res.RequestID,
		"replies":                     res.Replies,
		"credits_charged":             res.CreditsCharged,
		"remaining_timed_credits":     res.Balance.Timed,
		"remaining_permanent_credits": res.Balance.Permanent,
		"remaining_credits":           res.Balance.Total(),
	})
}
