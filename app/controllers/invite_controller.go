package controllers

import (
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

type redeemInviteBody struct {
	InviteCode string `json:"invite_code"`
}

func (a *API) HandleRedeemInvite(c *fiber.Ctx) error {
	var body redeemInviteBody
	if err := c.BodyParser(&body); err != nil {
		return apperror.Respond(c, apperror.Validation("Request body must be valid JSON."))
	}

	res, err := a.Invites.Redeem(c.UserContext(), usercontext.GetUserID(c), body.InviteCode)
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"ok":             true,
		"reward_credits": res.RewardCredits,
	})
}
