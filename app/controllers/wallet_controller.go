package controllers

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// HandleGetWallet returns the wallet after applying today's quota refresh.
func (a *API) HandleGetWallet(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return apperror.Respond(c, apperror.AuthRequired())
	}
	ctx := c.UserContext()

	wallet, profile, err := a.Wallets.GetOrCreate(ctx, userID, usercontext.GetEmail(c))
	if err != nil {
		return apperror.Respond(c, apperror.Internal("db_error", err))
	}
	refreshed, err := a.Wallets.RefreshTimedCredits(ctx, userID, a.now())
	if err != nil {
		return apperror.Respond(c, apperror.Internal("wallet_refresh_error", err))
	}
	if refreshed {
		if wallet, err = a.Wallets.GetByUserID(ctx, userID); err != nil {
			return apperror.Respond(c, apperror.Internal("db_error", err))
		}
	}

	return c.JSON(fiber.Map{
		"wallet": fiber.Map{
			"timed_credits":           wallet.TimedCredits,
			"permanent_credits":       wallet.PermanentCredits,
			"total_credits":           wallet.TotalCredits(),
			"daily_credit_quota":      wallet.DailyCreditQuota,
			"tier":                    wallet.Tier,
			"subscription_status":     wallet.SubscriptionStatus,
			"subscription_expires_at": formatTimePtr(wallet.SubscriptionExpiresAt),
			"coupons":                 wallet.Coupons,
			"referral_code":           profile.ReferralCode,
			"invite_redeemed":         profile.HasRedeemedInvite(),
			"invite_redeemed_at":      formatTimePtr(profile.InviteRedeemedAt),
		},
	})
}

// HandleGetLedger pages the caller's ledger newest first. The returned cursor
// is the created_at of the last item and an exclusive bound for the next page.
func (a *API) HandleGetLedger(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return apperror.Respond(c, apperror.AuthRequired())
	}

	limit := repository.DefaultLedgerLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	var before *time.Time
	if raw := strings.TrimSpace(c.Query("cursor")); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return apperror.Respond(c, apperror.Validation("Invalid cursor."))
		}
		before = &t
	}

	items, err := a.Ledger.List(c.UserContext(), userID, before, limit)
	if err != nil {
		return apperror.Respond(c, apperror.Internal("db_error", err))
	}

	var cursor interface{}
	if len(items) > 0 {
		cursor = items[len(items)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return c.JSON(fiber.Map{
		"items":  items,
		"cursor": cursor,
	})
}
