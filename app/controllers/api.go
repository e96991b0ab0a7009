package controllers

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/generation"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/invite"
)

type Generator interface {
	Generate(ctx context.Context, caller generation.Caller, req generation.Request) (*generation.Result, error)
}

type InviteRedeemer interface {
	Redeem(ctx context.Context, userID, code string) (*invite.Result, error)
}

type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, userID, email, planCode string) (string, error)
}

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, raw []byte, signature string) (*billing.Outcome, error)
}

// API bundles the services behind the JSON endpoints.
type API struct {
	Generator Generator
	Wallets   repository.WalletRepository
	Ledger    repository.LedgerRepository
	Options   repository.OptionRepository
	Invites   InviteRedeemer
	Checkout  CheckoutCreator
	Webhooks  WebhookHandler

	OptionsCacheTTL time.Duration
	Now             func() time.Time
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
