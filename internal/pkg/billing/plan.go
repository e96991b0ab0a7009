package billing

import (
	"strings"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
)

// Action is what a routed webhook does to a wallet.
type Action string

const (
	ActionCreditPackGranted     Action = "credit_pack_granted"
	ActionSubscriptionApplied   Action = "subscription_applied"
	ActionSubscriptionCancelled Action = "subscription_cancelled"
	ActionUnknown               Action = "unknown"
)

// Route picks the action for an event on a resolved plan.
func Route(eventName string, plan *models.BillingPlan) Action {
	if plan == nil {
		return ActionUnknown
	}
	if plan.IsCreditPack() {
		if eventName == EventOrderCreated || eventName == EventSubscriptionPaymentSuccess {
			return ActionCreditPackGranted
		}
		return ActionUnknown
	}
	switch {
	case eventName == EventSubscriptionCancelled || eventName == EventSubscriptionExpired:
		return ActionSubscriptionCancelled
	case strings.HasPrefix(eventName, "subscription_") || eventName == EventOrderCreated:
		return ActionSubscriptionApplied
	default:
		return ActionUnknown
	}
}

// tierForPlan maps a paid plan to the tier it grants.
func tierForPlan(plan *models.BillingPlan) entitlements.Tier {
	if plan.IsLifetime() {
		return entitlements.TierElite
	}
	return entitlements.TierPro
}

// subscriptionStatus is the status stored for an applied event.
func subscriptionStatus(plan *models.BillingPlan, providerStatus string) string {
	if plan.IsLifetime() {
		return models.SubscriptionStatusLifetime
	}
	if s := strings.ToLower(strings.TrimSpace(providerStatus)); s != "" {
		return s
	}
	return models.SubscriptionStatusActive
}

func cancellationStatus(eventName, providerStatus string) string {
	if s := strings.ToLower(strings.TrimSpace(providerStatus)); s == models.SubscriptionStatusExpired || s == models.SubscriptionStatusCancelled {
		return s
	}
	if eventName == EventSubscriptionExpired {
		return models.SubscriptionStatusExpired
	}
	return models.SubscriptionStatusCancelled
}

// isEntitlingStatus reports whether a provider status keeps paid access.
func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "on_trial", "past_due", models.SubscriptionStatusLifetime:
		return true
	default:
		return false
	}
}
