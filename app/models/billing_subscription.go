package models

import "time"

const BillingProviderLemonSqueezy = "lemonsqueezy"

// BillingSubscription mirrors a provider subscription (or lifetime order)
// keyed by the provider's object id.
type BillingSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 string     `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Provider               string     `gorm:"type:varchar(20);not null;default:'lemonsqueezy'" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_subscription_id"`
	PlanCode               string     `gorm:"type:varchar(64);not null;index" json:"plan_code"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodEnd       *time.Time `gorm:"default:null" json:"current_period_end,omitempty"`
	LastEventAt            *time.Time `gorm:"precision:6;default:null" json:"last_event_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
