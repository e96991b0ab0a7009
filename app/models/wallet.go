package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SubscriptionStatusNone      = "none"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusLifetime  = "lifetime"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Wallet holds the two credit buckets of one identity. Timed credits are
// reset to DailyCreditQuota once per UTC day, permanent credits never expire.
type Wallet struct {
	ID                    uint              `gorm:"primaryKey" json:"-"`
	UserID                string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	TimedCredits          int64             `gorm:"not null;default:0" json:"timed_credits"`
	PermanentCredits      int64             `gorm:"not null;default:0" json:"permanent_credits"`
	DailyCreditQuota      int64             `gorm:"not null;default:0" json:"daily_credit_quota"`
	Tier                  string            `gorm:"type:varchar(16);not null;default:'free';index" json:"tier"`
	SubscriptionStatus    string            `gorm:"type:varchar(32);not null;default:'none'" json:"subscription_status"`
	SubscriptionExpiresAt *time.Time        `gorm:"default:null" json:"subscription_expires_at"`
	Coupons               datatypes.JSONMap `json:"coupons"`
	LastQuotaRefreshAt    *time.Time        `gorm:"default:null;index" json:"last_quota_refresh_at"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultCoupons is the coupon map stored on newly provisioned wallets.
func DefaultCoupons() datatypes.JSONMap {
	return datatypes.JSONMap{"discount90": 0, "discount85": 0}
}

// Balance returns the current per-bucket balance.
func (w *Wallet) Balance() Balance {
	return Balance{Timed: w.TimedCredits, Permanent: w.PermanentCredits}
}

// TotalCredits is always derived, never stored.
func (w *Wallet) TotalCredits() int64 {
	return w.TimedCredits + w.PermanentCredits
}

// Balance is a snapshot of both buckets.
type Balance struct {
	Timed     int64 `json:"timed_credits"`
	Permanent int64 `json:"permanent_credits"`
}

func (b Balance) Total() int64 {
	return b.Timed + b.Permanent
}

// Charge describes how a debit was split across the buckets.
type Charge struct {
	FromTimed     int64
	FromPermanent int64
	Balance       Balance
}

func (c Charge) Amount() int64 {
	return c.FromTimed + c.FromPermanent
}

// SplitCharge takes amount from timed credits first and the remainder from
// permanent credits. ok is false when the total balance does not cover amount.
func SplitCharge(b Balance, amount int64) (fromTimed, fromPermanent int64, ok bool) {
	if amount <= 0 || b.Total() < amount {
		return 0, 0, false
	}
	fromTimed = amount
	if fromTimed > b.Timed {
		fromTimed = b.Timed
	}
	if fromTimed < 0 {
		fromTimed = 0
	}
	return fromTimed, amount - fromTimed, true
}
