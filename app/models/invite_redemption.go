package models

import "time"

// InviteRedemption records the single invite a user redeemed.
type InviteRedemption struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RedeemerID     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"redeemer_id"`
	ReferrerID     string    `gorm:"type:varchar(64);not null;index" json:"referrer_id"`
	Code           string    `gorm:"type:varchar(16);not null" json:"code"`
	RewardCredits  int64     `gorm:"not null;default:0" json:"reward_credits"`
	ReferrerReward int64     `gorm:"not null;default:0" json:"referrer_reward"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
