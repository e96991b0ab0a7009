package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	BucketTimed     = "timed"
	BucketPermanent = "permanent"
	BucketMixed     = "mixed"
)

// Ledger reasons written by the service itself. Payment events use
// "lemon_<event_name>".
const (
	ReasonReplyGeneration  = "reply_generation"
	ReasonGenerationRefund = "generation_refund"
	ReasonDailyRefresh     = "daily_refresh"
	ReasonInviteReward     = "invite_reward"
	ReasonReferralBonus    = "referral_bonus"
)

// CreditLedgerEntry is an immutable record of one balance change. The sum of
// all entries of a user equals the wallet's total credits.
type CreditLedgerEntry struct {
	ID        string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string            `gorm:"type:varchar(64);not null;index:idx_credit_ledger_user_created,priority:1" json:"-"`
	Amount    int64             `gorm:"not null" json:"amount"`
	Bucket    string            `gorm:"type:varchar(16);not null" json:"bucket"`
	Reason    string            `gorm:"type:varchar(64);not null;index" json:"reason"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	CreatedAt time.Time         `gorm:"precision:6;not null;index:idx_credit_ledger_user_created,priority:2;index" json:"created_at"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger"
}

// BucketFor names the bucket of a change touching the given amounts.
func BucketFor(timed, permanent int64) string {
	switch {
	case timed != 0 && permanent != 0:
		return BucketMixed
	case permanent != 0:
		return BucketPermanent
	default:
		return BucketTimed
	}
}

func IsValidBucket(bucket string) bool {
	return bucket == BucketTimed || bucket == BucketPermanent
}
