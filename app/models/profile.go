package models

import (
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/shortener"
)

// Profile carries the referral state of an identity.
type Profile struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	UserID           string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Email            string     `gorm:"type:varchar(200);default:''" json:"email"`
	ReferralCode     string     `gorm:"type:varchar(16);not null;uniqueIndex" json:"referral_code"`
	InvitedBy        *string    `gorm:"type:varchar(64);default:null;index" json:"invited_by"`
	InviteRedeemedAt *time.Time `gorm:"default:null" json:"invite_redeemed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const referralCodeLength = 8

// HasRedeemedInvite reports whether the profile already used an invite code.
func (p *Profile) HasRedeemedInvite() bool {
	return p != nil && (p.InvitedBy != nil || p.InviteRedeemedAt != nil)
}

// NewReferralCode returns a random upper-case code.
func NewReferralCode() (string, error) {
	return shortener.GenerateCode(referralCodeLength)
}

// NormalizeReferralCode trims and upper-cases user input.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
