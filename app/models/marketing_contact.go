package models

import "time"

// MarketingContact tracks marketing opt-in state per identity.
type MarketingContact struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	UserID    string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Email     string     `gorm:"type:varchar(200);default:''" json:"email"`
	PaidAt    *time.Time `gorm:"default:null" json:"paid_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
