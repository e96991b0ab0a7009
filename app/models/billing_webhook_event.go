package models

import "time"

// BillingWebhookEvent stores each accepted provider webhook exactly once.
// EventID is "<event_name>:<provider object id>".
type BillingWebhookEvent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Provider       string     `gorm:"type:varchar(20);not null;default:'lemonsqueezy';index" json:"provider"`
	EventID        string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_id"`
	EventName      string     `gorm:"type:varchar(100);not null;index" json:"event_name"`
	PayloadJSON    string     `gorm:"type:text;not null" json:"payload_json"`
	SignatureValid bool       `gorm:"default:false" json:"signature_valid"`
	Outcome        string     `gorm:"type:varchar(64);default:''" json:"outcome"`
	ProcessedAt    *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
