package models

import "time"

const (
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusRefunded  = "refunded"
)

// GenerationEvent is the audit row of one generation request. Only a hash of
// the message is stored.
type GenerationEvent struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	UserID         string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	RequestID      string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"request_id"`
	MessageHash    string    `gorm:"type:char(64);not null" json:"message_hash"`
	InputCharCount int       `gorm:"not null;default:0" json:"input_char_count"`
	Variations     int       `gorm:"not null;default:0" json:"variations"`
	Language       string    `gorm:"type:varchar(20);not null;default:'auto'" json:"language"`
	Model          string    `gorm:"type:varchar(64);not null;default:''" json:"model"`
	Status         string    `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason  string    `gorm:"type:varchar(64);default:''" json:"failure_reason,omitempty"`
	CreditsCharged int64     `gorm:"not null;default:0" json:"credits_charged"`
	LatencyMs      int64     `gorm:"not null;default:0" json:"latency_ms"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
