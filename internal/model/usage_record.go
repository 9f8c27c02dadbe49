package model

import "time"

// UsageRecord is one row of token accounting, written asynchronously by the
// usage worker after each completed exchange.
type UsageRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:36;not null;index" json:"user_id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	MessageID      string    `gorm:"size:36;not null" json:"message_id"`
	Model          string    `gorm:"size:64;not null" json:"model"`
	InputTokens    int       `gorm:"not null" json:"input_tokens"`
	OutputTokens   int       `gorm:"not null" json:"output_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}
