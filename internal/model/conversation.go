package model

import "time"

type Conversation struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"size:36;not null;index" json:"userId"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	SystemPrompt string    `gorm:"size:4000" json:"systemPrompt"`
	Model        string    `gorm:"size:64;not null" json:"model"`
	MessageCount int       `gorm:"not null;default:0" json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
