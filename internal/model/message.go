package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// TokenUsage is the provider-reported token accounting for one completion.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// AttachmentRef is a weak reference from a message to an uploaded attachment.
// The attachment itself lives independently in object storage.
type AttachmentRef struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "image" | "file"
}

type Message struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string `gorm:"size:36;not null;index:idx_messages_conv_created,priority:1" json:"conversationId"`
	Role           string `gorm:"size:16;not null" json:"role"`
	Content        string `gorm:"type:text;not null" json:"content"`

	// Attachments holds AttachmentList as a JSON array in a single text column.
	Attachments    string          `gorm:"type:text" json:"-"`
	AttachmentList []AttachmentRef `gorm:"-" json:"attachments,omitempty"`

	Tokens *TokenUsage `gorm:"embedded;embeddedPrefix:tokens_" json:"tokens,omitempty"`

	// Partial marks an assistant message whose stream ended early (provider
	// failure or client cancellation). The accumulated text is still durable.
	Partial bool `json:"partial,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_messages_conv_created,priority:2" json:"createdAt"`
}

func (m *Message) BeforeSave(*gorm.DB) error {
	if len(m.AttachmentList) == 0 {
		m.Attachments = ""
		return nil
	}
	b, err := json.Marshal(m.AttachmentList)
	if err != nil {
		return err
	}
	m.Attachments = string(b)
	return nil
}

func (m *Message) AfterFind(*gorm.DB) error {
	if m.Attachments == "" {
		m.AttachmentList = nil
		return nil
	}
	return json.Unmarshal([]byte(m.Attachments), &m.AttachmentList)
}
