package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"aichat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListRecent returns the most recent messages of a conversation in
// chronological order. It is the bounded history window for prompt assembly.
func (r *MessageRepository) ListRecent(conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	var messages []model.Message
	if err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListBefore pages backwards through a conversation's history. An empty
// beforeID starts from the newest message. Results are chronological.
func (r *MessageRepository) ListBefore(conversationID, beforeID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 201 {
		limit = 50
	}

	query := r.db.Where("conversation_id = ?", conversationID)
	if beforeID != "" {
		var pivot model.Message
		if err := r.db.Where("id = ? AND conversation_id = ?", beforeID, conversationID).
			First(&pivot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("pivot message %s not found", beforeID)
			}
			return nil, fmt.Errorf("query pivot message failed: %w", err)
		}
		query = query.Where("created_at < ?", pivot.CreatedAt)
	}

	var messages []model.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) DeleteByConversationID(conversationID string) error {
	if err := r.db.Where("conversation_id = ?", conversationID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete conversation messages failed: %w", err)
	}
	return nil
}
