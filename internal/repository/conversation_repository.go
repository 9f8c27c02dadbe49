package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"aichat/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(conversation *model.Conversation) error {
	if err := r.db.Create(conversation).Error; err != nil {
		return fmt.Errorf("create conversation failed: %w", err)
	}
	return nil
}

// GetByIDAndUserID returns (nil, nil) when the conversation does not exist or
// belongs to another user, so callers cannot tell the two apart.
func (r *ConversationRepository) GetByIDAndUserID(conversationID, userID string) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conversation, nil
}

func (r *ConversationRepository) ListByUserID(userID string, limit, offset int) ([]model.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var conversations []model.Conversation
	if err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) CountByUserID(userID string) (int64, error) {
	var total int64
	if err := r.db.Model(&model.Conversation{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count conversations failed: %w", err)
	}
	return total, nil
}

func (r *ConversationRepository) Update(conversationID string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("update conversation failed: %w", err)
	}
	return nil
}

// AddMessages bumps the message counter and touches updated_at, which drives
// the recency ordering of the conversation list.
func (r *ConversationRepository) AddMessages(conversationID string, delta int) error {
	if err := r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"message_count": gorm.Expr("message_count + ?", delta),
			"updated_at":    time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("update conversation message count failed: %w", err)
	}
	return nil
}

func (r *ConversationRepository) UpdateTitle(conversationID, title string) error {
	if err := r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("title", title).Error; err != nil {
		return fmt.Errorf("update conversation title failed: %w", err)
	}
	return nil
}

func (r *ConversationRepository) DeleteByIDAndUserID(conversationID, userID string) error {
	if err := r.db.Where("id = ? AND user_id = ?", conversationID, userID).
		Delete(&model.Conversation{}).Error; err != nil {
		return fmt.Errorf("delete conversation failed: %w", err)
	}
	return nil
}
