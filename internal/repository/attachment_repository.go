package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"aichat/internal/model"
)

type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(attachment *model.Attachment) error {
	if err := r.db.Create(attachment).Error; err != nil {
		return fmt.Errorf("create attachment failed: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) GetByIDAndUserID(attachmentID, userID string) (*model.Attachment, error) {
	var attachment model.Attachment
	if err := r.db.Where("id = ? AND user_id = ?", attachmentID, userID).
		First(&attachment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attachment failed: %w", err)
	}
	return &attachment, nil
}

func (r *AttachmentRepository) DeleteByIDAndUserID(attachmentID, userID string) error {
	if err := r.db.Where("id = ? AND user_id = ?", attachmentID, userID).
		Delete(&model.Attachment{}).Error; err != nil {
		return fmt.Errorf("delete attachment failed: %w", err)
	}
	return nil
}
