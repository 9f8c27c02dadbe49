package model

import "time"

const (
	AttachmentKindImage = "image"
	AttachmentKindFile  = "file"
)

// Attachment is the metadata row for an uploaded file. The bytes live in
// object storage under ObjectName; retrieval URLs are signed on demand.
type Attachment struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:36;not null;index" json:"-"`
	FileName   string    `gorm:"size:256;not null" json:"fileName"`
	Kind       string    `gorm:"size:8;not null" json:"type"`
	MimeType   string    `gorm:"size:128;not null" json:"mimeType"`
	Size       int64     `gorm:"not null" json:"size"`
	ObjectName string    `gorm:"size:512;not null" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
