package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"aichat/internal/model"
	"aichat/internal/pkg/pdfextract"
	"aichat/internal/repository"
)

// BlobStore is the object storage surface the file service needs. The
// storage package implements it against GCS.
type BlobStore interface {
	Upload(ctx context.Context, objectName, contentType string, r io.Reader) error
	SignedURL(objectName string) (string, error)
	Download(ctx context.Context, objectName string) ([]byte, error)
	Delete(ctx context.Context, objectName string) error
}

// Extracted document text is capped before it is embedded into a prompt.
const maxExtractedTextBytes = 32 << 10

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var documentExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"text/plain":         ".txt",
	"text/markdown":      ".md",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

type FileService struct {
	attachRepo    *repository.AttachmentRepository
	blobs         BlobStore
	maxImageBytes int64
	maxFileBytes  int64
	logger        *slog.Logger
}

type UploadInput struct {
	FileName string
	MimeType string
	Content  io.Reader
}

type UploadResult struct {
	Attachment *model.Attachment
	URL        string
}

func NewFileService(
	attachRepo *repository.AttachmentRepository,
	blobs BlobStore,
	maxImageBytes, maxFileBytes int64,
) *FileService {
	if maxImageBytes <= 0 {
		maxImageBytes = 10 << 20
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 20 << 20
	}
	return &FileService{
		attachRepo:    attachRepo,
		blobs:         blobs,
		maxImageBytes: maxImageBytes,
		maxFileBytes:  maxFileBytes,
		logger:        slog.Default(),
	}
}

func (s *FileService) Upload(ctx context.Context, userID string, input UploadInput) (*UploadResult, error) {
	if userID == "" || input.Content == nil {
		return nil, ErrInvalidInput
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, ErrInvalidInput
	}

	kind, mimeType, ext, err := classifyUpload(fileName, input.MimeType)
	if err != nil {
		return nil, err
	}
	maxBytes := s.maxFileBytes
	if kind == model.AttachmentKindImage {
		maxBytes = s.maxImageBytes
	}

	// Read one byte past the cap so an oversize body is rejected regardless
	// of what the client declared.
	data, err := io.ReadAll(io.LimitReader(input.Content, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrInvalidInput
	}

	fileID := uuid.NewString()
	objectName := userID + "/" + fileID + ext
	if err := s.blobs.Upload(ctx, objectName, mimeType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("store upload failed: %w", err)
	}

	attachment := &model.Attachment{
		ID:         fileID,
		UserID:     userID,
		FileName:   fileName,
		Kind:       kind,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		ObjectName: objectName,
	}
	if err := s.attachRepo.Create(attachment); err != nil {
		// Keep the bucket consistent with the database.
		if delErr := s.blobs.Delete(ctx, objectName); delErr != nil {
			s.logger.Error("clean up orphaned object failed",
				"object", objectName, "error", delErr)
		}
		return nil, err
	}

	url, err := s.blobs.SignedURL(objectName)
	if err != nil {
		s.logger.Warn("sign upload url failed", "object", objectName, "error", err)
		url = ""
	}
	return &UploadResult{Attachment: attachment, URL: url}, nil
}

func (s *FileService) Get(ctx context.Context, userID, attachmentID string) (*UploadResult, error) {
	attachment, err := s.getOwned(userID, attachmentID)
	if err != nil {
		return nil, err
	}
	url, err := s.blobs.SignedURL(attachment.ObjectName)
	if err != nil {
		return nil, fmt.Errorf("sign url failed: %w", err)
	}
	return &UploadResult{Attachment: attachment, URL: url}, nil
}

func (s *FileService) Delete(ctx context.Context, userID, attachmentID string) error {
	attachment, err := s.getOwned(userID, attachmentID)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, attachment.ObjectName); err != nil {
		s.logger.Warn("delete object failed",
			"object", attachment.ObjectName, "error", err)
	}
	return s.attachRepo.DeleteByIDAndUserID(attachmentID, userID)
}

// Resolve turns attachment references into prompt material: signed URLs for
// images, extracted text for documents. The stored kind wins over whatever
// the reference claimed.
func (s *FileService) Resolve(ctx context.Context, userID string, refs []model.AttachmentRef) ([]ResolvedAttachment, error) {
	resolved := make([]ResolvedAttachment, 0, len(refs))
	for _, ref := range refs {
		attachment, err := s.getOwned(userID, ref.ID)
		if err != nil {
			return nil, err
		}

		item := ResolvedAttachment{
			Ref:      model.AttachmentRef{ID: attachment.ID, Type: attachment.Kind},
			FileName: attachment.FileName,
			MimeType: attachment.MimeType,
		}
		if attachment.Kind == model.AttachmentKindImage {
			url, err := s.blobs.SignedURL(attachment.ObjectName)
			if err != nil {
				return nil, fmt.Errorf("sign image url failed: %w", err)
			}
			item.URL = url
		} else {
			text, err := s.extractText(ctx, attachment)
			if err != nil {
				s.logger.Warn("extract attachment text failed",
					"attachment_id", attachment.ID, "error", err)
			}
			item.Text = text
		}
		resolved = append(resolved, item)
	}
	return resolved, nil
}

func (s *FileService) getOwned(userID, attachmentID string) (*model.Attachment, error) {
	if userID == "" || attachmentID == "" {
		return nil, ErrInvalidInput
	}
	attachment, err := s.attachRepo.GetByIDAndUserID(attachmentID, userID)
	if err != nil {
		return nil, err
	}
	if attachment == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, attachmentID)
	}
	return attachment, nil
}

func (s *FileService) extractText(ctx context.Context, attachment *model.Attachment) (string, error) {
	data, err := s.blobs.Download(ctx, attachment.ObjectName)
	if err != nil {
		return "", fmt.Errorf("download object failed: %w", err)
	}

	var text string
	switch {
	case attachment.MimeType == "application/pdf":
		text, err = pdfextract.ExtractText(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("extract pdf text failed: %w", err)
		}
	case strings.HasPrefix(attachment.MimeType, "text/"):
		text = string(data)
	default:
		// No extractor for binary word-processor formats.
		return "", nil
	}
	return clampText(text, maxExtractedTextBytes), nil
}

func clampText(text string, maxBytes int) string {
	text = strings.ToValidUTF8(text, "")
	if len(text) <= maxBytes {
		return text
	}
	cut := text[:maxBytes]
	return strings.ToValidUTF8(cut, "") + "\n...[truncated]"
}

// classifyUpload decides image versus document and normalizes the content
// type. Browsers sometimes send an empty or generic MIME type, so the file
// extension is the fallback.
func classifyUpload(fileName, mimeType string) (kind, normalizedMime, ext string, err error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	fileExt := strings.ToLower(path.Ext(fileName))

	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeFromExtension(fileExt)
	}

	if e, ok := imageExtensions[mimeType]; ok {
		if fileExt == "" {
			fileExt = e
		}
		return model.AttachmentKindImage, mimeType, fileExt, nil
	}
	if e, ok := documentExtensions[mimeType]; ok {
		if fileExt == "" {
			fileExt = e
		}
		return model.AttachmentKindFile, mimeType, fileExt, nil
	}
	return "", "", "", ErrUnsupportedFileType
}

func mimeFromExtension(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return ""
	}
}
