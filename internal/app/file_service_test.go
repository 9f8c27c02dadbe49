package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aichat/internal/model"
)

func TestClassifyUpload(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mimeType string
		wantKind string
		wantMime string
		wantExt  string
	}{
		{"jpeg image", "photo.jpg", "image/jpeg", model.AttachmentKindImage, "image/jpeg", ".jpg"},
		{"png without extension", "photo", "image/png", model.AttachmentKindImage, "image/png", ".png"},
		{"pdf document", "report.pdf", "application/pdf", model.AttachmentKindFile, "application/pdf", ".pdf"},
		{"mime with charset", "notes.txt", "text/plain; charset=utf-8", model.AttachmentKindFile, "text/plain", ".txt"},
		{"octet-stream falls back to extension", "photo.webp", "application/octet-stream", model.AttachmentKindImage, "image/webp", ".webp"},
		{"empty mime falls back to extension", "readme.md", "", model.AttachmentKindFile, "text/markdown", ".md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, mime, ext, err := classifyUpload(tt.fileName, tt.mimeType)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantMime, mime)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestClassifyUploadRejectsUnsupportedTypes(t *testing.T) {
	_, _, _, err := classifyUpload("malware.exe", "application/x-msdownload")
	require.ErrorIs(t, err, ErrUnsupportedFileType)

	_, _, _, err = classifyUpload("video.mp4", "video/mp4")
	require.ErrorIs(t, err, ErrUnsupportedFileType)

	_, _, _, err = classifyUpload("unknown", "")
	require.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestClampText(t *testing.T) {
	assert.Equal(t, "short", clampText("short", 100))

	long := strings.Repeat("a", 200)
	clamped := clampText(long, 100)
	assert.True(t, strings.HasPrefix(clamped, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(clamped, "[truncated]"))

	// A multi-byte rune cut in half must not leak invalid UTF-8.
	clamped = clampText(strings.Repeat("é", 100), 99)
	assert.True(t, strings.HasSuffix(clamped, "[truncated]"))
	for _, r := range clamped {
		assert.NotEqual(t, '�', r)
	}
}
