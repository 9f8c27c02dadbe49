package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aichat/internal/app"
	"aichat/internal/transport/http/middleware"
	"aichat/internal/transport/http/response"
)

type FileHandler struct {
	files *app.FileService
}

func NewFileHandler(files *app.FileService) *FileHandler {
	return &FileHandler{files: files}
}

func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	f, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable file")
		return
	}
	defer f.Close()

	result, err := h.files.Upload(c.Request.Context(), userID, app.UploadInput{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Content:  f,
	})
	if err != nil {
		writeFileError(c, err, "upload failed")
		return
	}

	response.OK(c, gin.H{
		"attachment": result.Attachment,
		"url":        result.URL,
	})
}

func (h *FileHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	result, err := h.files.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeFileError(c, err, "get file failed")
		return
	}
	response.OK(c, gin.H{
		"attachment": result.Attachment,
		"url":        result.URL,
	})
}

func (h *FileHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	attachmentID := c.Param("id")
	if err := h.files.Delete(c.Request.Context(), userID, attachmentID); err != nil {
		writeFileError(c, err, "delete file failed")
		return
	}
	response.OK(c, gin.H{"deletedAttachmentId": attachmentID})
}

func writeFileError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrUnsupportedFileType):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFileType, err.Error())
	case errors.Is(err, app.ErrAttachmentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeAttachmentNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
